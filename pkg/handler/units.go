package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/agile-defense/routetrack/pkg/eligibility"
	"github.com/agile-defense/routetrack/pkg/feed"
	"github.com/agile-defense/routetrack/pkg/geo"
	"github.com/agile-defense/routetrack/pkg/tracker"
)

// UnitStore is a position feed that accepts reports
type UnitStore interface {
	tracker.PositionFeed
	feed.Recorder
}

// UnitHandler handles unit position HTTP requests
type UnitHandler struct {
	store  UnitStore
	logger zerolog.Logger
}

// NewUnitHandler creates a new UnitHandler
func NewUnitHandler(store UnitStore, logger zerolog.Logger) *UnitHandler {
	return &UnitHandler{
		store:  store,
		logger: logger.With().Str("handler", "units").Logger(),
	}
}

// Routes returns the unit endpoints
func (h *UnitHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListUnits)
	r.Get("/{unitId}", h.GetUnit)
	r.Post("/{unitId}/position", h.ReportPosition)

	return r
}

// PositionRequest represents a position report
type PositionRequest struct {
	Position geo.Position           `json:"position"`
	Status   eligibility.UnitStatus `json:"status,omitempty"`
}

// UnitResponse wraps a single unit
type UnitResponse struct {
	Unit          eligibility.Unit `json:"unit"`
	CorrelationID string           `json:"correlation_id"`
}

// UnitListResponse represents the response for listing units
type UnitListResponse struct {
	Units         []eligibility.Unit `json:"units"`
	Total         int                `json:"total"`
	CorrelationID string             `json:"correlation_id"`
}

// ListUnits handles GET /api/v1/units
func (h *UnitHandler) ListUnits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := GetCorrelationID(ctx)

	units, err := h.store.Units(ctx)
	if err != nil {
		h.logger.Error().Err(err).Str("correlation_id", correlationID).Msg("Failed to list units")
		WriteError(w, http.StatusInternalServerError, "Failed to list units", correlationID)
		return
	}

	WriteJSON(w, http.StatusOK, UnitListResponse{Units: units, Total: len(units), CorrelationID: correlationID})
}

// GetUnit handles GET /api/v1/units/{unitId}
func (h *UnitHandler) GetUnit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := GetCorrelationID(ctx)
	unitID := chi.URLParam(r, "unitId")

	unit, err := h.store.Unit(ctx, unitID)
	if errors.Is(err, tracker.ErrUnitNotFound) {
		WriteError(w, http.StatusNotFound, "Unit not found", correlationID)
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("correlation_id", correlationID).Str("unit_id", unitID).Msg("Failed to get unit")
		WriteError(w, http.StatusInternalServerError, "Failed to get unit", correlationID)
		return
	}

	WriteJSON(w, http.StatusOK, UnitResponse{Unit: unit, CorrelationID: correlationID})
}

// ReportPosition handles POST /api/v1/units/{unitId}/position
func (h *UnitHandler) ReportPosition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := GetCorrelationID(ctx)
	unitID := chi.URLParam(r, "unitId")

	var req PositionRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body", correlationID)
		return
	}
	if req.Position.Lat < -90 || req.Position.Lat > 90 || req.Position.Lon < -180 || req.Position.Lon > 180 {
		WriteError(w, http.StatusUnprocessableEntity, "position out of range", correlationID)
		return
	}

	status := eligibility.UnitActive
	if req.Status == eligibility.UnitInactive {
		status = eligibility.UnitInactive
	}

	report := feed.Report{
		UnitID:     unitID,
		Position:   req.Position,
		Status:     status,
		ReportedAt: time.Now().UTC(),
	}
	if err := h.store.Record(ctx, report); err != nil {
		h.logger.Error().Err(err).Str("correlation_id", correlationID).Str("unit_id", unitID).Msg("Failed to record position")
		WriteError(w, http.StatusInternalServerError, "Failed to record position", correlationID)
		return
	}

	WriteJSON(w, http.StatusAccepted, SuccessResponse{Success: true, Message: "Position recorded", CorrelationID: correlationID})
}
