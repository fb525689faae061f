package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/agile-defense/routetrack/pkg/eligibility"
	"github.com/agile-defense/routetrack/pkg/geo"
	"github.com/agile-defense/routetrack/pkg/tracker"
)

// TargetStore reads and writes targets
type TargetStore interface {
	Target(ctx context.Context, targetID string) (eligibility.Target, error)
	UpsertTarget(ctx context.Context, t eligibility.Target) error
}

// TargetHandler handles target-related HTTP requests
type TargetHandler struct {
	store  TargetStore
	routes RouteService
	logger zerolog.Logger
}

// NewTargetHandler creates a new TargetHandler
func NewTargetHandler(store TargetStore, routes RouteService, logger zerolog.Logger) *TargetHandler {
	return &TargetHandler{
		store:  store,
		routes: routes,
		logger: logger.With().Str("handler", "targets").Logger(),
	}
}

// Routes returns the target endpoints
func (h *TargetHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/{targetId}", h.GetTarget)
	r.Put("/{targetId}", h.PutTarget)
	r.Post("/{targetId}/dispatch", h.Dispatch)

	return r
}

// TargetRequest represents the request body for writing a target
type TargetRequest struct {
	Position       geo.Position            `json:"position"`
	State          eligibility.TargetState `json:"state"`
	AssignedUnitID string                  `json:"assigned_unit_id,omitempty"`
}

// TargetResponse wraps a single target
type TargetResponse struct {
	Target        eligibility.Target `json:"target"`
	CorrelationID string             `json:"correlation_id"`
}

// GetTarget handles GET /api/v1/targets/{targetId}
func (h *TargetHandler) GetTarget(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := GetCorrelationID(ctx)
	targetID := chi.URLParam(r, "targetId")

	target, err := h.store.Target(ctx, targetID)
	if errors.Is(err, tracker.ErrTargetNotFound) {
		WriteError(w, http.StatusNotFound, "Target not found", correlationID)
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("correlation_id", correlationID).Str("target_id", targetID).Msg("Failed to get target")
		WriteError(w, http.StatusInternalServerError, "Failed to get target", correlationID)
		return
	}

	WriteJSON(w, http.StatusOK, TargetResponse{Target: target, CorrelationID: correlationID})
}

// PutTarget handles PUT /api/v1/targets/{targetId}
func (h *TargetHandler) PutTarget(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := GetCorrelationID(ctx)
	targetID := chi.URLParam(r, "targetId")

	var req TargetRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body", correlationID)
		return
	}
	if req.Position.Lat < -90 || req.Position.Lat > 90 || req.Position.Lon < -180 || req.Position.Lon > 180 {
		WriteError(w, http.StatusUnprocessableEntity, "position out of range", correlationID)
		return
	}

	target := eligibility.Target{
		ID:             targetID,
		Position:       req.Position,
		State:          req.State,
		AssignedUnitID: req.AssignedUnitID,
	}
	if target.State == "" {
		target.State = eligibility.TargetAvailable
	}
	if !target.State.Valid() {
		WriteError(w, http.StatusUnprocessableEntity, "unknown target state "+string(target.State), correlationID)
		return
	}

	if err := h.store.UpsertTarget(ctx, target); err != nil {
		h.logger.Error().Err(err).Str("correlation_id", correlationID).Str("target_id", targetID).Msg("Failed to store target")
		WriteError(w, http.StatusInternalServerError, "Failed to store target", correlationID)
		return
	}

	WriteJSON(w, http.StatusOK, TargetResponse{Target: target, CorrelationID: correlationID})
}

// Dispatch handles POST /api/v1/targets/{targetId}/dispatch
func (h *TargetHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := GetCorrelationID(ctx)
	targetID := chi.URLParam(r, "targetId")

	res, view, err := h.routes.Dispatch(ctx, targetID)
	writeOutcome(w, h.logger, correlationID, res, view, err)
}
