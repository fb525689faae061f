package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/agile-defense/routetrack/pkg/eligibility"
	"github.com/agile-defense/routetrack/pkg/tracker"
)

// RouteService is the subset of the route manager exposed over HTTP
type RouteService interface {
	CreateRoute(ctx context.Context, unitID, targetID string) (eligibility.Result, tracker.View, error)
	Dispatch(ctx context.Context, targetID string) (eligibility.Result, tracker.View, error)
	RemoveRoute(unitID, targetID string) bool
	RemoveAll() int
	Lookup(unitID, targetID string) (tracker.View, bool)
	ListActiveRoutes() []tracker.View
}

// RouteHandler handles route-related HTTP requests
type RouteHandler struct {
	routes RouteService
	logger zerolog.Logger
}

// NewRouteHandler creates a new RouteHandler
func NewRouteHandler(routes RouteService, logger zerolog.Logger) *RouteHandler {
	return &RouteHandler{
		routes: routes,
		logger: logger.With().Str("handler", "routes").Logger(),
	}
}

// Routes returns the route endpoints
func (h *RouteHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListRoutes)
	r.Post("/", h.CreateRoute)
	r.Delete("/", h.RemoveAllRoutes)
	r.Get("/geojson", h.ListRoutesGeoJSON)
	r.Get("/{unitId}/{targetId}", h.GetRoute)
	r.Delete("/{unitId}/{targetId}", h.RemoveRoute)

	return r
}

// CreateRouteRequest represents the request body for creating a route
type CreateRouteRequest struct {
	UnitID   string `json:"unit_id"`
	TargetID string `json:"target_id"`
}

// RouteResponse wraps a single route
type RouteResponse struct {
	Route         tracker.View `json:"route"`
	CorrelationID string       `json:"correlation_id"`
}

// RouteListResponse represents the response for listing routes
type RouteListResponse struct {
	Routes        []tracker.View `json:"routes"`
	Total         int            `json:"total"`
	CorrelationID string         `json:"correlation_id"`
}

// RejectionResponse is returned when eligibility refuses a route
type RejectionResponse struct {
	Error         string `json:"error"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id"`
}

// CreateRoute handles POST /api/v1/routes
func (h *RouteHandler) CreateRoute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := GetCorrelationID(ctx)

	var req CreateRouteRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body", correlationID)
		return
	}
	if req.UnitID == "" || req.TargetID == "" {
		WriteError(w, http.StatusBadRequest, "unit_id and target_id are required", correlationID)
		return
	}

	res, view, err := h.routes.CreateRoute(ctx, req.UnitID, req.TargetID)
	writeOutcome(w, h.logger, correlationID, res, view, err)
}

// writeOutcome renders the result of creating a route
func writeOutcome(w http.ResponseWriter, logger zerolog.Logger, correlationID string, res eligibility.Result, view tracker.View, err error) {
	if err != nil {
		status := errorStatus(err)
		if status == http.StatusInternalServerError {
			logger.Error().Err(err).Str("correlation_id", correlationID).Msg("Failed to create route")
		}
		WriteError(w, status, err.Error(), correlationID)
		return
	}

	if !res.OK {
		status := http.StatusUnprocessableEntity
		if res.Code == tracker.CodeRouteExists {
			status = http.StatusConflict
		}
		WriteJSON(w, status, RejectionResponse{
			Error:         "rejected",
			Code:          res.Code,
			Message:       res.Reason,
			CorrelationID: correlationID,
		})
		return
	}

	WriteJSON(w, http.StatusCreated, RouteResponse{Route: view, CorrelationID: correlationID})
}

// ListRoutes handles GET /api/v1/routes
func (h *RouteHandler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	routes := h.routes.ListActiveRoutes()
	WriteJSON(w, http.StatusOK, RouteListResponse{
		Routes:        routes,
		Total:         len(routes),
		CorrelationID: GetCorrelationID(r.Context()),
	})
}

// GetRoute handles GET /api/v1/routes/{unitId}/{targetId}
func (h *RouteHandler) GetRoute(w http.ResponseWriter, r *http.Request) {
	correlationID := GetCorrelationID(r.Context())
	unitID := chi.URLParam(r, "unitId")
	targetID := chi.URLParam(r, "targetId")

	view, ok := h.routes.Lookup(unitID, targetID)
	if !ok {
		WriteError(w, http.StatusNotFound, "Route not found", correlationID)
		return
	}

	WriteJSON(w, http.StatusOK, RouteResponse{Route: view, CorrelationID: correlationID})
}

// RemoveRoute handles DELETE /api/v1/routes/{unitId}/{targetId}
func (h *RouteHandler) RemoveRoute(w http.ResponseWriter, r *http.Request) {
	correlationID := GetCorrelationID(r.Context())
	unitID := chi.URLParam(r, "unitId")
	targetID := chi.URLParam(r, "targetId")

	if !h.routes.RemoveRoute(unitID, targetID) {
		WriteError(w, http.StatusNotFound, "Route not found", correlationID)
		return
	}

	WriteSuccess(w, http.StatusOK, "Route removed", nil, correlationID)
}

// RemoveAllRoutes handles DELETE /api/v1/routes
func (h *RouteHandler) RemoveAllRoutes(w http.ResponseWriter, r *http.Request) {
	removed := h.routes.RemoveAll()
	WriteSuccess(w, http.StatusOK, "Routes removed", map[string]int{"removed": removed}, GetCorrelationID(r.Context()))
}
