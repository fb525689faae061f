package messages

import (
	"time"

	"github.com/agile-defense/routetrack/pkg/geo"
)

// Route events
const (
	RouteUpdated = "updated"
	RouteRemoved = "removed"
)

// RouteUpdate tells renderers that a tracked route changed or went away
type RouteUpdate struct {
	BaseMessage

	Event    string `json:"event"`
	UnitID   string `json:"unit_id"`
	TargetID string `json:"target_id"`

	// Empty for removals
	CurrentPath     geo.Path     `json:"current_path,omitempty"`
	Destination     geo.Position `json:"destination"`
	RemainingMeters float64      `json:"remaining_meters"`
	Fallback        bool         `json:"fallback"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

func (r *RouteUpdate) Subject() string {
	return "route." + r.Event + "." + r.UnitID + "." + r.TargetID
}

// NewRouteUpdate creates a route event message
func NewRouteUpdate(source, event, unitID, targetID string) *RouteUpdate {
	env := NewEnvelope(source, "route-tracker")
	return &RouteUpdate{
		BaseMessage: BaseMessage{Envelope: env},
		Event:       event,
		UnitID:      unitID,
		TargetID:    targetID,
		UpdatedAt:   env.Timestamp,
	}
}
