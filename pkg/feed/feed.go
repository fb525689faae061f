// Package feed keeps the latest reported position of every unit and serves it
// to the route tracker
package feed

import (
	"context"
	"time"

	"github.com/agile-defense/routetrack/pkg/eligibility"
	"github.com/agile-defense/routetrack/pkg/geo"
)

// ActiveWindow is how recent a report must be for its unit to count as active
const ActiveWindow = 10 * time.Minute

// Report is the last known state of a unit
type Report struct {
	UnitID     string                 `json:"unit_id"`
	Position   geo.Position           `json:"position"`
	Status     eligibility.UnitStatus `json:"status"`
	ReportedAt time.Time              `json:"reported_at"`
}

// Unit derives the unit as seen at now. A unit that reported itself inactive,
// or has not reported within ActiveWindow, is inactive.
func (r Report) Unit(now time.Time) eligibility.Unit {
	staleness := now.Sub(r.ReportedAt)
	if staleness < 0 {
		staleness = 0
	}

	status := eligibility.UnitActive
	if r.Status == eligibility.UnitInactive || staleness > ActiveWindow {
		status = eligibility.UnitInactive
	}

	return eligibility.Unit{
		ID:        r.UnitID,
		Position:  r.Position,
		Status:    status,
		Staleness: staleness,
	}
}

// Recorder accepts position reports
type Recorder interface {
	Record(ctx context.Context, r Report) error
}
