// Package eligibility decides whether a unit may be routed toward a target
package eligibility

import (
	"fmt"
	"time"

	"github.com/agile-defense/routetrack/pkg/geo"
)

// Limits applied when a new route is requested
const (
	// MaxRouteSpan is the farthest (meters) a unit may be routed
	MaxRouteSpan = 50000.0
	// MaxPositionAge is the oldest unit position a route may start from
	MaxPositionAge = 30 * time.Minute
	// MaxRoutesPerUnit caps concurrent routes held by one unit
	MaxRoutesPerUnit = 2
)

// UnitStatus is the operational status of a unit
type UnitStatus string

const (
	UnitActive   UnitStatus = "active"
	UnitInactive UnitStatus = "inactive"
)

// TargetState is the lifecycle state of a target
type TargetState string

const (
	TargetAvailable  TargetState = "available"
	TargetTaken      TargetState = "taken"
	TargetEnRoute    TargetState = "en_route"
	TargetResolved   TargetState = "resolved"
	TargetUnattended TargetState = "unattended"
	TargetExpired    TargetState = "expired"
)

// Terminal reports whether no unit should be routed toward a target in this state
func (s TargetState) Terminal() bool {
	switch s {
	case TargetResolved, TargetExpired, TargetUnattended:
		return true
	}
	return false
}

// Valid reports whether s is a known state
func (s TargetState) Valid() bool {
	switch s {
	case TargetAvailable, TargetTaken, TargetEnRoute, TargetResolved, TargetUnattended, TargetExpired:
		return true
	}
	return false
}

// Unit is a mobile responder as reported by the position feed
type Unit struct {
	ID        string        `json:"unit_id"`
	Position  geo.Position  `json:"position"`
	Status    UnitStatus    `json:"status"`
	Staleness time.Duration `json:"staleness"` // Age of the last position report
}

// Target is a fixed-location incident a unit can be routed toward
type Target struct {
	ID             string       `json:"target_id"`
	Position       geo.Position `json:"position"`
	State          TargetState  `json:"state"`
	AssignedUnitID string       `json:"assigned_unit_id,omitempty"`
}

// Rejection codes
const (
	CodeUnitInactive   = "unit_inactive"
	CodeTargetClosed   = "target_closed"
	CodeRouteTooLong   = "route_too_long"
	CodePositionStale  = "position_stale"
	CodeUnitAtCapacity = "unit_at_capacity"
)

// Result is the outcome of an eligibility check
type Result struct {
	OK     bool   `json:"ok"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Allowed is the successful Result
var Allowed = Result{OK: true}

// Reject builds a failed Result
func Reject(code, reason string) Result {
	return Result{OK: false, Code: code, Reason: reason}
}

// RouteCounter is a read-only view of the routes currently held by units
type RouteCounter interface {
	RoutesForUnit(unitID string) int
}

// Check decides whether a route from unit to target may be created. Checks
// run in a fixed order and the first failure is returned.
func Check(unit Unit, target Target, routes RouteCounter) Result {
	if unit.Status != UnitActive {
		return Reject(CodeUnitInactive,
			fmt.Sprintf("unit %s must be active to be routed (status: %s)", unit.ID, unit.Status))
	}

	if target.State.Terminal() {
		return Reject(CodeTargetClosed,
			fmt.Sprintf("target %s is already %s", target.ID, target.State))
	}

	span := geo.Distance(unit.Position, target.Position)
	if span > MaxRouteSpan {
		return Reject(CodeRouteTooLong,
			fmt.Sprintf("distance too large: %.1fkm, maximum allowed: %.0fkm", span/1000, MaxRouteSpan/1000))
	}

	if unit.Staleness > MaxPositionAge {
		return Reject(CodePositionStale,
			fmt.Sprintf("unit position too old: %.0f min, maximum: %.0f min",
				unit.Staleness.Minutes(), MaxPositionAge.Minutes()))
	}

	if n := routes.RoutesForUnit(unit.ID); n >= MaxRoutesPerUnit {
		return Reject(CodeUnitAtCapacity,
			fmt.Sprintf("unit %s already has %d active routes, maximum allowed: %d", unit.ID, n, MaxRoutesPerUnit))
	}

	return Allowed
}
