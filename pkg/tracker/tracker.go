// Package tracker keeps one evolving path per (unit, target) pair, trimming it
// as the unit advances and re-querying the path-finding service when needed
package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/agile-defense/routetrack/pkg/eligibility"
	"github.com/agile-defense/routetrack/pkg/geo"
)

// Refresh tuning
const (
	// RouteDeviationThreshold is how far (meters) a unit may stray from its
	// path before a new one is requested
	RouteDeviationThreshold = 50.0
	// MaxRequeryInterval forces a new path even without deviation
	MaxRequeryInterval = 120 * time.Second
	// RouteUpdateInterval is the refresh period of every route
	RouteUpdateInterval = 8 * time.Second
	// MinMovementThreshold is the smallest movement (meters) worth reacting to
	MinMovementThreshold = 10.0
)

// Rejection codes added on top of the eligibility codes
const (
	CodeRouteExists = "route_exists"
	CodeNoUnit      = "no_unit"
)

var (
	ErrUnitNotFound   = errors.New("unit not found")
	ErrTargetNotFound = errors.New("target not found")
	ErrEmptyPath      = errors.New("path-finding returned no usable path")
	ErrClosed         = errors.New("route manager closed")
)

// PositionFeed provides the latest known state of units
type PositionFeed interface {
	Unit(ctx context.Context, unitID string) (eligibility.Unit, error)
	Units(ctx context.Context) ([]eligibility.Unit, error)
}

// TargetRegistry provides targets by id
type TargetRegistry interface {
	Target(ctx context.Context, targetID string) (eligibility.Target, error)
}

// PathFinder computes a travel path between two positions
type PathFinder interface {
	Route(ctx context.Context, origin, destination geo.Position) (geo.Path, error)
}

// PathFinderFunc adapts a function to PathFinder
type PathFinderFunc func(ctx context.Context, origin, destination geo.Position) (geo.Path, error)

// Route calls f
func (f PathFinderFunc) Route(ctx context.Context, origin, destination geo.Position) (geo.Path, error) {
	return f(ctx, origin, destination)
}

// Notifier receives route changes for rendering. Calls are made with the
// route's lock held, so implementations must not block or call back into the
// Manager.
type Notifier interface {
	RouteUpdated(view View)
	RouteRemoved(key Key)
}

// Notifiers fans route changes out to several notifiers in order
type Notifiers []Notifier

// RouteUpdated forwards to every notifier
func (ns Notifiers) RouteUpdated(view View) {
	for _, n := range ns {
		n.RouteUpdated(view)
	}
}

// RouteRemoved forwards to every notifier
func (ns Notifiers) RouteRemoved(key Key) {
	for _, n := range ns {
		n.RouteRemoved(key)
	}
}

// Key identifies a tracked route
type Key struct {
	UnitID   string `json:"unit_id"`
	TargetID string `json:"target_id"`
}

func (k Key) String() string {
	return k.UnitID + "_" + k.TargetID
}

// TrackedRoute is the state of one (unit, target) route
type TrackedRoute struct {
	Key         Key
	Destination geo.Position

	// CurrentPath is what is shown; OriginalPath is the last full path
	// returned by the path-finding service and the only trim reference
	CurrentPath  geo.Path
	OriginalPath geo.Path

	LastOrigin      geo.Position
	LastFetchTime   time.Time
	RefreshInFlight bool

	// Fallback is set while OriginalPath is a straight line
	Fallback  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// View is a read-only copy of a tracked route
type View struct {
	UnitID          string       `json:"unit_id"`
	TargetID        string       `json:"target_id"`
	CurrentPath     geo.Path     `json:"current_path"`
	OriginalPath    geo.Path     `json:"original_path"`
	Destination     geo.Position `json:"destination"`
	LastOrigin      geo.Position `json:"last_origin"`
	LastFetchTime   time.Time    `json:"last_fetch_time"`
	RefreshInFlight bool         `json:"refresh_in_flight"`
	Fallback        bool         `json:"fallback"`
	RemainingMeters float64      `json:"remaining_meters"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Key returns the registry key of the viewed route
func (v View) Key() Key {
	return Key{UnitID: v.UnitID, TargetID: v.TargetID}
}

func (r *TrackedRoute) view() View {
	return View{
		UnitID:          r.Key.UnitID,
		TargetID:        r.Key.TargetID,
		CurrentPath:     r.CurrentPath.Clone(),
		OriginalPath:    r.OriginalPath.Clone(),
		Destination:     r.Destination,
		LastOrigin:      r.LastOrigin,
		LastFetchTime:   r.LastFetchTime,
		RefreshInFlight: r.RefreshInFlight,
		Fallback:        r.Fallback,
		RemainingMeters: geo.Length(r.CurrentPath),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// Refresh reasons
const (
	reasonNoPath    = "no_path"
	reasonDeviation = "deviation"
	reasonStale     = "requery_interval"
	reasonMovement  = "movement"
)

// ShouldRequestNewRoute decides whether a new path must be fetched for a unit
// now at current, or whether the existing path can simply be trimmed
func ShouldRequestNewRoute(route *TrackedRoute, current geo.Position, now time.Time) bool {
	return refreshReason(route, current, now) != ""
}

func refreshReason(route *TrackedRoute, current geo.Position, now time.Time) string {
	if len(route.OriginalPath) == 0 {
		return reasonNoPath
	}
	if route.RefreshInFlight {
		return ""
	}
	if geo.NearestPointOnPath(route.OriginalPath, current).Distance > RouteDeviationThreshold {
		return reasonDeviation
	}
	if now.Sub(route.LastFetchTime) > MaxRequeryInterval {
		return reasonStale
	}
	if geo.Distance(route.LastOrigin, current) > 3*MinMovementThreshold {
		return reasonMovement
	}
	return ""
}
