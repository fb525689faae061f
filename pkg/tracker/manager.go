package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/agile-defense/routetrack/pkg/eligibility"
	"github.com/agile-defense/routetrack/pkg/geo"
)

// Config holds the collaborators of a Manager
type Config struct {
	Feed     PositionFeed
	Targets  TargetRegistry
	Finder   PathFinder
	Notifier Notifier // Optional

	// Interval between refresh ticks of a route. Defaults to RouteUpdateInterval.
	Interval time.Duration
	// Now defaults to time.Now
	Now func() time.Time

	Logger     *zerolog.Logger       // Optional
	Registerer prometheus.Registerer // Optional
}

// Manager owns the route registry and the refresh loop of every route
type Manager struct {
	feed     PositionFeed
	targets  TargetRegistry
	finder   PathFinder
	notifier Notifier
	interval time.Duration
	now      func() time.Time
	logger   zerolog.Logger
	metrics  *Metrics

	routes *Registry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewManager creates a Manager
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Feed == nil {
		return nil, errors.New("position feed is required")
	}
	if cfg.Targets == nil {
		return nil, errors.New("target registry is required")
	}
	if cfg.Finder == nil {
		return nil, errors.New("path finder is required")
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = RouteUpdateInterval
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "route-manager").Logger()
	}

	metrics := NewMetrics()
	if cfg.Registerer != nil {
		metrics.Register(cfg.Registerer)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		feed:     cfg.Feed,
		targets:  cfg.Targets,
		finder:   cfg.Finder,
		notifier: cfg.Notifier,
		interval: interval,
		now:      now,
		logger:   logger,
		metrics:  metrics,
		routes:   NewRegistry(),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// CreateRoute validates and starts tracking a route from a unit to a target.
// A rejected request returns a failed Result and a nil error; errors are
// reserved for lookups that could not be completed.
func (m *Manager) CreateRoute(ctx context.Context, unitID, targetID string) (eligibility.Result, View, error) {
	if m.isClosed() {
		return eligibility.Result{}, View{}, ErrClosed
	}

	key := Key{UnitID: unitID, TargetID: targetID}
	logger := m.logger.With().Str("route", key.String()).Logger()

	unit, err := m.feed.Unit(ctx, unitID)
	if err != nil {
		return eligibility.Result{}, View{}, fmt.Errorf("failed to resolve unit %s: %w", unitID, err)
	}
	target, err := m.targets.Target(ctx, targetID)
	if err != nil {
		return eligibility.Result{}, View{}, fmt.Errorf("failed to resolve target %s: %w", targetID, err)
	}

	if m.routes.Has(key) {
		return m.reject(logger, routeExists(key)), View{}, nil
	}
	if res := eligibility.Check(unit, target, m.routes); !res.OK {
		return m.reject(logger, res), View{}, nil
	}

	origin := unit.Position
	path, err := m.requestPath(ctx, origin, target.Position)
	fallback := false
	if err != nil {
		logger.Warn().Err(err).Msg("Path-finding failed, using straight-line route")
		path = geo.Path{origin, target.Position}
		fallback = true
	}

	now := m.now()
	route := TrackedRoute{
		Key:           key,
		Destination:   target.Position,
		CurrentPath:   path.Clone(),
		OriginalPath:  path,
		LastOrigin:    origin,
		LastFetchTime: now,
		Fallback:      fallback,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	routeCtx, cancel := context.WithCancel(m.ctx)
	e := newEntry(route, cancel)
	if res := m.routes.insert(e); !res.OK {
		cancel()
		return m.reject(logger, res), View{}, nil
	}
	if !m.start(routeCtx, e) {
		m.routes.removeEntry(e)
		cancel()
		return eligibility.Result{}, View{}, ErrClosed
	}
	m.metrics.activeRoutes.Set(float64(m.routes.Len()))

	e.mu.Lock()
	view := e.route.view()
	if !e.removed {
		m.notifyUpdated(view)
	}
	e.mu.Unlock()

	logger.Info().
		Int("points", len(path)).
		Bool("fallback", fallback).
		Float64("remaining_m", view.RemainingMeters).
		Msg("Route created")

	return eligibility.Allowed, view, nil
}

// RemoveRoute stops tracking a route. It reports whether the route existed.
func (m *Manager) RemoveRoute(unitID, targetID string) bool {
	key := Key{UnitID: unitID, TargetID: targetID}
	e := m.routes.remove(key)
	if e == nil {
		return false
	}
	m.stop(e)
	m.metrics.activeRoutes.Set(float64(m.routes.Len()))

	m.logger.Info().Str("route", key.String()).Msg("Route removed")
	return true
}

// RemoveAll stops tracking every route and returns how many were removed
func (m *Manager) RemoveAll() int {
	removed := m.routes.removeAll()
	for _, e := range removed {
		m.stop(e)
	}
	m.metrics.activeRoutes.Set(float64(m.routes.Len()))

	if len(removed) > 0 {
		m.logger.Info().Int("count", len(removed)).Msg("All routes removed")
	}
	return len(removed)
}

// Lookup returns a copy of a route
func (m *Manager) Lookup(unitID, targetID string) (View, bool) {
	e := m.routes.get(Key{UnitID: unitID, TargetID: targetID})
	if e == nil {
		return View{}, false
	}
	return e.view(), true
}

// ListActiveRoutes returns a copy of every route ordered by unit then target
func (m *Manager) ListActiveRoutes() []View {
	entries := m.routes.snapshot()
	views := make([]View, 0, len(entries))
	for _, e := range entries {
		views = append(views, e.view())
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].UnitID != views[j].UnitID {
			return views[i].UnitID < views[j].UnitID
		}
		return views[i].TargetID < views[j].TargetID
	})
	return views
}

// RoutesForUnit returns how many routes a unit currently holds
func (m *Manager) RoutesForUnit(unitID string) int {
	return m.routes.RoutesForUnit(unitID)
}

// Dispatch routes a unit to a target: the target's assigned unit when it has
// one, otherwise the nearest unit that passes eligibility
func (m *Manager) Dispatch(ctx context.Context, targetID string) (eligibility.Result, View, error) {
	target, err := m.targets.Target(ctx, targetID)
	if err != nil {
		return eligibility.Result{}, View{}, fmt.Errorf("failed to resolve target %s: %w", targetID, err)
	}

	unitID := target.AssignedUnitID
	if unitID == "" {
		units, err := m.feed.Units(ctx)
		if err != nil {
			return eligibility.Result{}, View{}, fmt.Errorf("failed to list units: %w", err)
		}
		unit, ok := m.nearestEligible(units, target)
		if !ok {
			res := eligibility.Reject(CodeNoUnit,
				fmt.Sprintf("no eligible unit within %.0fkm of target %s", eligibility.MaxRouteSpan/1000, targetID))
			return m.reject(m.logger.With().Str("target_id", targetID).Logger(), res), View{}, nil
		}
		unitID = unit.ID
	}

	return m.CreateRoute(ctx, unitID, targetID)
}

func (m *Manager) nearestEligible(units []eligibility.Unit, target eligibility.Target) (eligibility.Unit, bool) {
	var (
		best  eligibility.Unit
		bestD float64
		found bool
	)
	for _, u := range units {
		if m.routes.Has(Key{UnitID: u.ID, TargetID: target.ID}) {
			continue
		}
		if !eligibility.Check(u, target, m.routes).OK {
			continue
		}
		d := geo.Distance(u.Position, target.Position)
		if !found || d < bestD || (d == bestD && u.ID < best.ID) {
			best, bestD, found = u, d, true
		}
	}
	return best, found
}

// Close stops every refresh loop and waits for them to exit. Routes stay in
// the registry but are no longer refreshed.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.logger.Info().Msg("Route manager stopped")
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// start launches the refresh loop of e. It reports false once the manager is
// closed, in which case no loop runs.
func (m *Manager) start(ctx context.Context, e *entry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.wg.Add(1)
	go m.run(ctx, e)
	return true
}

// stop marks e removed and announces it under the entry lock, so no update
// for e can be delivered after its removal
func (m *Manager) stop(e *entry) {
	e.mu.Lock()
	e.removed = true
	m.notifyRemoved(e.key)
	e.mu.Unlock()
	e.cancel()
}

func (m *Manager) reject(logger zerolog.Logger, res eligibility.Result) eligibility.Result {
	m.metrics.recordRejection(res.Code)
	logger.Info().Str("code", res.Code).Str("reason", res.Reason).Msg("Route rejected")
	return res
}

// requestPath asks the path finder for a path. Fewer than two points is
// treated as a failure.
func (m *Manager) requestPath(ctx context.Context, origin, destination geo.Position) (geo.Path, error) {
	start := time.Now()
	path, err := m.finder.Route(ctx, origin, destination)
	if err == nil && len(path) < 2 {
		err = ErrEmptyPath
	}
	m.metrics.recordPathRequest(err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return path, nil
}

func (m *Manager) notifyUpdated(view View) {
	if m.notifier != nil {
		m.notifier.RouteUpdated(view)
	}
}

func (m *Manager) notifyRemoved(key Key) {
	if m.notifier != nil {
		m.notifier.RouteRemoved(key)
	}
}
