package tracker

import (
	"context"
	"time"

	"github.com/agile-defense/routetrack/pkg/geo"
)

// fetchResult is a completed path-finding request for one route
type fetchResult struct {
	origin geo.Position
	path   geo.Path
	err    error
	at     time.Time
}

// run is the refresh loop of one route. Ticks and fetch results are handled
// on the same goroutine, so a route is only ever mutated here or by removal.
func (m *Manager) run(ctx context.Context, e *entry) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx, e)
		case res := <-e.results:
			m.apply(e, res)
		}
	}
}

// tick refreshes a route from its unit's latest position, either trimming the
// current path locally or starting a new path-finding request
func (m *Manager) tick(ctx context.Context, e *entry) {
	if !m.routes.contains(e) {
		return
	}

	unit, err := m.feed.Unit(ctx, e.key.UnitID)
	if err != nil {
		m.logger.Debug().Err(err).Str("route", e.key.String()).Msg("Unit position unavailable, skipping tick")
		m.metrics.recordTick(TickSkipped)
		return
	}
	current := unit.Position
	now := m.now()

	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return
	}
	if e.route.RefreshInFlight {
		e.route.CurrentPath = geo.Trim(e.route.OriginalPath, current)
		e.route.UpdatedAt = now
		m.notifyUpdated(e.route.view())
		e.mu.Unlock()

		m.metrics.recordTick(TickInFlight)
		return
	}
	if reason := refreshReason(&e.route, current, now); reason != "" {
		e.route.RefreshInFlight = true
		destination := e.route.Destination
		e.mu.Unlock()

		m.logger.Debug().Str("route", e.key.String()).Str("reason", reason).Msg("Requesting new path")
		m.metrics.recordTick(TickRefetch)

		// The loop goroutine still holds its own count, so this Add cannot
		// race with Close's Wait
		m.wg.Add(1)
		go m.fetch(ctx, e, current, destination)
		return
	}
	e.route.CurrentPath = geo.Trim(e.route.OriginalPath, current)
	e.route.UpdatedAt = now
	m.notifyUpdated(e.route.view())
	e.mu.Unlock()

	m.metrics.recordTick(TickTrimmed)
}

// fetch requests a new path and hands the outcome back to the route's loop
func (m *Manager) fetch(ctx context.Context, e *entry, origin, destination geo.Position) {
	defer m.wg.Done()

	path, err := m.requestPath(ctx, origin, destination)
	res := fetchResult{origin: origin, path: path, err: err, at: m.now()}

	select {
	case e.results <- res:
	default:
		// At most one request is in flight per route
		m.logger.Warn().Str("route", e.key.String()).Msg("Dropping unexpected path result")
	}
}

// apply installs a fetch result. Results for removed routes are discarded; a
// failed fetch trims the existing path from the position the fetch was for.
func (m *Manager) apply(e *entry, res fetchResult) {
	if !m.routes.contains(e) {
		m.metrics.staleResults.Inc()
		return
	}

	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		m.metrics.staleResults.Inc()
		return
	}

	if res.err != nil {
		e.route.CurrentPath = geo.Trim(e.route.OriginalPath, res.origin)
	} else {
		e.route.OriginalPath = res.path
		e.route.CurrentPath = res.path.Clone()
		e.route.LastOrigin = res.origin
		e.route.LastFetchTime = res.at
		e.route.Fallback = false
	}
	e.route.RefreshInFlight = false
	e.route.UpdatedAt = res.at
	m.notifyUpdated(e.route.view())
	e.mu.Unlock()

	if res.err != nil {
		m.logger.Warn().Err(res.err).Str("route", e.key.String()).Msg("Path refresh failed, keeping trimmed route")
	} else {
		m.logger.Debug().Str("route", e.key.String()).Int("points", len(res.path)).Msg("Path refreshed")
	}
}
