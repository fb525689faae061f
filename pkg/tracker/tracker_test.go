package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agile-defense/routetrack/pkg/geo"
)

func TestShouldRequestNewRoute(t *testing.T) {
	origin := geo.Position{Lat: -18.0066, Lon: -70.2463}
	path := geo.Path{
		origin,
		geo.Offset(origin, 0, 500),
		geo.Offset(origin, 0, 1000),
	}
	fetched := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	base := func() TrackedRoute {
		return TrackedRoute{
			OriginalPath:  path.Clone(),
			CurrentPath:   path.Clone(),
			LastOrigin:    origin,
			LastFetchTime: fetched,
		}
	}

	tests := []struct {
		name    string
		route   func(r TrackedRoute) TrackedRoute
		current geo.Position
		now     time.Time
		want    bool
		reason  string
	}{
		{
			name:    "unit has not moved",
			current: origin,
			now:     fetched.Add(10 * time.Second),
			want:    false,
		},
		{
			name:    "no original path",
			route:   func(r TrackedRoute) TrackedRoute { r.OriginalPath = nil; return r },
			current: origin,
			now:     fetched,
			want:    true,
			reason:  reasonNoPath,
		},
		{
			name:    "deviation beyond threshold",
			current: geo.Offset(origin, 60, 0),
			now:     fetched.Add(time.Second),
			want:    true,
			reason:  reasonDeviation,
		},
		{
			name: "deviation inside threshold without displacement",
			route: func(r TrackedRoute) TrackedRoute {
				r.LastOrigin = geo.Offset(path[1], 40, 0)
				return r
			},
			current: geo.Offset(path[1], 40, 0),
			now:     fetched.Add(time.Second),
			want:    false,
		},
		{
			name:    "in flight suppresses even a large deviation",
			route:   func(r TrackedRoute) TrackedRoute { r.RefreshInFlight = true; return r },
			current: geo.Offset(origin, 500, 0),
			now:     fetched.Add(time.Hour),
			want:    false,
		},
		{
			name:    "requery interval elapsed",
			current: origin,
			now:     fetched.Add(MaxRequeryInterval + time.Second),
			want:    true,
			reason:  reasonStale,
		},
		{
			name:    "requery interval not yet elapsed",
			current: origin,
			now:     fetched.Add(MaxRequeryInterval),
			want:    false,
		},
		{
			name:    "displacement along the path",
			current: geo.Offset(origin, 0, 35),
			now:     fetched.Add(time.Second),
			want:    true,
			reason:  reasonMovement,
		},
		{
			name:    "small displacement along the path",
			current: geo.Offset(origin, 0, 20),
			now:     fetched.Add(time.Second),
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route := base()
			if tt.route != nil {
				route = tt.route(route)
			}

			assert.Equal(t, tt.want, ShouldRequestNewRoute(&route, tt.current, tt.now))
			assert.Equal(t, tt.reason, refreshReason(&route, tt.current, tt.now))
		})
	}
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "unit-1_alert-9", Key{UnitID: "unit-1", TargetID: "alert-9"}.String())
}

func TestViewIsIndependent(t *testing.T) {
	route := TrackedRoute{
		Key:          Key{UnitID: "u", TargetID: "t"},
		OriginalPath: geo.Path{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 0.01}},
		CurrentPath:  geo.Path{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 0.01}},
	}

	v := route.view()
	v.CurrentPath[0] = geo.Position{Lat: 9, Lon: 9}
	v.OriginalPath[1] = geo.Position{Lat: 9, Lon: 9}

	assert.Equal(t, geo.Position{Lat: 0, Lon: 0}, route.CurrentPath[0])
	assert.Equal(t, geo.Position{Lat: 0, Lon: 0.01}, route.OriginalPath[1])
	assert.Equal(t, Key{UnitID: "u", TargetID: "t"}, v.Key())
	assert.InDelta(t, geo.Length(route.CurrentPath), v.RemainingMeters, 1e-9)
}

func TestNotifiersFanOut(t *testing.T) {
	a, b := &recordingNotifier{}, &recordingNotifier{}
	ns := Notifiers{a, b}

	key := Key{UnitID: "u", TargetID: "t"}
	ns.RouteUpdated(View{UnitID: "u", TargetID: "t"})
	ns.RouteRemoved(key)

	for _, n := range []*recordingNotifier{a, b} {
		assert.Len(t, n.updated, 1)
		assert.Equal(t, []Key{key}, n.removedKeys())
	}
}
