package main

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agile-defense/routetrack/pkg/geo"
)

var home = geo.Position{Lat: -18.0066, Lon: -70.2463}

func TestNewSimulatedUnits(t *testing.T) {
	units := newSimulatedUnits(3, home, rand.New(rand.NewSource(1)))
	require.Len(t, units, 3)

	assert.Equal(t, "unit-001", units[0].id)
	assert.Equal(t, "unit-003", units[2].id)
	for _, u := range units {
		assert.LessOrEqual(t, geo.Distance(u.position, home), 3000.0)
		assert.GreaterOrEqual(t, u.speed, minSpeed)
		assert.LessOrEqual(t, u.speed, maxSpeed)
	}
}

func TestStepMovesAtSpeed(t *testing.T) {
	u := &simulatedUnit{id: "u", home: home, position: home, heading: 90, speed: 10, radius: 5000}
	// Never turn
	rng := rand.New(constSource(0.99))

	u.step(10*time.Second, rng)

	assert.InDelta(t, 100, geo.Distance(home, u.position), 1)
	assert.Greater(t, u.position.Lon, home.Lon)
	assert.InDelta(t, home.Lat, u.position.Lat, 1e-6)
}

func TestStepTurnsBackAtRadius(t *testing.T) {
	start := geo.Offset(home, 0, 4990)
	u := &simulatedUnit{id: "u", home: home, position: start, heading: 90, speed: 20, radius: 5000}

	u.step(time.Second, rand.New(constSource(0.99)))

	assert.InDelta(t, 270, u.heading, 1)
}

func TestBearing(t *testing.T) {
	assert.InDelta(t, 0, bearing(home, geo.Offset(home, 1000, 0)), 0.1)
	assert.InDelta(t, 90, bearing(home, geo.Offset(home, 0, 1000)), 0.1)
	assert.InDelta(t, 180, bearing(home, geo.Offset(home, -1000, 0)), 0.1)
}

// constSource makes rand.Float64 return roughly v
type constSource float64

func (c constSource) Int63() int64 {
	return int64(float64(c) * (1 << 63))
}

func (c constSource) Seed(int64) {}
