package main

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/agile-defense/routetrack/pkg/geo"
)

// Patrol speeds in meters per second
const (
	minSpeed = 5.0
	maxSpeed = 20.0
)

// simulatedUnit is a unit wandering around a home position
type simulatedUnit struct {
	id       string
	home     geo.Position
	position geo.Position
	heading  float64 // degrees clockwise from north
	speed    float64
	radius   float64 // meters the unit may wander from home
}

func newSimulatedUnits(count int, home geo.Position, rng *rand.Rand) []*simulatedUnit {
	units := make([]*simulatedUnit, 0, count)
	for i := 0; i < count; i++ {
		start := geo.Offset(home, (rng.Float64()-0.5)*4000, (rng.Float64()-0.5)*4000)
		units = append(units, &simulatedUnit{
			id:       fmt.Sprintf("unit-%03d", i+1),
			home:     home,
			position: start,
			heading:  rng.Float64() * 360,
			speed:    minSpeed + rng.Float64()*(maxSpeed-minSpeed),
			radius:   5000,
		})
	}
	return units
}

// step advances the unit by dt and occasionally changes course. A unit that
// strays past its radius turns back toward home.
func (u *simulatedUnit) step(dt time.Duration, rng *rand.Rand) {
	distance := u.speed * dt.Seconds()
	rad := u.heading * math.Pi / 180
	u.position = geo.Offset(u.position, distance*math.Cos(rad), distance*math.Sin(rad))

	if geo.Distance(u.position, u.home) > u.radius {
		u.heading = bearing(u.position, u.home)
		return
	}

	if rng.Float64() < 0.1 {
		u.heading = math.Mod(u.heading+(rng.Float64()-0.5)*90+360, 360)
	}
	if rng.Float64() < 0.05 {
		u.speed = math.Max(minSpeed, math.Min(maxSpeed, u.speed+(rng.Float64()-0.5)*5))
	}
}

// bearing is the initial heading in degrees from a toward b
func bearing(a, b geo.Position) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return math.Mod(math.Atan2(y, x)*180/math.Pi+360, 360)
}
