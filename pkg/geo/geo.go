// Package geo provides the geometry used to track units along their paths
package geo

import (
	"math"

	"github.com/golang/geo/s2"
)

const (
	// EarthRadiusMeters is the mean Earth radius used for great-circle distances
	EarthRadiusMeters = 6371000.0

	// SnapDistance is how far (meters) a trimmed path may start from the unit
	// before the unit's own position is prepended to it
	SnapDistance = 15.0
)

// Position represents a geographic position in degrees
type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Path is an ordered sequence of positions; order defines travel direction
type Path []Position

// Clone returns an independent copy of the path
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// Projection is the closest point of a segment to a query position
type Projection struct {
	Point Position
	T     float64 // Parametric position along the segment, clamped to [0,1]
}

// Nearest is the closest point of a path to a query position
type Nearest struct {
	Index    int      // Starting vertex of the winning segment
	Point    Position // Projected point
	Distance float64  // Meters from the query position to Point
}

// Distance returns the great-circle distance in meters between two positions
func Distance(a, b Position) float64 {
	pa := s2.PointFromLatLng(s2.LatLngFromDegrees(a.Lat, a.Lon))
	pb := s2.PointFromLatLng(s2.LatLngFromDegrees(b.Lat, b.Lon))

	return s2.ChordAngleBetweenPoints(pa, pb).Angle().Radians() * EarthRadiusMeters
}

// ProjectOntoSegment projects p onto the segment a-b using an equirectangular
// approximation. The result never leaves the segment.
func ProjectOntoSegment(p, a, b Position) Projection {
	// Longitude degrees shrink with latitude
	k := math.Cos((a.Lat + b.Lat) / 2 * math.Pi / 180)

	dx := (b.Lon - a.Lon) * k
	dy := b.Lat - a.Lat
	denom := dx*dx + dy*dy
	if denom == 0 {
		return Projection{Point: a, T: 0}
	}

	t := ((p.Lon-a.Lon)*k*dx + (p.Lat-a.Lat)*dy) / denom
	switch {
	case t <= 0:
		return Projection{Point: a, T: 0}
	case t >= 1:
		return Projection{Point: b, T: 1}
	}

	return Projection{
		Point: Position{
			Lat: a.Lat + t*(b.Lat-a.Lat),
			Lon: a.Lon + t*(b.Lon-a.Lon),
		},
		T: t,
	}
}

// NearestPointOnPath finds the closest point of path to p. Ties go to the
// lowest segment index.
func NearestPointOnPath(path Path, p Position) Nearest {
	switch len(path) {
	case 0:
		return Nearest{Index: 0, Point: p, Distance: 0}
	case 1:
		return Nearest{Index: 0, Point: path[0], Distance: 0}
	}

	best := Nearest{Distance: math.Inf(1)}
	for i := 0; i < len(path)-1; i++ {
		proj := ProjectOntoSegment(p, path[i], path[i+1])
		d := Distance(proj.Point, p)
		if d < best.Distance {
			best = Nearest{Index: i, Point: proj.Point, Distance: d}
		}
	}
	return best
}

// Trim returns the part of path still ahead of p: the projection of p onto
// path followed by every later vertex. When the projection is farther than
// SnapDistance from p, p itself is prepended.
func Trim(path Path, p Position) Path {
	if len(path) == 0 {
		return Path{p}
	}

	nearest := NearestPointOnPath(path, p)

	start := nearest.Index + 1
	if start < len(path) && path[start] == nearest.Point {
		// Projection landed on the segment end
		start++
	}

	out := make(Path, 0, len(path)-start+2)
	if Distance(p, nearest.Point) > SnapDistance {
		out = append(out, p)
	}
	out = append(out, nearest.Point)
	if start < len(path) {
		out = append(out, path[start:]...)
	}
	return out
}

// Length returns the travel length of path in meters
func Length(path Path) float64 {
	total := 0.0
	for i := 1; i < len(path); i++ {
		total += Distance(path[i-1], path[i])
	}
	return total
}

// Offset moves p by north and east meters. It is intended for building
// positions at known distances, not for navigation.
func Offset(p Position, north, east float64) Position {
	dLat := north / EarthRadiusMeters * 180 / math.Pi
	dLon := east / (EarthRadiusMeters * math.Cos(p.Lat*math.Pi/180)) * 180 / math.Pi
	return Position{Lat: p.Lat + dLat, Lon: p.Lon + dLon}
}
