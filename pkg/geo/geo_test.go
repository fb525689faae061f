package geo

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var approxPath = cmpopts.EquateApprox(0, 1e-9)

func TestDistance(t *testing.T) {
	positions := []Position{
		{Lat: 0, Lon: 0},
		{Lat: -18.0066, Lon: -70.2463},
		{Lat: 51.5007, Lon: -0.1246},
		{Lat: 89.9, Lon: 179.9},
	}

	for _, p := range positions {
		assert.Equal(t, 0.0, Distance(p, p), "distance to self should be zero")
	}

	for _, a := range positions {
		for _, b := range positions {
			assert.Equal(t, Distance(a, b), Distance(b, a), "distance should be symmetric")
		}
	}

	// One degree of longitude on the equator
	oneDegree := EarthRadiusMeters * math.Pi / 180
	assert.InDelta(t, oneDegree, Distance(Position{0, 0}, Position{0, 1}), 0.01)

	assert.Greater(t, Distance(Position{0, 0}, Position{0, 1e-7}), 0.0)
}

func TestOffset(t *testing.T) {
	origin := Position{Lat: -18.0066, Lon: -70.2463}

	assert.InDelta(t, 60.0, Distance(origin, Offset(origin, 60, 0)), 0.01)
	assert.InDelta(t, 60.0, Distance(origin, Offset(origin, 0, 60)), 0.01)
	assert.InDelta(t, 100.0, Distance(origin, Offset(origin, 60, 80)), 0.05)
}

func TestProjectOntoSegment(t *testing.T) {
	a := Position{Lat: 0, Lon: 0}
	b := Position{Lat: 0, Lon: 1}

	tests := []struct {
		name      string
		p         Position
		wantPoint Position
		wantT     float64
	}{
		{
			name:      "interior",
			p:         Position{Lat: 0.2, Lon: 0.25},
			wantPoint: Position{Lat: 0, Lon: 0.25},
			wantT:     0.25,
		},
		{
			name:      "before start clamps to start",
			p:         Position{Lat: 0.1, Lon: -3},
			wantPoint: a,
			wantT:     0,
		},
		{
			name:      "past end clamps to end",
			p:         Position{Lat: -0.1, Lon: 7},
			wantPoint: b,
			wantT:     1,
		},
		{
			name:      "on end vertex",
			p:         b,
			wantPoint: b,
			wantT:     1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proj := ProjectOntoSegment(tt.p, a, b)
			assert.InDelta(t, tt.wantT, proj.T, 1e-12)
			assert.InDelta(t, tt.wantPoint.Lat, proj.Point.Lat, 1e-12)
			assert.InDelta(t, tt.wantPoint.Lon, proj.Point.Lon, 1e-12)
		})
	}

	t.Run("degenerate segment", func(t *testing.T) {
		proj := ProjectOntoSegment(Position{Lat: 1, Lon: 1}, a, a)
		assert.Equal(t, a, proj.Point)
		assert.Equal(t, 0.0, proj.T)
	})
}

func TestNearestPointOnPath(t *testing.T) {
	path := Path{{0, 0}, {0, 1}, {0, 2}}

	t.Run("midpoint of first segment", func(t *testing.T) {
		n := NearestPointOnPath(path, Position{Lat: 0.0001, Lon: 0.5})

		assert.Equal(t, 0, n.Index)
		assert.InDelta(t, 0.0, n.Point.Lat, 1e-12)
		assert.InDelta(t, 0.5, n.Point.Lon, 1e-12)
		// 0.0001 degrees of latitude is about 11 m
		assert.Less(t, n.Distance, 12.0)
	})

	t.Run("second segment", func(t *testing.T) {
		n := NearestPointOnPath(path, Position{Lat: -0.001, Lon: 1.5})
		assert.Equal(t, 1, n.Index)
		assert.InDelta(t, 1.5, n.Point.Lon, 1e-12)
	})

	t.Run("shared vertex goes to lowest index", func(t *testing.T) {
		n := NearestPointOnPath(path, Position{Lat: 0, Lon: 1})
		assert.Equal(t, 0, n.Index)
		assert.Equal(t, Position{Lat: 0, Lon: 1}, n.Point)
		assert.Equal(t, 0.0, n.Distance)
	})

	t.Run("empty path", func(t *testing.T) {
		p := Position{Lat: 3, Lon: 4}
		n := NearestPointOnPath(nil, p)
		assert.Equal(t, Nearest{Index: 0, Point: p, Distance: 0}, n)
	})

	t.Run("single point path", func(t *testing.T) {
		n := NearestPointOnPath(Path{{1, 1}}, Position{Lat: 3, Lon: 4})
		assert.Equal(t, Nearest{Index: 0, Point: Position{1, 1}, Distance: 0}, n)
	})
}

func TestTrim(t *testing.T) {
	path := Path{{0, 0}, {0, 0.001}, {0, 0.002}, {0, 0.003}, {0, 0.004}}

	t.Run("on a vertex returns the suffix", func(t *testing.T) {
		for i := range path {
			got := Trim(path, path[i])
			if diff := cmp.Diff(path[i:], got); diff != "" {
				t.Errorf("vertex %d: unexpected trim (-want +got):\n%s", i, diff)
			}
		}
	})

	t.Run("between vertices starts at projection", func(t *testing.T) {
		p := Position{Lat: 0.00005, Lon: 0.0015} // ~5.5 m off the path
		got := Trim(path, p)

		want := Path{{0, 0.0015}, {0, 0.002}, {0, 0.003}, {0, 0.004}}
		if diff := cmp.Diff(want, got, approxPath); diff != "" {
			t.Errorf("unexpected trim (-want +got):\n%s", diff)
		}
	})

	t.Run("far from path prepends the unit", func(t *testing.T) {
		p := Offset(Position{Lat: 0, Lon: 0.0015}, 40, 0)
		got := Trim(path, p)

		require.Len(t, got, 5)
		assert.Equal(t, p, got[0])
		assert.InDelta(t, 0.0015, got[1].Lon, 1e-9)
		assert.InDelta(t, 0.0, got[1].Lat, 1e-12)
	})

	t.Run("empty path yields the unit position", func(t *testing.T) {
		p := Position{Lat: 1, Lon: 2}
		assert.Equal(t, Path{p}, Trim(nil, p))
	})

	t.Run("does not modify the input", func(t *testing.T) {
		original := path.Clone()
		Trim(path, Position{Lat: 0.0001, Lon: 0.0025})
		assert.Equal(t, original, path)
	})
}

func TestLength(t *testing.T) {
	path := Path{{0, 0}, {0, 1}, {0, 2}}
	oneDegree := EarthRadiusMeters * math.Pi / 180

	assert.InDelta(t, 2*oneDegree, Length(path), 0.1)
	assert.Equal(t, 0.0, Length(nil))
	assert.Equal(t, 0.0, Length(Path{{5, 5}}))
}

func TestClone(t *testing.T) {
	var nilPath Path
	assert.Nil(t, nilPath.Clone())

	path := Path{{1, 2}, {3, 4}}
	c := path.Clone()
	c[0] = Position{9, 9}
	assert.Equal(t, Position{1, 2}, path[0])
}
