package pathfinding

import "github.com/agile-defense/routetrack/pkg/geo"

// Polyline precisions
const (
	Precision5 = 1e-5 // Google and OSRM "polyline"
	Precision6 = 1e-6 // OSRM "polyline6"
)

// DecodePolyline decodes an encoded polyline using the given precision.
// A truncated trailing pair is ignored.
func DecodePolyline(encoded string, precision float64) geo.Path {
	var path geo.Path
	index, lat, lon := 0, 0, 0

	for index < len(encoded) {
		dLat, next, ok := decodeValue(encoded, index)
		if !ok {
			return path
		}
		dLon, next, ok := decodeValue(encoded, next)
		if !ok {
			return path
		}
		index = next

		lat += dLat
		lon += dLon
		path = append(path, geo.Position{
			Lat: float64(lat) * precision,
			Lon: float64(lon) * precision,
		})
	}

	return path
}

// decodeValue reads one zigzag-encoded varint starting at index
func decodeValue(encoded string, index int) (int, int, bool) {
	shift, result := 0, 0
	for {
		if index >= len(encoded) {
			return 0, index, false
		}
		b := int(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), index, true
	}
	return result >> 1, index, true
}
