package handler

import (
	"net/http"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/agile-defense/routetrack/pkg/geo"
	"github.com/agile-defense/routetrack/pkg/tracker"
)

// RoutesFeatureCollection renders routes as GeoJSON line strings. Each route
// contributes its remaining path and a destination marker.
func RoutesFeatureCollection(routes []tracker.View) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, v := range routes {
		line := make(orb.LineString, 0, len(v.CurrentPath))
		for _, p := range v.CurrentPath {
			line = append(line, point(p))
		}

		feature := geojson.NewFeature(line)
		feature.ID = v.Key().String()
		feature.Properties["unit_id"] = v.UnitID
		feature.Properties["target_id"] = v.TargetID
		feature.Properties["remaining_meters"] = v.RemainingMeters
		feature.Properties["fallback"] = v.Fallback
		feature.Properties["refresh_in_flight"] = v.RefreshInFlight
		feature.Properties["last_fetch_time"] = v.LastFetchTime
		fc.Append(feature)

		marker := geojson.NewFeature(point(v.Destination))
		marker.Properties["unit_id"] = v.UnitID
		marker.Properties["target_id"] = v.TargetID
		marker.Properties["kind"] = "destination"
		fc.Append(marker)
	}

	return fc
}

// point converts to GeoJSON (lon, lat) order
func point(p geo.Position) orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// ListRoutesGeoJSON handles GET /api/v1/routes/geojson
func (h *RouteHandler) ListRoutesGeoJSON(w http.ResponseWriter, r *http.Request) {
	fc := RoutesFeatureCollection(h.routes.ListActiveRoutes())

	data, err := fc.MarshalJSON()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode GeoJSON")
		WriteError(w, http.StatusInternalServerError, "Failed to encode GeoJSON", GetCorrelationID(r.Context()))
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
