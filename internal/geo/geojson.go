package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"trafficview.org/internal/models"
)

func toPoint(c models.Coordinate) orb.Point {
	return orb.Point{c.Lng, c.Lat}
}

// RouteFeatureCollection renders a displayed route as GeoJSON: the polyline
// as a LineString, the destination marker and one Point per located route
// incident.
func RouteFeatureCollection(destination models.Coordinate, result models.RouteResult, incidents []models.Incident) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	if len(result.Polyline) > 0 {
		line := make(orb.LineString, 0, len(result.Polyline))
		for _, c := range result.Polyline {
			line = append(line, toPoint(c))
		}
		f := geojson.NewFeature(line)
		f.Properties["kind"] = "route"
		f.Properties["distance_km"] = result.DistanceKm
		f.Properties["duration_min"] = result.DurationMin
		fc.Append(f)
	}

	dest := geojson.NewFeature(toPoint(destination))
	dest.Properties["kind"] = "destination"
	fc.Append(dest)

	for _, inc := range incidents {
		if !IsValidLatLon(inc.Coordinates.Lat, inc.Coordinates.Lng) {
			continue
		}
		f := geojson.NewFeature(toPoint(inc.Coordinates))
		f.ID = inc.ID
		f.Properties["kind"] = "incident"
		f.Properties["type"] = string(inc.Type)
		f.Properties["severity"] = string(inc.Severity)
		f.Properties["description"] = inc.Description
		if inc.Location != "" {
			f.Properties["location"] = inc.Location
		}
		fc.Append(f)
	}
	return fc
}
