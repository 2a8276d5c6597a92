package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Coordinate is an immutable WGS84 point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LngLat formats the coordinate in the "lng,lat" order the backend expects
// on the wire for route and report requests.
func (c Coordinate) LngLat() string {
	return formatFloat(c.Lng) + "," + formatFloat(c.Lat)
}

// LatLng returns the coordinate as a [lat, lng] pair.
func (c Coordinate) LatLng() [2]float64 { return [2]float64{c.Lat, c.Lng} }

func (c Coordinate) String() string {
	return formatFloat(c.Lat) + "," + formatFloat(c.Lng)
}

// ParseCoordinate parses a "lat,lng" string, as used by the FIXED_POSITION
// setting and the near= query parameter.
func ParseCoordinate(s string) (Coordinate, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Coordinate{}, fmt.Errorf("parse coordinate %q: expected \"lat,lng\"", s)
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("parse coordinate %q: latitude: %w", s, err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("parse coordinate %q: longitude: %w", s, err)
	}

	return Coordinate{Lat: lat, Lng: lng}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
