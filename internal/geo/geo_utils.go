package geo

import (
	"fmt"
	"math"

	"github.com/golang/geo/s2"
	"trafficview.org/internal/models"
)

// BoundingBox defines the corners of a lat/lon box
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// Contains checks whether the given latitude and longitude are within the bounding box
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// ComputeBoundingBox computes the bounding box of a route polyline.
// Points outside the valid coordinate range are skipped.
func ComputeBoundingBox(points []models.Coordinate) (BoundingBox, error) {
	if len(points) == 0 {
		return BoundingBox{}, fmt.Errorf("no points to compute bounding box")
	}

	minLat := math.MaxFloat64
	maxLat := -math.MaxFloat64
	minLon := math.MaxFloat64
	maxLon := -math.MaxFloat64

	for _, p := range points {
		if !IsValidLatLon(p.Lat, p.Lng) {
			continue
		}
		minLat = math.Min(minLat, p.Lat)
		maxLat = math.Max(maxLat, p.Lat)
		minLon = math.Min(minLon, p.Lng)
		maxLon = math.Max(maxLon, p.Lng)
	}

	if minLat == math.MaxFloat64 {
		return BoundingBox{}, fmt.Errorf("no valid latitude/longitude found in polyline")
	}

	return BoundingBox{
		MinLat: minLat,
		MaxLat: maxLat,
		MinLon: minLon,
		MaxLon: maxLon,
	}, nil
}

// IsValidLatLon returns true if the given latitude and longitude values
// fall within the valid geographic coordinate bounds.
//
// Latitude must be between -90 and 90 degrees, and longitude must be
// between -180 and 180 degrees.
//
// Note: This function treats the coordinate (0,0) as invalid, even though it
// is a valid location in the Gulf of Guinea. Devices and backends both use
// (0,0) as a placeholder for "no fix".
func IsValidLatLon(lat, lon float64) bool {
	if lat == 0 && lon == 0 {
		return false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return false
	}
	return true
}

// earthRadiusInMeters represents the mean radius of the Earth in meters.
//
// Reference: NASA Planetary Fact Sheet – Earth
// https://nssdc.gsfc.nasa.gov/planetary/factsheet/earthfact.html
const earthRadiusInMeters = 6371000

// HaversineDistance returns the great-circle distance in meters.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * earthRadiusInMeters
}

// Distance is HaversineDistance over two coordinates.
func Distance(a, b models.Coordinate) float64 {
	return HaversineDistance(a.Lat, a.Lng, b.Lat, b.Lng)
}

// DistanceToPolyline returns the shortest distance in meters from c to any
// segment of the polyline. A single-point polyline degrades to point distance.
func DistanceToPolyline(c models.Coordinate, line []models.Coordinate) float64 {
	switch len(line) {
	case 0:
		return math.Inf(1)
	case 1:
		return Distance(c, line[0])
	}
	p := s2.PointFromLatLng(s2.LatLngFromDegrees(c.Lat, c.Lng))
	best := math.Inf(1)
	for i := 1; i < len(line); i++ {
		a := s2.PointFromLatLng(s2.LatLngFromDegrees(line[i-1].Lat, line[i-1].Lng))
		b := s2.PointFromLatLng(s2.LatLngFromDegrees(line[i].Lat, line[i].Lng))
		d := s2.DistanceFromSegment(p, a, b).Radians() * earthRadiusInMeters
		if d < best {
			best = d
		}
	}
	return best
}
