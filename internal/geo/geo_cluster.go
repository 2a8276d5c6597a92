package geo

import (
	"fmt"
	"sort"

	"github.com/golang/geo/s2"
	"trafficview.org/internal/models"
)

const s2Level = 10 // S2 cell level with 7–10 km spatial resolution

// s2ClusterID generates a stable S2-based cluster ID for a lat/lon.
func s2ClusterID(lat, lon float64, level int) string {
	ll := s2.LatLngFromDegrees(lat, lon)
	cellID := s2.CellIDFromLatLng(ll).Parent(level)
	return fmt.Sprintf("s2_%d", uint64(cellID))
}

// IncidentCluster groups incidents that fall in the same S2 cell.
type IncidentCluster struct {
	ID       string            `json:"id"`
	Center   models.Coordinate `json:"center"`
	Count    int               `json:"count"`
	Severest models.Severity   `json:"severest"`
}

var severityRank = map[models.Severity]int{
	models.SeverityLow:      1,
	models.SeverityModerate: 2,
	models.SeverityHigh:     3,
}

// ClusterIncidents buckets incidents by S2 cell so the dashboard can draw one
// marker per area when zoomed out. Incidents without a valid position are
// skipped. Clusters are ordered by descending count, then by ID.
func ClusterIncidents(incidents []models.Incident) []IncidentCluster {
	byID := make(map[string]*IncidentCluster)
	for _, inc := range incidents {
		c := inc.Coordinates
		if !IsValidLatLon(c.Lat, c.Lng) {
			continue
		}
		id := s2ClusterID(c.Lat, c.Lng, s2Level)
		cl, ok := byID[id]
		if !ok {
			center := s2.CellIDFromLatLng(s2.LatLngFromDegrees(c.Lat, c.Lng)).Parent(s2Level).LatLng()
			cl = &IncidentCluster{
				ID:     id,
				Center: models.Coordinate{Lat: center.Lat.Degrees(), Lng: center.Lng.Degrees()},
			}
			byID[id] = cl
		}
		cl.Count++
		if severityRank[inc.Severity] > severityRank[cl.Severest] {
			cl.Severest = inc.Severity
		}
	}

	out := make([]IncidentCluster, 0, len(byID))
	for _, cl := range byID {
		out = append(out, *cl)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ID < out[j].ID
	})
	return out
}
