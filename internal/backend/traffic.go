package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"trafficview.org/internal/models"
	"trafficview.org/internal/utils"
)

// TrafficCurrent is the backend's snapshot of current conditions.
type TrafficCurrent struct {
	Timestamp        utils.BackendTime  `json:"timestamp"`
	CongestionLevels map[string]float64 `json:"congestion_levels"`
	Incidents        []models.Incident  `json:"incidents"`
}

// HourlyCongestion is one point of the historical congestion curve.
type HourlyCongestion struct {
	Hour  int     `json:"hour"`
	Level float64 `json:"level"`
}

// TrafficHistorical is the congestion-by-hour curve, sorted by hour.
type TrafficHistorical struct {
	CongestionByHour []HourlyCongestion `json:"congestion_by_hour"`
}

func (c *Client) FetchTrafficCurrent(ctx context.Context) (TrafficCurrent, error) {
	var wire struct {
		Timestamp        utils.BackendTime  `json:"timestamp"`
		CongestionLevels map[string]float64 `json:"congestion_levels"`
		Incidents        []json.RawMessage  `json:"incidents"`
	}
	if err := c.getJSON(ctx, "/api/traffic/current", &wire); err != nil {
		return TrafficCurrent{}, err
	}
	return TrafficCurrent{
		Timestamp:        wire.Timestamp,
		CongestionLevels: wire.CongestionLevels,
		Incidents:        c.decodeIncidents("/api/traffic/current", wire.Incidents),
	}, nil
}

// FetchTrafficHistorical converts the backend's hour-keyed object into a
// sorted series.
func (c *Client) FetchTrafficHistorical(ctx context.Context) (TrafficHistorical, error) {
	var wire struct {
		CongestionByHour map[string]float64 `json:"congestion_by_hour"`
	}
	if err := c.getJSON(ctx, "/api/traffic/historical", &wire); err != nil {
		return TrafficHistorical{}, err
	}

	series := make([]HourlyCongestion, 0, len(wire.CongestionByHour))
	for k, v := range wire.CongestionByHour {
		hour, err := strconv.Atoi(k)
		if err != nil || hour < 0 || hour > 23 {
			return TrafficHistorical{}, fmt.Errorf("decode /api/traffic/historical: invalid hour %q", k)
		}
		series = append(series, HourlyCongestion{Hour: hour, Level: v})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Hour < series[j].Hour })
	return TrafficHistorical{CongestionByHour: series}, nil
}

// RecommendedRoute is one of the backend's alternative routes. Duration and
// Distance are the backend's display strings ("14 mins", "8.3 km").
type RecommendedRoute struct {
	ID         int                 `json:"id"`
	Name       string              `json:"name"`
	Type       string              `json:"type"`
	Duration   string              `json:"duration"`
	Distance   string              `json:"distance"`
	Congestion string              `json:"congestion"`
	Path       []models.Coordinate `json:"path"`
}

type Recommendations struct {
	Routes            []RecommendedRoute `json:"routes"`
	Timestamp         utils.BackendTime  `json:"timestamp"`
	TrafficConditions string             `json:"traffic_conditions"`
}

type recommendWire struct {
	Routes []struct {
		ID         int         `json:"id"`
		Name       string      `json:"name"`
		Type       string      `json:"type"`
		Duration   string      `json:"duration"`
		Distance   string      `json:"distance"`
		Congestion string      `json:"congestion"`
		Path       [][]float64 `json:"path"`
	} `json:"routes"`
	Metadata struct {
		Timestamp         utils.BackendTime `json:"timestamp"`
		TrafficConditions string            `json:"traffic_conditions"`
	} `json:"metadata"`
}

// RecommendRoutes asks the backend for alternatives ranked by prefs.
func (c *Client) RecommendRoutes(ctx context.Context, origin, destination models.Coordinate, prefs models.Preferences) (Recommendations, error) {
	body := map[string]any{
		"origin":      origin,
		"destination": destination,
		"preferences": prefs,
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/routes/recommend", body)
	if err != nil {
		return Recommendations{}, err
	}

	var wire recommendWire
	// The backend computes recommendations without side effects, so the
	// POST is safe to retry.
	if err := c.sendJSON(ctx, req, true, &wire); err != nil {
		return Recommendations{}, err
	}

	out := Recommendations{
		Routes:            make([]RecommendedRoute, 0, len(wire.Routes)),
		Timestamp:         wire.Metadata.Timestamp,
		TrafficConditions: wire.Metadata.TrafficConditions,
	}
	for _, r := range wire.Routes {
		path := make([]models.Coordinate, 0, len(r.Path))
		for i, pair := range r.Path {
			if len(pair) != 2 {
				return Recommendations{}, fmt.Errorf("route %d point %d: expected [lat, lng], got %d values", r.ID, i, len(pair))
			}
			path = append(path, models.Coordinate{Lat: pair[0], Lng: pair[1]})
		}
		out.Routes = append(out.Routes, RecommendedRoute{
			ID:         r.ID,
			Name:       r.Name,
			Type:       r.Type,
			Duration:   r.Duration,
			Distance:   r.Distance,
			Congestion: r.Congestion,
			Path:       path,
		})
	}
	return out, nil
}

type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Health probes /api/health without retries.
func (c *Client) Health(ctx context.Context) (Health, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/health", nil)
	if err != nil {
		return Health{}, err
	}
	var h Health
	if err := c.sendJSON(ctx, req, false, &h); err != nil {
		return Health{}, err
	}
	return h, nil
}
