package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"trafficview.org/internal/models"
)

// RouteResponse is a computed route and the incidents the backend reported
// along it, in the order received.
type RouteResponse struct {
	Result    models.RouteResult
	Incidents []models.Incident
}

type routeInfoWire struct {
	DistanceKm  float64           `json:"distance_km"`
	DurationMin float64           `json:"duration_min"`
	Route       [][]float64       `json:"route"`
	Incidents   []json.RawMessage `json:"incidents"`
}

// FetchRoute requests a route from origin to destination. Coordinates go
// on the wire as "lng,lat".
func (c *Client) FetchRoute(ctx context.Context, origin, destination models.Coordinate) (RouteResponse, error) {
	q := url.Values{}
	q.Set("origin", origin.LngLat())
	q.Set("destination", destination.LngLat())

	var wire routeInfoWire
	if err := c.getJSON(ctx, "/api/route-info?"+q.Encode(), &wire); err != nil {
		return RouteResponse{}, err
	}

	polyline := make([]models.Coordinate, 0, len(wire.Route))
	for i, pair := range wire.Route {
		if len(pair) != 2 {
			return RouteResponse{}, fmt.Errorf("route point %d: expected [lat, lng], got %d values", i, len(pair))
		}
		polyline = append(polyline, models.Coordinate{Lat: pair[0], Lng: pair[1]})
	}

	return RouteResponse{
		Result: models.RouteResult{
			DistanceKm:  wire.DistanceKm,
			DurationMin: wire.DurationMin,
			Polyline:    polyline,
		},
		Incidents: c.decodeIncidents("/api/route-info", wire.Incidents),
	}, nil
}

// Report is the analytics record submitted after a route is displayed.
type Report struct {
	QueryID     string
	Origin      models.Coordinate
	Destination models.Coordinate
	DistanceKm  float64
	DurationMin float64
	Incidents   []models.Incident
}

type reportWire struct {
	Origin      string            `json:"origin"`
	Destination string            `json:"destination"`
	DistanceKm  float64           `json:"distance_km"`
	DurationMin float64           `json:"duration_min"`
	Incidents   []json.RawMessage `json:"incidents"`
}

// SubmitReport posts r once. The acknowledgement body is ignored. The query
// ID is sent as Idempotency-Key so the backend can drop duplicates.
// Incidents received from the backend are sent back exactly as received.
func (c *Client) SubmitReport(ctx context.Context, r Report) error {
	incidents := make([]json.RawMessage, 0, len(r.Incidents))
	for _, inc := range r.Incidents {
		raw := inc.Raw()
		if raw == nil {
			b, err := json.Marshal(inc)
			if err != nil {
				return fmt.Errorf("encode incident %s: %w", inc.ID, err)
			}
			raw = b
		}
		incidents = append(incidents, raw)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/reports", reportWire{
		Origin:      r.Origin.LngLat(),
		Destination: r.Destination.LngLat(),
		DistanceKm:  r.DistanceKm,
		DurationMin: r.DurationMin,
		Incidents:   incidents,
	})
	if err != nil {
		return err
	}
	if r.QueryID != "" {
		req.Header.Set("Idempotency-Key", r.QueryID)
	}
	return c.sendJSON(ctx, req, false, nil)
}

// FetchIncidents returns the backend's full incident list.
func (c *Client) FetchIncidents(ctx context.Context) ([]models.Incident, error) {
	var raws []json.RawMessage
	if err := c.getJSON(ctx, "/api/incidents", &raws); err != nil {
		return nil, err
	}
	return c.decodeIncidents("/api/incidents", raws), nil
}
