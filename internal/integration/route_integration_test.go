//go:build integration

package integration

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"trafficview.org/internal/backend"
	"trafficview.org/internal/geocode"
	"trafficview.org/internal/geolocation"
	"trafficview.org/internal/models"
	"trafficview.org/internal/orchestrator"
	"trafficview.org/internal/session"
)

// TestRouteLookup runs a full search against each target: geocode the
// destination text, fetch the route and submit the report.
func TestRouteLookup(t *testing.T) {
	if len(targets) == 0 {
		t.Skip("No targets found in config")
	}

	for _, target := range targets {
		t.Run(target.Name, func(t *testing.T) {
			if target.BackendURL == "" || target.GeocoderURL == "" || target.DestinationText == "" {
				t.Skipf("Skipping %s: backend_url, geocoder_url and destination_text are required", target.Name)
			}

			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			httpClient := &http.Client{Timeout: 10 * time.Second}

			client := backend.NewClient(target.BackendURL, httpClient, 1, logger)
			geocoder := geocode.NewCachedGeocoder(
				geocode.NewNominatimClient(target.GeocoderURL, "trafficview-integration/1.0", httpClient, 1),
				geocode.NewMemoryCache(),
				logger,
			)
			position := geolocation.NewSource(geolocation.DefaultOptions(), logger)
			defer position.Close()
			if err := position.Update(geolocation.Position{Coordinate: target.Origin}); err != nil {
				t.Fatalf("origin %v rejected: %v", target.Origin, err)
			}

			orch := orchestrator.New(orchestrator.Deps{
				Geocoder: geocoder,
				Routes:   client,
				Reporter: client,
				Position: position,
				Session:  session.NewManager(logger),
			}, orchestrator.Options{StepTimeout: 15 * time.Second}, logger)
			defer orch.Close()

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			st := orch.Find(ctx, target.DestinationText)
			if st.Phase != orchestrator.PhaseSuccess {
				t.Fatalf("expected success, got %s: %+v", st.Phase, st.Error)
			}
			if len(st.Result.Polyline) < 2 {
				t.Errorf("expected a polyline with at least two points, got %d", len(st.Result.Polyline))
			}
			t.Logf("%s: %.1f km, %.0f min, %d incidents", target.Name, st.Result.DistanceKm, st.Result.DurationMin, len(st.Route.Incidents))
		})
	}
}

// TestDirectRoute fetches the route between the configured coordinates
// without geocoding.
func TestDirectRoute(t *testing.T) {
	for _, target := range targets {
		t.Run(target.Name, func(t *testing.T) {
			if target.BackendURL == "" || target.Destination == (models.Coordinate{}) {
				t.Skipf("Skipping %s: backend_url and destination are required", target.Name)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			client := backend.NewClient(target.BackendURL, &http.Client{Timeout: 10 * time.Second}, 1, slog.Default())
			resp, err := client.FetchRoute(ctx, target.Origin, target.Destination)
			if err != nil {
				t.Fatalf("FetchRoute: %v", err)
			}
			if resp.Result.DistanceKm < 0 || resp.Result.DurationMin < 0 {
				t.Errorf("unexpected negative distance or duration: %+v", resp.Result)
			}
		})
	}
}
