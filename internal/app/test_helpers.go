package app

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"trafficview.org/internal/config"
	"trafficview.org/internal/geocode"
	"trafficview.org/internal/geolocation"
	"trafficview.org/internal/models"
)

// fakeUpstreams stands in for the traffic backend and the geocoder.
type fakeUpstreams struct {
	backend  *httptest.Server
	geocoder *httptest.Server

	healthy     atomic.Bool
	healthCalls atomic.Int32

	mu        sync.Mutex
	reports   int
	recommend map[string]any
}

func newFakeUpstreams(t *testing.T) *fakeUpstreams {
	t.Helper()
	u := &fakeUpstreams{}
	u.healthy.Store(true)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		u.healthCalls.Add(1)
		if !u.healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"status": "ok", "version": "1.0.0"}`)
	})
	mux.HandleFunc("GET /api/incidents", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[
			{"id": 1, "type": "accident", "location": {"lat": 37.781, "lng": -122.412}, "severity": "moderate", "description": "Two-vehicle collision"},
			{"id": 2, "type": "construction", "location": {"lat": 40.7128, "lng": -74.006}, "severity": "low", "description": "Lane closed"}
		]`)
	})
	mux.HandleFunc("GET /api/route-info", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{
			"distance_km": 8.3, "duration_min": 14,
			"route": [[37.7749, -122.4194], [37.8199, -122.4783]],
			"incidents": [{"id": "r1", "type": "Congestion", "severity": "High", "coordinates": [37.8, -122.45]}]
		}`)
	})
	mux.HandleFunc("POST /api/reports", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.reports++
		u.mu.Unlock()
		_, _ = io.WriteString(w, `{"status": "received"}`)
	})
	mux.HandleFunc("GET /api/traffic/current", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"timestamp": "2025-01-02T08:30:00.000001", "congestion_levels": {"downtown": 0.75}, "incidents": []}`)
	})
	mux.HandleFunc("GET /api/traffic/historical", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"congestion_by_hour": {"8": 0.8, "6": 0.3}}`)
	})
	mux.HandleFunc("POST /api/routes/recommend", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		u.mu.Lock()
		u.recommend = body
		u.mu.Unlock()
		_, _ = io.WriteString(w, `{
			"routes": [{"id": 1, "name": "Fastest Route", "type": "fastest", "duration": "10 mins", "distance": "7.7 km", "congestion": "moderate", "path": [[37.77, -122.41], [37.82, -122.47]]}],
			"metadata": {"timestamp": "2025-01-02T08:30:00", "traffic_conditions": "moderate"}
		}`)
	})
	u.backend = httptest.NewServer(mux)
	t.Cleanup(u.backend.Close)

	u.geocoder = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("q") {
		case "Golden Gate Bridge":
			_, _ = io.WriteString(w, `[{"lat": "37.8199", "lon": "-122.4783"}]`)
			return
		case "Slow Street":
			select {
			case <-r.Context().Done():
				return
			case <-time.After(300 * time.Millisecond):
			}
		}
		_, _ = io.WriteString(w, `[]`)
	}))
	t.Cleanup(u.geocoder.Close)

	return u
}

func (u *fakeUpstreams) lastRecommendRequest() map[string]any {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.recommend
}

// newTestApplication wires an Application to fresh fake upstreams. Each
// configure func may adjust the config before the services are built.
func newTestApplication(t *testing.T, configure ...func(*config.Config)) (*Application, *fakeUpstreams) {
	t.Helper()

	u := newFakeUpstreams(t)

	cfg := config.NewConfig(4000, "testing", u.backend.URL)
	cfg.GeocoderURL = u.geocoder.URL
	cfg.MaxRetries = 0
	for _, fn := range configure {
		fn(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app := New(cfg, logger, u.backend.Client(), geocode.NewMemoryCache(), "test-version")
	t.Cleanup(app.Close)

	return app, u
}

func locate(t *testing.T, app *Application, c models.Coordinate) {
	t.Helper()
	if err := app.Position.Update(positionAt(c)); err != nil {
		t.Fatalf("Position.Update(%v): %v", c, err)
	}
}

func positionAt(c models.Coordinate) geolocation.Position {
	return geolocation.Position{Coordinate: c}
}

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return serveRequest(h, req)
}

func serveRequest(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}
