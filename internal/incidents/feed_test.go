package incidents

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"trafficview.org/internal/metrics"
	"trafficview.org/internal/models"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	lists [][]models.Incident
	errs  []error
}

func (f *fakeFetcher) FetchIncidents(ctx context.Context) ([]models.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.lists) {
		return f.lists[i], nil
	}
	return []models.Incident{}, nil
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	accident = models.Incident{ID: "1", Type: models.IncidentAccident, Severity: models.SeverityHigh, Coordinates: models.Coordinate{Lat: 37.781, Lng: -122.412}}
	roadwork = models.Incident{ID: "2", Type: models.IncidentRoadwork, Severity: models.SeverityLow, Coordinates: models.Coordinate{Lat: 37.792, Lng: -122.421}}
	faraway  = models.Incident{ID: "3", Type: models.IncidentCongestion, Severity: models.SeverityModerate, Coordinates: models.Coordinate{Lat: 40.7128, Lng: -74.006}}
)

func TestLoadReplacesSet(t *testing.T) {
	f := &fakeFetcher{lists: [][]models.Incident{{accident, roadwork}, {faraway}}}
	feed := NewFeed(f, testLogger())

	if err := feed.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := feed.All(); len(got) != 2 || got[0].ID != "1" || got[1].ID != "2" {
		t.Fatalf("All() = %+v, want incidents 1 and 2 in order", got)
	}
	if feed.LoadedAt().IsZero() {
		t.Error("LoadedAt() should be set after a successful load")
	}

	if err := feed.Load(context.Background()); err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if got := feed.All(); len(got) != 1 || got[0].ID != "3" {
		t.Fatalf("All() after refresh = %+v, want only incident 3", got)
	}
}

func TestLoadFailureDegradesToEmpty(t *testing.T) {
	f := &fakeFetcher{errs: []error{errors.New("connection refused")}}
	feed := NewFeed(f, testLogger())

	if err := feed.Load(context.Background()); err == nil {
		t.Fatal("Load() should return the fetch error")
	}
	got := feed.All()
	if got == nil || len(got) != 0 {
		t.Fatalf("All() = %#v, want empty non-nil set", got)
	}

	v, err := metrics.ReadValue(metrics.IncidentFeedStatus)
	if err != nil {
		t.Fatalf("ReadValue: %v", err)
	}
	if v != 0 {
		t.Errorf("incident feed status = %v, want 0", v)
	}
}

func TestLoadFailureKeepsPreviousSet(t *testing.T) {
	f := &fakeFetcher{
		lists: [][]models.Incident{{accident}},
		errs:  []error{nil, errors.New("503")},
	}
	feed := NewFeed(f, testLogger())

	_ = feed.Load(context.Background())
	_ = feed.Load(context.Background())

	if got := feed.All(); len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("All() = %+v, want previous set kept", got)
	}
}

func TestAllReturnsCopy(t *testing.T) {
	f := &fakeFetcher{lists: [][]models.Incident{{accident}}}
	feed := NewFeed(f, testLogger())
	_ = feed.Load(context.Background())

	got := feed.All()
	got[0].ID = "mutated"

	if feed.All()[0].ID != "1" {
		t.Error("mutating the returned slice changed the feed")
	}
}

func TestNear(t *testing.T) {
	unlocated := models.Incident{ID: "4", Type: models.IncidentAccident}
	f := &fakeFetcher{lists: [][]models.Incident{{accident, roadwork, faraway, unlocated}}}
	feed := NewFeed(f, testLogger())
	_ = feed.Load(context.Background())

	center := models.Coordinate{Lat: 37.7749, Lng: -122.4194}

	tests := []struct {
		name   string
		radius float64
		want   []string
	}{
		{"tight", 100, nil},
		{"city", 5000, []string{"1", "2"}},
		{"continent", 5_000_000, []string{"1", "2", "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := feed.Near(center, tt.radius)
			if len(got) != len(tt.want) {
				t.Fatalf("Near(%v) returned %d incidents, want %d", tt.radius, len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("Near(%v)[%d] = %s, want %s", tt.radius, i, got[i].ID, id)
				}
			}
		})
	}
}

func TestAlongRoute(t *testing.T) {
	f := &fakeFetcher{lists: [][]models.Incident{{accident, roadwork, faraway}}}
	feed := NewFeed(f, testLogger())
	_ = feed.Load(context.Background())

	line := []models.Coordinate{{Lat: 37.77, Lng: -122.41}, {Lat: 37.79, Lng: -122.414}}

	got := feed.AlongRoute(line, 300)
	if len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("AlongRoute(300) = %v, want only incident 1", got)
	}

	got = feed.AlongRoute(line, 2000)
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "2" {
		t.Errorf("AlongRoute(2000) = %v, want incidents 1 and 2", got)
	}

	if got := feed.AlongRoute(nil, 2000); len(got) != 0 {
		t.Errorf("AlongRoute with no line = %v, want none", got)
	}
}

func TestClusters(t *testing.T) {
	f := &fakeFetcher{lists: [][]models.Incident{{accident, roadwork, faraway}}}
	feed := NewFeed(f, testLogger())
	_ = feed.Load(context.Background())

	clusters := feed.Clusters()
	total := 0
	for _, c := range clusters {
		total += c.Count
	}
	if total != 3 {
		t.Errorf("clusters cover %d incidents, want 3", total)
	}
}

func TestRunDisabledReturnsImmediately(t *testing.T) {
	f := &fakeFetcher{}
	feed := NewFeed(f, testLogger())

	done := make(chan struct{})
	go func() {
		feed.Run(context.Background(), 0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run with zero interval did not return")
	}
	if f.Calls() != 0 {
		t.Errorf("fetcher called %d times, want 0", f.Calls())
	}
}

func TestRunRefreshesUntilCancelled(t *testing.T) {
	f := &fakeFetcher{}
	feed := NewFeed(f, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		feed.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for f.Calls() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if f.Calls() < 2 {
		t.Errorf("fetcher called %d times, want at least 2", f.Calls())
	}
}

func TestRefreshBacksOffAfterFailure(t *testing.T) {
	f := &fakeFetcher{errs: []error{errors.New("down"), errors.New("down")}}
	feed := NewFeed(f, testLogger())

	now := time.Now()
	feed.refresh(context.Background(), now)
	feed.refresh(context.Background(), now.Add(10*time.Millisecond))

	if f.Calls() != 1 {
		t.Fatalf("fetcher called %d times inside the backoff window, want 1", f.Calls())
	}

	next, ok := feed.backoff.NextRetryAt(backoffKey)
	if !ok {
		t.Fatal("expected a backoff entry after failure")
	}
	feed.refresh(context.Background(), next.Add(time.Millisecond))
	if f.Calls() != 2 {
		t.Errorf("fetcher called %d times after the backoff window, want 2", f.Calls())
	}
}
