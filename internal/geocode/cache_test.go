package geocode

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"trafficview.org/internal/models"
)

type fakeGeocoder struct {
	calls  int
	result models.Coordinate
	err    error
}

func (f *fakeGeocoder) Geocode(_ context.Context, _ string) (models.Coordinate, error) {
	f.calls++
	return f.result, f.err
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (models.Coordinate, bool, error) {
	return models.Coordinate{}, false, errors.New("cache down")
}

func (brokenCache) Put(context.Context, string, models.Coordinate) error {
	return errors.New("cache down")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"  Golden   Gate\tBridge ": "golden gate bridge",
		"PIER 39":                  "pier 39",
		"   ":                      "",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCachedGeocoder(t *testing.T) {
	gg := models.Coordinate{Lat: 37.8199, Lng: -122.4783}

	t.Run("hit skips the geocoder", func(t *testing.T) {
		inner := &fakeGeocoder{result: gg}
		g := NewCachedGeocoder(inner, NewMemoryCache(), discardLogger())

		for _, q := range []string{"Golden Gate Bridge", "  golden gate   BRIDGE"} {
			got, err := g.Geocode(context.Background(), q)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != gg {
				t.Errorf("got %+v, want %+v", got, gg)
			}
		}
		if inner.calls != 1 {
			t.Errorf("expected 1 upstream call, got %d", inner.calls)
		}
	})

	t.Run("not found is not cached", func(t *testing.T) {
		inner := &fakeGeocoder{err: &NotFoundError{Query: "xyzzy"}}
		cache := NewMemoryCache()
		g := NewCachedGeocoder(inner, cache, discardLogger())

		for i := 0; i < 2; i++ {
			if _, err := g.Geocode(context.Background(), "xyzzy"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		}
		if inner.calls != 2 || cache.Len() != 0 {
			t.Errorf("expected 2 calls and empty cache, got %d calls, %d entries", inner.calls, cache.Len())
		}
	})

	t.Run("empty query", func(t *testing.T) {
		inner := &fakeGeocoder{}
		g := NewCachedGeocoder(inner, NewMemoryCache(), discardLogger())
		if _, err := g.Geocode(context.Background(), " "); !errors.Is(err, ErrEmptyQuery) {
			t.Errorf("expected ErrEmptyQuery, got %v", err)
		}
		if inner.calls != 0 {
			t.Errorf("expected no upstream call, got %d", inner.calls)
		}
	})

	t.Run("cache failures degrade to upstream", func(t *testing.T) {
		inner := &fakeGeocoder{result: gg}
		g := NewCachedGeocoder(inner, brokenCache{}, discardLogger())
		got, err := g.Geocode(context.Background(), "Golden Gate Bridge")
		if err != nil || got != gg {
			t.Errorf("expected upstream result despite broken cache, got %+v, %v", got, err)
		}
	})
}

func TestFileCache(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	gg := models.Coordinate{Lat: 37.8199, Lng: -122.4783}

	fc, err := NewFileCache(dir, discardLogger())
	if err != nil {
		t.Fatalf("NewFileCache failed: %v", err)
	}
	if err := fc.Put(context.Background(), "golden gate bridge", gg); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	reopened, err := NewFileCache(dir, discardLogger())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	got, ok, err := reopened.Get(context.Background(), "golden gate bridge")
	if err != nil || !ok || got != gg {
		t.Errorf("expected persisted entry, got %+v ok=%v err=%v", got, ok, err)
	}

	if err := os.WriteFile(filepath.Join(dir, fileCacheName), []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileCache(dir, discardLogger()); err == nil {
		t.Error("expected error for corrupt cache file")
	}
}
