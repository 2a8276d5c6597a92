//go:build integration

package geocode

import (
	"context"
	"os"
	"testing"
	"time"

	"trafficview.org/internal/models"
)

func TestPgxCache(t *testing.T) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cache, err := NewPgxCache(ctx, databaseURL)
	if err != nil {
		t.Fatalf("NewPgxCache failed: %v", err)
	}
	defer cache.Close()

	key := "integration test " + time.Now().Format(time.RFC3339Nano)
	if _, ok, err := cache.Get(ctx, key); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	want := models.Coordinate{Lat: 37.8199, Lng: -122.4783}
	if err := cache.Put(ctx, key, want); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := cache.Put(ctx, key, want); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, ok, err := cache.Get(ctx, key)
	if err != nil || !ok || got != want {
		t.Errorf("expected %+v, got %+v ok=%v err=%v", want, got, ok, err)
	}

	if _, err := cache.pool.Exec(ctx, `DELETE FROM geocode_cache WHERE query = $1`, key); err != nil {
		t.Errorf("cleanup failed: %v", err)
	}
}
