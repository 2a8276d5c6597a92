package geocode

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"trafficview.org/internal/metrics"
	"trafficview.org/internal/models"
	"trafficview.org/internal/utils"
)

// Cache stores geocodes under their normalised query.
type Cache interface {
	Get(ctx context.Context, key string) (models.Coordinate, bool, error)
	Put(ctx context.Context, key string, c models.Coordinate) error
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]models.Coordinate
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]models.Coordinate)}
}

func (m *MemoryCache) Get(_ context.Context, key string) (models.Coordinate, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.entries[key]
	return c, ok, nil
}

func (m *MemoryCache) Put(_ context.Context, key string, c models.Coordinate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = c
	return nil
}

func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

const fileCacheName = "geocode_cache.json"

// FileCache is a MemoryCache persisted as one JSON file in a cache directory,
// rewritten on every Put.
type FileCache struct {
	*MemoryCache
	path string
	mu   sync.Mutex
}

// NewFileCache creates dir if needed and loads any previously saved entries.
func NewFileCache(dir string, logger *slog.Logger) (*FileCache, error) {
	if err := utils.CreateCacheDirectory(dir, logger); err != nil {
		return nil, err
	}
	fc := &FileCache{MemoryCache: NewMemoryCache(), path: filepath.Join(dir, fileCacheName)}

	found, err := utils.ReadJSONFile(fc.path, &fc.entries)
	if err != nil {
		return nil, err
	}
	if fc.entries == nil {
		fc.entries = make(map[string]models.Coordinate)
	}
	if found {
		logger.Info("loaded geocode cache", "path", fc.path, "entries", len(fc.entries))
	}
	return fc, nil
}

func (f *FileCache) Put(ctx context.Context, key string, c models.Coordinate) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.MemoryCache.Put(ctx, key, c); err != nil {
		return err
	}

	f.MemoryCache.mu.RLock()
	defer f.MemoryCache.mu.RUnlock()
	return utils.WriteJSONFile(f.path, f.entries)
}

// CachedGeocoder consults cache before inner. Cache failures are logged and
// treated as misses; not-found answers are never cached.
type CachedGeocoder struct {
	inner  Geocoder
	cache  Cache
	logger *slog.Logger
}

func NewCachedGeocoder(inner Geocoder, cache Cache, logger *slog.Logger) *CachedGeocoder {
	return &CachedGeocoder{inner: inner, cache: cache, logger: logger}
}

func (g *CachedGeocoder) Geocode(ctx context.Context, text string) (models.Coordinate, error) {
	key := Normalize(text)
	if key == "" {
		return models.Coordinate{}, ErrEmptyQuery
	}

	c, ok, err := g.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.GeocodeCacheLookups.WithLabelValues("error").Inc()
		g.logger.Warn("geocode cache read failed", "query", key, "error", err)
	case ok:
		metrics.GeocodeCacheLookups.WithLabelValues("hit").Inc()
		return c, nil
	default:
		metrics.GeocodeCacheLookups.WithLabelValues("miss").Inc()
	}

	c, err = g.inner.Geocode(ctx, text)
	if err != nil {
		return models.Coordinate{}, err
	}

	if err := g.cache.Put(ctx, key, c); err != nil {
		g.logger.Warn("geocode cache write failed", "query", key, "error", err)
	}
	return c, nil
}
