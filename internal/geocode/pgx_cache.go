package geocode

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"trafficview.org/internal/models"
)

const createGeocodeCacheTable = `
CREATE TABLE IF NOT EXISTS geocode_cache (
	query      TEXT PRIMARY KEY,
	lat        DOUBLE PRECISION NOT NULL,
	lng        DOUBLE PRECISION NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PgxCache is a PostgreSQL-backed Cache shared by every replica.
type PgxCache struct {
	pool *pgxpool.Pool
}

// NewPgxCache connects to databaseURL and makes sure the cache table exists.
func NewPgxCache(ctx context.Context, databaseURL string) (*PgxCache, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("geocode cache: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("geocode cache: verify postgres connection: %w", err)
	}
	if _, err := pool.Exec(ctx, createGeocodeCacheTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("geocode cache: create table: %w", err)
	}
	return &PgxCache{pool: pool}, nil
}

func (p *PgxCache) Get(ctx context.Context, key string) (models.Coordinate, bool, error) {
	var c models.Coordinate
	err := p.pool.QueryRow(ctx,
		`SELECT lat, lng FROM geocode_cache WHERE query = $1`, key,
	).Scan(&c.Lat, &c.Lng)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Coordinate{}, false, nil
	}
	if err != nil {
		return models.Coordinate{}, false, fmt.Errorf("get geocode cache: %w", err)
	}
	return c, true, nil
}

func (p *PgxCache) Put(ctx context.Context, key string, c models.Coordinate) error {
	_, err := p.pool.Exec(ctx, `
	INSERT INTO geocode_cache (query, lat, lng)
	VALUES ($1, $2, $3)
	ON CONFLICT (query) DO UPDATE
	SET lat = EXCLUDED.lat,
		lng = EXCLUDED.lng,
		updated_at = now();
	`, key, c.Lat, c.Lng)
	if err != nil {
		return fmt.Errorf("insert geocode cache query=%q: %w", key, err)
	}
	return nil
}

func (p *PgxCache) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PgxCache) Close() {
	p.pool.Close()
}
