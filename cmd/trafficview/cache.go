package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"trafficview.org/internal/config"
	"trafficview.org/internal/geocode"
	"trafficview.org/internal/report"
	"trafficview.org/internal/utils"
)

// openGeocodeCache picks the geocode cache: PostgreSQL when DatabaseURL is
// set, a cache directory when CacheDir is set, memory otherwise. The
// returned func releases the cache.
func openGeocodeCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (geocode.Cache, func(), error) {
	switch {
	case cfg.DatabaseURL != "":
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		pg, err := geocode.NewPgxCache(connectCtx, cfg.DatabaseURL)
		if err != nil {
			report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
				Tags:  utils.MakeMap("cache", "postgres"),
				Level: sentry.LevelError,
			})
			return nil, nil, fmt.Errorf("open geocode cache: %w", err)
		}
		logger.Info("geocode cache", "kind", "postgres")
		return pg, pg.Close, nil

	case cfg.CacheDir != "":
		fc, err := geocode.NewFileCache(cfg.CacheDir, logger)
		if err != nil {
			report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
				Tags:         utils.MakeMap("cache", "file"),
				ExtraContext: map[string]interface{}{"cache_dir": cfg.CacheDir},
				Level:        sentry.LevelError,
			})
			return nil, nil, fmt.Errorf("open geocode cache: %w", err)
		}
		logger.Info("geocode cache", "kind", "file", "dir", cfg.CacheDir)
		return fc, func() {}, nil
	}

	logger.Info("geocode cache", "kind", "memory")
	return geocode.NewMemoryCache(), func() {}, nil
}
