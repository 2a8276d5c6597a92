// Package incidents holds the global incident set shown on the dashboard
// map, independent of any route.
package incidents

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"trafficview.org/internal/config"
	"trafficview.org/internal/geo"
	"trafficview.org/internal/metrics"
	"trafficview.org/internal/models"
	"trafficview.org/internal/report"
	"trafficview.org/internal/utils"
)

const backoffKey = "incidents"

// Fetcher is the incident feed endpoint of the backend.
type Fetcher interface {
	FetchIncidents(ctx context.Context) ([]models.Incident, error)
}

// Feed is the global incident set. A successful fetch replaces the set
// wholesale; a failed fetch leaves it unchanged, so a feed that never
// loaded stays empty.
type Feed struct {
	fetcher Fetcher
	logger  *slog.Logger
	backoff *config.BackoffStore

	mu        sync.RWMutex
	incidents []models.Incident
	loadedAt  time.Time
}

func NewFeed(fetcher Fetcher, logger *slog.Logger) *Feed {
	return &Feed{
		fetcher:   fetcher,
		logger:    logger,
		backoff:   config.NewBackoffStore(),
		incidents: []models.Incident{},
	}
}

// Load fetches the incident list once. The error is returned for callers
// that care; it has already been logged and reported.
func (f *Feed) Load(ctx context.Context) error {
	list, err := f.fetcher.FetchIncidents(ctx)
	if err != nil {
		metrics.SetIncidentFeed(false, 0)
		f.logger.Warn("incident feed unavailable", "error", err)
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:  utils.MakeMap("component", "incident_feed"),
			Level: sentry.LevelWarning,
		})
		return err
	}

	f.mu.Lock()
	f.incidents = models.CloneIncidents(list)
	f.loadedAt = time.Now()
	f.mu.Unlock()

	metrics.SetIncidentFeed(true, len(list))
	f.logger.Debug("incident feed loaded", "count", len(list))
	return nil
}

// Run refreshes the set every interval until ctx is done. After a failure
// the next attempts are spaced out by exponential backoff.
func (f *Feed) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			f.refresh(ctx, now)
		}
	}
}

func (f *Feed) refresh(ctx context.Context, now time.Time) {
	if !f.backoff.ShouldAttempt(backoffKey, now) {
		next, _ := f.backoff.NextRetryAt(backoffKey)
		f.logger.Debug("incident refresh backing off", "next_retry_at", next)
		return
	}
	if err := f.Load(ctx); err != nil {
		f.backoff.UpdateBackoff(backoffKey)
		return
	}
	f.backoff.ResetBackoff(backoffKey)
}

// All returns a copy of the current set.
func (f *Feed) All() []models.Incident {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return models.CloneIncidents(f.incidents)
}

func (f *Feed) LoadedAt() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.loadedAt
}

// Near returns the incidents within radiusMeters of c, in feed order.
// Incidents without a valid position are never near anything.
func (f *Feed) Near(c models.Coordinate, radiusMeters float64) []models.Incident {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := []models.Incident{}
	for _, inc := range f.incidents {
		p := inc.Coordinates
		if !geo.IsValidLatLon(p.Lat, p.Lng) {
			continue
		}
		if geo.Distance(c, p) <= radiusMeters {
			out = append(out, inc)
		}
	}
	return out
}

// AlongRoute returns the incidents within radiusMeters of any segment of
// line, in feed order.
func (f *Feed) AlongRoute(line []models.Coordinate, radiusMeters float64) []models.Incident {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := []models.Incident{}
	for _, inc := range f.incidents {
		p := inc.Coordinates
		if !geo.IsValidLatLon(p.Lat, p.Lng) {
			continue
		}
		if geo.DistanceToPolyline(p, line) <= radiusMeters {
			out = append(out, inc)
		}
	}
	return out
}

func (f *Feed) Clusters() []geo.IncidentCluster {
	return geo.ClusterIncidents(f.All())
}
