package app

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"trafficview.org/internal/metrics"
	"trafficview.org/internal/report"
	"trafficview.org/internal/utils"
)

type backendProbe struct {
	checked time.Time
	up      bool
	version string
	err     string
}

// StartHealthProbe probes the backend every interval until ctx is done,
// keeping the backend status gauge and the healthcheck answer current.
func (app *Application) StartHealthProbe(ctx context.Context, interval time.Duration) {
	app.probeBackend(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.probeBackend(ctx)
		}
	}
}

func (app *Application) probeBackend(ctx context.Context) backendProbe {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	h, err := app.Backend.Health(ctx)
	probe := backendProbe{checked: time.Now(), up: err == nil && h.Status == "ok", version: h.Version}
	if err != nil {
		probe.err = err.Error()
	}
	metrics.SetBackendStatus(app.Backend.BaseURL(), probe.up)

	app.healthMu.Lock()
	wasUp := app.health.checked.IsZero() || app.health.up
	app.health = probe
	app.healthMu.Unlock()

	if wasUp && !probe.up {
		app.Logger.Error("backend health check failed", "backend_url", app.Backend.BaseURL(), "error", probe.err)
		report.ReportErrorWithSentryOptions(errOrStatus(err, h.Status), report.SentryReportOptions{
			Tags:  utils.MakeMap("backend_url", app.Backend.BaseURL()),
			Level: sentry.LevelError,
		})
	} else if !wasUp && probe.up {
		app.Logger.Info("backend reachable again", "backend_url", app.Backend.BaseURL())
		report.ReportMessage("traffic backend recovered", utils.MakeMap("backend_url", app.Backend.BaseURL()))
	}
	return probe
}

// lastProbe returns the latest probe, probing now when none is younger
// than maxAge.
func (app *Application) lastProbe(ctx context.Context, maxAge time.Duration) backendProbe {
	app.healthMu.Lock()
	p := app.health
	app.healthMu.Unlock()

	if !p.checked.IsZero() && time.Since(p.checked) <= maxAge {
		return p
	}
	return app.probeBackend(ctx)
}
