package report

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// SetupSentry initialises the global Sentry hub. An empty DSN leaves the
// client disabled, so every report call becomes a no-op.
func SetupSentry(dsn, env, release string) error {
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      env,
		Release:          release,
		EnableTracing:    true,
		TracesSampleRate: 0.2,
	}); err != nil {
		return fmt.Errorf("sentry.Init: %w", err)
	}
	if dsn != "" {
		sentry.CaptureMessage("trafficview started")
	}
	return nil
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}
