package geolocation

import (
	"context"
	"time"

	"trafficview.org/internal/models"
)

// RunFixed publishes coord immediately and then every interval until ctx is
// done. It stands in for a device on kiosks and in local development.
func RunFixed(ctx context.Context, src *Source, coord models.Coordinate, interval time.Duration) {
	publish := func() {
		if err := src.Update(Position{Coordinate: coord}); err != nil {
			src.logger.Error("fixed position rejected", "coordinate", coord.String(), "error", err)
		}
	}

	publish()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			publish()
		}
	}
}
