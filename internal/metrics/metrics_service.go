package metrics

import "time"

// ObserveStep records how long an orchestration step took. status is "ok",
// "error" or "stale".
func ObserveStep(step, status string, started time.Time) {
	StepDuration.WithLabelValues(step, status).Observe(time.Since(started).Seconds())
}

// SetBackendStatus records the result of the backend health probe.
func SetBackendStatus(backendURL string, up bool) {
	BackendStatus.WithLabelValues(backendURL).Set(boolToFloat(up))
}

// SetIncidentFeed records the outcome of an incident feed fetch. count is
// ignored when the fetch failed, leaving the last known size in place.
func SetIncidentFeed(ok bool, count int) {
	IncidentFeedStatus.Set(boolToFloat(ok))
	if ok {
		IncidentCount.Set(float64(count))
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
