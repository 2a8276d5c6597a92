package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BackendStatus Backend status (up/down), set by the health probe
	BackendStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trafficview_backend_status",
			Help: "Status of the traffic backend API (0 = not working, 1 = working)",
		},
		[]string{"backend_url"},
	)

	OutgoingLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trafficview_outgoing_request_duration_seconds",
		Help:    "Latency of outgoing HTTP requests to the backend and the geocoder",
		Buckets: prometheus.DefBuckets,
	}, []string{"url", "method", "status"})
)

var (
	PhaseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trafficview_route_phase_transitions_total",
		Help: "Number of times the route orchestrator entered each phase",
	}, []string{"phase"})

	RunOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trafficview_route_runs_total",
		Help: "Completed route runs by outcome and error kind (kind is empty on success)",
	}, []string{"outcome", "kind"})

	StaleResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trafficview_route_stale_results_total",
		Help: "Step results discarded because a newer route query superseded them",
	}, []string{"step"})

	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trafficview_route_step_duration_seconds",
		Help:    "Duration of each route orchestration step",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
	}, []string{"step", "status"})

	ReportFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trafficview_route_report_failures_total",
		Help: "Route reports the backend did not accept; never surfaced to the dashboard",
	})
)

var (
	IncidentCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trafficview_incidents_global",
		Help: "Number of incidents in the global incident set",
	})

	IncidentFeedStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trafficview_incident_feed_status",
		Help: "Result of the last incident feed fetch (0 = failed, 1 = succeeded)",
	})
)

var (
	GeocodeCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trafficview_geocode_cache_lookups_total",
		Help: "Geocode cache lookups by result (hit, miss, error)",
	}, []string{"result"})

	GeolocationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trafficview_geolocation_errors_total",
		Help: "Geolocation failures delivered to watchers, by error code",
	}, []string{"code"})
)
