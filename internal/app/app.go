package app

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"trafficview.org/internal/backend"
	"trafficview.org/internal/config"
	"trafficview.org/internal/geocode"
	"trafficview.org/internal/geolocation"
	"trafficview.org/internal/incidents"
	"trafficview.org/internal/orchestrator"
	"trafficview.org/internal/session"
)

// Application holds the services behind the HTTP API. One Application
// serves one dashboard session.
type Application struct {
	Config       *config.Config
	Logger       *slog.Logger
	Version      string
	Backend      *backend.Client
	Geocoder     geocode.Geocoder
	Position     *geolocation.Source
	Incidents    *incidents.Feed
	Session      *session.Manager
	Orchestrator *orchestrator.Orchestrator

	healthMu sync.Mutex
	health   backendProbe

	// submitWait bounds how long a waiting route submission holds its
	// request before answering 202.
	submitWait time.Duration
}

// timedSteps is the number of calls in one route search that are each
// bounded by the step timeout: geocoding, routing and reporting.
const timedSteps = 3

// WriteTimeout is the server write deadline. It outlasts the longest
// waiting route submission.
func WriteTimeout(cfg *config.Config) time.Duration {
	return submitWait(cfg) + 10*time.Second
}

func submitWait(cfg *config.Config) time.Duration {
	return timedSteps*cfg.StepTimeout.Std() + time.Second
}

// New wires every service from cfg. cache backs the geocoder; client is
// shared by the backend and geocoder clients.
func New(cfg *config.Config, logger *slog.Logger, client *http.Client, cache geocode.Cache, version string) *Application {
	backendClient := backend.NewClient(cfg.BackendURL, client, cfg.MaxRetries, logger)
	geocoder := geocode.NewCachedGeocoder(
		geocode.NewNominatimClient(cfg.GeocoderURL, cfg.GeocoderUserAgent, client, cfg.MaxRetries),
		cache,
		logger,
	)

	opts := geolocation.DefaultOptions()
	opts.MaximumAge = cfg.GeolocationMaxAge.Std()
	opts.Timeout = cfg.GeolocationTimeout.Std()
	position := geolocation.NewSource(opts, logger)

	sess := session.NewManager(logger)
	orch := orchestrator.New(orchestrator.Deps{
		Geocoder: geocoder,
		Routes:   backendClient,
		Reporter: backendClient,
		Position: position,
		Session:  sess,
	}, orchestrator.Options{StepTimeout: cfg.StepTimeout.Std()}, logger)

	return &Application{
		Config:       cfg,
		Logger:       logger,
		Version:      version,
		Backend:      backendClient,
		Geocoder:     geocoder,
		Position:     position,
		Incidents:    incidents.NewFeed(backendClient, logger),
		Session:      sess,
		Orchestrator: orch,
		submitWait:   submitWait(cfg),
	}
}

// Start launches the background work: the initial incident load and its
// refresh loop, the backend health probe and, when configured, the fixed
// position feeder. Everything stops when ctx is done.
func (app *Application) Start(ctx context.Context) {
	go func() {
		loadCtx, cancel := context.WithTimeout(ctx, app.Config.StepTimeout.Std())
		_ = app.Incidents.Load(loadCtx)
		cancel()
		app.Incidents.Run(ctx, app.Config.IncidentRefreshInterval.Std())
	}()

	go app.StartHealthProbe(ctx, app.Config.HealthProbeInterval.Std())

	if p := app.Config.FixedPosition; p != nil {
		app.Logger.Info("publishing fixed position", "coordinate", p.String(), "interval", app.Config.FixedPositionInterval.Std())
		go geolocation.RunFixed(ctx, app.Position, *p, app.Config.FixedPositionInterval.Std())
	}
}

// Close stops the orchestrator and the position source.
func (app *Application) Close() {
	app.Orchestrator.Close()
	app.Position.Close()
}

const healthProbeTimeout = 3 * time.Second
