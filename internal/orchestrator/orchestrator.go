// Package orchestrator sequences a route search: check the current position,
// geocode the destination, fetch the route, report it. It owns the state the
// dashboard renders and guarantees that only the latest submission can
// change it.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"trafficview.org/internal/backend"
	"trafficview.org/internal/config"
	"trafficview.org/internal/geocode"
	"trafficview.org/internal/geolocation"
	"trafficview.org/internal/metrics"
	"trafficview.org/internal/models"
	"trafficview.org/internal/report"
	"trafficview.org/internal/utils"
)

const tracerName = "trafficview.org/internal/orchestrator"

type RouteFetcher interface {
	FetchRoute(ctx context.Context, origin, destination models.Coordinate) (backend.RouteResponse, error)
}

type Reporter interface {
	SubmitReport(ctx context.Context, r backend.Report) error
}

type PositionSource interface {
	Current() (geolocation.Position, bool)
	Watch(onUpdate func(geolocation.Position), onError func(*geolocation.Error)) *geolocation.Subscription
}

type PreferencesSource interface {
	Preferences() models.Preferences
}

// Deps are the collaborators of an Orchestrator. Session may be nil, in
// which case queries carry the default preferences.
type Deps struct {
	Geocoder geocode.Geocoder
	Routes   RouteFetcher
	Reporter Reporter
	Position PositionSource
	Session  PreferencesSource
}

type Options struct {
	// StepTimeout bounds each of the geocoding, routing and reporting steps.
	StepTimeout time.Duration
}

type Orchestrator struct {
	deps        Deps
	logger      *slog.Logger
	tracer      trace.Tracer
	stepTimeout time.Duration

	root     context.Context
	shutdown context.CancelFunc
	watch    *geolocation.Subscription
	runs     sync.WaitGroup

	mu         sync.Mutex
	state      State
	generation uint64
	cancelRun  context.CancelFunc
	subs       map[chan State]struct{}
}

func New(deps Deps, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = config.DefaultStepTimeout
	}
	root, shutdown := context.WithCancel(context.Background())

	o := &Orchestrator{
		deps:        deps,
		logger:      logger,
		tracer:      otel.Tracer(tracerName),
		stepTimeout: opts.StepTimeout,
		root:        root,
		shutdown:    shutdown,
		state:       State{Phase: PhaseIdle, UpdatedAt: time.Now()},
		subs:        make(map[chan State]struct{}),
	}
	o.watch = deps.Position.Watch(o.onPosition, o.onPositionError)
	return o
}

// Close cancels the in-flight run, stops watching the position source,
// waits for running steps to return and closes subscriber channels.
func (o *Orchestrator) Close() {
	o.watch.Cancel()
	o.shutdown()
	o.runs.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	for ch := range o.subs {
		close(ch)
		delete(o.subs, ch)
	}
}

// State returns a deep copy of the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Clone()
}

// Subscribe returns a channel that receives a snapshot after every state
// change. A slow reader only sees the latest snapshot. The returned func
// unsubscribes.
func (o *Orchestrator) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	o.mu.Lock()
	o.subs[ch] = struct{}{}
	ch <- o.state.Clone()
	o.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			if _, ok := o.subs[ch]; ok {
				delete(o.subs, ch)
				close(ch)
			}
		})
	}
}

// Run is the handle of one submission.
type Run struct {
	query RouteQuery
	done  chan struct{}
	err   error
}

func (r *Run) Query() RouteQuery { return r.query }
func (r *Run) Generation() uint64 { return r.query.Generation }
func (r *Run) Done() <-chan struct{} { return r.done }

// Err is the outcome of the run once Done is closed: nil on success, an
// *Error on failure or ErrSuperseded when a newer query took over.
func (r *Run) Err() error {
	<-r.done
	return r.err
}

// Submit starts a route search for destinationText and returns at once. The
// precondition check runs synchronously, so an invalid submission is already
// in PhaseError when Submit returns. ctx supplies values only; the run is
// cancelled by a newer submission or by Close, never by ctx.
func (o *Orchestrator) Submit(ctx context.Context, destinationText string) *Run {
	prefs := models.DefaultPreferences()
	if o.deps.Session != nil {
		prefs = o.deps.Session.Preferences()
	}

	run := &Run{done: make(chan struct{})}

	o.mu.Lock()
	if o.cancelRun != nil {
		o.cancelRun()
	}
	o.generation++
	gen := o.generation

	q := RouteQuery{
		ID:              uuid.New(),
		Generation:      gen,
		DestinationText: strings.TrimSpace(destinationText),
		Preferences:     prefs,
		SubmittedAt:     time.Now(),
	}
	o.setPhaseLocked(PhaseLocating, gen)

	pos, known := o.deps.Position.Current()
	var precondition *Error
	switch {
	case !known:
		precondition = newError(KindInvalidInput, nil, "current position unknown; allow location access or set a position first")
	case q.DestinationText == "":
		precondition = newError(KindInvalidInput, geocode.ErrEmptyQuery, "%s", geocode.ErrEmptyQuery.Error())
	}
	if precondition != nil {
		o.cancelRun = nil
		o.failLocked(gen, precondition)
		o.mu.Unlock()

		o.logger.Info("route query rejected", "generation", gen, "reason", precondition.Message)
		run.query = q
		run.err = precondition
		close(run.done)
		return run
	}

	q.Origin = pos.Coordinate
	run.query = q

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(o.root, cancel)
	o.cancelRun = cancel
	o.runs.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.runs.Done()
		defer stop()
		defer cancel()
		defer close(run.done)
		run.err = o.execute(runCtx, q)
	}()
	return run
}

// Find submits destinationText and waits for the run to finish or ctx to be
// done, then returns the state at that moment.
func (o *Orchestrator) Find(ctx context.Context, destinationText string) State {
	run := o.Submit(ctx, destinationText)
	select {
	case <-run.Done():
	case <-ctx.Done():
	}
	return o.State()
}

// execute runs the geocode, route and report steps of q. It never panics.
func (o *Orchestrator) execute(ctx context.Context, q RouteQuery) (err error) {
	ctx, span := o.tracer.Start(ctx, "route.find", trace.WithAttributes(
		attribute.String("route.query_id", q.ID.String()),
		attribute.Int64("route.generation", int64(q.Generation)),
	))
	defer span.End()

	step := PhaseGeocoding
	var routed models.RouteResult
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("route query panicked", "generation", q.Generation, "step", step, "panic", r)
			if step == PhaseReporting {
				err = nil
				if !o.succeed(q.Generation, routed) {
					err = o.stale(q, "reporting")
				}
				return
			}
			err = o.fail(q, stepErrorKind(step), fmt.Errorf("panic: %v", r))
		}
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if !o.setPhase(PhaseGeocoding, q.Generation) {
		return o.stale(q, "geocoding")
	}
	destination, err := runStep(ctx, o, q, "geocoding", func(ctx context.Context) (models.Coordinate, error) {
		return o.deps.Geocoder.Geocode(ctx, q.DestinationText)
	})
	if !o.isCurrent(q.Generation) {
		return o.stale(q, "geocoding")
	}
	if err != nil {
		return o.failWith(q, classifyGeocode(err, o.stepTimeout))
	}

	step = PhaseRouting
	if !o.setPhase(PhaseRouting, q.Generation) {
		return o.stale(q, "routing")
	}
	resp, err := runStep(ctx, o, q, "routing", func(ctx context.Context) (backend.RouteResponse, error) {
		return o.deps.Routes.FetchRoute(ctx, q.Origin, destination)
	})
	if !o.isCurrent(q.Generation) {
		return o.stale(q, "routing")
	}
	if err != nil {
		return o.failWith(q, classifyRoute(err, o.stepTimeout))
	}

	routed = resp.Result
	view := newRouteView(q, destination, resp.Result, resp.Incidents)
	if !o.display(q.Generation, view) {
		return o.stale(q, "routing")
	}
	o.logger.Info("route displayed",
		"generation", q.Generation,
		"destination", q.DestinationText,
		"distance_km", resp.Result.DistanceKm,
		"duration_min", resp.Result.DurationMin,
		"points", len(resp.Result.Polyline),
		"incidents", len(resp.Incidents))

	// The route is on screen, so its report goes out even if a newer query
	// supersedes this one meanwhile.
	step = PhaseReporting
	o.submitReport(context.WithoutCancel(ctx), q, view)

	if !o.succeed(q.Generation, routed) {
		return o.stale(q, "reporting")
	}
	metrics.RunOutcomes.WithLabelValues("success", "").Inc()
	return nil
}

func (o *Orchestrator) submitReport(ctx context.Context, q RouteQuery, view *RouteView) {
	_, err := runStep(ctx, o, q, "reporting", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.deps.Reporter.SubmitReport(ctx, backend.Report{
			QueryID:     q.ID.String(),
			Origin:      view.Origin,
			Destination: view.Destination,
			DistanceKm:  view.Result.DistanceKm,
			DurationMin: view.Result.DurationMin,
			Incidents:   view.Incidents,
		})
	})
	if err == nil {
		return
	}

	rerr := newError(KindReporting, err, "route report failed: %v", err)
	metrics.ReportFailures.Inc()
	o.logger.Warn("route report failed", "generation", q.Generation, "error", err)
	report.ReportErrorWithSentryOptions(rerr, report.SentryReportOptions{
		Tags:         map[string]string{"step": "reporting", "kind": string(KindReporting)},
		ExtraContext: map[string]interface{}{"query_id": q.ID.String(), "generation": q.Generation},
		Level:        sentry.LevelWarning,
	})
}

// runStep calls fn under the step timeout, inside its own span, and turns a
// panic into an error. It returns when fn does or when the step context is
// done, whichever comes first.
func runStep[T any](ctx context.Context, o *Orchestrator, q RouteQuery, step string, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}

	ctx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()
	ctx, span := o.tracer.Start(ctx, "route."+step, trace.WithAttributes(
		attribute.Int64("route.generation", int64(q.Generation)),
	))
	defer span.End()

	started := time.Now()
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("panic in %s step: %v", step, r)}
			}
		}()
		v, err := fn(ctx)
		ch <- result{v: v, err: err}
	}()

	var r result
	select {
	case r = <-ch:
	case <-ctx.Done():
		r.err = ctx.Err()
	}

	status := "ok"
	switch {
	case !o.isCurrent(q.Generation) && step != "reporting":
		status = "stale"
	case r.err != nil:
		status = "error"
		span.RecordError(r.err)
		span.SetStatus(codes.Error, r.err.Error())
	}
	metrics.ObserveStep(step, status, started)
	return r.v, r.err
}

func stepErrorKind(p Phase) Kind {
	if p == PhaseRouting {
		return KindRoute
	}
	return KindGeocoding
}

func (o *Orchestrator) isCurrent(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return gen == o.generation
}

func (o *Orchestrator) stale(q RouteQuery, step string) error {
	metrics.StaleResults.WithLabelValues(step).Inc()
	metrics.RunOutcomes.WithLabelValues("superseded", "").Inc()
	o.logger.Debug("dropping superseded route result", "generation", q.Generation, "step", step)
	return ErrSuperseded
}

func (o *Orchestrator) setPhase(p Phase, gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation {
		return false
	}
	o.setPhaseLocked(p, gen)
	return true
}

func (o *Orchestrator) setPhaseLocked(p Phase, gen uint64) {
	o.state.Phase = p
	o.state.Generation = gen
	o.state.Error = nil
	o.state.Result = nil
	o.state.UpdatedAt = time.Now()
	metrics.PhaseTransitions.WithLabelValues(string(p)).Inc()
	o.notifyLocked()
}

// display publishes the route of a finished routing step and moves on to
// reporting in one state change.
func (o *Orchestrator) display(gen uint64, view *RouteView) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation {
		return false
	}
	o.state.Route = view
	o.setPhaseLocked(PhaseReporting, gen)
	return true
}

func (o *Orchestrator) succeed(gen uint64, result models.RouteResult) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation {
		return false
	}
	o.setPhaseLocked(PhaseSuccess, gen)
	r := result.Clone()
	o.state.Result = &r
	o.cancelRun = nil
	return true
}

// fail wraps cause into an Error of kind and records it as the outcome of q.
func (o *Orchestrator) fail(q RouteQuery, kind Kind, cause error) error {
	return o.failWith(q, newError(kind, cause, "%v", cause))
}

func (o *Orchestrator) failWith(q RouteQuery, e *Error) error {
	o.mu.Lock()
	ok := o.failLocked(q.Generation, e)
	o.mu.Unlock()
	if !ok {
		return o.stale(q, "error")
	}

	o.logger.Info("route query failed", "generation", q.Generation, "kind", e.Kind, "error", e.Message)
	if e.Kind == KindGeocoding || e.Kind == KindRoute {
		report.ReportErrorWithSentryOptions(e, report.SentryReportOptions{
			Tags:         utils.MakeMap("kind", string(e.Kind)),
			ExtraContext: map[string]interface{}{"query_id": q.ID.String(), "destination": q.DestinationText},
			Level:        sentry.LevelWarning,
		})
	}
	return e
}

// failLocked moves to PhaseError. The displayed route is left untouched.
func (o *Orchestrator) failLocked(gen uint64, e *Error) bool {
	if gen != o.generation {
		return false
	}
	o.state.Phase = PhaseError
	o.state.Generation = gen
	o.state.Error = e.Info()
	o.state.Result = nil
	o.state.UpdatedAt = time.Now()
	o.cancelRun = nil
	metrics.PhaseTransitions.WithLabelValues(string(PhaseError)).Inc()
	metrics.RunOutcomes.WithLabelValues("error", string(e.Kind)).Inc()
	o.notifyLocked()
	return true
}

func (o *Orchestrator) onPosition(geolocation.Position) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.PositionError == nil {
		return
	}
	o.state.PositionError = nil
	o.state.UpdatedAt = time.Now()
	o.notifyLocked()
}

func (o *Orchestrator) onPositionError(gerr *geolocation.Error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e := newError(KindGeolocation, gerr, "%s", gerr.Message)
	o.state.PositionError = e.Info()
	o.state.UpdatedAt = time.Now()
	o.notifyLocked()
}

func (o *Orchestrator) notifyLocked() {
	if len(o.subs) == 0 {
		return
	}
	snap := o.state.Clone()
	for ch := range o.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
