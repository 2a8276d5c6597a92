package app

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"trafficview.org/internal/geo"
	"trafficview.org/internal/geolocation"
	"trafficview.org/internal/models"
	"trafficview.org/internal/orchestrator"
	"trafficview.org/internal/session"
)

// HealthStatus is the body of GET /v1/healthcheck. Ready is false while the
// traffic backend fails its health probe; the service still answers but
// route searches will end in RouteError.
type HealthStatus struct {
	Status         string `json:"status"`
	Environment    string `json:"environment"`
	Version        string `json:"version"`
	BackendURL     string `json:"backend_url"`
	BackendUp      bool   `json:"backend_up"`
	BackendVersion string `json:"backend_version,omitempty"`
	Ready          bool   `json:"ready"`
}

func (app *Application) healthcheckHandler(w http.ResponseWriter, r *http.Request) {
	probe := app.lastProbe(r.Context(), app.Config.HealthProbeInterval.Std())

	status := HealthStatus{
		Status:         "available",
		Environment:    app.Config.Env,
		Version:        app.Version,
		BackendURL:     app.Backend.BaseURL(),
		BackendUp:      probe.up,
		BackendVersion: probe.version,
		Ready:          probe.up,
	}

	code := http.StatusOK
	if !status.Ready {
		code = http.StatusServiceUnavailable
	}
	app.writeJSON(w, r, code, status)
}

func (app *Application) stateHandler(w http.ResponseWriter, r *http.Request) {
	app.writeJSON(w, r, http.StatusOK, app.Orchestrator.State())
}

// submitRouteHandler starts a route search. It answers 202 with the run's
// generation at once, or, with ?wait=true, blocks until the run finishes
// and answers with the resulting state. A submission rejected by the
// precondition check answers 422.
func (app *Application) submitRouteHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Destination string `json:"destination"`
	}
	if err := app.readJSON(w, r, &input); err != nil {
		app.errorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	run := app.Orchestrator.Submit(r.Context(), input.Destination)

	select {
	case <-run.Done():
		var oerr *orchestrator.Error
		if errors.As(run.Err(), &oerr) && oerr.Kind == orchestrator.KindInvalidInput {
			app.writeJSON(w, r, http.StatusUnprocessableEntity, envelope{
				"generation": run.Generation(),
				"error":      oerr.Info(),
			})
			return
		}
	default:
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		timer := time.NewTimer(app.submitWait)
		defer timer.Stop()

		select {
		case <-run.Done():
			app.writeJSON(w, r, http.StatusOK, app.Orchestrator.State())
			return
		case <-r.Context().Done():
			return
		case <-timer.C:
			app.Logger.Warn("route search still running, answering without waiting",
				"generation", run.Generation(), "waited", app.submitWait)
		}
	}

	app.writeJSON(w, r, http.StatusAccepted, envelope{
		"generation": run.Generation(),
		"query_id":   run.Query().ID,
	})
}

func (app *Application) currentRouteGeoJSONHandler(w http.ResponseWriter, r *http.Request) {
	view := app.Orchestrator.State().Route
	if view == nil {
		app.errorResponse(w, r, http.StatusNotFound, "no route is displayed")
		return
	}

	fc := geo.RouteFeatureCollection(view.Destination, view.Result, view.Incidents)
	app.writeJSONType(w, r, http.StatusOK, "application/geo+json", fc)
}

// recommendRoutesHandler asks the backend for alternatives between the
// current position and the destination of the displayed route, ranked by
// the session preferences.
func (app *Application) recommendRoutesHandler(w http.ResponseWriter, r *http.Request) {
	view := app.Orchestrator.State().Route
	if view == nil {
		app.errorResponse(w, r, http.StatusConflict, "search for a destination first")
		return
	}
	origin := view.Origin
	if pos, ok := app.Position.Current(); ok {
		origin = pos.Coordinate
	}

	ctx, cancel := context.WithTimeout(r.Context(), app.Config.StepTimeout.Std())
	defer cancel()

	recs, err := app.Backend.RecommendRoutes(ctx, origin, view.Destination, app.Session.Preferences())
	if err != nil {
		app.badGatewayResponse(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, recs)
}

// incidentsHandler serves the global incident set. near=lat,lng keeps the
// incidents within radius meters (default 5000) of a point, along=route
// those within radius of the displayed route. cluster=true returns per-area
// clusters instead of individual incidents.
func (app *Application) incidentsHandler(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()

	if cluster, _ := strconv.ParseBool(qs.Get("cluster")); cluster {
		app.writeJSON(w, r, http.StatusOK, envelope{
			"clusters":  app.Incidents.Clusters(),
			"loaded_at": loadedAt(app.Incidents.LoadedAt()),
		})
		return
	}

	radius := 5000.0
	if v := qs.Get("radius"); v != "" {
		var err error
		radius, err = strconv.ParseFloat(v, 64)
		if err != nil || radius <= 0 {
			app.errorResponse(w, r, http.StatusBadRequest, "radius must be a positive number of meters")
			return
		}
	}

	list := app.Incidents.All()
	switch {
	case qs.Get("along") == "route":
		view := app.Orchestrator.State().Route
		if view == nil {
			app.errorResponse(w, r, http.StatusConflict, "no route is displayed")
			return
		}
		list = app.Incidents.AlongRoute(view.Result.Polyline, radius)
	case qs.Get("near") != "":
		c, err := models.ParseCoordinate(qs.Get("near"))
		if err != nil {
			app.errorResponse(w, r, http.StatusBadRequest, err.Error())
			return
		}
		list = app.Incidents.Near(c, radius)
	}

	app.writeJSON(w, r, http.StatusOK, envelope{
		"incidents": list,
		"loaded_at": loadedAt(app.Incidents.LoadedAt()),
	})
}

func loadedAt(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// readPositionHandler is the one-shot "use my location" read.
func (app *Application) readPositionHandler(w http.ResponseWriter, r *http.Request) {
	pos, err := app.Position.Read(r.Context())
	if err != nil {
		var gerr *geolocation.Error
		if errors.As(err, &gerr) {
			code := http.StatusServiceUnavailable
			if gerr.Code == geolocation.Timeout {
				code = http.StatusGatewayTimeout
			}
			app.writeJSON(w, r, code, envelope{"error": envelope{
				"kind":    orchestrator.KindGeolocation,
				"code":    gerr.Code,
				"message": gerr.Message,
			}})
			return
		}
		// The client went away.
		return
	}
	app.writeJSON(w, r, http.StatusOK, pos)
}

func (app *Application) updatePositionHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Lat            *float64  `json:"lat"`
		Lng            *float64  `json:"lng"`
		AccuracyMeters float64   `json:"accuracy_m"`
		Timestamp      time.Time `json:"timestamp"`
	}
	if err := app.readJSON(w, r, &input); err != nil {
		app.errorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if input.Lat == nil || input.Lng == nil {
		app.errorResponse(w, r, http.StatusUnprocessableEntity, "lat and lng are required")
		return
	}

	err := app.Position.Update(geolocation.Position{
		Coordinate:     models.Coordinate{Lat: *input.Lat, Lng: *input.Lng},
		AccuracyMeters: input.AccuracyMeters,
		Timestamp:      input.Timestamp,
	})
	switch {
	case errors.Is(err, geolocation.ErrInvalidPosition), errors.Is(err, geolocation.ErrLowAccuracy):
		app.errorResponse(w, r, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		app.serverErrorResponse(w, r, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (app *Application) positionErrorHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Code    geolocation.ErrorCode `json:"code"`
		Message string                `json:"message"`
	}
	if err := app.readJSON(w, r, &input); err != nil {
		app.errorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if !input.Code.Valid() {
		app.errorResponse(w, r, http.StatusUnprocessableEntity, "code must be one of permission_denied, position_unavailable, timeout")
		return
	}

	app.Position.Fail(input.Code, input.Message)
	w.WriteHeader(http.StatusNoContent)
}

func (app *Application) trafficCurrentHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), app.Config.StepTimeout.Std())
	defer cancel()

	cur, err := app.Backend.FetchTrafficCurrent(ctx)
	if err != nil {
		app.badGatewayResponse(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, cur)
}

func (app *Application) trafficHistoricalHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), app.Config.StepTimeout.Std())
	defer cancel()

	hist, err := app.Backend.FetchTrafficHistorical(ctx)
	if err != nil {
		app.badGatewayResponse(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, hist)
}

func (app *Application) sessionHandler(w http.ResponseWriter, r *http.Request) {
	app.writeJSON(w, r, http.StatusOK, app.Session.Snapshot())
}

func (app *Application) updatePreferencesHandler(w http.ResponseWriter, r *http.Request) {
	var patch session.Patch
	if err := app.readJSON(w, r, &patch); err != nil {
		app.errorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := app.Session.UpdatePreferences(patch)
	if err != nil {
		app.errorResponse(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}
	app.writeJSON(w, r, http.StatusOK, snap)
}

func (app *Application) loginHandler(w http.ResponseWriter, r *http.Request) {
	app.writeJSON(w, r, http.StatusOK, app.Session.Login())
}

func (app *Application) logoutHandler(w http.ResponseWriter, r *http.Request) {
	app.writeJSON(w, r, http.StatusOK, app.Session.Logout())
}
