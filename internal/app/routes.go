package app

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"trafficview.org/internal/middleware"
)

// Routes registers the API on an httprouter and wraps it in the middleware
// stack: request logging outermost, then CORS, security headers and Sentry.
func (app *Application) Routes(ctx context.Context) http.Handler {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(app.notFoundResponse)
	router.MethodNotAllowed = http.HandlerFunc(app.methodNotAllowedResponse)

	router.HandlerFunc(http.MethodGet, "/v1/healthcheck", app.healthcheckHandler)
	router.Handler(http.MethodGet, "/metrics", middleware.NewCachedPromHandler(ctx, prometheus.DefaultGatherer, 10*time.Second))

	router.HandlerFunc(http.MethodGet, "/v1/state", app.stateHandler)
	router.HandlerFunc(http.MethodPost, "/v1/routes", app.submitRouteHandler)
	router.HandlerFunc(http.MethodGet, "/v1/routes/current.geojson", app.currentRouteGeoJSONHandler)
	router.HandlerFunc(http.MethodGet, "/v1/routes/recommend", app.recommendRoutesHandler)

	router.HandlerFunc(http.MethodGet, "/v1/incidents", app.incidentsHandler)

	router.HandlerFunc(http.MethodGet, "/v1/position", app.readPositionHandler)
	router.HandlerFunc(http.MethodPost, "/v1/position", app.updatePositionHandler)
	router.HandlerFunc(http.MethodPost, "/v1/position/error", app.positionErrorHandler)

	router.HandlerFunc(http.MethodGet, "/v1/traffic/current", app.trafficCurrentHandler)
	router.HandlerFunc(http.MethodGet, "/v1/traffic/historical", app.trafficHistoricalHandler)

	router.HandlerFunc(http.MethodGet, "/v1/session", app.sessionHandler)
	router.HandlerFunc(http.MethodPatch, "/v1/session/preferences", app.updatePreferencesHandler)
	router.HandlerFunc(http.MethodPost, "/v1/session/login", app.loginHandler)
	router.HandlerFunc(http.MethodPost, "/v1/session/logout", app.logoutHandler)

	handler := middleware.SentryMiddleware(router)
	handler = middleware.SecurityHeaders(handler)
	handler = middleware.CORS(app.Config.CORSOrigin)(handler)
	return middleware.RequestLogger(app.Logger)(handler)
}
