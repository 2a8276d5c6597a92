package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"trafficview.org/internal/report"
)

const maxBodyBytes = 1 << 20

type envelope map[string]any

func (app *Application) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	app.writeJSONType(w, r, status, "application/json", v)
}

func (app *Application) writeJSONType(w http.ResponseWriter, r *http.Request, status int, contentType string, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.Logger.Error("encode response failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
}

func (app *Application) errorResponse(w http.ResponseWriter, r *http.Request, status int, message string) {
	app.writeJSON(w, r, status, envelope{"error": message})
}

func (app *Application) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.Logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	report.ReportError(err)
	app.errorResponse(w, r, http.StatusInternalServerError, "the server encountered a problem and could not process the request")
}

// badGatewayResponse is used when the traffic backend failed a pass-through
// request. The cause is logged, not returned.
func (app *Application) badGatewayResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.Logger.Warn("backend request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	app.errorResponse(w, r, http.StatusBadGateway, "the traffic backend is unavailable")
}

func (app *Application) notFoundResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusNotFound, "the requested resource could not be found")
}

func (app *Application) methodNotAllowedResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusMethodNotAllowed, fmt.Sprintf("the %s method is not supported for this resource", r.Method))
}

// readJSON decodes a single JSON object from the body into dst, rejecting
// unknown fields and trailing data.
func (app *Application) readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &syntaxErr):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxErr.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &typeErr):
			if typeErr.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", typeErr.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", typeErr.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			return fmt.Errorf("body contains unknown key %s", strings.TrimPrefix(err.Error(), "json: unknown field "))
		case errors.As(err, &maxErr):
			return fmt.Errorf("body must not be larger than %d bytes", maxErr.Limit)
		default:
			return err
		}
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}
	return nil
}

func errOrStatus(err error, status string) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("backend health status %q", status)
}
