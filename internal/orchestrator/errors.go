package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trafficview.org/internal/geocode"
)

// Kind classifies a failure for the presentation layer.
type Kind string

const (
	KindInvalidInput Kind = "InvalidInputError"
	KindNotFound     Kind = "NotFoundError"
	KindGeolocation  Kind = "GeolocationError"
	KindGeocoding    Kind = "GeocodingError"
	KindRoute        Kind = "RouteError"
	KindReporting    Kind = "ReportingError"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("destination not found")
	ErrGeolocation  = errors.New("geolocation failed")
	ErrGeocoding    = errors.New("geocoding failed")
	ErrRoute        = errors.New("route lookup failed")
	ErrReporting    = errors.New("route report failed")

	// ErrSuperseded is the outcome of a run whose results were dropped
	// because a newer query was submitted.
	ErrSuperseded = errors.New("route query superseded")
)

var kindSentinels = map[Kind]error{
	KindInvalidInput: ErrInvalidInput,
	KindNotFound:     ErrNotFound,
	KindGeolocation:  ErrGeolocation,
	KindGeocoding:    ErrGeocoding,
	KindRoute:        ErrRoute,
	KindReporting:    ErrReporting,
}

// Error is a classified orchestration failure. errors.Is matches both the
// kind sentinel and the wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s, ok := kindSentinels[e.Kind]; ok {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// ErrorInfo is the serialisable part of an Error kept in State.
type ErrorInfo struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (e *Error) Info() *ErrorInfo {
	return &ErrorInfo{Kind: e.Kind, Message: e.Message}
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// classifyGeocode maps a geocoder failure onto the taxonomy. The message of
// an input or not-found failure is passed through verbatim.
func classifyGeocode(err error, timeout time.Duration) *Error {
	switch {
	case errors.Is(err, geocode.ErrEmptyQuery):
		return &Error{Kind: KindInvalidInput, Message: err.Error(), Err: err}
	case errors.Is(err, geocode.ErrNotFound):
		return &Error{Kind: KindNotFound, Message: err.Error(), Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return newError(KindGeocoding, err, "geocoding timed out after %s", timeout)
	default:
		return newError(KindGeocoding, err, "geocoding failed: %v", err)
	}
}

// classifyRoute wraps every route failure into one RouteError. Whether the
// backend answered (*backend.StatusError) or was unreachable stays visible
// through errors.As on the cause.
func classifyRoute(err error, timeout time.Duration) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindRoute, err, "route lookup timed out after %s", timeout)
	}
	return newError(KindRoute, err, "route lookup failed: %v", err)
}
