// Package geocode turns free-text destinations into coordinates.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"trafficview.org/internal/models"
)

var (
	// ErrEmptyQuery is returned, without any network call, for blank input.
	ErrEmptyQuery = errors.New("destination must not be empty")
	// ErrNotFound means the geocoder answered but matched nothing.
	ErrNotFound = errors.New("no geocode results")
)

// Geocoder resolves a free-text place to a single coordinate.
type Geocoder interface {
	Geocode(ctx context.Context, text string) (models.Coordinate, error)
}

// NotFoundError carries the query that matched nothing and unwraps to ErrNotFound.
type NotFoundError struct {
	Query string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no location found for %q", e.Query)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// StatusError is a non-2xx answer from the geocoding service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("geocoder returned status %d: %s", e.Code, e.Body)
}

// Normalize collapses runs of whitespace and lower-cases text, producing
// the key under which geocodes are cached.
func Normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}
