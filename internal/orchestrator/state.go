package orchestrator

import (
	"time"

	"github.com/google/uuid"
	"github.com/twpayne/go-polyline"
	"trafficview.org/internal/geo"
	"trafficview.org/internal/models"
)

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseLocating  Phase = "locating"
	PhaseGeocoding Phase = "geocoding"
	PhaseRouting   Phase = "routing"
	PhaseReporting Phase = "reporting"
	PhaseSuccess   Phase = "success"
	PhaseError     Phase = "error"
)

// Terminal reports whether a run that reached p has finished.
func (p Phase) Terminal() bool {
	return p == PhaseSuccess || p == PhaseError
}

// RouteQuery is one submission. It lives for the duration of a single run.
type RouteQuery struct {
	ID              uuid.UUID          `json:"id"`
	Generation      uint64             `json:"generation"`
	Origin          models.Coordinate  `json:"origin"`
	DestinationText string             `json:"destination_text"`
	Preferences     models.Preferences `json:"preferences"`
	SubmittedAt     time.Time          `json:"submitted_at"`
}

// RouteView is the route currently on the map. Every field comes from the
// same completed query.
type RouteView struct {
	QueryID         uuid.UUID          `json:"query_id"`
	Generation      uint64             `json:"generation"`
	Origin          models.Coordinate  `json:"origin"`
	Destination     models.Coordinate  `json:"destination"`
	DestinationText string             `json:"destination_text"`
	Result          models.RouteResult `json:"result"`
	Incidents       []models.Incident  `json:"incidents"`
	// Encoded is Result.Polyline in Google encoded polyline format.
	Encoded string           `json:"encoded_polyline"`
	Bounds  *geo.BoundingBox `json:"bounds,omitempty"`
}

func newRouteView(q RouteQuery, destination models.Coordinate, result models.RouteResult, incidents []models.Incident) *RouteView {
	coords := make([][]float64, 0, len(result.Polyline))
	for _, c := range result.Polyline {
		coords = append(coords, []float64{c.Lat, c.Lng})
	}

	v := &RouteView{
		QueryID:         q.ID,
		Generation:      q.Generation,
		Origin:          q.Origin,
		Destination:     destination,
		DestinationText: q.DestinationText,
		Result:          result.Clone(),
		Incidents:       models.CloneIncidents(incidents),
		Encoded:         string(polyline.EncodeCoords(coords)),
	}
	if v.Incidents == nil {
		v.Incidents = []models.Incident{}
	}
	if bb, err := geo.ComputeBoundingBox(result.Polyline); err == nil {
		v.Bounds = &bb
	}
	return v
}

func (v *RouteView) clone() *RouteView {
	if v == nil {
		return nil
	}
	out := *v
	out.Result = v.Result.Clone()
	out.Incidents = models.CloneIncidents(v.Incidents)
	if v.Bounds != nil {
		bb := *v.Bounds
		out.Bounds = &bb
	}
	return &out
}

// State is what the presentation layer renders. Result is set only in
// PhaseSuccess and Error only in PhaseError. Route is the last displayed
// route and survives later failures. PositionError reflects the geolocation
// watch and is independent of Phase.
type State struct {
	Phase         Phase               `json:"phase"`
	Generation    uint64              `json:"generation"`
	Error         *ErrorInfo          `json:"error"`
	Result        *models.RouteResult `json:"result"`
	Route         *RouteView          `json:"route"`
	PositionError *ErrorInfo          `json:"position_error"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	if s.Error != nil {
		e := *s.Error
		out.Error = &e
	}
	if s.Result != nil {
		r := s.Result.Clone()
		out.Result = &r
	}
	if s.PositionError != nil {
		e := *s.PositionError
		out.PositionError = &e
	}
	out.Route = s.Route.clone()
	return out
}
