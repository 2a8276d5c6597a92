package models

// RouteResult is the outcome of one successful route computation.
// It is replaced wholesale by the next successful query and never mutated.
type RouteResult struct {
	DistanceKm  float64      `json:"distance_km"`
	DurationMin float64      `json:"duration_min"`
	Polyline    []Coordinate `json:"polyline"`
}

// Clone returns a copy that shares no memory with r.
func (r RouteResult) Clone() RouteResult {
	out := r
	out.Polyline = append([]Coordinate(nil), r.Polyline...)
	return out
}
