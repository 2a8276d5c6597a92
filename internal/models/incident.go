package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// IncidentType classifies a road event. Values outside the known set are kept verbatim.
type IncidentType string

const (
	IncidentAccident     IncidentType = "accident"
	IncidentCongestion   IncidentType = "congestion"
	IncidentRoadwork     IncidentType = "roadwork"
	IncidentConstruction IncidentType = "construction"
)

// Severity is normalised to lower case; "medium" is folded into "moderate".
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
)

func ParseSeverity(s string) Severity {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "medium" {
		return SeverityModerate
	}
	return Severity(v)
}

// Incident is a traffic event as reported by the backend.
//
// The backend and the dashboard pages never agreed on one shape, so decoding
// accepts "coordinates" as a [lat,lng] pair or a {lat,lng} object, top-level
// "lat"/"lng", "location" as a label or a {lat,lng} object, numeric or string
// ids and "time" or "reported_at". Encoding always emits the normalised
// fields; the received bytes are kept separately for Raw.
type Incident struct {
	ID          string       `json:"id"`
	Type        IncidentType `json:"type"`
	Severity    Severity     `json:"severity"`
	Location    string       `json:"location"`
	Coordinates Coordinate   `json:"coordinates"`
	Description string       `json:"description"`
	Time        string       `json:"time"`

	raw json.RawMessage
}

type incidentWire struct {
	ID          json.RawMessage `json:"id"`
	Type        string          `json:"type"`
	Severity    string          `json:"severity"`
	Location    json.RawMessage `json:"location"`
	Coordinates json.RawMessage `json:"coordinates"`
	Lat         *float64        `json:"lat"`
	Lng         *float64        `json:"lng"`
	Description string          `json:"description"`
	Time        string          `json:"time"`
	ReportedAt  string          `json:"reported_at"`
}

func (i *Incident) UnmarshalJSON(data []byte) error {
	inc, err := decodeIncident(data)
	if err != nil {
		return err
	}
	*i = inc
	return nil
}

// decodeIncident returns the incident decoded so far along with any error.
// A position error leaves the other fields populated.
func decodeIncident(data []byte) (Incident, error) {
	var w incidentWire
	if err := json.Unmarshal(data, &w); err != nil {
		return Incident{}, fmt.Errorf("decode incident: %w", err)
	}

	out := Incident{
		ID:          decodeID(w.ID),
		Type:        IncidentType(strings.ToLower(strings.TrimSpace(w.Type))),
		Severity:    ParseSeverity(w.Severity),
		Description: w.Description,
		Time:        w.Time,
		raw:         append(json.RawMessage(nil), data...),
	}
	if out.Time == "" {
		out.Time = w.ReportedAt
	}

	var located bool
	var posErr error
	if len(w.Coordinates) > 0 && !isNull(w.Coordinates) {
		c, err := decodeCoordinate(w.Coordinates)
		if err != nil {
			posErr = fmt.Errorf("decode incident %s coordinates: %w", out.ID, err)
		} else {
			out.Coordinates, located = c, true
		}
	}
	if !located && w.Lat != nil && w.Lng != nil {
		out.Coordinates, located, posErr = Coordinate{Lat: *w.Lat, Lng: *w.Lng}, true, nil
	}

	if len(w.Location) > 0 && !isNull(w.Location) {
		if w.Location[0] == '"' {
			if err := json.Unmarshal(w.Location, &out.Location); err != nil && posErr == nil {
				posErr = fmt.Errorf("decode incident %s location: %w", out.ID, err)
			}
		} else if !located {
			c, err := decodeCoordinate(w.Location)
			if err != nil {
				if posErr == nil {
					posErr = fmt.Errorf("decode incident %s location: %w", out.ID, err)
				}
			} else {
				out.Coordinates, posErr = c, nil
			}
		}
	}

	return out, posErr
}

// Raw returns the bytes the incident was decoded from, or nil for an
// incident built in code.
func (i Incident) Raw() json.RawMessage {
	return i.raw
}

// DecodeIncidents decodes each element independently. An element whose
// position cannot be read is kept without one; an element that is not an
// incident object at all is dropped. Both are returned in errs.
func DecodeIncidents(raws []json.RawMessage) (incidents []Incident, errs []error) {
	incidents = make([]Incident, 0, len(raws))
	for n, raw := range raws {
		if isNull(raw) {
			continue
		}
		inc, err := decodeIncident(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("incident %d: %w", n, err))
			if inc.raw == nil {
				continue
			}
			inc.Coordinates = Coordinate{}
		}
		incidents = append(incidents, inc)
	}
	return incidents, errs
}

func decodeID(raw json.RawMessage) string {
	if len(raw) == 0 || isNull(raw) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(bytes.TrimSpace(raw))
}

func decodeCoordinate(raw json.RawMessage) (Coordinate, error) {
	raw = bytes.TrimSpace(raw)
	switch raw[0] {
	case '[':
		var pair []float64
		if err := json.Unmarshal(raw, &pair); err != nil {
			return Coordinate{}, err
		}
		if len(pair) < 2 {
			return Coordinate{}, fmt.Errorf("expected [lat, lng], got %d values", len(pair))
		}
		return Coordinate{Lat: pair[0], Lng: pair[1]}, nil
	case '{':
		var obj struct {
			Lat *float64 `json:"lat"`
			Lng *float64 `json:"lng"`
			Lon *float64 `json:"lon"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return Coordinate{}, err
		}
		if obj.Lng == nil {
			obj.Lng = obj.Lon
		}
		if obj.Lat == nil || obj.Lng == nil {
			return Coordinate{}, fmt.Errorf("expected {lat, lng}")
		}
		return Coordinate{Lat: *obj.Lat, Lng: *obj.Lng}, nil
	}
	return Coordinate{}, fmt.Errorf("unsupported coordinate encoding %q", string(raw))
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// CloneIncidents copies a slice of incidents; the retained raw bytes are
// immutable and shared. An empty set stays empty rather than nil.
func CloneIncidents(in []Incident) []Incident {
	if in == nil {
		return nil
	}
	out := make([]Incident, len(in))
	copy(out, in)
	return out
}
