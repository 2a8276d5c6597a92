package utils

import (
	"encoding/json"
	"fmt"
	"time"
)

// Layouts accepted by BackendTime, most specific first. The backend emits
// naive local timestamps (no zone) as well as RFC 3339.
var backendTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// BackendTime wraps time.Time to tolerate the timestamp formats the traffic
// backend produces. Timestamps without a zone are interpreted as UTC.
type BackendTime time.Time

// MarshalJSON serializes the BackendTime as RFC 3339.
func (d BackendTime) MarshalJSON() ([]byte, error) {
	if time.Time(d).IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(time.Time(d).Format(time.RFC3339Nano))
}

// UnmarshalJSON parses any of the accepted layouts. null and "" decode to the zero time.
func (d *BackendTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = BackendTime{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := ParseBackendTime(s)
	if err != nil {
		return err
	}
	*d = BackendTime(t)
	return nil
}

// ParseBackendTime parses s with the first matching layout.
func ParseBackendTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range backendTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// Time returns the underlying time.Time value of the BackendTime.
func (d BackendTime) Time() time.Time {
	return time.Time(d)
}
