//go:build integration

package integration

import (
	"encoding/json"
	"fmt"
	"os"

	"trafficview.org/internal/models"
)

// Target is one deployed backend the integration tests run against. Origin
// and Destination bound the sample route lookup; DestinationText is
// geocoded when GeocoderURL is set.
type Target struct {
	Name            string            `json:"name"`
	BackendURL      string            `json:"backend_url"`
	GeocoderURL     string            `json:"geocoder_url"`
	Origin          models.Coordinate `json:"origin"`
	Destination     models.Coordinate `json:"destination"`
	DestinationText string            `json:"destination_text"`
}

// loadTargets reads the list of targets from a JSON file.
func loadTargets(path string) ([]Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	var targets []Target
	if err := json.Unmarshal(data, &targets); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %v", err)
	}
	return targets, nil
}
