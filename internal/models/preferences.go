package models

import "fmt"

// RouteType is the user's preferred ranking for route recommendations.
type RouteType string

const (
	RouteFastest        RouteType = "fastest"
	RouteLeastCongested RouteType = "leastCongested"
	RouteScenic         RouteType = "scenic"
)

func (r RouteType) Valid() bool {
	switch r {
	case RouteFastest, RouteLeastCongested, RouteScenic:
		return true
	}
	return false
}

// Preferences is a value snapshot of the session's user preferences.
type Preferences struct {
	RouteType            RouteType `json:"routeType"`
	AvoidTolls           bool      `json:"avoidTolls"`
	AvoidHighways        bool      `json:"avoidHighways"`
	NotificationsEnabled bool      `json:"notificationsEnabled"`
}

// DefaultPreferences matches what a fresh dashboard session starts with.
func DefaultPreferences() Preferences {
	return Preferences{
		RouteType:            RouteFastest,
		NotificationsEnabled: true,
	}
}

func (p Preferences) Validate() error {
	if !p.RouteType.Valid() {
		return fmt.Errorf("invalid route type %q", p.RouteType)
	}
	return nil
}
