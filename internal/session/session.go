// Package session owns the dashboard session: the login flag and the user's
// route preferences. It is the only writer; everyone else reads snapshots.
package session

import (
	"fmt"
	"log/slog"
	"sync"

	"trafficview.org/internal/models"
)

// Snapshot is an immutable copy of the session. Version increases with
// every change.
type Snapshot struct {
	LoggedIn    bool               `json:"loggedIn"`
	Preferences models.Preferences `json:"preferences"`
	Version     uint64             `json:"version"`
}

// Patch is a partial preferences update. Nil fields are left unchanged.
type Patch struct {
	RouteType            *models.RouteType `json:"routeType,omitempty"`
	AvoidTolls           *bool             `json:"avoidTolls,omitempty"`
	AvoidHighways        *bool             `json:"avoidHighways,omitempty"`
	NotificationsEnabled *bool             `json:"notificationsEnabled,omitempty"`
}

func (p Patch) apply(prefs models.Preferences) models.Preferences {
	if p.RouteType != nil {
		prefs.RouteType = *p.RouteType
	}
	if p.AvoidTolls != nil {
		prefs.AvoidTolls = *p.AvoidTolls
	}
	if p.AvoidHighways != nil {
		prefs.AvoidHighways = *p.AvoidHighways
	}
	if p.NotificationsEnabled != nil {
		prefs.NotificationsEnabled = *p.NotificationsEnabled
	}
	return prefs
}

type Manager struct {
	logger *slog.Logger

	mu    sync.RWMutex
	state Snapshot
}

func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger: logger,
		state:  Snapshot{Preferences: models.DefaultPreferences()},
	}
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) Preferences() models.Preferences {
	return m.Snapshot().Preferences
}

// UpdatePreferences merges p into the current preferences. An update that
// would leave the preferences invalid is rejected as a whole.
func (m *Manager) UpdatePreferences(p Patch) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := p.apply(m.state.Preferences)
	if err := next.Validate(); err != nil {
		return m.state, fmt.Errorf("update preferences: %w", err)
	}
	if next != m.state.Preferences {
		m.state.Preferences = next
		m.state.Version++
		m.logger.Info("preferences updated",
			"route_type", next.RouteType,
			"avoid_tolls", next.AvoidTolls,
			"avoid_highways", next.AvoidHighways,
			"notifications", next.NotificationsEnabled)
	}
	return m.state, nil
}

func (m *Manager) Login() Snapshot  { return m.setLoggedIn(true) }
func (m *Manager) Logout() Snapshot { return m.setLoggedIn(false) }

func (m *Manager) setLoggedIn(v bool) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.LoggedIn != v {
		m.state.LoggedIn = v
		m.state.Version++
		m.logger.Info("session login state changed", "logged_in", v)
	}
	return m.state
}
