package session

import (
	"io"
	"log/slog"
	"testing"

	"trafficview.org/internal/models"
)

func newTestManager() *Manager {
	return NewManager(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func ptr[T any](v T) *T { return &v }

func TestNewManagerDefaults(t *testing.T) {
	m := newTestManager()
	s := m.Snapshot()

	if s.LoggedIn {
		t.Error("new session should be logged out")
	}
	if s.Preferences != models.DefaultPreferences() {
		t.Errorf("Preferences = %+v, want defaults", s.Preferences)
	}
	if s.Version != 0 {
		t.Errorf("Version = %d, want 0", s.Version)
	}
}

func TestUpdatePreferences(t *testing.T) {
	tests := []struct {
		name    string
		patch   Patch
		want    models.Preferences
		wantErr bool
		bumped  bool
	}{
		{
			name:   "empty patch",
			patch:  Patch{},
			want:   models.DefaultPreferences(),
			bumped: false,
		},
		{
			name:  "route type only",
			patch: Patch{RouteType: ptr(models.RouteScenic)},
			want: models.Preferences{
				RouteType:            models.RouteScenic,
				NotificationsEnabled: true,
			},
			bumped: true,
		},
		{
			name:  "flags only",
			patch: Patch{AvoidTolls: ptr(true), NotificationsEnabled: ptr(false)},
			want: models.Preferences{
				RouteType:  models.RouteFastest,
				AvoidTolls: true,
			},
			bumped: true,
		},
		{
			name:    "invalid route type",
			patch:   Patch{RouteType: ptr(models.RouteType("teleport")), AvoidTolls: ptr(true)},
			want:    models.DefaultPreferences(),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager()

			s, err := m.UpdatePreferences(tt.patch)
			if (err != nil) != tt.wantErr {
				t.Fatalf("UpdatePreferences() error = %v, wantErr %v", err, tt.wantErr)
			}
			if s.Preferences != tt.want {
				t.Errorf("Preferences = %+v, want %+v", s.Preferences, tt.want)
			}
			if m.Preferences() != tt.want {
				t.Errorf("stored Preferences = %+v, want %+v", m.Preferences(), tt.want)
			}
			if bumped := s.Version > 0; bumped != tt.bumped {
				t.Errorf("version bumped = %v, want %v", bumped, tt.bumped)
			}
		})
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	m := newTestManager()
	s := m.Snapshot()
	s.Preferences.RouteType = models.RouteScenic
	s.LoggedIn = true

	if m.Snapshot().Preferences.RouteType != models.RouteFastest || m.Snapshot().LoggedIn {
		t.Error("mutating a snapshot changed the session")
	}
}

func TestLoginLogout(t *testing.T) {
	m := newTestManager()

	if s := m.Login(); !s.LoggedIn || s.Version != 1 {
		t.Fatalf("Login() = %+v, want logged in at version 1", s)
	}
	if s := m.Login(); s.Version != 1 {
		t.Errorf("repeated Login() bumped version to %d", s.Version)
	}
	if s := m.Logout(); s.LoggedIn || s.Version != 2 {
		t.Errorf("Logout() = %+v, want logged out at version 2", s)
	}
}
