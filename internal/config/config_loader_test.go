package config

import (
	"bytes"
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"trafficview.org/internal/models"
)

func TestLoadConfigFromFile(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		content := `{
		"backend_url": "https://backend.example.com",
		"geocoder_url": "https://geo.example.com",
		"step_timeout": "8s",
		"incident_refresh_interval": "1m",
		"fixed_position": {"lat": 37.7749, "lng": -122.4194}
		}`
		path := filepath.Join(t.TempDir(), "config.json")
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}

		cfg := NewConfig(4000, "testing", "")
		if err := loadConfigFromFile(path, cfg); err != nil {
			t.Fatalf("loadConfigFromFile failed: %v", err)
		}

		if cfg.BackendURL != "https://backend.example.com" {
			t.Errorf("Expected backend URL from file, got %q", cfg.BackendURL)
		}
		if cfg.StepTimeout.Std() != 8*time.Second {
			t.Errorf("Expected step timeout 8s, got %v", cfg.StepTimeout.Std())
		}
		if cfg.IncidentRefreshInterval.Std() != time.Minute {
			t.Errorf("Expected refresh interval 1m, got %v", cfg.IncidentRefreshInterval.Std())
		}
		if cfg.FixedPosition == nil || *cfg.FixedPosition != (models.Coordinate{Lat: 37.7749, Lng: -122.4194}) {
			t.Errorf("Unexpected fixed position %+v", cfg.FixedPosition)
		}
		if cfg.GeolocationTimeout.Std() != DefaultReadTimeout {
			t.Errorf("Expected default geolocation timeout to survive, got %v", cfg.GeolocationTimeout.Std())
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		if err := os.WriteFile(path, []byte(`{ this is not valid JSON }`), 0o600); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}

		if err := loadConfigFromFile(path, NewConfig(4000, "testing", "")); err == nil {
			t.Errorf("Expected error with invalid JSON, got none")
		}
	})

	t.Run("InvalidDuration", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		if err := os.WriteFile(path, []byte(`{"step_timeout": "soon"}`), 0o600); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}

		if err := loadConfigFromFile(path, NewConfig(4000, "testing", "")); err == nil {
			t.Errorf("Expected error with invalid duration, got none")
		}
	})

	t.Run("NonExistentFile", func(t *testing.T) {
		if err := loadConfigFromFile("non-existent-file.json", NewConfig(4000, "testing", "")); err == nil {
			t.Errorf("Expected error for non-existent file, got none")
		}
	})
}

func TestApplyEnv(t *testing.T) {
	t.Run("overrides", func(t *testing.T) {
		cfg := NewConfig(4000, "testing", "http://file.example.com")
		err := applyEnv(cfg, envMap(map[string]string{
			"BACKEND_URL":               "http://env.example.com",
			"GEOCODER_USER_AGENT":       "test-agent",
			"STEP_TIMEOUT":              "3s",
			"MAX_RETRIES":               "5",
			"FIXED_POSITION":            "37.7749,-122.4194",
			"INCIDENT_REFRESH_INTERVAL": "",
		}))
		if err != nil {
			t.Fatalf("applyEnv failed: %v", err)
		}
		if cfg.BackendURL != "http://env.example.com" {
			t.Errorf("Expected env to override backend URL, got %q", cfg.BackendURL)
		}
		if cfg.GeocoderUserAgent != "test-agent" {
			t.Errorf("Unexpected user agent %q", cfg.GeocoderUserAgent)
		}
		if cfg.StepTimeout.Std() != 3*time.Second || cfg.MaxRetries != 5 {
			t.Errorf("Unexpected timeout/retries %v/%d", cfg.StepTimeout.Std(), cfg.MaxRetries)
		}
		if cfg.FixedPosition == nil || cfg.FixedPosition.Lat != 37.7749 {
			t.Errorf("Unexpected fixed position %+v", cfg.FixedPosition)
		}
		if cfg.IncidentRefreshInterval != 0 {
			t.Errorf("Empty value must not override, got %v", cfg.IncidentRefreshInterval.Std())
		}
	})

	t.Run("reports every malformed value", func(t *testing.T) {
		cfg := NewConfig(4000, "testing", "")
		err := applyEnv(cfg, envMap(map[string]string{
			"STEP_TIMEOUT":   "ten",
			"MAX_RETRIES":    "many",
			"FIXED_POSITION": "here",
		}))
		if err == nil {
			t.Fatal("Expected error, got none")
		}
		for _, key := range []string{"STEP_TIMEOUT", "MAX_RETRIES", "FIXED_POSITION"} {
			if !strings.Contains(err.Error(), key) {
				t.Errorf("Expected error to mention %s, got %v", key, err)
			}
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing backend", func(c *Config) { c.BackendURL = "" }, "BACKEND_URL is required"},
		{"backend not http", func(c *Config) { c.BackendURL = "ftp://x" }, "BACKEND_URL must be an http(s) URL"},
		{"bad port", func(c *Config) { c.Port = 0 }, "port 0 out of range"},
		{"bad env", func(c *Config) { c.Env = "qa" }, `unknown env "qa"`},
		{"zero step timeout", func(c *Config) { c.StepTimeout = 0 }, "STEP_TIMEOUT must be positive"},
		{"negative refresh", func(c *Config) { c.IncidentRefreshInterval = Duration(-time.Second) }, "INCIDENT_REFRESH_INTERVAL"},
		{"fixed position without interval", func(c *Config) {
			c.FixedPosition = &models.Coordinate{Lat: 1, Lng: 1}
			c.FixedPositionInterval = 0
		}, "FIXED_POSITION_INTERVAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig(4000, "testing", "http://localhost:5000")
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Expected valid config, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateConfigFlags(t *testing.T) {
	tests := []struct {
		name        string
		configFile  string
		extraArgs   []string
		expectError bool
	}{
		{"No config file", "", nil, false},
		{"Valid config file", "config.json", nil, false},
		{"Config file not JSON", "config.yaml", nil, true},
		{"Stray argument", "", []string{"extraArg"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(tt.name, flag.ContinueOnError)
			var output bytes.Buffer
			flag.CommandLine.SetOutput(&output)

			configFile := flag.String("config-file", "", "Path to config file")

			args := []string{}
			if tt.configFile != "" {
				args = append(args, "--config-file="+tt.configFile)
			}
			args = append(args, tt.extraArgs...)
			if err := flag.CommandLine.Parse(args); err != nil {
				t.Fatalf("Failed to parse flags: %v", err)
			}

			err := ValidateConfigFlags(configFile)
			if (err != nil) != tt.expectError {
				t.Errorf("Expected error: %v, got: %v", tt.expectError, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("dotenv and environment", func(t *testing.T) {
		dir := t.TempDir()
		envFile := filepath.Join(dir, "test.env")
		content := "BACKEND_URL=http://dotenv.example.com\nSTEP_TIMEOUT=5s\n"
		if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		// The process environment wins over the dotenv file.
		t.Setenv("STEP_TIMEOUT", "7s")
		t.Setenv("BACKEND_URL", "")
		os.Unsetenv("BACKEND_URL")

		cfg, err := Load(LoadOptions{Port: 4001, Env: "testing", EnvFile: envFile}, logger)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.BackendURL != "http://dotenv.example.com" {
			t.Errorf("Expected backend URL from dotenv, got %q", cfg.BackendURL)
		}
		if cfg.StepTimeout.Std() != 7*time.Second {
			t.Errorf("Expected environment to win, got %v", cfg.StepTimeout.Std())
		}
		if cfg.Port != 4001 {
			t.Errorf("Expected port from flags, got %d", cfg.Port)
		}
	})

	t.Run("explicit env file missing", func(t *testing.T) {
		_, err := Load(LoadOptions{Port: 4000, Env: "testing", EnvFile: filepath.Join(t.TempDir(), "missing.env")}, logger)
		if err == nil {
			t.Fatal("Expected error for missing explicit env file")
		}
	})

	t.Run("invalid configuration", func(t *testing.T) {
		t.Setenv("BACKEND_URL", "not-a-url")
		_, err := Load(LoadOptions{Port: 4000, Env: "testing", EnvFile: writeEmptyEnv(t)}, logger)
		if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
			t.Fatalf("Expected validation error, got %v", err)
		}
	})
}

func writeEmptyEnv(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "empty.env")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
