package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"trafficview.org/internal/models"
)

const (
	DefaultGeocoderURL       = "https://nominatim.openstreetmap.org"
	DefaultGeocoderUserAgent = "trafficview/1.0 (+https://trafficview.org)"
	DefaultStepTimeout       = 12 * time.Second
	DefaultMaxAge            = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultMaxRetries        = 2
	DefaultHealthProbe       = 30 * time.Second
	DefaultCORSOrigin        = "*"
)

// Config holds all the configuration settings for our application.
type Config struct {
	Port int    `json:"port"`
	Env  string `json:"env"`

	BackendURL        string `json:"backend_url"`
	GeocoderURL       string `json:"geocoder_url"`
	GeocoderUserAgent string `json:"geocoder_user_agent"`

	// DatabaseURL enables the PostgreSQL geocode cache; CacheDir the
	// file-backed one. With neither, geocodes are cached in memory.
	DatabaseURL string `json:"database_url"`
	CacheDir    string `json:"cache_dir"`

	SentryDSN string `json:"sentry_dsn"`
	// CORSOrigin is sent as Access-Control-Allow-Origin. Empty disables CORS.
	CORSOrigin string `json:"cors_origin"`

	StepTimeout             Duration `json:"step_timeout"`
	MaxRetries              int      `json:"max_retries"`
	IncidentRefreshInterval Duration `json:"incident_refresh_interval"`
	HealthProbeInterval     Duration `json:"health_probe_interval"`

	GeolocationMaxAge  Duration `json:"geolocation_max_age"`
	GeolocationTimeout Duration `json:"geolocation_timeout"`

	// FixedPosition, when set, is republished as the device position every
	// FixedPositionInterval. Useful for kiosks and tests.
	FixedPosition         *models.Coordinate `json:"fixed_position,omitempty"`
	FixedPositionInterval Duration           `json:"fixed_position_interval"`
}

// NewConfig creates a new instance of a Config struct with defaults applied.
func NewConfig(port int, env string, backendURL string) *Config {
	return &Config{
		Port:                  port,
		Env:                   env,
		BackendURL:            backendURL,
		GeocoderURL:           DefaultGeocoderURL,
		GeocoderUserAgent:     DefaultGeocoderUserAgent,
		CORSOrigin:            DefaultCORSOrigin,
		StepTimeout:           Duration(DefaultStepTimeout),
		MaxRetries:            DefaultMaxRetries,
		HealthProbeInterval:   Duration(DefaultHealthProbe),
		GeolocationMaxAge:     Duration(DefaultMaxAge),
		GeolocationTimeout:    Duration(DefaultReadTimeout),
		FixedPositionInterval: Duration(time.Second),
	}
}

// Validate reports every problem found, joined into one error.
func (cfg *Config) Validate() error {
	var errs []error

	if cfg.Port <= 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", cfg.Port))
	}
	switch cfg.Env {
	case "development", "staging", "production", "testing":
	default:
		errs = append(errs, fmt.Errorf("unknown env %q", cfg.Env))
	}
	if err := validateBaseURL("BACKEND_URL", cfg.BackendURL); err != nil {
		errs = append(errs, err)
	}
	if err := validateBaseURL("GEOCODER_URL", cfg.GeocoderURL); err != nil {
		errs = append(errs, err)
	}
	if cfg.GeocoderUserAgent == "" {
		errs = append(errs, errors.New("GEOCODER_USER_AGENT must not be empty"))
	}
	if cfg.StepTimeout.Std() <= 0 {
		errs = append(errs, errors.New("STEP_TIMEOUT must be positive"))
	}
	if cfg.MaxRetries < 0 {
		errs = append(errs, errors.New("MAX_RETRIES must not be negative"))
	}
	if cfg.IncidentRefreshInterval.Std() < 0 {
		errs = append(errs, errors.New("INCIDENT_REFRESH_INTERVAL must not be negative"))
	}
	if cfg.HealthProbeInterval.Std() <= 0 {
		errs = append(errs, errors.New("HEALTH_PROBE_INTERVAL must be positive"))
	}
	if cfg.GeolocationTimeout.Std() <= 0 {
		errs = append(errs, errors.New("GEOLOCATION_TIMEOUT must be positive"))
	}
	if cfg.GeolocationMaxAge.Std() < 0 {
		errs = append(errs, errors.New("GEOLOCATION_MAX_AGE must not be negative"))
	}
	if cfg.FixedPosition != nil && cfg.FixedPositionInterval.Std() <= 0 {
		errs = append(errs, errors.New("FIXED_POSITION_INTERVAL must be positive"))
	}

	return errors.Join(errs...)
}

func validateBaseURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", name, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host", name)
	}
	return nil
}

// Duration is a time.Duration that reads "12s"-style strings from JSON.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %s: %w", b, err)
	}
	*d = Duration(v)
	return nil
}
