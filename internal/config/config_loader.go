package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"trafficview.org/internal/models"
	"trafficview.org/internal/report"
	"trafficview.org/internal/utils"
)

// ValidateConfigFlags rejects positional arguments, which usually mean a
// mistyped flag, and a --config-file that does not point at a JSON file.
func ValidateConfigFlags(configFile *string) error {
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unexpected arguments %v, configuration is read from flags, --config-file and the environment", flag.Args())
	}
	if *configFile != "" && !strings.HasSuffix(strings.ToLower(*configFile), ".json") {
		return fmt.Errorf("--config-file must be a .json file, got %q", *configFile)
	}
	return nil
}

// loadDotEnv loads variables from a dotenv file into the process environment
// without overriding variables that are already set. A missing file is only
// an error when the path was given explicitly.
func loadDotEnv(path string, explicit bool) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to read env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:  utils.MakeMap("env_file", path),
			Level: sentry.LevelError,
		})
		return fmt.Errorf("failed to parse env file %s: %w", path, err)
	}
	return nil
}

// loadConfigFromFile reads a JSON configuration file from disk and
// unmarshals it over cfg, so keys missing from the file keep their defaults.
//
// On error, it reports issues to Sentry and returns a descriptive error.
func loadConfigFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:  utils.MakeMap("file_path", filePath),
			Level: sentry.LevelError,
		})
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:  utils.MakeMap("file_path", filePath),
			Level: sentry.LevelError,
		})
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	return nil
}

// applyEnv overrides cfg with any of the recognised environment variables
// that lookup reports as set. Every malformed value is reported.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *Duration) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = Duration(d)
	}

	str("BACKEND_URL", &cfg.BackendURL)
	str("GEOCODER_URL", &cfg.GeocoderURL)
	str("GEOCODER_USER_AGENT", &cfg.GeocoderUserAgent)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("CACHE_DIR", &cfg.CacheDir)
	str("SENTRY_DSN", &cfg.SentryDSN)
	str("CORS_ORIGIN", &cfg.CORSOrigin)

	dur("STEP_TIMEOUT", &cfg.StepTimeout)
	dur("INCIDENT_REFRESH_INTERVAL", &cfg.IncidentRefreshInterval)
	dur("HEALTH_PROBE_INTERVAL", &cfg.HealthProbeInterval)
	dur("GEOLOCATION_MAX_AGE", &cfg.GeolocationMaxAge)
	dur("GEOLOCATION_TIMEOUT", &cfg.GeolocationTimeout)
	dur("FIXED_POSITION_INTERVAL", &cfg.FixedPositionInterval)

	if v, ok := lookup("MAX_RETRIES"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("MAX_RETRIES: %w", err))
		} else {
			cfg.MaxRetries = n
		}
	}

	if v, ok := lookup("FIXED_POSITION"); ok && v != "" {
		c, err := models.ParseCoordinate(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("FIXED_POSITION: %w", err))
		} else {
			cfg.FixedPosition = &c
		}
	}

	return errors.Join(errs...)
}
