package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/getsentry/sentry-go"
	"trafficview.org/internal/report"
)

// LoadOptions carries what main parsed from the command line.
type LoadOptions struct {
	Port       int
	Env        string
	ConfigFile string
	// EnvFile is the dotenv file to load; ".env" is tried when empty.
	EnvFile string
}

// Load builds the effective configuration. Precedence, lowest first:
// defaults, the JSON config file, the dotenv file, the process environment.
// Port and Env always come from the flags.
func Load(opts LoadOptions, logger *slog.Logger) (*Config, error) {
	cfg := NewConfig(opts.Port, opts.Env, "")

	if opts.ConfigFile != "" {
		if err := loadConfigFromFile(opts.ConfigFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file %s: %w", opts.ConfigFile, err)
		}
		cfg.Port, cfg.Env = opts.Port, opts.Env
		logger.Info("loaded config file", "path", opts.ConfigFile)
	}

	envFile, explicit := opts.EnvFile, opts.EnvFile != ""
	if !explicit {
		envFile = ".env"
	}
	if err := loadDotEnv(envFile, explicit); err != nil {
		return nil, err
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:  map[string]string{"env": cfg.Env},
			Level: sentry.LevelError,
		})
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
