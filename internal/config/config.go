// Package config reads the process settings from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron"
	"github.com/sethvargo/go-envconfig"

	"github.com/jdholdren/feedreader/internal/logger"
)

type Config struct {
	// Path to the sqlite database file.
	Database string `env:"DATABASE, required"`
	Port     int    `env:"PORT, default=8000"`

	SchedulerCrontab      string        `env:"SCHEDULER_CRONTAB_EXPR, default=*/10 * * * *"`
	SchedulerMisfireGrace time.Duration `env:"SCHEDULER_MISFIRE_GRACE_TIME, default=30s"`
	SchedulerEnabled      bool          `env:"SCHEDULER_ENABLED, default=true"`

	FetchTimeout        time.Duration `env:"FETCH_TIMEOUT, default=20s"`
	FetchConcurrency    int           `env:"FETCH_CONCURRENCY, default=1"`
	FetchConditionalGet bool          `env:"FETCH_CONDITIONAL_GET, default=false"`
	FetchUserAgent      string        `env:"FETCH_USER_AGENT, default=feedreader/1.0"`

	// Which format to use for logging: either text or json
	LogFormat string `env:"LOG_FORMAT, default=text"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`
}

// Load reads the config from the process environment.
func Load(ctx context.Context) (Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom reads the config from l and validates it.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return Config{}, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	if _, err := cron.ParseStandard(c.SchedulerCrontab); err != nil {
		errs = append(errs, fmt.Errorf("SCHEDULER_CRONTAB_EXPR is invalid: %w", err))
	}
	if c.SchedulerMisfireGrace <= 0 {
		errs = append(errs, fmt.Errorf("SCHEDULER_MISFIRE_GRACE_TIME must be positive, got %s", c.SchedulerMisfireGrace))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_TIMEOUT must be positive, got %s", c.FetchTimeout))
	}
	if c.FetchConcurrency < 1 {
		errs = append(errs, fmt.Errorf("FETCH_CONCURRENCY must be at least 1, got %d", c.FetchConcurrency))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL is invalid: %w", err))
	}

	return errors.Join(errs...)
}
