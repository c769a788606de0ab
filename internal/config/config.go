package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Database struct {
		Type string `env:"DB_TYPE" envDefault:"sqlite"`
		DSN  string `env:"DB_DSN"`
	}
	Optimization struct {
		// Processes is the worker count used when a scenario leaves it unset.
		Processes         int           `env:"OPT_PROCESSES" envDefault:"0"`
		EvalTimeout       time.Duration `env:"OPT_EVAL_TIMEOUT" envDefault:"60s"`
		MaxConcurrentRuns int           `env:"OPT_MAX_CONCURRENT_RUNS" envDefault:"4"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.applyDatabaseDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDatabaseDefaults() error {
	if c.Database.DSN != "" {
		return nil
	}
	switch c.Database.Type {
	case "sqlite":
		if err := os.MkdirAll("data", 0o755); err != nil {
			return err
		}
		c.Database.DSN = "file:" + filepath.Join("data", "gridplan.db") + "?cache=shared"
	case "memory":
	}
	return nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported DB_TYPE %q (want sqlite or memory)", c.Database.Type)
	}
	if c.Optimization.Processes < 0 {
		return fmt.Errorf("OPT_PROCESSES must be >= 0, got %d", c.Optimization.Processes)
	}
	if c.Optimization.EvalTimeout <= 0 {
		return fmt.Errorf("OPT_EVAL_TIMEOUT must be positive, got %s", c.Optimization.EvalTimeout)
	}
	if c.Optimization.MaxConcurrentRuns < 1 {
		return fmt.Errorf("OPT_MAX_CONCURRENT_RUNS must be >= 1, got %d", c.Optimization.MaxConcurrentRuns)
	}
	return nil
}
