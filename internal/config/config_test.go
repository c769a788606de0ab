package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_TYPE", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "memory", cfg.Database.Type)
	assert.Empty(t, cfg.Database.DSN)
	assert.Equal(t, 60*time.Second, cfg.Optimization.EvalTimeout)
	assert.Equal(t, 4, cfg.Optimization.MaxConcurrentRuns)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_TYPE", "memory")
	t.Setenv("OPT_PROCESSES", "6")
	t.Setenv("OPT_EVAL_TIMEOUT", "5s")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Optimization.Processes)
	assert.Equal(t, 5*time.Second, cfg.Optimization.EvalTimeout)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad db type", func(c *Config) { c.Database.Type = "postgres" }, "DB_TYPE"},
		{"negative processes", func(c *Config) { c.Optimization.Processes = -1 }, "OPT_PROCESSES"},
		{"zero timeout", func(c *Config) { c.Optimization.EvalTimeout = 0 }, "OPT_EVAL_TIMEOUT"},
		{"zero runs", func(c *Config) { c.Optimization.MaxConcurrentRuns = 0 }, "OPT_MAX_CONCURRENT_RUNS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Database.Type = "memory"
			cfg.Optimization.EvalTimeout = time.Second
			cfg.Optimization.MaxConcurrentRuns = 1
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
