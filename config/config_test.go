package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Second, cfg.HealthInterval)
	assert.Equal(t, 8, cfg.MaxParallelProbes)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero interval", func(c *Config) { c.HealthInterval = 0 }, "health_interval"},
		{"negative probe timeout", func(c *Config) { c.HealthProbeTimeout = -time.Second }, "health_probe_timeout"},
		{"zero start timeout", func(c *Config) { c.StartTimeout = 0 }, "start_timeout"},
		{"zero stop timeout", func(c *Config) { c.StopTimeout = 0 }, "stop_timeout"},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }, "shutdown_timeout"},
		{"zero parallel probes", func(c *Config) { c.MaxParallelProbes = 0 }, "max_parallel_probes"},
		{"zero event buffer", func(c *Config) { c.EventBufferSize = 0 }, "event_buffer_size"},
		{"zero event history", func(c *Config) { c.EventHistorySize = 0 }, "event_history_size"},
		{"zero health history", func(c *Config) { c.HealthHistorySize = 0 }, "health_history_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	var nilConfig *Config
	assert.ErrorIs(t, nilConfig.Validate(), ErrConfigNil)
}
