// Package config provides loading, validation and hot reload of the
// orchestrator's runtime settings
package config

import (
	"errors"
	"fmt"
	"time"
)

// Static errors for configuration package
var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrConfigNil     = errors.New("config is nil")
	ErrFeedFailed    = errors.New("config feeder failed")
	ErrNoFeeders     = errors.New("loader has no feeders")
	ErrNoWatchPath   = errors.New("watcher has no file to watch")
)

// Config holds the orchestrator's tunables. Manager-specific configuration is
// not part of it: each manager receives its own opaque path.
type Config struct {
	// HealthInterval is the polling period of the health loop.
	HealthInterval time.Duration `yaml:"health_interval" toml:"health_interval" json:"health_interval" env:"HEALTH_INTERVAL"`
	// HealthProbeTimeout bounds a single manager health probe.
	HealthProbeTimeout time.Duration `yaml:"health_probe_timeout" toml:"health_probe_timeout" json:"health_probe_timeout" env:"HEALTH_PROBE_TIMEOUT"`
	// MaxParallelProbes bounds concurrent probes within one cycle.
	MaxParallelProbes int `yaml:"max_parallel_probes" toml:"max_parallel_probes" json:"max_parallel_probes" env:"MAX_PARALLEL_PROBES"`

	StartTimeout time.Duration `yaml:"start_timeout" toml:"start_timeout" json:"start_timeout" env:"START_TIMEOUT"`
	StopTimeout  time.Duration `yaml:"stop_timeout" toml:"stop_timeout" json:"stop_timeout" env:"STOP_TIMEOUT"`
	// ShutdownTimeout bounds how long Stop waits for the health loop to exit.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout" json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	EventBufferSize   int `yaml:"event_buffer_size" toml:"event_buffer_size" json:"event_buffer_size" env:"EVENT_BUFFER_SIZE"`
	EventHistorySize  int `yaml:"event_history_size" toml:"event_history_size" json:"event_history_size" env:"EVENT_HISTORY_SIZE"`
	HealthHistorySize int `yaml:"health_history_size" toml:"health_history_size" json:"health_history_size" env:"HEALTH_HISTORY_SIZE"`
}

// Default returns the production defaults.
func Default() Config {
	return Config{
		HealthInterval:     5 * time.Second,
		HealthProbeTimeout: 2 * time.Second,
		MaxParallelProbes:  8,
		StartTimeout:       30 * time.Second,
		StopTimeout:        10 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		EventBufferSize:    256,
		EventHistorySize:   1000,
		HealthHistorySize:  100,
	}
}

// Validate reports the first out-of-range setting.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"health_interval", c.HealthInterval},
		{"health_probe_timeout", c.HealthProbeTimeout},
		{"start_timeout", c.StartTimeout},
		{"stop_timeout", c.StopTimeout},
		{"shutdown_timeout", c.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidConfig, d.name, d.value)
		}
	}

	sizes := []struct {
		name  string
		value int
	}{
		{"max_parallel_probes", c.MaxParallelProbes},
		{"event_buffer_size", c.EventBufferSize},
		{"event_history_size", c.EventHistorySize},
		{"health_history_size", c.HealthHistorySize},
	}
	for _, s := range sizes {
		if s.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, s.name, s.value)
		}
	}
	return nil
}
