package orchestra

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/GoCodeAlone/orchestra/config"
	"github.com/GoCodeAlone/orchestra/lifecycle"
)

// Option configures an Orchestrator at construction.
type Option func(*Orchestrator) error

type pendingObserver struct {
	observer   lifecycle.Observer
	eventTypes []lifecycle.EventType
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			return ErrLoggerNil
		}
		o.logger = logger
		return nil
	}
}

// WithConfig replaces the whole runtime configuration.
func WithConfig(cfg config.Config) Option {
	return func(o *Orchestrator) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid orchestrator config: %w", err)
		}
		o.config = cfg
		return nil
	}
}

// WithHealthInterval sets the health polling interval.
func WithHealthInterval(interval time.Duration) Option {
	return durationOption(interval, func(o *Orchestrator) { o.config.HealthInterval = interval })
}

// WithHealthProbeTimeout bounds each manager health probe.
func WithHealthProbeTimeout(timeout time.Duration) Option {
	return durationOption(timeout, func(o *Orchestrator) { o.config.HealthProbeTimeout = timeout })
}

// WithStartTimeout bounds each manager's factory and start call.
func WithStartTimeout(timeout time.Duration) Option {
	return durationOption(timeout, func(o *Orchestrator) { o.config.StartTimeout = timeout })
}

// WithStopTimeout bounds each manager's stop call.
func WithStopTimeout(timeout time.Duration) Option {
	return durationOption(timeout, func(o *Orchestrator) { o.config.StopTimeout = timeout })
}

// WithShutdownTimeout bounds how long Stop waits for the health loop.
func WithShutdownTimeout(timeout time.Duration) Option {
	return durationOption(timeout, func(o *Orchestrator) { o.config.ShutdownTimeout = timeout })
}

// WithObserver subscribes observer to lifecycle events of the given types,
// or to all events when none are given.
func WithObserver(observer lifecycle.Observer, eventTypes ...lifecycle.EventType) Option {
	return func(o *Orchestrator) error {
		if observer == nil {
			return lifecycle.ErrObserverNil
		}
		o.pendingObservers = append(o.pendingObservers, pendingObserver{observer: observer, eventTypes: eventTypes})
		return nil
	}
}

// WithMetrics registers the orchestrator's Prometheus metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *Orchestrator) error {
		if reg == nil {
			return ErrRegistererNil
		}
		o.metricsRegisterer = reg
		return nil
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider. The default is
// the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) error {
		if tp == nil {
			return ErrTracerProviderNil
		}
		o.tracerProvider = tp
		return nil
	}
}

func durationOption(d time.Duration, apply func(*Orchestrator)) Option {
	return func(o *Orchestrator) error {
		if d <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidInterval, d)
		}
		apply(o)
		return nil
	}
}
