package orchestra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/GoCodeAlone/orchestra/config"
	"github.com/GoCodeAlone/orchestra/health"
	"github.com/GoCodeAlone/orchestra/lifecycle"
	"github.com/GoCodeAlone/orchestra/metrics"
)

const (
	tracerName  = "github.com/GoCodeAlone/orchestra"
	maxWarnings = 50
)

// SystemHealthSnapshot is the aggregated health of the supervised managers.
type SystemHealthSnapshot = health.Snapshot

// Orchestrator supervises a set of registered managers: it starts them in
// dependency order, stops them in reverse, and polls their health while the
// system is running.
//
// Register, Start, Stop and the health cycle are serialized through one
// lock; queries take it for reading and return copies.
type Orchestrator struct {
	mu       sync.RWMutex
	registry *Registry
	order    []string
	running  bool
	runID    string
	warnings []string
	config   config.Config

	// shutdownTimeout mirrors config.ShutdownTimeout; Stop reads it before
	// taking mu.
	shutdownTimeout atomic.Int64

	logger     Logger
	monitor    *health.Monitor
	dispatcher *lifecycle.Dispatcher
	events     *lifecycle.Store
	metrics    *metrics.Collector
	tracer     trace.Tracer

	pendingObservers  []pendingObserver
	metricsRegisterer prometheus.Registerer
	tracerProvider    trace.TracerProvider
}

// New creates an orchestrator with an empty registry. Call Close when done
// with it to release its event dispatcher.
func New(opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		registry: NewRegistry(),
		config:   config.Default(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if err := o.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid orchestrator config: %w", err)
	}
	o.shutdownTimeout.Store(int64(o.config.ShutdownTimeout))

	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	o.tracer = o.tracerProvider.Tracer(tracerName)

	if o.metricsRegisterer != nil {
		collector, err := metrics.NewCollector(o.metricsRegisterer, metrics.DefaultNamespace)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		o.metrics = collector
	}

	o.events = lifecycle.NewStore(o.config.EventHistorySize)
	o.dispatcher = lifecycle.NewDispatcher(&lifecycle.DispatchConfig{
		BufferSize: o.config.EventBufferSize,
	}, o.events, o.logger)
	for _, p := range o.pendingObservers {
		if err := o.dispatcher.RegisterObserver(p.observer, p.eventTypes...); err != nil {
			return nil, fmt.Errorf("failed to register observer %s: %w", p.observer.ObserverID(), err)
		}
	}
	o.pendingObservers = nil
	if err := o.dispatcher.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to start event dispatcher: %w", err)
	}

	o.monitor = health.NewMonitor(&health.MonitorConfig{
		Interval:    o.config.HealthInterval,
		HistorySize: o.config.HealthHistorySize,
	}, o.runHealthCycle)
	if err := o.monitor.AddCallback(o.onSnapshot); err != nil {
		return nil, fmt.Errorf("failed to register health callback: %w", err)
	}

	return o, nil
}

// Register adds a manager. It must be called before Start; registering while
// the system is running fails with ErrAlreadyRunning.
func (o *Orchestrator) Register(reg Registration) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return fmt.Errorf("cannot register %s: %w", reg.ID, ErrAlreadyRunning)
	}
	if err := o.registry.Register(reg); err != nil {
		return err
	}

	o.logger.Debug("Registered manager", "manager", reg.ID, "dependencies", reg.Dependencies, "priority", reg.Priority.String())
	o.emit(context.Background(), o.newEvent(lifecycle.EventTypeManagerRegistered, reg.ID,
		lifecycle.PhaseRegistration, lifecycle.EventStatusCompleted).WithData(map[string]any{
		"dependencies": reg.Dependencies,
		"priority":     reg.Priority.String(),
		"version":      reg.Version,
	}))
	return nil
}

// RegisterObserver subscribes observer to lifecycle events of the given
// types, or to all events when none are given.
func (o *Orchestrator) RegisterObserver(observer lifecycle.Observer, eventTypes ...lifecycle.EventType) error {
	if err := o.dispatcher.RegisterObserver(observer, eventTypes...); err != nil {
		return fmt.Errorf("failed to register observer: %w", err)
	}
	return nil
}

// UnregisterObserver removes an observer by id.
func (o *Orchestrator) UnregisterObserver(observerID string) {
	o.dispatcher.UnregisterObserver(observerID)
}

// Observers describes the registered lifecycle observers.
func (o *Orchestrator) Observers() []lifecycle.ObserverInfo {
	return o.dispatcher.Observers()
}

// ApplyConfig swaps in new timeouts and health interval. The interval takes
// effect on the running health loop at its next tick; buffer and history
// sizes are fixed at construction.
func (o *Orchestrator) ApplyConfig(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid orchestrator config: %w", err)
	}

	o.mu.Lock()
	previous := o.config.HealthInterval
	o.config = cfg
	o.shutdownTimeout.Store(int64(cfg.ShutdownTimeout))
	event := o.newEvent(lifecycle.EventTypeConfigApplied, lifecycle.SourceSystem,
		lifecycle.PhaseRunning, lifecycle.EventStatusCompleted).WithData(map[string]any{
		"health_interval": cfg.HealthInterval.String(),
	})
	o.mu.Unlock()

	if err := o.monitor.SetInterval(cfg.HealthInterval); err != nil {
		return fmt.Errorf("failed to apply health interval: %w", err)
	}

	o.logger.Info("Applied configuration", "health_interval", cfg.HealthInterval, "previous_health_interval", previous)
	o.emit(ctx, event)
	return nil
}

// Config returns the active runtime configuration.
func (o *Orchestrator) Config() config.Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.config
}

// Close stops the system, clears every registration and shuts down the event
// dispatcher. The orchestrator is not meant to be reused afterwards.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.Stop(ctx)

	o.mu.Lock()
	o.registry.Clear()
	o.order = nil
	o.warnings = nil
	o.mu.Unlock()

	if err := o.dispatcher.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop event dispatcher: %w", err)
	}
	return nil
}

// newEvent tags the event with the current run's correlation id. It must be
// called with o.mu held.
func (o *Orchestrator) newEvent(eventType lifecycle.EventType, source string, phase lifecycle.Phase, status lifecycle.EventStatus) *lifecycle.Event {
	event := lifecycle.NewEvent(eventType, source, phase, status)
	event.CorrelationID = o.runID
	return event
}

func (o *Orchestrator) emit(ctx context.Context, event *lifecycle.Event) {
	if err := o.dispatcher.Dispatch(ctx, event); err != nil && !errors.Is(err, lifecycle.ErrDispatcherNotRunning) {
		o.logger.Debug("Failed to dispatch lifecycle event", "event", event.Type, "error", err)
	}
}

// recordWarning must be called with o.mu held.
func (o *Orchestrator) recordWarning(msg string) {
	o.warnings = append(o.warnings, time.Now().Format(time.RFC3339)+" "+msg)
	if overflow := len(o.warnings) - maxWarnings; overflow > 0 {
		o.warnings = append(o.warnings[:0:0], o.warnings[overflow:]...)
	}
}

// transition must be called with o.mu held.
func (o *Orchestrator) transition(rec *managerRecord, to Status) {
	from := rec.status
	if from == to {
		return
	}
	rec.status = to
	if o.metrics != nil {
		o.metrics.RecordTransition(rec.reg.ID, from.String(), to.String())
	}
}
