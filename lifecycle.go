package orchestra

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/GoCodeAlone/orchestra/lifecycle"
)

// Start brings every registered manager up in dependency order.
//
// Every registration is first reset to offline, so Start after a failed start
// or after Stop restarts the whole system. If a manager fails to start it is
// marked failed, the managers started before it are stopped in reverse order,
// the rest stay offline, and the *ManagerStartError is returned.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return ErrAlreadyRunning
	}

	ctx, span := o.tracer.Start(ctx, "orchestra.Start",
		trace.WithAttributes(attribute.Int("orchestra.managers", o.registry.Len())))
	defer span.End()

	o.runID = lifecycle.NewCorrelationID()
	for _, rec := range o.registry.order {
		o.transition(rec, StatusOffline)
		rec.reset()
	}
	o.emit(ctx, o.newEvent(lifecycle.EventTypeSystemStarting, lifecycle.SourceSystem,
		lifecycle.PhaseStartup, lifecycle.EventStatusStarted))

	order, err := o.computeOrderLocked()
	if err != nil {
		o.failStart(ctx, span, err)
		return fmt.Errorf("startup validation failed: %w", err)
	}
	o.order = order
	o.logger.Info("Starting managers", "order", order)

	started := make([]*managerRecord, 0, len(order))
	for _, id := range order {
		rec := o.registry.lookup(id)
		if err := o.startManager(ctx, rec); err != nil {
			startErr := &ManagerStartError{ID: id, Err: err}
			o.logger.Error("Manager failed to start, rolling back", "manager", id, "error", err, "started", len(started))
			o.rollback(context.WithoutCancel(ctx), started)
			o.failStart(ctx, span, startErr)
			return startErr
		}
		started = append(started, rec)
	}

	o.running = true
	if err := o.monitor.Start(ctx); err != nil {
		o.logger.Warn("Health monitor was already running", "error", err)
	}

	span.SetStatus(codes.Ok, "")
	o.logger.Info("Orchestrator started", "managers", len(order))
	o.emit(ctx, o.newEvent(lifecycle.EventTypeSystemStarted, lifecycle.SourceSystem,
		lifecycle.PhaseStartup, lifecycle.EventStatusCompleted).WithData(map[string]any{
		"order": order,
	}))
	return nil
}

// Stop takes every running or degraded manager down in reverse start order.
// A manager is marked stopped whatever its stop call returns; failures are
// logged. Stop is idempotent.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.stopMonitor()

	o.mu.Lock()
	o.stopLocked(ctx)
	o.mu.Unlock()

	// A Start that won the lock race may have launched the loop after the
	// first stopMonitor call.
	if o.monitor.IsMonitoring() {
		o.stopMonitor()
	}
}

// IsRunning reports whether the last Start fully succeeded and Stop has not
// been called since.
func (o *Orchestrator) IsRunning() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.running
}

func (o *Orchestrator) stopLocked(ctx context.Context) {
	wasRunning := o.running
	o.running = false

	targets := make([]*managerRecord, 0)
	for _, id := range o.stopOrderLocked() {
		if rec := o.registry.lookup(id); rec != nil && rec.status.Supervised() {
			targets = append(targets, rec)
		}
	}
	if len(targets) == 0 {
		if wasRunning {
			o.logger.Info("Orchestrator stopped", "managers", 0)
		}
		return
	}

	ctx, span := o.tracer.Start(ctx, "orchestra.Stop",
		trace.WithAttributes(attribute.Int("orchestra.managers", len(targets))))
	defer span.End()

	o.emit(ctx, o.newEvent(lifecycle.EventTypeSystemStopping, lifecycle.SourceSystem,
		lifecycle.PhaseShutdown, lifecycle.EventStatusStarted))

	failures := 0
	for _, rec := range targets {
		if !o.stopManager(ctx, rec, lifecycle.PhaseShutdown) {
			failures++
		}
	}
	if failures > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d managers failed to stop cleanly", failures))
	} else {
		span.SetStatus(codes.Ok, "")
	}

	o.logger.Info("Orchestrator stopped", "managers", len(targets), "stop_failures", failures)
	o.emit(ctx, o.newEvent(lifecycle.EventTypeSystemStopped, lifecycle.SourceSystem,
		lifecycle.PhaseShutdown, lifecycle.EventStatusCompleted).WithData(map[string]any{
		"stop_failures": failures,
	}))
}

// stopOrderLocked is the reverse of the last start order, falling back to
// reverse registration order before any start.
func (o *Orchestrator) stopOrderLocked() []string {
	order := slices.Clone(o.order)
	if order == nil {
		order = o.registry.IDs()
	}
	slices.Reverse(order)
	return order
}

// stopMonitor must be called without o.mu held.
func (o *Orchestrator) stopMonitor() {
	timeout := time.Duration(o.shutdownTimeout.Load())

	if err := o.monitor.Stop(timeout); err != nil {
		o.logger.Warn("Health loop did not exit in time, abandoning it", "timeout", timeout, "error", err)
		o.mu.Lock()
		o.recordWarning(fmt.Sprintf("health loop abandoned after %s", timeout))
		o.mu.Unlock()
	}
}

func (o *Orchestrator) startManager(ctx context.Context, rec *managerRecord) error {
	id := rec.reg.ID
	ctx, span := o.tracer.Start(ctx, "orchestra.StartManager",
		trace.WithAttributes(attribute.String("orchestra.manager.id", id)))
	defer span.End()

	begin := time.Now()
	o.transition(rec, StatusStarting)
	o.emit(ctx, o.newEvent(lifecycle.EventTypeManagerStarting, id,
		lifecycle.PhaseStartup, lifecycle.EventStatusStarted))

	var instance Manager
	err := invoke(ctx, o.config.StartTimeout, func(ctx context.Context) error {
		m, err := rec.reg.Factory(ctx, rec.reg.ConfigPath)
		if err != nil {
			return fmt.Errorf("factory: %w", err)
		}
		if m == nil {
			return ErrFactoryNilInstance
		}
		instance = m
		return m.Start(ctx)
	})
	elapsed := time.Since(begin)

	if err != nil {
		rec.lastErr = err
		rec.instance = nil
		o.transition(rec, StatusFailed)
		if o.metrics != nil {
			o.metrics.RecordStartFailure(id)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.emit(ctx, o.newEvent(lifecycle.EventTypeManagerStartFailed, id,
			lifecycle.PhaseStartup, lifecycle.EventStatusFailed).WithError(err).WithDuration(elapsed))
		return err
	}

	now := time.Now()
	rec.instance = instance
	rec.startedAt = &now
	rec.lastHealthCheck = nil
	o.transition(rec, StatusRunning)
	span.SetStatus(codes.Ok, "")

	o.logger.Info("Manager started", "manager", id, "duration", elapsed)
	o.emit(ctx, o.newEvent(lifecycle.EventTypeManagerStarted, id,
		lifecycle.PhaseStartup, lifecycle.EventStatusCompleted).WithDuration(elapsed))
	return nil
}

// rollback stops the already started managers in reverse order. Failures are
// logged and never returned.
func (o *Orchestrator) rollback(ctx context.Context, started []*managerRecord) {
	for i := len(started) - 1; i >= 0; i-- {
		rec := started[i]
		o.stopManager(ctx, rec, lifecycle.PhaseRollback)
		o.emit(ctx, o.newEvent(lifecycle.EventTypeManagerRolledBack, rec.reg.ID,
			lifecycle.PhaseRollback, lifecycle.EventStatusCompleted))
	}
}

// stopManager reports whether the manager stopped cleanly; it is marked
// stopped either way.
func (o *Orchestrator) stopManager(ctx context.Context, rec *managerRecord, phase lifecycle.Phase) bool {
	id := rec.reg.ID
	ctx, span := o.tracer.Start(ctx, "orchestra.StopManager",
		trace.WithAttributes(attribute.String("orchestra.manager.id", id), attribute.String("orchestra.phase", string(phase))))
	defer span.End()

	begin := time.Now()
	o.transition(rec, StatusStopping)
	o.emit(ctx, o.newEvent(lifecycle.EventTypeManagerStopping, id, phase, lifecycle.EventStatusStarted))

	clean := true
	if rec.instance != nil {
		if err := invoke(ctx, o.config.StopTimeout, rec.instance.Stop); err != nil {
			stopErr := &ManagerStopError{ID: id, Err: err}
			rec.lastErr = stopErr
			clean = false
			o.logger.Error("Manager failed to stop cleanly", "manager", id, "phase", string(phase), "error", err)
			span.RecordError(stopErr)
			span.SetStatus(codes.Error, stopErr.Error())
			o.emit(ctx, o.newEvent(lifecycle.EventTypeManagerStopFailed, id, phase,
				lifecycle.EventStatusFailed).WithError(stopErr))
		}
	}

	rec.instance = nil
	o.transition(rec, StatusStopped)
	elapsed := time.Since(begin)

	o.logger.Info("Manager stopped", "manager", id, "phase", string(phase), "duration", elapsed)
	o.emit(ctx, o.newEvent(lifecycle.EventTypeManagerStopped, id, phase,
		lifecycle.EventStatusCompleted).WithDuration(elapsed))
	return clean
}

func (o *Orchestrator) failStart(ctx context.Context, span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	o.logger.Error("Orchestrator failed to start", "error", err)
	o.emit(ctx, o.newEvent(lifecycle.EventTypeSystemStartFailed, lifecycle.SourceSystem,
		lifecycle.PhaseStartup, lifecycle.EventStatusFailed).WithError(err))
}
