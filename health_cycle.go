package orchestra

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GoCodeAlone/orchestra/health"
	"github.com/GoCodeAlone/orchestra/lifecycle"
)

// probeTarget pins the instance a probe ran against; startedAt identifies the
// start that produced it.
type probeTarget struct {
	rec       *managerRecord
	instance  Manager
	startedAt *time.Time
}

// runHealthCycle probes every running or degraded manager once. A failing,
// panicking or timed-out probe counts as unhealthy and degrades the manager;
// a healthy probe restores a degraded one.
//
// Probes run without the lock. The verdicts are then applied under the
// exclusive lock, and only to managers still on the start that was probed.
// A cycle that raced with Stop or a restart is discarded.
func (o *Orchestrator) runHealthCycle(ctx context.Context) (health.Snapshot, bool) {
	o.mu.RLock()
	if !o.running || ctx.Err() != nil {
		o.mu.RUnlock()
		return health.Snapshot{}, false
	}
	runID := o.runID
	probeTimeout := o.config.HealthProbeTimeout
	parallel := o.config.MaxParallelProbes
	targets := make([]probeTarget, 0, o.registry.Len())
	for _, id := range o.order {
		if rec := o.registry.lookup(id); rec != nil && rec.status.Supervised() && rec.instance != nil {
			targets = append(targets, probeTarget{rec: rec, instance: rec.instance, startedAt: rec.startedAt})
		}
	}
	o.mu.RUnlock()

	probes := make([]health.ProbeResult, len(targets))
	var g errgroup.Group
	g.SetLimit(parallel)
	for i, target := range targets {
		id := target.rec.reg.ID
		g.Go(func() error {
			begin := time.Now()
			err := probeHealth(ctx, probeTimeout, target.instance)
			probes[i] = health.ProbeResult{
				ManagerID: id,
				Healthy:   err == nil,
				Duration:  time.Since(begin),
			}
			if err != nil {
				probes[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	// Probes cut short by Stop say nothing about the managers.
	if ctx.Err() != nil {
		return health.Snapshot{}, false
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running || o.runID != runID || ctx.Err() != nil {
		return health.Snapshot{}, false
	}

	now := time.Now()
	for i, target := range targets {
		rec := target.rec
		if rec.instance == nil || rec.startedAt != target.startedAt || !rec.status.Supervised() {
			continue
		}
		o.applyProbe(ctx, rec, probes[i], now)
	}

	snapshot := o.snapshotLocked(now)
	snapshot.Probes = probes
	o.logger.Debug("Health cycle completed", "score", snapshot.HealthScore,
		"running", snapshot.RunningManagers, "degraded", snapshot.DegradedManagers)
	return snapshot, true
}

// applyProbe must be called with o.mu held.
func (o *Orchestrator) applyProbe(ctx context.Context, rec *managerRecord, probe health.ProbeResult, at time.Time) {
	checked := at
	rec.lastHealthCheck = &checked
	if o.metrics != nil {
		o.metrics.RecordProbe(probe.ManagerID, probe.Healthy, probe.Duration)
	}

	if probe.Healthy {
		if rec.status == StatusDegraded {
			o.transition(rec, StatusRunning)
			rec.lastErr = nil
			o.logger.Info("Manager recovered", "manager", probe.ManagerID)
			o.emit(ctx, o.newEvent(lifecycle.EventTypeManagerRecovered, probe.ManagerID,
				lifecycle.PhaseRunning, lifecycle.EventStatusCompleted))
		}
		return
	}

	rec.lastErr = errors.New(probe.Error)
	if rec.status == StatusRunning {
		o.transition(rec, StatusDegraded)
		o.logger.Warn("Manager degraded", "manager", probe.ManagerID, "error", probe.Error)
		o.emit(ctx, o.newEvent(lifecycle.EventTypeManagerDegraded, probe.ManagerID,
			lifecycle.PhaseRunning, lifecycle.EventStatusFailed).WithData(map[string]any{
			"probe_error": probe.Error,
		}))
		return
	}
	o.logger.Debug("Manager still unhealthy", "manager", probe.ManagerID, "error", probe.Error)
}

// snapshotLocked derives the aggregate health from current statuses. It must
// be called with o.mu held, for reading at least.
func (o *Orchestrator) snapshotLocked(at time.Time) health.Snapshot {
	var running, degraded, failed int
	for _, rec := range o.registry.order {
		switch rec.status {
		case StatusRunning:
			running++
		case StatusDegraded:
			degraded++
		case StatusFailed:
			failed++
		}
	}
	supervised := running + degraded

	return health.Snapshot{
		HealthScore:      health.Score(running, supervised),
		TotalManagers:    o.registry.Len(),
		RunningManagers:  supervised,
		DegradedManagers: degraded,
		FailedManagers:   failed,
		Timestamp:        at,
	}
}

// onSnapshot runs on the monitor after each recorded cycle, outside o.mu.
func (o *Orchestrator) onSnapshot(ctx context.Context, previous *health.Snapshot, current health.Snapshot) {
	if o.metrics != nil {
		o.metrics.RecordCycle()
		o.metrics.RecordSnapshot(current.HealthScore, current.TotalManagers,
			current.RunningManagers, current.DegradedManagers, current.FailedManagers)
	}

	if previous != nil && previous.HealthScore == current.HealthScore {
		return
	}

	o.mu.RLock()
	event := o.newEvent(lifecycle.EventTypeHealthEvaluated, lifecycle.SourceSystem,
		lifecycle.PhaseRunning, lifecycle.EventStatusCompleted)
	o.mu.RUnlock()

	data := map[string]any{
		"health_score":      current.HealthScore,
		"running_managers":  current.RunningManagers,
		"degraded_managers": current.DegradedManagers,
	}
	if previous != nil {
		data["previous_health_score"] = previous.HealthScore
	}
	if unhealthy := current.Unhealthy(); len(unhealthy) > 0 {
		ids := make([]string, 0, len(unhealthy))
		for _, p := range unhealthy {
			ids = append(ids, p.ManagerID)
		}
		data["unhealthy"] = ids
	}
	o.emit(ctx, event.WithData(data))
}

// CheckHealth runs a health cycle immediately instead of waiting for the next
// tick. It returns false when the system is not running.
func (o *Orchestrator) CheckHealth(ctx context.Context) (SystemHealthSnapshot, bool) {
	return o.monitor.RunOnce(ctx)
}
