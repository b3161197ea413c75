package orchestra

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/GoCodeAlone/orchestra/lifecycle"
)

// ConsolidationReport is a descriptive snapshot of the registry and its
// dependency structure.
type ConsolidationReport struct {
	GeneratedAt       time.Time        `json:"generated_at"`
	RegistrationCount int              `json:"registration_count"`
	GraphNodes        int              `json:"graph_nodes"`
	GraphEdges        int              `json:"graph_edges"`
	StartupOrder      []string         `json:"startup_order"`
	OrderError        string           `json:"order_error,omitempty"`
	Categories        map[Category]int `json:"categories"`
	Running           bool             `json:"running"`
	Warnings          []string         `json:"warnings,omitempty"`
}

// SystemHealth returns the aggregate health derived from the current manager
// statuses.
func (o *Orchestrator) SystemHealth() SystemHealthSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snapshotLocked(time.Now())
}

// ManagerStatus returns the status of one manager, or ErrManagerNotFound.
func (o *Orchestrator) ManagerStatus(id string) (Status, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	rec := o.registry.lookup(id)
	if rec == nil {
		return StatusOffline, fmt.Errorf("%w: %s", ErrManagerNotFound, id)
	}
	return rec.status, nil
}

// Manager returns a copy of one manager's registration and state.
func (o *Orchestrator) Manager(id string) (ManagerInfo, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.registry.Get(id)
}

// Managers returns copies of every registration in registration order.
func (o *Orchestrator) Managers() []ManagerInfo {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.registry.All()
}

// ManagersByCategory returns the managers in category keyed by id; unknown
// categories yield an empty map.
func (o *Orchestrator) ManagersByCategory(category Category) map[string]ManagerInfo {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.registry.ByCategory(category)
}

// ComputeOrder returns the startup order of the current registrations.
func (o *Orchestrator) ComputeOrder() ([]string, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.computeOrderLocked()
}

// DependencyGraph returns the dependency graph of the current registrations.
func (o *Orchestrator) DependencyGraph() (*DependencyGraph, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return BuildGraph(o.registry.registrations())
}

// ConsolidationReport describes the registry size, the dependency graph size
// and the computed startup order.
func (o *Orchestrator) ConsolidationReport() ConsolidationReport {
	o.mu.RLock()
	defer o.mu.RUnlock()

	report := ConsolidationReport{
		GeneratedAt:       time.Now(),
		RegistrationCount: o.registry.Len(),
		StartupOrder:      []string{},
		Categories:        make(map[Category]int),
		Running:           o.running,
		Warnings:          slices.Clone(o.warnings),
	}
	for _, rec := range o.registry.order {
		report.Categories[rec.reg.Category]++
	}

	graph, err := BuildGraph(o.registry.registrations())
	if err != nil {
		report.OrderError = err.Error()
		return report
	}
	report.GraphNodes = len(graph.Nodes)
	report.GraphEdges = graph.Size()

	order, err := graph.ComputeOrder()
	if err != nil {
		report.OrderError = err.Error()
		return report
	}
	report.StartupOrder = order
	return report
}

// LastHealthSnapshot returns the snapshot of the most recent health cycle,
// including per-manager probe results.
func (o *Orchestrator) LastHealthSnapshot() (SystemHealthSnapshot, bool) {
	return o.monitor.Latest()
}

// HealthHistory returns the recorded cycle snapshots taken after since.
func (o *Orchestrator) HealthHistory(since time.Time) []SystemHealthSnapshot {
	return o.monitor.History(since)
}

// EventHistory queries the recorded lifecycle events.
func (o *Orchestrator) EventHistory(ctx context.Context, criteria *lifecycle.QueryCriteria) ([]*lifecycle.Event, error) {
	events, err := o.events.Query(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to query event history: %w", err)
	}
	return events, nil
}

func (o *Orchestrator) computeOrderLocked() ([]string, error) {
	graph, err := BuildGraph(o.registry.registrations())
	if err != nil {
		return nil, err
	}
	return graph.ComputeOrder()
}
