package orchestra

import (
	"context"
	"fmt"
	"time"
)

// Manager is the capability contract every supervised component satisfies.
//
// Start returns an error when the manager cannot come up; the orchestrator
// treats it as a start failure and rolls the system back. Stop is best effort:
// its error is logged and the manager is considered stopped regardless.
// IsHealthy reports the manager's current health; false or a non-nil error
// are both treated as unhealthy.
type Manager interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsHealthy(ctx context.Context) (bool, error)
}

// Factory creates a manager instance. configPath is the registration's
// ConfigPath, passed through unexamined.
type Factory func(ctx context.Context, configPath string) (Manager, error)

// ManagerFuncs adapts plain functions to the Manager interface.
// Nil functions succeed (StartFunc, StopFunc) or report healthy (HealthFunc).
type ManagerFuncs struct {
	StartFunc  func(ctx context.Context) error
	StopFunc   func(ctx context.Context) error
	HealthFunc func(ctx context.Context) (bool, error)
}

// Start implements Manager.
func (m *ManagerFuncs) Start(ctx context.Context) error {
	if m.StartFunc == nil {
		return nil
	}
	return m.StartFunc(ctx)
}

// Stop implements Manager.
func (m *ManagerFuncs) Stop(ctx context.Context) error {
	if m.StopFunc == nil {
		return nil
	}
	return m.StopFunc(ctx)
}

// IsHealthy implements Manager.
func (m *ManagerFuncs) IsHealthy(ctx context.Context) (bool, error) {
	if m.HealthFunc == nil {
		return true, nil
	}
	return m.HealthFunc(ctx)
}

// Status is the lifecycle state of a registered manager.
type Status int

const (
	StatusOffline Status = iota
	StatusStarting
	StatusRunning
	StatusDegraded
	StatusFailed
	StatusStopping
	StatusStopped
)

var statusNames = map[Status]string{
	StatusOffline:  "offline",
	StatusStarting: "starting",
	StatusRunning:  "running",
	StatusDegraded: "degraded",
	StatusFailed:   "failed",
	StatusStopping: "stopping",
	StatusStopped:  "stopped",
}

// String returns the lowercase name of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalText renders the status by name in JSON and YAML output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Supervised reports whether the manager is up and subject to health probing.
func (s Status) Supervised() bool {
	return s == StatusRunning || s == StatusDegraded
}

// Priority breaks ties between managers that become startable at the same
// time. It has no other effect.
type Priority int

const (
	PriorityLow Priority = iota - 1
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// String returns the lowercase name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// MarshalText renders the priority by name.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Category is a reporting-only classification.
type Category string

const (
	CategoryCore        Category = "core"
	CategoryExtended    Category = "extended"
	CategorySpecialized Category = "specialized"
)

// Registration describes a manager to supervise.
type Registration struct {
	ID           string
	Factory      Factory
	Dependencies []string
	// Priority defaults to PriorityNormal.
	Priority   Priority
	Category   Category
	ConfigPath string
	Version    string
}

// ManagerInfo is a point-in-time copy of a registration and its runtime state.
type ManagerInfo struct {
	ID              string     `json:"id"`
	Status          Status     `json:"status"`
	Priority        Priority   `json:"priority"`
	Category        Category   `json:"category"`
	Dependencies    []string   `json:"dependencies"`
	ConfigPath      string     `json:"config_path,omitempty"`
	Version         string     `json:"version,omitempty"`
	LastHealthCheck *time.Time `json:"last_health_check,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
}
