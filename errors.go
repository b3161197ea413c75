package orchestra

import (
	"errors"
	"fmt"
	"strings"
)

// Orchestrator errors
var (
	// Registration errors
	ErrDuplicateManager    = errors.New("manager already registered")
	ErrInvalidRegistration = errors.New("invalid manager registration")
	ErrSelfDependency      = errors.New("manager depends on itself")
	ErrManagerNotFound     = errors.New("manager not found")

	// Dependency resolution errors
	ErrUnknownDependency  = errors.New("manager depends on unregistered manager")
	ErrCircularDependency = errors.New("circular dependency detected")

	// Lifecycle errors
	ErrManagerStart       = errors.New("manager failed to start")
	ErrManagerStop        = errors.New("manager failed to stop")
	ErrAlreadyRunning     = errors.New("orchestrator is already running")
	ErrFactoryNilInstance = errors.New("factory returned a nil manager")
	ErrProbePanic         = errors.New("manager probe panicked")
	ErrManagerUnhealthy   = errors.New("manager reported unhealthy")

	// Option errors
	ErrLoggerNil         = errors.New("logger is nil")
	ErrInvalidInterval   = errors.New("interval must be positive")
	ErrRegistererNil     = errors.New("prometheus registerer is nil")
	ErrTracerProviderNil = errors.New("tracer provider is nil")
)

// DuplicateManagerError reports an id collision at registration.
type DuplicateManagerError struct {
	ID string
}

func (e *DuplicateManagerError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDuplicateManager, e.ID)
}

func (e *DuplicateManagerError) Unwrap() error { return ErrDuplicateManager }

// UnknownDependencyError reports a dependency on an id that is not registered.
type UnknownDependencyError struct {
	ManagerID    string
	DependencyID string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("%s: %s depends on %s", ErrUnknownDependency, e.ManagerID, e.DependencyID)
}

func (e *UnknownDependencyError) Unwrap() error { return ErrUnknownDependency }

// CircularDependencyError names the managers whose dependencies could not be
// resolved. Cycle holds one concrete cycle among them, first id repeated last.
type CircularDependencyError struct {
	Unresolved []string
	Cycle      []string
}

func (e *CircularDependencyError) Error() string {
	msg := fmt.Sprintf("%s: unresolved managers [%s]", ErrCircularDependency, strings.Join(e.Unresolved, ", "))
	if len(e.Cycle) > 0 {
		msg += ", cycle: " + strings.Join(e.Cycle, " -> ")
	}
	return msg
}

func (e *CircularDependencyError) Unwrap() error { return ErrCircularDependency }

// ManagerStartError reports the manager whose start aborted the sequence.
type ManagerStartError struct {
	ID  string
	Err error
}

func (e *ManagerStartError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrManagerStart, e.ID, e.Err)
}

func (e *ManagerStartError) Unwrap() []error { return []error{ErrManagerStart, e.Err} }

// ManagerStopError reports a failed stop probe. It is only ever logged.
type ManagerStopError struct {
	ID  string
	Err error
}

func (e *ManagerStopError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrManagerStop, e.ID, e.Err)
}

func (e *ManagerStopError) Unwrap() []error { return []error{ErrManagerStop, e.Err} }
