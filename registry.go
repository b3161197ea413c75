package orchestra

import (
	"fmt"
	"slices"
	"time"
)

// managerRecord is the mutable registry entry behind a Registration.
type managerRecord struct {
	reg   Registration
	index int

	status          Status
	instance        Manager
	lastHealthCheck *time.Time
	startedAt       *time.Time
	lastErr         error
}

func (r *managerRecord) info() ManagerInfo {
	info := ManagerInfo{
		ID:           r.reg.ID,
		Status:       r.status,
		Priority:     r.reg.Priority,
		Category:     r.reg.Category,
		Dependencies: slices.Clone(r.reg.Dependencies),
		ConfigPath:   r.reg.ConfigPath,
		Version:      r.reg.Version,
	}
	if info.Dependencies == nil {
		info.Dependencies = []string{}
	}
	if r.lastHealthCheck != nil {
		t := *r.lastHealthCheck
		info.LastHealthCheck = &t
	}
	if r.startedAt != nil {
		t := *r.startedAt
		info.StartedAt = &t
	}
	if r.lastErr != nil {
		info.LastError = r.lastErr.Error()
	}
	return info
}

// reset returns the record to its pre-start state.
func (r *managerRecord) reset() {
	r.status = StatusOffline
	r.instance = nil
	r.startedAt = nil
	r.lastErr = nil
}

// Registry holds manager registrations keyed by id, in insertion order.
//
// Registry does no locking of its own. The Orchestrator serializes all access
// through its lock; standalone callers must do the same.
type Registry struct {
	records map[string]*managerRecord
	order   []*managerRecord
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]*managerRecord),
	}
}

// Register adds a registration. It fails with *DuplicateManagerError when the
// id is taken, leaving the registry unchanged.
func (r *Registry) Register(reg Registration) error {
	if reg.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRegistration)
	}
	if reg.Factory == nil {
		return fmt.Errorf("%w: %s has no factory", ErrInvalidRegistration, reg.ID)
	}
	if _, exists := r.records[reg.ID]; exists {
		return &DuplicateManagerError{ID: reg.ID}
	}
	if slices.Contains(reg.Dependencies, reg.ID) {
		return fmt.Errorf("%w: %s", ErrSelfDependency, reg.ID)
	}

	reg.Dependencies = dedupe(reg.Dependencies)
	if reg.Category == "" {
		reg.Category = CategoryCore
	}

	rec := &managerRecord{
		reg:    reg,
		index:  len(r.order),
		status: StatusOffline,
	}
	r.records[reg.ID] = rec
	r.order = append(r.order, rec)
	return nil
}

// Get returns a copy of the registration, or ErrManagerNotFound.
func (r *Registry) Get(id string) (ManagerInfo, error) {
	rec, ok := r.records[id]
	if !ok {
		return ManagerInfo{}, fmt.Errorf("%w: %s", ErrManagerNotFound, id)
	}
	return rec.info(), nil
}

// All returns copies of every registration in insertion order.
func (r *Registry) All() []ManagerInfo {
	infos := make([]ManagerInfo, 0, len(r.order))
	for _, rec := range r.order {
		infos = append(infos, rec.info())
	}
	return infos
}

// ByCategory returns the registrations in the given category keyed by id.
// Unknown categories yield an empty map.
func (r *Registry) ByCategory(category Category) map[string]ManagerInfo {
	out := make(map[string]ManagerInfo)
	for _, rec := range r.order {
		if rec.reg.Category == category {
			out[rec.reg.ID] = rec.info()
		}
	}
	return out
}

// IDs returns the registered ids in insertion order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.order))
	for _, rec := range r.order {
		ids = append(ids, rec.reg.ID)
	}
	return ids
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	return len(r.order)
}

// Clear drops every registration.
func (r *Registry) Clear() {
	r.records = make(map[string]*managerRecord)
	r.order = nil
}

func (r *Registry) lookup(id string) *managerRecord {
	return r.records[id]
}

func (r *Registry) registrations() []Registration {
	regs := make([]Registration, 0, len(r.order))
	for _, rec := range r.order {
		regs = append(regs, rec.reg)
	}
	return regs
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
