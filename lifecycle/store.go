package lifecycle

import (
	"context"
	"slices"
	"sync"
	"time"
)

// DefaultHistorySize bounds the events a Store keeps.
const DefaultHistorySize = 1000

// QueryCriteria defines criteria for querying events. Empty fields match
// everything.
type QueryCriteria struct {
	EventTypes    []EventType   `json:"event_types,omitempty"`
	Sources       []string      `json:"sources,omitempty"`
	Phases        []Phase       `json:"phases,omitempty"`
	Statuses      []EventStatus `json:"statuses,omitempty"`
	Since         *time.Time    `json:"since,omitempty"`
	Until         *time.Time    `json:"until,omitempty"`
	CorrelationID string        `json:"correlation_id,omitempty"`
	Limit         int           `json:"limit,omitempty"`
	Offset        int           `json:"offset,omitempty"`
	OrderDesc     bool          `json:"order_desc,omitempty"`
}

func (c *QueryCriteria) matches(e *Event) bool {
	if c == nil {
		return true
	}
	if len(c.EventTypes) > 0 && !slices.Contains(c.EventTypes, e.Type) {
		return false
	}
	if len(c.Sources) > 0 && !slices.Contains(c.Sources, e.Source) {
		return false
	}
	if len(c.Phases) > 0 && !slices.Contains(c.Phases, e.Phase) {
		return false
	}
	if len(c.Statuses) > 0 && !slices.Contains(c.Statuses, e.Status) {
		return false
	}
	if c.Since != nil && e.Timestamp.Before(*c.Since) {
		return false
	}
	if c.Until != nil && e.Timestamp.After(*c.Until) {
		return false
	}
	if c.CorrelationID != "" && e.CorrelationID != c.CorrelationID {
		return false
	}
	return true
}

// Store keeps the most recent lifecycle events in memory, oldest first.
type Store struct {
	mu     sync.RWMutex
	events []*Event
	byID   map[string]*Event
	limit  int
}

// NewStore creates a new event store keeping at most limit events.
func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	return &Store{
		byID:  make(map[string]*Event),
		limit: limit,
	}
}

// Store records a lifecycle event, evicting the oldest beyond the limit.
func (s *Store) Store(ctx context.Context, event *Event) error {
	if event == nil {
		return ErrEventCannotBeNil
	}

	stored := event.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, stored)
	s.byID[stored.ID] = stored
	if overflow := len(s.events) - s.limit; overflow > 0 {
		for _, evicted := range s.events[:overflow] {
			delete(s.byID, evicted.ID)
		}
		s.events = append(s.events[:0:0], s.events[overflow:]...)
	}
	return nil
}

// Get retrieves a specific event by ID
func (s *Store) Get(ctx context.Context, eventID string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, exists := s.byID[eventID]
	if !exists {
		return nil, ErrEventNotFound
	}
	return event.Clone(), nil
}

// Query retrieves events matching the given criteria
func (s *Store) Query(ctx context.Context, criteria *QueryCriteria) ([]*Event, error) {
	s.mu.RLock()
	matched := make([]*Event, 0)
	for _, event := range s.events {
		if criteria.matches(event) {
			matched = append(matched, event.Clone())
		}
	}
	s.mu.RUnlock()

	if criteria == nil {
		return matched, nil
	}
	if criteria.OrderDesc {
		slices.Reverse(matched)
	}
	if criteria.Offset > 0 {
		if criteria.Offset >= len(matched) {
			return []*Event{}, nil
		}
		matched = matched[criteria.Offset:]
	}
	if criteria.Limit > 0 && len(matched) > criteria.Limit {
		matched = matched[:criteria.Limit]
	}
	return matched, nil
}

// History returns events from source recorded after since.
func (s *Store) History(ctx context.Context, source string, since time.Time) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filtered := make([]*Event, 0)
	for _, event := range s.events {
		if event.Source == source && event.Timestamp.After(since) {
			filtered = append(filtered, event.Clone())
		}
	}
	return filtered, nil
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Clear drops every stored event.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.byID = make(map[string]*Event)
}
