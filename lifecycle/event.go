// Package lifecycle provides lifecycle events, their dispatching to observers
// as CloudEvents, and an in-memory event history
package lifecycle

import (
	"fmt"
	"maps"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// EventType defines the type of lifecycle event
type EventType string

const (
	EventTypeSystemStarting    EventType = "com.orchestra.system.starting"
	EventTypeSystemStarted     EventType = "com.orchestra.system.started"
	EventTypeSystemStartFailed EventType = "com.orchestra.system.start_failed"
	EventTypeSystemStopping    EventType = "com.orchestra.system.stopping"
	EventTypeSystemStopped     EventType = "com.orchestra.system.stopped"

	EventTypeManagerRegistered  EventType = "com.orchestra.manager.registered"
	EventTypeManagerStarting    EventType = "com.orchestra.manager.starting"
	EventTypeManagerStarted     EventType = "com.orchestra.manager.started"
	EventTypeManagerStartFailed EventType = "com.orchestra.manager.start_failed"
	EventTypeManagerRolledBack  EventType = "com.orchestra.manager.rolled_back"
	EventTypeManagerStopping    EventType = "com.orchestra.manager.stopping"
	EventTypeManagerStopped     EventType = "com.orchestra.manager.stopped"
	EventTypeManagerStopFailed  EventType = "com.orchestra.manager.stop_failed"
	EventTypeManagerDegraded    EventType = "com.orchestra.manager.degraded"
	EventTypeManagerRecovered   EventType = "com.orchestra.manager.recovered"

	EventTypeHealthEvaluated EventType = "com.orchestra.health.evaluated"
	EventTypeConfigApplied   EventType = "com.orchestra.config.applied"
)

// Phase is the part of the lifecycle an event belongs to.
type Phase string

const (
	PhaseRegistration Phase = "registration"
	PhaseStartup      Phase = "startup"
	PhaseRollback     Phase = "rollback"
	PhaseRunning      Phase = "running"
	PhaseShutdown     Phase = "shutdown"
)

// EventStatus represents the status of an event
type EventStatus string

const (
	EventStatusStarted   EventStatus = "started"
	EventStatusCompleted EventStatus = "completed"
	EventStatusFailed    EventStatus = "failed"
)

// SourceSystem is the source of events about the orchestrator as a whole.
const SourceSystem = "orchestra"

// EventVersion is the schema version stamped on every event.
const EventVersion = "1.0"

// Event represents a lifecycle event
type Event struct {
	ID            string         `json:"id"`
	Type          EventType      `json:"type"`
	Source        string         `json:"source"` // manager id or SourceSystem
	Timestamp     time.Time      `json:"timestamp"`
	Phase         Phase          `json:"phase"`
	Status        EventStatus    `json:"status"`
	Message       string         `json:"message,omitempty"`
	Error         string         `json:"error,omitempty"`
	Duration      *time.Duration `json:"duration,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Version       string         `json:"version"`
}

// NewEvent creates an event stamped with a time-ordered id and the current time.
func NewEvent(eventType EventType, source string, phase Phase, status EventStatus) *Event {
	return &Event{
		ID:        generateEventID(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now(),
		Phase:     phase,
		Status:    status,
		Version:   EventVersion,
	}
}

// WithError records err on the event and returns it.
func (e *Event) WithError(err error) *Event {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDuration records d on the event and returns it.
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = &d
	return e
}

// WithData merges data into the event payload and returns it.
func (e *Event) WithData(data map[string]any) *Event {
	if e.Data == nil {
		e.Data = make(map[string]any, len(data))
	}
	maps.Copy(e.Data, data)
	return e
}

// Clone returns a copy that shares no maps with e.
func (e *Event) Clone() *Event {
	c := *e
	c.Data = maps.Clone(e.Data)
	if e.Duration != nil {
		d := *e.Duration
		c.Duration = &d
	}
	return &c
}

// ToCloudEvent converts the event to the CloudEvents format observers receive.
func (e *Event) ToCloudEvent() cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(e.ID)
	event.SetSource(SourceSystem + "/" + e.Source)
	event.SetType(string(e.Type))
	event.SetTime(e.Timestamp)
	event.SetSpecVersion(cloudevents.VersionV1)

	payload := map[string]any{
		"source": e.Source,
		"phase":  e.Phase,
		"status": e.Status,
	}
	if e.Message != "" {
		payload["message"] = e.Message
	}
	if e.Error != "" {
		payload["error"] = e.Error
	}
	if e.Duration != nil {
		payload["duration_ms"] = e.Duration.Milliseconds()
	}
	for k, v := range e.Data {
		payload[k] = v
	}
	_ = event.SetData(cloudevents.ApplicationJSON, payload)

	event.SetExtension("phase", string(e.Phase))
	event.SetExtension("eventversion", e.Version)
	if e.CorrelationID != "" {
		event.SetExtension("correlationid", e.CorrelationID)
	}
	return event
}

// ValidateCloudEvent validates that a CloudEvent conforms to the specification.
func ValidateCloudEvent(event cloudevents.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("CloudEvent validation failed: %w", err)
	}
	return nil
}

// NewCorrelationID returns an id tying together the events of one start or
// stop sequence.
func NewCorrelationID() string {
	return generateEventID()
}

// generateEventID uses UUIDv7 so ids sort by creation time.
func generateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}
