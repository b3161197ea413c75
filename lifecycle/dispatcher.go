package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Static errors for lifecycle package
var (
	ErrDispatcherNotRunning     = errors.New("dispatcher is not running")
	ErrDispatcherAlreadyRunning = errors.New("dispatcher is already running")
	ErrEventCannotBeNil         = errors.New("event cannot be nil")
	ErrEventBufferFull          = errors.New("event buffer is full, dropping event")
	ErrObserverNil              = errors.New("observer cannot be nil")
	ErrEventNotFound            = errors.New("event not found")
)

// Observer receives lifecycle events as CloudEvents.
type Observer interface {
	// OnEvent is called from the dispatcher goroutine; it should return quickly.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer.
	ObserverID() string
}

// FunctionalObserver adapts a function to the Observer interface.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer backed by handler.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) *FunctionalObserver {
	return &FunctionalObserver{id: id, handler: handler}
}

// OnEvent implements Observer.
func (o *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return o.handler(ctx, event)
}

// ObserverID implements Observer.
func (o *FunctionalObserver) ObserverID() string {
	return o.id
}

// ObserverInfo describes a registered observer.
type ObserverInfo struct {
	ID           string      `json:"id"`
	EventTypes   []EventType `json:"event_types"`
	RegisteredAt time.Time   `json:"registered_at"`
}

// Logger is the logging surface the dispatcher needs.
type Logger interface {
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// DispatchConfig represents configuration for the event dispatcher
type DispatchConfig struct {
	BufferSize      int           `json:"buffer_size"`
	ObserverTimeout time.Duration `json:"observer_timeout"`
}

// EventMetrics represents metrics about event processing
type EventMetrics struct {
	TotalEvents          int64 `json:"total_events"`
	DeliveredEvents      int64 `json:"delivered_events"`
	BackpressureWarnings int64 `json:"backpressure_warnings"`
	ObserverErrors       int64 `json:"observer_errors"`
	ObserverPanics       int64 `json:"observer_panics"`
}

type observerRegistration struct {
	observer     Observer
	eventTypes   map[EventType]struct{}
	registeredAt time.Time
}

func (r *observerRegistration) wants(t EventType) bool {
	if len(r.eventTypes) == 0 {
		return true
	}
	_, ok := r.eventTypes[t]
	return ok
}

// Dispatcher records events in its Store and delivers them to observers on a
// background goroutine, so emitting never blocks on observer code.
type Dispatcher struct {
	mu        sync.RWMutex
	observers []*observerRegistration
	running   bool
	config    *DispatchConfig
	store     *Store
	logger    Logger
	eventChan chan *Event
	stopChan  chan struct{}
	done      chan struct{}

	totalEvents          atomic.Int64
	deliveredEvents      atomic.Int64
	backpressureWarnings atomic.Int64
	observerErrors       atomic.Int64
	observerPanics       atomic.Int64
}

// NewDispatcher creates a new lifecycle event dispatcher. store may be nil.
func NewDispatcher(config *DispatchConfig, store *Store, logger Logger) *Dispatcher {
	if config == nil {
		config = &DispatchConfig{}
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 256
	}
	if config.ObserverTimeout <= 0 {
		config.ObserverTimeout = 5 * time.Second
	}

	return &Dispatcher{
		config:    config,
		store:     store,
		logger:    logger,
		eventChan: make(chan *Event, config.BufferSize),
	}
}

// Dispatch records the event and queues it for observers.
func (d *Dispatcher) Dispatch(ctx context.Context, event *Event) error {
	if event == nil {
		return ErrEventCannotBeNil
	}

	d.totalEvents.Add(1)
	if d.store != nil {
		if err := d.store.Store(ctx, event); err != nil {
			return fmt.Errorf("failed to store event: %w", err)
		}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.running {
		return ErrDispatcherNotRunning
	}
	if len(d.observers) == 0 {
		return nil
	}

	select {
	case d.eventChan <- event.Clone():
		return nil
	default:
		d.backpressureWarnings.Add(1)
		return ErrEventBufferFull
	}
}

// RegisterObserver subscribes observer to the given event types, or to every
// event when none are given. Registering an id again replaces the previous
// subscription.
func (d *Dispatcher) RegisterObserver(observer Observer, eventTypes ...EventType) error {
	if observer == nil {
		return ErrObserverNil
	}

	reg := &observerRegistration{
		observer:     observer,
		eventTypes:   make(map[EventType]struct{}, len(eventTypes)),
		registeredAt: time.Now(),
	}
	for _, t := range eventTypes {
		reg.eventTypes[t] = struct{}{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for i, existing := range d.observers {
		if existing.observer.ObserverID() == observer.ObserverID() {
			d.observers[i] = reg
			return nil
		}
	}
	d.observers = append(d.observers, reg)
	return nil
}

// UnregisterObserver removes an observer; unknown ids are ignored.
func (d *Dispatcher) UnregisterObserver(observerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, existing := range d.observers {
		if existing.observer.ObserverID() == observerID {
			d.observers = append(d.observers[:i:i], d.observers[i+1:]...)
			return
		}
	}
}

// Observers returns information about the registered observers.
func (d *Dispatcher) Observers() []ObserverInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	infos := make([]ObserverInfo, 0, len(d.observers))
	for _, reg := range d.observers {
		types := make([]EventType, 0, len(reg.eventTypes))
		for t := range reg.eventTypes {
			types = append(types, t)
		}
		infos = append(infos, ObserverInfo{
			ID:           reg.observer.ObserverID(),
			EventTypes:   types,
			RegisteredAt: reg.registeredAt,
		})
	}
	return infos
}

// Start begins delivering queued events.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return ErrDispatcherAlreadyRunning
	}

	d.running = true
	d.stopChan = make(chan struct{})
	d.done = make(chan struct{})
	go d.processEvents(context.WithoutCancel(ctx), d.stopChan, d.done)
	return nil
}

// Stop delivers whatever is already queued and shuts the dispatcher down. It
// returns ctx's error if delivery does not finish in time.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	close(d.stopChan)
	done := d.done
	d.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher stop: %w", ctx.Err())
	}
}

// IsRunning returns true if the dispatcher is currently running
func (d *Dispatcher) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// Metrics returns a copy of the processing counters.
func (d *Dispatcher) Metrics() EventMetrics {
	return EventMetrics{
		TotalEvents:          d.totalEvents.Load(),
		DeliveredEvents:      d.deliveredEvents.Load(),
		BackpressureWarnings: d.backpressureWarnings.Load(),
		ObserverErrors:       d.observerErrors.Load(),
		ObserverPanics:       d.observerPanics.Load(),
	}
}

func (d *Dispatcher) processEvents(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case event := <-d.eventChan:
			d.deliver(ctx, event)
		case <-stop:
			for {
				select {
				case event := <-d.eventChan:
					d.deliver(ctx, event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event *Event) {
	d.mu.RLock()
	targets := make([]*observerRegistration, 0, len(d.observers))
	for _, reg := range d.observers {
		if reg.wants(event.Type) {
			targets = append(targets, reg)
		}
	}
	d.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	ce := event.ToCloudEvent()
	for _, reg := range targets {
		d.notify(ctx, reg.observer, ce)
	}
	d.deliveredEvents.Add(1)
}

func (d *Dispatcher) notify(ctx context.Context, observer Observer, event cloudevents.Event) {
	ctx, cancel := context.WithTimeout(ctx, d.config.ObserverTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.observerPanics.Add(1)
			if d.logger != nil {
				d.logger.Warn("Observer panicked", "observer", observer.ObserverID(), "event", event.Type(), "panic", r)
			}
		}
	}()

	if err := observer.OnEvent(ctx, event); err != nil {
		d.observerErrors.Add(1)
		if d.logger != nil {
			d.logger.Debug("Observer returned error", "observer", observer.ObserverID(), "event", event.Type(), "error", err)
		}
	}
}
