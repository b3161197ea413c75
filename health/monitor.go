package health

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Static errors for health package
var (
	ErrMonitoringAlreadyRunning = errors.New("monitoring is already running")
	ErrMonitorStopTimeout       = errors.New("monitor loop did not exit before the shutdown timeout")
	ErrInvalidInterval          = errors.New("monitor interval must be positive")
	ErrCallbackNil              = errors.New("snapshot callback is nil")
)

// Default monitor settings.
const (
	DefaultInterval    = 5 * time.Second
	DefaultHistorySize = 100
)

// CycleFunc runs one health cycle. It returns false when no snapshot was
// produced, e.g. because the supervised system is no longer running.
type CycleFunc func(ctx context.Context) (Snapshot, bool)

// SnapshotCallback is called after every recorded cycle. previous is nil for
// the first snapshot.
type SnapshotCallback func(ctx context.Context, previous *Snapshot, current Snapshot)

// MonitorConfig represents configuration for the health monitor
type MonitorConfig struct {
	Interval    time.Duration `json:"interval"`
	HistorySize int           `json:"history_size"`
}

// Monitor owns the single background polling loop.
type Monitor struct {
	cycle CycleFunc

	mu          sync.Mutex
	interval    time.Duration
	historySize int
	running     bool
	cancel      context.CancelFunc
	done        chan struct{}
	intervalCh  chan time.Duration
	latest      *Snapshot
	history     []Snapshot
	callbacks   []SnapshotCallback
}

// NewMonitor creates a monitor that calls cycle once per interval.
func NewMonitor(config *MonitorConfig, cycle CycleFunc) *Monitor {
	if config == nil {
		config = &MonitorConfig{}
	}
	interval := config.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	historySize := config.HistorySize
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}

	return &Monitor{
		cycle:       cycle,
		interval:    interval,
		historySize: historySize,
		intervalCh:  make(chan time.Duration, 1),
	}
}

// Start launches the polling loop. The loop outlives ctx's deadline and ends
// only through Stop.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrMonitoringAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	// A stale interval change from a previous run must not reset the new ticker.
	select {
	case <-m.intervalCh:
	default:
	}

	go m.monitorLoop(loopCtx, m.done, m.interval)
	return nil
}

// Stop signals the loop and waits up to timeout for it to exit. When the loop
// does not exit in time it is abandoned and ErrMonitorStopTimeout returned;
// the monitor is considered stopped either way.
func (m *Monitor) Stop(timeout time.Duration) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.cancel()
	done := m.done
	m.mu.Unlock()

	if timeout <= 0 {
		<-done
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrMonitorStopTimeout
	}
}

// IsMonitoring returns true if the polling loop is active
func (m *Monitor) IsMonitoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Interval returns the current polling interval.
func (m *Monitor) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

// SetInterval changes the polling interval, taking effect on a running loop
// at its next tick.
func (m *Monitor) SetInterval(interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.interval = interval
	if m.running {
		select {
		case <-m.intervalCh:
		default:
		}
		m.intervalCh <- interval
	}
	return nil
}

// AddCallback registers a callback invoked after every recorded cycle.
func (m *Monitor) AddCallback(callback SnapshotCallback) error {
	if callback == nil {
		return ErrCallbackNil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback)
	return nil
}

// RunOnce runs a cycle on the caller's goroutine and records its snapshot.
func (m *Monitor) RunOnce(ctx context.Context) (Snapshot, bool) {
	snapshot, ok := m.cycle(ctx)
	if !ok {
		return Snapshot{}, false
	}
	m.record(ctx, snapshot)
	return snapshot.Clone(), true
}

// Latest returns the most recent snapshot.
func (m *Monitor) Latest() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.latest == nil {
		return Snapshot{}, false
	}
	return m.latest.Clone(), true
}

// History returns recorded snapshots taken after since, oldest first.
func (m *Monitor) History(since time.Time) []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	filtered := make([]Snapshot, 0)
	for _, snapshot := range m.history {
		if snapshot.Timestamp.After(since) {
			filtered = append(filtered, snapshot.Clone())
		}
	}
	return filtered
}

// Reset drops the recorded history.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest = nil
	m.history = nil
}

func (m *Monitor) monitorLoop(ctx context.Context, done chan struct{}, interval time.Duration) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case next := <-m.intervalCh:
			ticker.Reset(next)
		case <-ticker.C:
			snapshot, ok := m.cycle(ctx)
			if !ok || ctx.Err() != nil {
				continue
			}
			m.record(ctx, snapshot)
		}
	}
}

func (m *Monitor) record(ctx context.Context, snapshot Snapshot) {
	m.mu.Lock()
	var previous *Snapshot
	if m.latest != nil {
		prev := m.latest.Clone()
		previous = &prev
	}
	stored := snapshot.Clone()
	m.latest = &stored
	m.history = append(m.history, stored)
	if overflow := len(m.history) - m.historySize; overflow > 0 {
		m.history = append(m.history[:0:0], m.history[overflow:]...)
	}
	callbacks := make([]SnapshotCallback, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	for _, callback := range callbacks {
		callback(ctx, previous, snapshot.Clone())
	}
}
