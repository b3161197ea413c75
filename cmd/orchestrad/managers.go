package main

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GoCodeAlone/orchestra"
)

var errHeartbeatStale = errors.New("heartbeat is stale")

// heartbeat is a demo manager that ticks in the background and reports
// unhealthy when its last tick is older than twice its period.
type heartbeat struct {
	period time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	last   atomic.Int64
}

func newHeartbeat(period time.Duration) *heartbeat {
	return &heartbeat{period: period}
}

func (h *heartbeat) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h.cancel = cancel
	h.done = make(chan struct{})
	h.last.Store(time.Now().UnixNano())

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(h.period)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case now := <-ticker.C:
				h.last.Store(now.UnixNano())
			}
		}
	}(h.done)
	return nil
}

func (h *heartbeat) Stop(ctx context.Context) error {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *heartbeat) IsHealthy(ctx context.Context) (bool, error) {
	age := time.Since(time.Unix(0, h.last.Load()))
	if age > 2*h.period {
		return false, errHeartbeatStale
	}
	return true, nil
}

func heartbeatFactory(period time.Duration) orchestra.Factory {
	return func(ctx context.Context, configPath string) (orchestra.Manager, error) {
		return newHeartbeat(period), nil
	}
}

func demoRegistrations() []orchestra.Registration {
	return []orchestra.Registration{
		{
			ID:       "system",
			Factory:  heartbeatFactory(time.Second),
			Priority: orchestra.PriorityCritical,
			Version:  "1.0.0",
		},
		{
			ID:           "storage",
			Factory:      heartbeatFactory(time.Second),
			Dependencies: []string{"system"},
			Priority:     orchestra.PriorityHigh,
		},
		{
			ID:           "analytics",
			Factory:      heartbeatFactory(2 * time.Second),
			Dependencies: []string{"storage"},
			Category:     orchestra.CategoryExtended,
		},
		{
			ID:           "alerting",
			Factory:      heartbeatFactory(time.Second),
			Dependencies: []string{"system", "analytics"},
			Category:     orchestra.CategorySpecialized,
			Priority:     orchestra.PriorityLow,
		},
	}
}
