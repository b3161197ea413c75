package integration

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/orchestra"
)

var errManagerStartFailed = errors.New("manager start failed")

// lifecycleLog records start and stop calls across managers in call order.
type lifecycleLog struct {
	mu     sync.Mutex
	events []string
}

func (l *lifecycleLog) record(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *lifecycleLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type lifecycleManager struct {
	name       string
	log        *lifecycleLog
	shouldFail bool
	healthy    atomic.Bool
}

func (m *lifecycleManager) Start(ctx context.Context) error {
	if m.shouldFail {
		m.log.record("start-failed:" + m.name)
		return errManagerStartFailed
	}
	m.log.record("start:" + m.name)
	return nil
}

func (m *lifecycleManager) Stop(ctx context.Context) error {
	m.log.record("stop:" + m.name)
	return nil
}

func (m *lifecycleManager) IsHealthy(ctx context.Context) (bool, error) {
	return m.healthy.Load(), nil
}

func newLifecycleManager(name string, log *lifecycleLog) *lifecycleManager {
	m := &lifecycleManager{name: name, log: log}
	m.healthy.Store(true)
	return m
}

func registration(m *lifecycleManager, deps ...string) orchestra.Registration {
	return orchestra.Registration{
		ID:           m.name,
		Dependencies: deps,
		Factory: func(ctx context.Context, configPath string) (orchestra.Manager, error) {
			return m, nil
		},
	}
}

func newOrchestrator(t *testing.T, opts ...orchestra.Option) *orchestra.Orchestrator {
	t.Helper()
	opts = append([]orchestra.Option{orchestra.WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	o, err := orchestra.New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close(context.Background()) })
	return o
}
