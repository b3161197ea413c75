package orchestra

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	errBoom        = errors.New("boom")
	errStopFailure = errors.New("stop failure")
	errDiskFull    = errors.New("disk full")
)

// callLog records manager calls across managers in the order they happened.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.calls)
}

// withPrefix returns the ids of the calls of one kind, e.g. "start".
func (l *callLog) withPrefix(kind string) []string {
	var ids []string
	for _, call := range l.all() {
		if id, ok := strings.CutPrefix(call, kind+":"); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

type fakeManager struct {
	id  string
	log *callLog

	startErr error
	stopErr  error
	healthy  atomic.Bool
	probeErr atomic.Pointer[error]

	starts atomic.Int32
	stops  atomic.Int32
}

func newFakeManager(id string, log *callLog) *fakeManager {
	m := &fakeManager{id: id, log: log}
	m.healthy.Store(true)
	return m
}

func (m *fakeManager) Start(ctx context.Context) error {
	m.starts.Add(1)
	m.log.add("start:" + m.id)
	return m.startErr
}

func (m *fakeManager) Stop(ctx context.Context) error {
	m.stops.Add(1)
	m.log.add("stop:" + m.id)
	return m.stopErr
}

func (m *fakeManager) IsHealthy(ctx context.Context) (bool, error) {
	if errp := m.probeErr.Load(); errp != nil {
		return false, *errp
	}
	return m.healthy.Load(), nil
}

func (m *fakeManager) setProbeErr(err error) {
	if err == nil {
		m.probeErr.Store(nil)
		return
	}
	m.probeErr.Store(&err)
}

func (m *fakeManager) factory() Factory {
	return func(ctx context.Context, configPath string) (Manager, error) {
		return m, nil
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestOrchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New(append([]Option{WithLogger(discardLogger())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = o.Close(context.Background())
	})
	return o
}

// registerFakes registers one fake manager per spec "id" or "id:dep1,dep2"
// and returns them by id.
func registerFakes(t *testing.T, o *Orchestrator, log *callLog, specs ...string) map[string]*fakeManager {
	t.Helper()
	managers := make(map[string]*fakeManager, len(specs))
	for _, spec := range specs {
		id, rawDeps, _ := strings.Cut(spec, ":")
		var deps []string
		if rawDeps != "" {
			deps = strings.Split(rawDeps, ",")
		}
		m := newFakeManager(id, log)
		require.NoError(t, o.Register(Registration{ID: id, Factory: m.factory(), Dependencies: deps}))
		managers[id] = m
	}
	return managers
}

func statusOf(t *testing.T, o *Orchestrator, id string) Status {
	t.Helper()
	status, err := o.ManagerStatus(id)
	require.NoError(t, err)
	return status
}
