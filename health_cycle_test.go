package orchestra

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/orchestra/lifecycle"
)

func TestCheckHealth_AllHealthy(t *testing.T) {
	o := newTestOrchestrator(t)
	registerFakes(t, o, &callLog{}, "a", "b", "c")
	require.NoError(t, o.Start(context.Background()))

	before := time.Now()
	snapshot, ok := o.CheckHealth(context.Background())
	require.True(t, ok)

	assert.Equal(t, 100, snapshot.HealthScore)
	assert.Equal(t, 3, snapshot.TotalManagers)
	assert.Equal(t, 3, snapshot.RunningManagers)
	assert.Equal(t, 0, snapshot.DegradedManagers)
	assert.Len(t, snapshot.Probes, 3)
	assert.Empty(t, snapshot.Unhealthy())

	for _, info := range o.Managers() {
		require.NotNil(t, info.LastHealthCheck, info.ID)
		assert.False(t, info.LastHealthCheck.Before(before), info.ID)
	}
}

func TestCheckHealth_DegradeAndRecover(t *testing.T) {
	o := newTestOrchestrator(t)
	managers := registerFakes(t, o, &callLog{}, "a", "b", "c")
	require.NoError(t, o.Start(context.Background()))

	managers["b"].healthy.Store(false)
	snapshot, ok := o.CheckHealth(context.Background())
	require.True(t, ok)

	assert.Equal(t, 67, snapshot.HealthScore)
	assert.Equal(t, 3, snapshot.RunningManagers)
	assert.Equal(t, 1, snapshot.DegradedManagers)
	assert.Equal(t, StatusDegraded, statusOf(t, o, "b"))
	assert.True(t, o.IsRunning())
	require.Len(t, snapshot.Unhealthy(), 1)
	assert.Equal(t, "b", snapshot.Unhealthy()[0].ManagerID)

	t.Run("still unhealthy stays degraded", func(t *testing.T) {
		snapshot, ok := o.CheckHealth(context.Background())
		require.True(t, ok)
		assert.Equal(t, 67, snapshot.HealthScore)
		assert.Equal(t, StatusDegraded, statusOf(t, o, "b"))
	})

	t.Run("healthy probe recovers", func(t *testing.T) {
		managers["b"].healthy.Store(true)
		snapshot, ok := o.CheckHealth(context.Background())
		require.True(t, ok)
		assert.Equal(t, 100, snapshot.HealthScore)
		assert.Equal(t, StatusRunning, statusOf(t, o, "b"))

		info, err := o.Manager("b")
		require.NoError(t, err)
		assert.Empty(t, info.LastError)
	})

	t.Run("degraded managers are stopped too", func(t *testing.T) {
		managers["c"].healthy.Store(false)
		_, ok := o.CheckHealth(context.Background())
		require.True(t, ok)
		require.Equal(t, StatusDegraded, statusOf(t, o, "c"))

		o.Stop(context.Background())
		assert.Equal(t, StatusStopped, statusOf(t, o, "c"))
		assert.Equal(t, int32(1), managers["c"].stops.Load())
	})
}

func TestCheckHealth_ProbeFailureModes(t *testing.T) {
	tests := []struct {
		name      string
		health    func(ctx context.Context) (bool, error)
		wantError string
	}{
		{
			name:      "probe error",
			health:    func(ctx context.Context) (bool, error) { return true, errDiskFull },
			wantError: "disk full",
		},
		{
			name:      "probe panic",
			health:    func(ctx context.Context) (bool, error) { panic("probe exploded") },
			wantError: "panicked",
		},
		{
			name: "probe timeout",
			health: func(ctx context.Context) (bool, error) {
				<-ctx.Done()
				return false, ctx.Err()
			},
			wantError: "deadline exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOrchestrator(t, WithHealthProbeTimeout(30*time.Millisecond))
			registerFakes(t, o, &callLog{}, "ok")
			require.NoError(t, o.Register(Registration{ID: "flaky", Factory: func(ctx context.Context, configPath string) (Manager, error) {
				return &ManagerFuncs{HealthFunc: tt.health}, nil
			}}))
			require.NoError(t, o.Start(context.Background()))

			snapshot, ok := o.CheckHealth(context.Background())
			require.True(t, ok)
			assert.Equal(t, 50, snapshot.HealthScore)
			assert.Equal(t, StatusDegraded, statusOf(t, o, "flaky"))
			assert.Equal(t, StatusRunning, statusOf(t, o, "ok"))

			info, err := o.Manager("flaky")
			require.NoError(t, err)
			assert.Contains(t, info.LastError, tt.wantError)
		})
	}
}

func TestCheckHealth_NotRunning(t *testing.T) {
	o := newTestOrchestrator(t)
	registerFakes(t, o, &callLog{}, "a")

	_, ok := o.CheckHealth(context.Background())
	assert.False(t, ok)
	_, ok = o.LastHealthSnapshot()
	assert.False(t, ok)

	info, err := o.Manager("a")
	require.NoError(t, err)
	assert.Nil(t, info.LastHealthCheck)
}

func TestSystemHealth(t *testing.T) {
	t.Run("nothing supervised scores zero", func(t *testing.T) {
		o := newTestOrchestrator(t)
		registerFakes(t, o, &callLog{}, "a", "b")

		snapshot := o.SystemHealth()
		assert.Equal(t, 0, snapshot.HealthScore)
		assert.Equal(t, 2, snapshot.TotalManagers)
		assert.Equal(t, 0, snapshot.RunningManagers)
	})

	t.Run("failed start is counted", func(t *testing.T) {
		o := newTestOrchestrator(t)
		managers := registerFakes(t, o, &callLog{}, "a", "b:a")
		managers["b"].startErr = errBoom
		require.Error(t, o.Start(context.Background()))

		snapshot := o.SystemHealth()
		assert.Equal(t, 1, snapshot.FailedManagers)
		assert.Equal(t, 0, snapshot.RunningManagers)
		assert.Equal(t, 0, snapshot.HealthScore)
	})

	t.Run("reflects statuses without probing", func(t *testing.T) {
		o := newTestOrchestrator(t)
		registerFakes(t, o, &callLog{}, "a", "b")
		require.NoError(t, o.Start(context.Background()))

		snapshot := o.SystemHealth()
		assert.Equal(t, 100, snapshot.HealthScore)
		assert.Empty(t, snapshot.Probes)
	})
}

// blockingHealth registers a manager whose probe waits for release, ignoring
// its context, and reports unhealthy.
func blockingHealth(t *testing.T, o *Orchestrator, id string) (entered, release chan struct{}) {
	t.Helper()
	entered = make(chan struct{}, 1)
	release = make(chan struct{})
	require.NoError(t, o.Register(Registration{ID: id, Factory: func(ctx context.Context, configPath string) (Manager, error) {
		return &ManagerFuncs{HealthFunc: func(ctx context.Context) (bool, error) {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-release
			return false, nil
		}}, nil
	}}))
	return entered, release
}

func TestCheckHealth_QueriesNotBlockedByProbes(t *testing.T) {
	o := newTestOrchestrator(t, WithHealthProbeTimeout(5*time.Second))
	entered, release := blockingHealth(t, o, "slow")
	registerFakes(t, o, &callLog{}, "fast")
	require.NoError(t, o.Start(context.Background()))

	result := make(chan bool, 1)
	go func() {
		_, ok := o.CheckHealth(context.Background())
		result <- ok
	}()
	<-entered

	queried := make(chan SystemHealthSnapshot, 1)
	go func() {
		_, _ = o.ManagerStatus("slow")
		queried <- o.SystemHealth()
	}()
	select {
	case snapshot := <-queried:
		assert.Equal(t, 100, snapshot.HealthScore, "verdicts are not applied before the cycle completes")
	case <-time.After(time.Second):
		t.Fatal("query blocked behind an in-flight probe")
	}

	close(release)
	require.True(t, <-result)
	assert.Equal(t, StatusDegraded, statusOf(t, o, "slow"))
	assert.Equal(t, StatusRunning, statusOf(t, o, "fast"))
}

func TestCheckHealth_DiscardedWhenStoppedMidCycle(t *testing.T) {
	o := newTestOrchestrator(t, WithHealthProbeTimeout(5*time.Second))
	entered, release := blockingHealth(t, o, "slow")
	require.NoError(t, o.Start(context.Background()))

	result := make(chan bool, 1)
	go func() {
		_, ok := o.CheckHealth(context.Background())
		result <- ok
	}()
	<-entered

	o.Stop(context.Background())
	close(release)

	assert.False(t, <-result)
	assert.Equal(t, StatusStopped, statusOf(t, o, "slow"))
	_, seen := o.LastHealthSnapshot()
	assert.False(t, seen)
}

func TestHealthLoop_RunsInBackground(t *testing.T) {
	o := newTestOrchestrator(t, WithHealthInterval(10*time.Millisecond))
	managers := registerFakes(t, o, &callLog{}, "a", "b")
	require.NoError(t, o.Start(context.Background()))

	managers["a"].healthy.Store(false)
	assert.Eventually(t, func() bool {
		status, err := o.ManagerStatus("a")
		return err == nil && status == StatusDegraded
	}, 2*time.Second, 5*time.Millisecond)

	latest, ok := o.LastHealthSnapshot()
	require.True(t, ok)
	assert.Len(t, latest.Probes, 2)
	assert.NotEmpty(t, o.HealthHistory(time.Time{}))

	events, err := o.EventHistory(context.Background(), &lifecycle.QueryCriteria{
		EventTypes: []lifecycle.EventType{lifecycle.EventTypeManagerDegraded},
	})
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "a", events[0].Source)

	o.Stop(context.Background())
	stoppedAt := time.Now()
	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, o.HealthHistory(stoppedAt), "no cycles after stop")
}

func TestHealthEvaluatedEvents(t *testing.T) {
	o := newTestOrchestrator(t)
	managers := registerFakes(t, o, &callLog{}, "a", "b")
	require.NoError(t, o.Start(context.Background()))

	query := &lifecycle.QueryCriteria{EventTypes: []lifecycle.EventType{lifecycle.EventTypeHealthEvaluated}}

	_, ok := o.CheckHealth(context.Background())
	require.True(t, ok)
	_, ok = o.CheckHealth(context.Background())
	require.True(t, ok)
	events, err := o.EventHistory(context.Background(), query)
	require.NoError(t, err)
	assert.Len(t, events, 1, "unchanged score is not re-announced")

	managers["b"].healthy.Store(false)
	_, ok = o.CheckHealth(context.Background())
	require.True(t, ok)

	events, err = o.EventHistory(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.EqualValues(t, 50, events[1].Data["health_score"])
	assert.EqualValues(t, 100, events[1].Data["previous_health_score"])
	assert.Equal(t, []string{"b"}, events[1].Data["unhealthy"])
}
