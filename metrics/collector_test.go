package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordSnapshot(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry(), "")
	require.NoError(t, err)

	c.RecordSnapshot(67, 4, 3, 1, 1)

	assert.Equal(t, 67.0, testutil.ToFloat64(c.healthScore))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.managers.WithLabelValues("total")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.managers.WithLabelValues("running")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.managers.WithLabelValues("degraded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.managers.WithLabelValues("failed")))
}

func TestCollector_RecordTransition(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry(), DefaultNamespace)
	require.NoError(t, err)

	c.RecordTransition("db", "offline", "starting")
	c.RecordTransition("db", "starting", "running")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("db", "starting", "running")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.managerStatus.WithLabelValues("db", "starting")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.managerStatus.WithLabelValues("db", "running")))
}

func TestCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg, "test")
	require.NoError(t, err)

	c.RecordStartFailure("api")
	c.RecordStartFailure("api")
	c.RecordCycle()
	c.RecordProbe("api", true, 5*time.Millisecond)
	c.RecordProbe("api", false, 2*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.startFailures.WithLabelValues("api")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cycles))

	expected := `
# HELP test_health_cycles_total Completed health polling cycles
# TYPE test_health_cycles_total counter
test_health_cycles_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_health_cycles_total"))

	count, err := testutil.GatherAndCount(reg, "test_health_probe_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per outcome")
}

func TestNewCollector_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewCollector(reg, "")
	require.NoError(t, err)

	_, err = NewCollector(reg, "")
	var already prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &already)
	assert.Contains(t, err.Error(), "orchestra")
}

func TestNewCollector_PartialFailureUnregisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	taken := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "test",
		Name:      "health_cycles_total",
		Help:      "registered elsewhere first",
	})
	require.NoError(t, reg.Register(taken))

	_, err := NewCollector(reg, "test")
	require.Error(t, err)

	reg.Unregister(taken)
	_, err = NewCollector(reg, "test")
	assert.NoError(t, err, "nothing from the failed attempt stays registered")
}
