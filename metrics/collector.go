// Package metrics exports orchestrator state as Prometheus metrics.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "orchestra"

// Collector holds the orchestrator's Prometheus metrics.
type Collector struct {
	healthScore   prometheus.Gauge
	managers      *prometheus.GaugeVec
	managerStatus *prometheus.GaugeVec
	transitions   *prometheus.CounterVec
	startFailures *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	cycles        prometheus.Counter
}

// NewCollector creates the metrics and registers them with reg. Registration
// is all or nothing: on failure the metrics already registered are removed
// again and the error is returned.
func NewCollector(reg prometheus.Registerer, namespace string) (*Collector, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	c := &Collector{
		healthScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "health_score",
			Help:      "Percentage of supervised managers reporting healthy",
		}),
		managers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "managers",
			Help:      "Number of managers by aggregate state",
		}, []string{"state"}),
		managerStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "manager_status",
			Help:      "1 for the current status of each manager, 0 otherwise",
		}, []string{"manager", "status"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manager_transitions_total",
			Help:      "Manager status transitions",
		}, []string{"manager", "from", "to"}),
		startFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manager_start_failures_total",
			Help:      "Manager start attempts that failed",
		}, []string{"manager"}),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "health_probe_duration_seconds",
			Help:      "Duration of manager health probes",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		}, []string{"manager", "outcome"}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_cycles_total",
			Help:      "Completed health polling cycles",
		}),
	}

	collectors := []prometheus.Collector{
		c.healthScore, c.managers, c.managerStatus, c.transitions,
		c.startFailures, c.probeDuration, c.cycles,
	}
	for i, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			for _, registered := range collectors[:i] {
				reg.Unregister(registered)
			}
			return nil, fmt.Errorf("failed to register %s metrics: %w", namespace, err)
		}
	}
	return c, nil
}

// RecordSnapshot publishes the aggregate health of one cycle or query.
func (c *Collector) RecordSnapshot(score, total, supervised, degraded, failed int) {
	c.healthScore.Set(float64(score))
	c.managers.WithLabelValues("total").Set(float64(total))
	c.managers.WithLabelValues("running").Set(float64(supervised))
	c.managers.WithLabelValues("degraded").Set(float64(degraded))
	c.managers.WithLabelValues("failed").Set(float64(failed))
}

// RecordCycle counts a completed health cycle.
func (c *Collector) RecordCycle() {
	c.cycles.Inc()
}

// RecordTransition counts a status change and moves the manager's status gauge.
func (c *Collector) RecordTransition(manager, from, to string) {
	c.transitions.WithLabelValues(manager, from, to).Inc()
	c.managerStatus.WithLabelValues(manager, from).Set(0)
	c.managerStatus.WithLabelValues(manager, to).Set(1)
}

// RecordStartFailure counts a failed start attempt.
func (c *Collector) RecordStartFailure(manager string) {
	c.startFailures.WithLabelValues(manager).Inc()
}

// RecordProbe observes one health probe.
func (c *Collector) RecordProbe(manager string, healthy bool, d time.Duration) {
	outcome := "healthy"
	if !healthy {
		outcome = "unhealthy"
	}
	c.probeDuration.WithLabelValues(manager, outcome).Observe(d.Seconds())
}
