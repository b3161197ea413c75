// Package health provides health scoring and the background polling monitor
package health

import (
	"math"
	"slices"
	"time"
)

// ProbeResult is the outcome of one manager's health probe in a cycle.
type ProbeResult struct {
	ManagerID string        `json:"manager_id"`
	Healthy   bool          `json:"healthy"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Snapshot is the aggregated system health at a point in time.
// RunningManagers counts every supervised manager, degraded ones included.
type Snapshot struct {
	HealthScore      int           `json:"health_score"`
	TotalManagers    int           `json:"total_managers"`
	RunningManagers  int           `json:"running_managers"`
	DegradedManagers int           `json:"degraded_managers"`
	FailedManagers   int           `json:"failed_managers"`
	Timestamp        time.Time     `json:"timestamp"`
	Probes           []ProbeResult `json:"probes,omitempty"`
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	s.Probes = slices.Clone(s.Probes)
	return s
}

// Unhealthy returns the probe results that reported unhealthy.
func (s Snapshot) Unhealthy() []ProbeResult {
	var out []ProbeResult
	for _, p := range s.Probes {
		if !p.Healthy {
			out = append(out, p)
		}
	}
	return out
}

// Score is round(healthy/supervised*100) clamped to [0, 100]. It is 0 when
// nothing is supervised.
func Score(healthy, supervised int) int {
	if supervised <= 0 || healthy <= 0 {
		return 0
	}
	score := int(math.Round(float64(healthy) / float64(supervised) * 100))
	return max(0, min(100, score))
}
