// Package metrics provides Prometheus metrics for the chat queue.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the custom prometheus registry for the chat queue.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

const namespace = "chatqueue"

// Admission outcomes.
const (
	OutcomeAdmitted         = "admitted"
	OutcomeAdmittedOverflow = "admitted_overflow"
	OutcomeRejected         = "rejected"
)

// =============================================================================
// QUEUE AND STAFFING
// =============================================================================

// QueueSize is the number of live (queued or active) sessions after the last cycle.
var QueueSize = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "queue_size",
	Help:      "Live sessions (queued plus active) counted at the last shift evaluation",
})

// MaxQueueSize is the base-team queue ceiling.
var MaxQueueSize = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "max_queue_size",
	Help:      "Queue ceiling derived from the current base team",
})

// OverflowActive is 1 while the overflow team is on shift.
var OverflowActive = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "overflow_active",
	Help:      "1 while the overflow team is on shift, 0 otherwise",
})

// AgentsOnShift counts on-shift agents after the last shift evaluation.
var AgentsOnShift = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "agents_on_shift",
	Help:      "Agents flagged on shift after the last shift evaluation",
})

// =============================================================================
// FLOW
// =============================================================================

// AdmissionsTotal counts start-chat decisions by outcome.
var AdmissionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "admissions_total",
	Help:      "Start-chat decisions by outcome",
}, []string{"outcome"})

// AssignmentsTotal counts session bindings by agent seniority.
var AssignmentsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "assignments_total",
	Help:      "Sessions bound to an agent, by agent seniority",
}, []string{"seniority"})

// ExpiredSessionsTotal counts sessions removed for missing polls.
var ExpiredSessionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "expired_sessions_total",
	Help:      "Sessions removed after the liveness window lapsed, by status at expiry",
}, []string{"status"})

// RequeuesTotal counts dequeued sessions pushed back because their agent was no longer available.
var RequeuesTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "requeues_total",
	Help:      "Dequeued sessions returned to the head of the queue",
})

// =============================================================================
// MONITOR HEALTH
// =============================================================================

// CycleDurationSeconds tracks time spent in one monitor cycle.
var CycleDurationSeconds = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "cycle_duration_seconds",
	Help:      "Time taken by one monitor cycle",
	Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
})

// CycleFaultsTotal counts monitor cycles that ended in an error or panic.
var CycleFaultsTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "cycle_faults_total",
	Help:      "Monitor cycles that failed and were recovered",
})

// SetOverflowActive records the overflow flag as 0 or 1.
func SetOverflowActive(active bool) {
	if active {
		OverflowActive.Set(1)
		return
	}
	OverflowActive.Set(0)
}
