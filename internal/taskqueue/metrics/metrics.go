// Package metrics provides Prometheus instrumentation for the task queue:
// queue depth, claim latency, lease contention, heartbeat failures, and
// executor outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth tracks task counts by kind and status, for every status,
	// as of the last GetSummary call.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "taskqueue_queue_depth",
		Help: "Current number of tasks, by kind and status.",
	}, []string{"kind", "status"})

	// ClaimLatencySeconds measures how long a single claim attempt took,
	// including any contention backoff.
	ClaimLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taskqueue_claim_latency_seconds",
		Help:    "Time spent attempting to claim a task, by kind.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// ClaimContentionTotal counts claim attempts that lost a race to
	// another worker (the CAS update affected zero rows) or hit a busy
	// database.
	ClaimContentionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskqueue_claim_contention_total",
		Help: "Total number of claim attempts that lost a race or hit store contention, by kind.",
	}, []string{"kind"})

	// HeartbeatFailureTotal counts heartbeat ticks that failed to renew a
	// lease, either due to a store error or a lost lease.
	HeartbeatFailureTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskqueue_heartbeat_failure_total",
		Help: "Total number of heartbeat ticks that failed to renew a lease, by kind and reason.",
	}, []string{"kind", "reason"})

	// ExecutorOutcomeTotal counts completed runs by kind and outcome
	// (success, retry, failed).
	ExecutorOutcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskqueue_executor_outcome_total",
		Help: "Total number of executor run outcomes, by kind and outcome.",
	}, []string{"kind", "outcome"})

	// ExecutionDurationSeconds measures backend.Execute wall time.
	ExecutionDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taskqueue_execution_duration_seconds",
		Help:    "Time spent inside a backend's Execute call, by kind.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"kind"})

	// StaleLeasesRecoveredTotal counts abandoned leases recovered at
	// manager startup, by kind and outcome (requeued, failed).
	StaleLeasesRecoveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskqueue_stale_leases_recovered_total",
		Help: "Total number of abandoned leases recovered at startup, by kind and outcome.",
	}, []string{"kind", "outcome"})
)

// SetQueueDepth records the current count for one kind/status pair.
func SetQueueDepth(kind, status string, count int) {
	QueueDepth.WithLabelValues(kind, status).Set(float64(count))
}

// ObserveClaimLatency records how long a claim attempt took.
func ObserveClaimLatency(kind string, d time.Duration) {
	ClaimLatencySeconds.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordClaimContention increments the contention counter for kind.
func RecordClaimContention(kind string) {
	ClaimContentionTotal.WithLabelValues(kind).Inc()
}

// RecordHeartbeatFailure increments the heartbeat failure counter.
// reason is "store_error" or "lease_lost".
func RecordHeartbeatFailure(kind, reason string) {
	HeartbeatFailureTotal.WithLabelValues(kind, reason).Inc()
}

// RecordExecutorOutcome increments the outcome counter.
// outcome is "success", "retry", or "failed".
func RecordExecutorOutcome(kind, outcome string) {
	ExecutorOutcomeTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveExecutionDuration records how long a backend's Execute call took.
func ObserveExecutionDuration(kind string, d time.Duration) {
	ExecutionDurationSeconds.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordStaleLeaseRecovered increments the startup-recovery counter.
// outcome is "requeued" or "failed".
func RecordStaleLeaseRecovered(kind, outcome string) {
	StaleLeasesRecoveredTotal.WithLabelValues(kind, outcome).Inc()
}
