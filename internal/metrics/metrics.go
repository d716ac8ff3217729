// Package metrics exposes the Prometheus collectors of the engine and jobs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "engagement"

var (
	engineOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Entity operations by outcome",
		},
		[]string{"entity", "operation", "outcome"},
	)

	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "transitions_total",
			Help:      "Workflow transition attempts by mode and outcome",
		},
		[]string{"entity", "mode", "outcome"},
	)

	autoTransitionsDisabledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "auto_transitions_disabled_total",
			Help:      "Records whose automatic transitions were disabled after repeated failures",
		},
		[]string{"entity"},
	)

	auditAppendFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "append_failures_total",
			Help:      "Audit entries that could not be written after commit",
		},
	)

	hookDispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hook",
			Name:      "dispatch_total",
			Help:      "Hook executions by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	rateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		},
	)

	jobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "runs_total",
			Help:      "Job invocations by status",
		},
		[]string{"job", "status"},
	)

	jobItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "items_total",
			Help:      "Items processed by jobs by outcome",
		},
		[]string{"job", "outcome"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "duration_seconds",
			Help:      "Duration of job runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"job"},
	)
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordOperation counts one engine operation.
func RecordOperation(entity, operation string, err error) {
	engineOperationsTotal.WithLabelValues(entity, operation, outcome(err)).Inc()
}

// RecordTransition counts one transition attempt.
func RecordTransition(entity string, automatic bool, err error) {
	mode := "manual"
	if automatic {
		mode = "auto"
	}
	transitionsTotal.WithLabelValues(entity, mode, outcome(err)).Inc()
}

// RecordAutoTransitionDisabled counts a tripped auto-transition breaker.
func RecordAutoTransitionDisabled(entity string) {
	autoTransitionsDisabledTotal.WithLabelValues(entity).Inc()
}

// RecordAuditAppendFailure counts an audit entry lost after commit.
func RecordAuditAppendFailure() {
	auditAppendFailuresTotal.Inc()
}

// RecordHook counts one hook execution.
func RecordHook(kind string, err error) {
	hookDispatchTotal.WithLabelValues(kind, outcome(err)).Inc()
}

// RecordRateLimited counts a request rejected with 429.
func RecordRateLimited() {
	rateLimitedTotal.Inc()
}

// RecordJob records a finished job run.
func RecordJob(job, status string, succeeded, failed int, d time.Duration) {
	jobRunsTotal.WithLabelValues(job, status).Inc()
	jobItemsTotal.WithLabelValues(job, "succeeded").Add(float64(succeeded))
	jobItemsTotal.WithLabelValues(job, "failed").Add(float64(failed))
	jobDuration.WithLabelValues(job).Observe(d.Seconds())
}
