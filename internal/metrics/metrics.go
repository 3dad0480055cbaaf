package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP request metrics for API server
var (
	// HTTPRequestDuration tracks the duration of HTTP requests
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests by method, path, and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestsTotal counts the total number of HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)
)

// Budget ledger metrics
var (
	// BudgetDecisions counts ledger decisions by service and outcome
	// (granted, or one of the deny reasons)
	BudgetDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "desk_budget_decisions_total",
			Help: "Budget ledger decisions by service and outcome",
		},
		[]string{"service", "outcome"},
	)

	// BudgetCostAccrued tracks total cost committed to the ledger in USD,
	// estimates and corrections combined
	BudgetCostAccrued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "desk_budget_cost_accrued_usd",
			Help: "Total cost committed to the budget ledger in USD by service",
		},
		[]string{"service"},
	)

	// TransientRetries counts storage-level retries, kept separate from
	// denials so infrastructure flakiness is visible on its own
	TransientRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "desk_storage_transient_retries_total",
			Help: "Transient storage errors retried by operation",
		},
		[]string{"operation"},
	)
)

// Provider cascade metrics
var (
	// CascadeFallbacks counts selections that did not land on the
	// preferred provider
	CascadeFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "desk_cascade_fallbacks_total",
			Help: "Provider selections that fell back past the preferred provider",
		},
		[]string{"capability"},
	)

	// CascadeExhausted counts selections where every candidate was denied
	CascadeExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "desk_cascade_exhausted_total",
			Help: "Provider selections where all candidates were denied",
		},
		[]string{"capability"},
	)
)

// Batch orchestrator metrics
var (
	// BatchUnits counts task units by outcome (value, error, timeout)
	BatchUnits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "desk_batch_units_total",
			Help: "Batch task units by outcome",
		},
		[]string{"outcome"},
	)

	// BatchDuration tracks wall-clock duration of whole batches
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "desk_batch_duration_seconds",
			Help:    "Wall-clock duration of batch fan-outs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.4min
		},
	)
)

// Job scheduler metrics
var (
	// JobRuns counts job executions by job and terminal status
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "desk_job_runs_total",
			Help: "Scheduled job executions by job and terminal status",
		},
		[]string{"job", "status"},
	)

	// JobSkips counts dispatches that did not run by reason
	// (already_ran, dependency_not_satisfied)
	JobSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "desk_job_skips_total",
			Help: "Scheduled job dispatches skipped by job and reason",
		},
		[]string{"job", "reason"},
	)

	// JobDuration tracks job handler wall-clock duration
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "desk_job_duration_seconds",
			Help:    "Job handler duration by job",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17min
		},
		[]string{"job"},
	)
)

// Helper functions for common metric operations

// RecordBudgetDecision increments the decision counter
func RecordBudgetDecision(service, outcome string) {
	BudgetDecisions.WithLabelValues(service, outcome).Inc()
}

// RecordBudgetCost adds committed cost for a service
func RecordBudgetCost(service string, amount float64) {
	if amount > 0 {
		BudgetCostAccrued.WithLabelValues(service).Add(amount)
	}
}

// RecordTransientRetry increments the retry counter for an operation
func RecordTransientRetry(operation string) {
	TransientRetries.WithLabelValues(operation).Inc()
}

// RecordCascadeFallback increments the fallback counter
func RecordCascadeFallback(capability string) {
	CascadeFallbacks.WithLabelValues(capability).Inc()
}

// RecordCascadeExhausted increments the exhaustion counter
func RecordCascadeExhausted(capability string) {
	CascadeExhausted.WithLabelValues(capability).Inc()
}

// RecordBatchUnit increments the unit outcome counter
func RecordBatchUnit(outcome string) {
	BatchUnits.WithLabelValues(outcome).Inc()
}

// RecordBatchDuration records the wall-clock duration of one batch
func RecordBatchDuration(d time.Duration) {
	BatchDuration.Observe(d.Seconds())
}

// RecordJobRun increments the job run counter and records duration
func RecordJobRun(job, status string, d time.Duration) {
	JobRuns.WithLabelValues(job, status).Inc()
	JobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// RecordJobSkip increments the job skip counter
func RecordJobSkip(job, reason string) {
	JobSkips.WithLabelValues(job, reason).Inc()
}

// RecordHTTPRequest records the duration and increments the counter for an HTTP request
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}
