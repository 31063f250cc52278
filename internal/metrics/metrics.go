package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gatekit"

// Gate decision metrics
var (
	GateEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_evaluations_total",
			Help:      "Total number of gate evaluations",
		},
		[]string{"feature", "tier", "reason"},
	)

	GateCommits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_commits_total",
			Help:      "Total number of commit attempts",
		},
		[]string{"feature", "status"},
	)

	QuotaExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_exhausted_total",
			Help:      "Total number of evaluations that found the window exhausted",
		},
		[]string{"feature"},
	)

	ClockAnomalies = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clock_anomalies_total",
			Help:      "Total number of evaluations that observed the clock behind the window start",
		},
	)
)

// Commit status label values.
const (
	CommitStatusSuccess = "success"
	CommitStatusFailed  = "failed"
	CommitStatusBlocked = "blocked"
)

// Telemetry pipeline metrics
var (
	TelemetryDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_dropped_total",
			Help:      "Total number of telemetry events dropped due to a full queue",
		},
	)
)

// HTTP metrics for the sidecar daemon
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)
)
