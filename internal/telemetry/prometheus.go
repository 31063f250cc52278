package telemetry

import (
	"github.com/huddlechat/gatekit/internal/domain"
	"github.com/huddlechat/gatekit/internal/metrics"
)

// NewMetricsSink records evaluate events as Prometheus counters. Commit
// outcomes are counted by the committer itself, which knows whether the
// action succeeded. Tier and reason cardinality is fixed and small, so
// labeling both is safe.
func NewMetricsSink() Sink {
	return SinkFunc(func(e Event) {
		if e.Stage != StageEvaluate {
			return
		}
		metrics.GateEvaluations.WithLabelValues(
			string(e.Feature), string(e.UserTier), string(e.TriggerReason),
		).Inc()
		if e.TriggerReason == domain.TriggerLimitReached {
			metrics.QuotaExhausted.WithLabelValues(string(e.Feature)).Inc()
		}
	})
}
