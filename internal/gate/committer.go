package gate

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/huddlechat/gatekit/internal/clock"
	"github.com/huddlechat/gatekit/internal/domain"
	"github.com/huddlechat/gatekit/internal/metrics"
	"github.com/huddlechat/gatekit/internal/store"
	"github.com/huddlechat/gatekit/internal/telemetry"
)

// Action performs the gated side effect. It may suspend on network I/O; the
// committer holds no lock across it. A cancellation or timeout must surface
// as a non-nil error so it counts as failure.
type Action func(ctx context.Context) error

// Committer executes a gated action and advances the usage counter only on
// confirmed success. Bypassing tiers run their actions without ever
// touching the counter.
//
// The counter is not reserved ahead of the action: two near-simultaneous
// commits can both observe CanProceed and both increment. That overrun is
// bounded and accepted; serializing the whole evaluate-then-commit sequence
// would hold a lock across network I/O.
type Committer struct {
	engine *Engine
	store  store.QuotaStore
	clock  clock.Clock
	events telemetry.Publisher
	logger *slog.Logger
}

// NewCommitter creates a committer sharing the engine's store and clock.
func NewCommitter(engine *Engine, quotas store.QuotaStore, clk clock.Clock, events telemetry.Publisher, logger *slog.Logger) *Committer {
	if events == nil {
		events = telemetry.NopPublisher()
	}
	return &Committer{
		engine: engine,
		store:  quotas,
		clock:  clk,
		events: events,
		logger: logger,
	}
}

// Commit evaluates the gate and, when allowed, runs the action.
//
// Returns the evaluation result alongside any error:
//   - rate_limit error when the window is exhausted (action never runs)
//   - unavailable error when the action itself fails (no quota consumed)
//
// A successful gated commit advances the counter; the returned result
// reflects the post-commit usage.
func (c *Committer) Commit(ctx context.Context, userID uuid.UUID, feature domain.FeatureKey, action Action) (domain.GateResult, error) {
	const op = "gate.commit"

	result, err := c.engine.Evaluate(ctx, userID, feature)
	if err != nil {
		return result, err
	}

	if !result.CanProceed {
		metrics.GateCommits.WithLabelValues(string(feature), metrics.CommitStatusBlocked).Inc()
		c.events.Publish(telemetry.FromResult(telemetry.StageCommit, userID, result, c.clock.Now()))
		return result, domain.QuotaExceeded(op, feature, result.CurrentUsage, result.Limit)
	}

	// The action runs outside any lock; the window may advance or fill up
	// underneath it.
	if err := action(ctx); err != nil {
		metrics.GateCommits.WithLabelValues(string(feature), metrics.CommitStatusFailed).Inc()
		c.logger.Info("gated action failed, quota untouched",
			"feature", string(feature),
			"user_id", userID,
			"error", err,
		)
		return result, domain.ActionFailed(err, op, feature)
	}

	if !result.Bypassed {
		if err := c.store.Increment(ctx, userID, feature, c.clock.Now()); err != nil {
			// The action already succeeded; surfacing a failure now would
			// make the user pay twice. Log it and move on.
			c.logger.Error("failed to advance usage counter after successful action",
				"feature", string(feature),
				"user_id", userID,
				"error", err,
			)
		} else {
			result.CurrentUsage++
			result.IsLimitReached = result.CurrentUsage >= result.Limit
		}
	}

	metrics.GateCommits.WithLabelValues(string(feature), metrics.CommitStatusSuccess).Inc()
	c.events.Publish(telemetry.FromResult(telemetry.StageCommit, userID, result, c.clock.Now()))
	return result, nil
}
