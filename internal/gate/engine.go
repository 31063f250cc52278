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

// Engine combines the tier resolver, quota store, and feature catalog into
// gate decisions.
//
// Evaluate is idempotent and side-effect-free apart from the lazy window
// reset, which is itself idempotent: repeated evaluations without an
// intervening commit always report the same usage.
type Engine struct {
	catalog  domain.Catalog
	resolver *TierResolver
	store    store.QuotaStore
	clock    clock.Clock
	events   telemetry.Publisher
	logger   *slog.Logger
}

// NewEngine validates the catalog and builds an engine. A catalog missing a
// feature row fails here, at startup, never during evaluation.
func NewEngine(
	catalog domain.Catalog,
	resolver *TierResolver,
	quotas store.QuotaStore,
	clk clock.Clock,
	events telemetry.Publisher,
	logger *slog.Logger,
) (*Engine, error) {
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	if events == nil {
		events = telemetry.NopPublisher()
	}
	return &Engine{
		catalog:  catalog,
		resolver: resolver,
		store:    quotas,
		clock:    clk,
		events:   events,
		logger:   logger,
	}, nil
}

// Evaluate produces the gate decision for one feature invocation.
//
// Bypassing tiers (subscription at or above the feature threshold, or a new
// user within grace) proceed silently: no popup, no counter touch. Every
// gated tier sees the status popup, even under the limit; only an exhausted
// window withholds CanProceed.
func (e *Engine) Evaluate(ctx context.Context, userID uuid.UUID, feature domain.FeatureKey) (domain.GateResult, error) {
	const op = "gate.evaluate"

	cfg, err := e.catalog.Get(feature)
	if err != nil {
		return domain.GateResult{}, err
	}

	now := e.clock.Now()
	tier := e.resolver.Resolve(userID, now)

	if tier == domain.TierNewUser || tier.AtLeast(cfg.MinBypassTier) {
		reason := domain.TriggerBypassLite
		if tier == domain.TierNewUser {
			reason = domain.TriggerBypassNewUser
		}
		result := domain.GateResult{
			Feature:    feature,
			Tier:       tier,
			Limit:      cfg.Limit,
			CanProceed: true,
			Bypassed:   true,
			Reason:     reason,
		}
		e.events.Publish(telemetry.FromResult(telemetry.StageEvaluate, userID, result, now))
		return result, nil
	}

	if err := e.store.TryAdvanceWindow(ctx, userID, feature, cfg.Window, now); err != nil {
		return domain.GateResult{}, domain.Internal(err, op, "failed to advance usage window")
	}

	window, err := e.store.Window(ctx, userID, feature, now)
	if err != nil {
		return domain.GateResult{}, domain.Internal(err, op, "failed to read usage window")
	}

	if window.Anomalous(now) {
		metrics.ClockAnomalies.Inc()
		e.logger.Warn("clock behind window start, treating window as live",
			"feature", string(feature),
			"window_start", window.WindowStart,
			"now", now,
		)
	}

	limitReached := window.Count >= cfg.Limit

	result := domain.GateResult{
		Feature:        feature,
		Tier:           tier,
		CurrentUsage:   window.Count,
		Limit:          cfg.Limit,
		IsLimitReached: limitReached,
		ShowPopup:      true,
		CanProceed:     !limitReached,
		Reason:         domain.TriggerAlwaysShow,
	}
	if limitReached {
		result.RemainingCooldown = window.Cooldown(now, cfg.Window)
		result.Reason = domain.TriggerLimitReached
	}

	e.events.Publish(telemetry.FromResult(telemetry.StageEvaluate, userID, result, now))
	return result, nil
}

// Config exposes the feature's config row, for callers rendering limits.
func (e *Engine) Config(feature domain.FeatureKey) (domain.FeatureConfig, error) {
	return e.catalog.Get(feature)
}
