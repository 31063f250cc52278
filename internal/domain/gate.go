package domain

import (
	"time"
)

// TriggerReason explains why a gate decision surfaced the way it did. The
// string values are part of the telemetry event contract and must not
// change.
type TriggerReason string

const (
	// TriggerLimitReached: the usage window is exhausted and the action is
	// blocked until the cooldown elapses.
	TriggerLimitReached TriggerReason = "limit_reached"

	// TriggerAlwaysShow: the user may proceed but sees the status popup
	// anyway. Deliberate product policy: gated users always see their
	// usage and the upsell, even under the limit.
	TriggerAlwaysShow TriggerReason = "always_show_strategy"

	// TriggerBypassLite: a subscription tier at or above the feature's
	// bypass threshold skipped gating.
	TriggerBypassLite TriggerReason = "bypass_lite"

	// TriggerBypassNewUser: a new user inside the grace period skipped
	// gating.
	TriggerBypassNewUser TriggerReason = "bypass_new_user"
)

// GateResult is the outcome of evaluating one feature invocation for one
// user. It is always recomputed from the stores and never persisted, so a
// stale result can never drive a UI decision.
type GateResult struct {
	Feature FeatureKey
	Tier    Tier

	CurrentUsage      uint
	Limit             uint
	RemainingCooldown time.Duration

	IsLimitReached bool
	ShowPopup      bool
	CanProceed     bool

	// Bypassed marks a tier-based unconditional pass. Bypassed calls never
	// consume quota.
	Bypassed bool

	Reason TriggerReason
}
