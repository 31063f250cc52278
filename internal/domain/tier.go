// Package domain contains core business types for the usage-gating engine.
//
// This file defines the privilege tier ladder and the read-only session
// snapshots it is derived from. Tier is always recomputed from the snapshot;
// new-user grace in particular is derived from the account creation time and
// never stored, so it expires the instant the grace period elapses.
package domain

import (
	"time"
)

// Tier is the caller's privilege level, derived from subscription flags and
// account age. Tiers are ordered: free < new_user < lite < plus < pro.
type Tier string

const (
	TierFree    Tier = "free"
	TierNewUser Tier = "new_user"
	TierLite    Tier = "lite"
	TierPlus    Tier = "plus"
	TierPro     Tier = "pro"
)

// tierLevels orders tiers for bypass comparisons.
var tierLevels = map[Tier]int{
	TierFree:    0,
	TierNewUser: 1,
	TierLite:    2,
	TierPlus:    3,
	TierPro:     4,
}

// Level returns the tier's position in the ladder. Unknown tiers rank
// below free.
func (t Tier) Level() int {
	if lvl, ok := tierLevels[t]; ok {
		return lvl
	}
	return -1
}

// Valid reports whether t names a known tier.
func (t Tier) Valid() bool {
	_, ok := tierLevels[t]
	return ok
}

// AtLeast reports whether t ranks at or above other.
func (t Tier) AtLeast(other Tier) bool {
	return t.Level() >= other.Level()
}

// SubscriptionState is a read-only snapshot of the user's subscription
// flags, refreshed by the external subscription manager. The flags are not
// mutually exclusive; precedence is pro > plus > lite.
type SubscriptionState struct {
	HasLite bool
	HasPlus bool
	HasPro  bool
}

// Tier collapses the flags into a subscription tier, highest wins.
// Returns free when no flag is set.
func (s SubscriptionState) Tier() Tier {
	switch {
	case s.HasPro:
		return TierPro
	case s.HasPlus:
		return TierPlus
	case s.HasLite:
		return TierLite
	}
	return TierFree
}

// AccountMeta is a read-only snapshot of account age data, supplied by
// session/config management.
type AccountMeta struct {
	// FirstAccountCreatedAt is when the user's first account was created.
	// Zero means unknown; unknown accounts never qualify for grace.
	FirstAccountCreatedAt time.Time

	// NewUserFreePeriod is how long after first account creation the user
	// bypasses all gating.
	NewUserFreePeriod time.Duration
}

// WithinGrace reports whether the account is still inside the new-user free
// period at the given instant.
func (m AccountMeta) WithinGrace(now time.Time) bool {
	if m.FirstAccountCreatedAt.IsZero() || m.NewUserFreePeriod <= 0 {
		return false
	}
	return now.Sub(m.FirstAccountCreatedAt) < m.NewUserFreePeriod
}

// ResolveTier derives the effective tier from a subscription snapshot and
// account age. Subscription flags take precedence over new-user grace; if
// the flags contradict, the highest tier wins.
func ResolveTier(sub SubscriptionState, meta AccountMeta, now time.Time) Tier {
	if t := sub.Tier(); t != TierFree {
		return t
	}
	if meta.WithinGrace(now) {
		return TierNewUser
	}
	return TierFree
}
