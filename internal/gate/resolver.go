// Package gate implements the cross-feature usage-gating engine: tier
// resolution, gate evaluation, action commits, and the popup flow.
package gate

import (
	"time"

	"github.com/google/uuid"

	"github.com/huddlechat/gatekit/internal/domain"
)

// SnapshotSource supplies read-only subscription and account snapshots for
// a user. The external session layer refreshes these; the resolver never
// caches or mutates them, which keeps hidden singletons out of the core.
type SnapshotSource interface {
	// Subscription returns the user's current subscription flags. Unknown
	// users report all flags unset.
	Subscription(userID uuid.UUID) domain.SubscriptionState

	// Account returns the user's account age metadata. Unknown users
	// report a zero value, which never qualifies for new-user grace.
	Account(userID uuid.UUID) domain.AccountMeta
}

// TierResolver derives the caller's privilege tier from subscription flags
// and account age. Pure and cheap; called on every gate evaluation so a
// subscription change or grace expiry takes effect on the very next call.
type TierResolver struct {
	source SnapshotSource
}

// NewTierResolver creates a resolver over the given snapshot source.
func NewTierResolver(source SnapshotSource) *TierResolver {
	return &TierResolver{source: source}
}

// Resolve returns the user's effective tier at the given instant.
// Precedence: pro > plus > lite > new_user > free; contradictory flags
// resolve to the highest tier.
func (r *TierResolver) Resolve(userID uuid.UUID, now time.Time) domain.Tier {
	sub := r.source.Subscription(userID)
	meta := r.source.Account(userID)
	return domain.ResolveTier(sub, meta, now)
}
