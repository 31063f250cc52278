// Package store provides durable per-(user, feature) usage counters for the
// gating engine.
//
// This package defines a QuotaStore interface with implementations for:
// - Memory: in-process storage for tests and development
// - SQLite: the default on-device key/value session store
// - Postgres: an optional server-authoritative backend
//
// UsageWindow values belong exclusively to the store. The gate engine reads
// snapshots and requests writes through the committer; nothing else mutates
// counts.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/huddlechat/gatekit/internal/domain"
)

// Provider names a QuotaStore backend, selected by configuration.
type Provider string

const (
	ProviderMemory   Provider = "memory"
	ProviderSQLite   Provider = "sqlite"
	ProviderPostgres Provider = "postgres"
)

// Key names used in the key/value session store, one pair per feature.
// These are a persistence contract: windows written before a process
// restart must read back under the same keys.
const (
	usageCountSuffix  = "_usage_count"
	windowStartSuffix = "_window_start"
)

func usageCountKey(feature domain.FeatureKey) string {
	return string(feature) + usageCountSuffix
}

func windowStartKey(feature domain.FeatureKey) string {
	return string(feature) + windowStartSuffix
}

// QuotaStore is the durable usage counter for (user, feature) pairs.
//
// All implementations serialize mutations to a given pair. TryAdvanceWindow
// must stay idempotent under concurrent callers observing the same expired
// window: exactly one reset happens, the rest are no-ops.
type QuotaStore interface {
	// Window returns the current usage window for the pair, lazily creating
	// a fresh {0, now} window if none exists.
	Window(ctx context.Context, userID uuid.UUID, feature domain.FeatureKey, now time.Time) (domain.UsageWindow, error)

	// TryAdvanceWindow atomically resets the window to {0, now} if it has
	// expired; otherwise it is a no-op. A window start in the future (clock
	// rollback) never resets.
	TryAdvanceWindow(ctx context.Context, userID uuid.UUID, feature domain.FeatureKey, window time.Duration, now time.Time) error

	// Increment atomically advances the usage count by one. now is used
	// only when the pair has no window yet.
	Increment(ctx context.Context, userID uuid.UUID, feature domain.FeatureKey, now time.Time) error

	// Reset clears all windows for a user. Called on session teardown or
	// account removal, never as part of gating.
	Reset(ctx context.Context, userID uuid.UUID) error

	Close() error
}
