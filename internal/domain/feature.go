// Package domain contains core business types for the usage-gating engine.
//
// This file defines the gated feature keys and their static configuration
// table. A missing row for a requested feature is a programmer error caught
// at startup, never a runtime condition.
package domain

import (
	"time"
)

// FeatureKey identifies a monetizable action throttled by the gate.
type FeatureKey string

const (
	FeatureRefresh           FeatureKey = "refresh"            // Refresh the online-user list
	FeatureFilter            FeatureKey = "filter"             // Apply search filters
	FeatureConversationStart FeatureKey = "conversation_start" // Start a new conversation
	FeatureMessageSend       FeatureKey = "message_send"       // Send a message
)

// AllFeatures lists every gated feature. The config catalog must carry a row
// for each of these.
var AllFeatures = []FeatureKey{
	FeatureRefresh,
	FeatureFilter,
	FeatureConversationStart,
	FeatureMessageSend,
}

// Valid reports whether k names a known gated feature.
func (k FeatureKey) Valid() bool {
	switch k {
	case FeatureRefresh, FeatureFilter, FeatureConversationStart, FeatureMessageSend:
		return true
	}
	return false
}

// FeatureConfig is one row of the static gating table.
type FeatureConfig struct {
	Key FeatureKey

	// Limit is the number of uses allowed per window for gated tiers.
	Limit uint

	// Window is the duration of one usage window.
	Window time.Duration

	// MinBypassTier is the lowest subscription tier that skips gating
	// entirely for this feature. New users within grace bypass every
	// feature regardless of this value.
	MinBypassTier Tier
}

// Catalog is the immutable per-feature configuration table, loaded once at
// startup.
type Catalog map[FeatureKey]FeatureConfig

// DefaultCatalog returns the product defaults. Exact numbers are tunable,
// not part of the contract; tier thresholds are: list refresh and filtering
// unlock at lite, conversation and messaging at plus.
func DefaultCatalog() Catalog {
	return Catalog{
		FeatureRefresh: {
			Key:           FeatureRefresh,
			Limit:         10,
			Window:        10 * time.Minute,
			MinBypassTier: TierLite,
		},
		FeatureFilter: {
			Key:           FeatureFilter,
			Limit:         8,
			Window:        10 * time.Minute,
			MinBypassTier: TierLite,
		},
		FeatureConversationStart: {
			Key:           FeatureConversationStart,
			Limit:         5,
			Window:        time.Hour,
			MinBypassTier: TierPlus,
		},
		FeatureMessageSend: {
			Key:           FeatureMessageSend,
			Limit:         40,
			Window:        30 * time.Minute,
			MinBypassTier: TierPlus,
		},
	}
}

// Validate checks the catalog covers every feature with sane values.
// Call this at startup; a failure here is fatal.
func (c Catalog) Validate() error {
	const op = "catalog.validate"

	for _, key := range AllFeatures {
		cfg, ok := c[key]
		if !ok {
			return ConfigMissing(op, key)
		}
		if cfg.Key != key {
			return Errorf(ECONFIG, op, "config row keyed %q carries key %q", key, cfg.Key)
		}
		if cfg.Limit == 0 {
			return Errorf(ECONFIG, op, "feature %q has a zero limit", key)
		}
		if cfg.Window <= 0 {
			return Errorf(ECONFIG, op, "feature %q has a non-positive window %v", key, cfg.Window)
		}
		if !cfg.MinBypassTier.Valid() {
			return Errorf(ECONFIG, op, "feature %q has unknown bypass tier %q", key, cfg.MinBypassTier)
		}
	}

	for key := range c {
		if !key.Valid() {
			return Errorf(ECONFIG, op, "config row for unknown feature %q", key)
		}
	}

	return nil
}

// Get returns the config row for a feature. Unknown features report a
// config error; with a validated catalog this only fires for callers
// passing garbage keys.
func (c Catalog) Get(key FeatureKey) (FeatureConfig, error) {
	cfg, ok := c[key]
	if !ok {
		return FeatureConfig{}, ConfigMissing("catalog.get", key)
	}
	return cfg, nil
}
