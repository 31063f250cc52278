package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	require.NoError(t, DefaultCatalog().Validate())
}

func TestCatalogValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(Catalog)
	}{
		{
			name:   "missing feature row",
			mutate: func(c Catalog) { delete(c, FeatureRefresh) },
		},
		{
			name: "zero limit",
			mutate: func(c Catalog) {
				row := c[FeatureFilter]
				row.Limit = 0
				c[FeatureFilter] = row
			},
		},
		{
			name: "non-positive window",
			mutate: func(c Catalog) {
				row := c[FeatureMessageSend]
				row.Window = -time.Minute
				c[FeatureMessageSend] = row
			},
		},
		{
			name: "unknown bypass tier",
			mutate: func(c Catalog) {
				row := c[FeatureConversationStart]
				row.MinBypassTier = Tier("gold")
				c[FeatureConversationStart] = row
			},
		},
		{
			name: "row for unknown feature",
			mutate: func(c Catalog) {
				c[FeatureKey("super_like")] = FeatureConfig{
					Key: FeatureKey("super_like"), Limit: 1, Window: time.Hour, MinBypassTier: TierLite,
				}
			},
		},
		{
			name: "row keyed under wrong feature",
			mutate: func(c Catalog) {
				row := c[FeatureFilter]
				row.Key = FeatureRefresh
				c[FeatureFilter] = row
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog := DefaultCatalog()
			tt.mutate(catalog)

			err := catalog.Validate()
			require.Error(t, err)
			assert.Equal(t, ECONFIG, ErrorCode(err))
		})
	}
}

func TestCatalogGet(t *testing.T) {
	catalog := DefaultCatalog()

	cfg, err := catalog.Get(FeatureConversationStart)
	require.NoError(t, err)
	assert.Equal(t, FeatureConversationStart, cfg.Key)
	assert.Equal(t, uint(5), cfg.Limit)
	assert.Equal(t, time.Hour, cfg.Window)
	assert.Equal(t, TierPlus, cfg.MinBypassTier)

	_, err = catalog.Get(FeatureKey("super_like"))
	require.Error(t, err)
	assert.Equal(t, ECONFIG, ErrorCode(err))
}

func TestFeatureKeyValid(t *testing.T) {
	for _, key := range AllFeatures {
		assert.True(t, key.Valid(), string(key))
	}
	assert.False(t, FeatureKey("super_like").Valid())
	assert.False(t, FeatureKey("").Valid())
}
