package gate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huddlechat/gatekit/internal/domain"
	"github.com/huddlechat/gatekit/internal/telemetry"
)

func newCommitterFixture(t *testing.T) (*engineFixture, *Committer) {
	t.Helper()
	f := newEngineFixture(t)
	committer := NewCommitter(
		f.engine,
		f.store,
		f.clock,
		publisherFunc(func(e telemetry.Event) { *f.events = append(*f.events, e) }),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return f, committer
}

func succeed(context.Context) error { return nil }

func TestCommitSuccessAdvancesCounter(t *testing.T) {
	f, committer := newCommitterFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	result, err := committer.Commit(ctx, userID, domain.FeatureRefresh, succeed)
	require.NoError(t, err)

	assert.Equal(t, uint(1), result.CurrentUsage)
	assert.False(t, result.IsLimitReached)

	w, err := f.store.Window(ctx, userID, domain.FeatureRefresh, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, uint(1), w.Count)
}

func TestCommitFailedActionLeavesCounter(t *testing.T) {
	f, committer := newCommitterFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	result, err := committer.Commit(ctx, userID, domain.FeatureRefresh, func(context.Context) error {
		return errors.New("send failed")
	})
	require.Error(t, err)
	assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))
	assert.Equal(t, uint(0), result.CurrentUsage)

	w, err := f.store.Window(ctx, userID, domain.FeatureRefresh, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, uint(0), w.Count)
}

func TestCommitBlockedNeverRunsAction(t *testing.T) {
	_, committer := newCommitterFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	// Exhaust the window through real commits.
	for i := 0; i < 3; i++ {
		_, err := committer.Commit(ctx, userID, domain.FeatureRefresh, succeed)
		require.NoError(t, err)
	}

	ran := false
	result, err := committer.Commit(ctx, userID, domain.FeatureRefresh, func(context.Context) error {
		ran = true
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, domain.ERATELIMIT, domain.ErrorCode(err))
	assert.False(t, ran)
	assert.Equal(t, uint(3), result.CurrentUsage)
	assert.True(t, result.IsLimitReached)
}

func TestCommitBypassedNeverTouchesCounter(t *testing.T) {
	f, committer := newCommitterFixture(t)
	f.source.sub = domain.SubscriptionState{HasPro: true}
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 10; i++ {
		result, err := committer.Commit(ctx, userID, domain.FeatureRefresh, succeed)
		require.NoError(t, err)
		assert.True(t, result.Bypassed)
		assert.Equal(t, uint(0), result.CurrentUsage)
	}

	w, err := f.store.Window(ctx, userID, domain.FeatureRefresh, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, uint(0), w.Count)
}

func TestCommitLastUseMarksLimitReached(t *testing.T) {
	_, committer := newCommitterFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	var last domain.GateResult
	for i := 0; i < 3; i++ {
		result, err := committer.Commit(ctx, userID, domain.FeatureRefresh, succeed)
		require.NoError(t, err)
		last = result
	}

	assert.Equal(t, uint(3), last.CurrentUsage)
	assert.True(t, last.IsLimitReached)
}

func TestCommitFiveConversationsPerHour(t *testing.T) {
	f, committer := newCommitterFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 5; i++ {
		_, err := committer.Commit(ctx, userID, domain.FeatureConversationStart, succeed)
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	_, err := committer.Commit(ctx, userID, domain.FeatureConversationStart, succeed)
	require.Error(t, err)
	assert.Equal(t, domain.ERATELIMIT, domain.ErrorCode(err))

	// An hour after the window opened the sixth conversation goes through.
	f.clock.Set(testT0.Add(time.Hour + time.Second))
	result, err := committer.Commit(ctx, userID, domain.FeatureConversationStart, succeed)
	require.NoError(t, err)
	assert.Equal(t, uint(1), result.CurrentUsage)
}

func TestCommitPublishesCommitStageEvent(t *testing.T) {
	f, committer := newCommitterFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := committer.Commit(ctx, userID, domain.FeatureRefresh, succeed)
	require.NoError(t, err)

	var commitEvents []telemetry.Event
	for _, e := range *f.events {
		if e.Stage == telemetry.StageCommit {
			commitEvents = append(commitEvents, e)
		}
	}
	require.Len(t, commitEvents, 1)
	assert.Equal(t, uint(1), commitEvents[0].CurrentUsage)
}
