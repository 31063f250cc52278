package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huddlechat/gatekit/internal/clock"
	"github.com/huddlechat/gatekit/internal/domain"
	"github.com/huddlechat/gatekit/internal/gate"
	"github.com/huddlechat/gatekit/internal/session"
	"github.com/huddlechat/gatekit/internal/store"
)

var testT0 = time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

type fixture struct {
	mux      *http.ServeMux
	registry *session.Registry
	clock    *clock.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	catalog := domain.DefaultCatalog()
	row := catalog[domain.FeatureRefresh]
	row.Limit = 3
	row.Window = time.Minute
	catalog[domain.FeatureRefresh] = row

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := session.NewRegistry()
	quotas := store.NewMemory()
	clk := clock.NewFake(testT0)

	engine, err := gate.NewEngine(catalog, gate.NewTierResolver(registry), quotas, clk, nil, logger)
	require.NoError(t, err)
	committer := gate.NewCommitter(engine, quotas, clk, nil, logger)

	h := NewGateHandler(engine, committer, registry, quotas, 7*24*time.Hour, logger)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	return &fixture{mux: mux, registry: registry, clock: clk}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) gateResultBody {
	t.Helper()
	var body gateResultBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestEvaluateEndpoint(t *testing.T) {
	f := newFixture(t)
	userID := uuid.NewString()

	rec := f.do(t, "POST", "/v1/evaluate", gateRequest{UserID: userID, Feature: "refresh"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeResult(t, rec)
	assert.Equal(t, "refresh", body.Feature)
	assert.Equal(t, "free", body.Tier)
	assert.True(t, body.ShowPopup)
	assert.True(t, body.CanProceed)
	assert.Equal(t, "always_show_strategy", body.Reason)
	assert.Equal(t, uint(0), body.CurrentUsage)
	assert.Equal(t, uint(3), body.Limit)
}

func TestEvaluateEndpointRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		req  gateRequest
	}{
		{"malformed user id", gateRequest{UserID: "not-a-uuid", Feature: "refresh"}},
		{"unknown feature", gateRequest{UserID: uuid.NewString(), Feature: "super_like"}},
		{"empty body fields", gateRequest{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, "POST", "/v1/evaluate", tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body errorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, domain.EINVALID, body.Error)
		})
	}
}

func TestCommitEndpointQuotaFlow(t *testing.T) {
	f := newFixture(t)
	userID := uuid.NewString()

	// Three successful commits exhaust the refresh window.
	for i := 0; i < 3; i++ {
		rec := f.do(t, "POST", "/v1/commit", commitRequest{
			gateRequest: gateRequest{UserID: userID, Feature: "refresh"},
			Succeeded:   true,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var body commitResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.True(t, body.Committed)
		assert.Equal(t, uint(i+1), body.Result.CurrentUsage)
	}

	// The fourth is rejected with 429 so clients back off.
	rec := f.do(t, "POST", "/v1/commit", commitRequest{
		gateRequest: gateRequest{UserID: userID, Feature: "refresh"},
		Succeeded:   true,
	})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var errBody errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errBody))
	assert.Equal(t, domain.ERATELIMIT, errBody.Error)

	// Past the window the commit goes through again.
	f.clock.Set(testT0.Add(time.Minute + time.Second))
	rec = f.do(t, "POST", "/v1/commit", commitRequest{
		gateRequest: gateRequest{UserID: userID, Feature: "refresh"},
		Succeeded:   true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body commitResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, uint(1), body.Result.CurrentUsage)
}

func TestCommitEndpointFailedActionConsumesNothing(t *testing.T) {
	f := newFixture(t)
	userID := uuid.NewString()

	rec := f.do(t, "POST", "/v1/commit", commitRequest{
		gateRequest: gateRequest{UserID: userID, Feature: "refresh"},
		Succeeded:   false,
	})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var errBody errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errBody))
	assert.Equal(t, domain.EUNAVAILABLE, errBody.Error)

	rec = f.do(t, "GET", fmt.Sprintf("/v1/usage?user_id=%s&feature=refresh", userID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint(0), decodeResult(t, rec).CurrentUsage)
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	userID := uuid.NewString()

	// A plus subscriber bypasses refresh gating.
	rec := f.do(t, "PUT", "/v1/session", sessionRequest{UserID: userID, HasPlus: true})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, "POST", "/v1/evaluate", gateRequest{UserID: userID, Feature: "refresh"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeResult(t, rec)
	assert.True(t, body.Bypassed)
	assert.Equal(t, "plus", body.Tier)

	// Downgrade: the snapshot is replaced, gating resumes immediately.
	rec = f.do(t, "PUT", "/v1/session", sessionRequest{UserID: userID})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, "POST", "/v1/commit", commitRequest{
		gateRequest: gateRequest{UserID: userID, Feature: "refresh"},
		Succeeded:   true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// Session teardown clears the usage windows.
	rec = f.do(t, "DELETE", "/v1/session?user_id="+userID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, "GET", fmt.Sprintf("/v1/usage?user_id=%s&feature=refresh", userID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint(0), decodeResult(t, rec).CurrentUsage)
}

func TestPutSessionNewUserGrace(t *testing.T) {
	f := newFixture(t)
	userID := uuid.NewString()

	rec := f.do(t, "PUT", "/v1/session", sessionRequest{
		UserID:                userID,
		FirstAccountCreatedAt: testT0.Add(-24 * time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, "POST", "/v1/evaluate", gateRequest{UserID: userID, Feature: "conversation_start"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeResult(t, rec)
	assert.True(t, body.Bypassed)
	assert.Equal(t, "new_user", body.Tier)
	assert.Equal(t, "bypass_new_user", body.Reason)
}

func TestPutSessionRejectsBadTimestamp(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "PUT", "/v1/session", sessionRequest{
		UserID:                uuid.NewString(),
		FirstAccountCreatedAt: "yesterday",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCooldownRoundsUpToWholeSeconds(t *testing.T) {
	f := newFixture(t)
	userID := uuid.NewString()

	for i := 0; i < 3; i++ {
		rec := f.do(t, "POST", "/v1/commit", commitRequest{
			gateRequest: gateRequest{UserID: userID, Feature: "refresh"},
			Succeeded:   true,
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	f.clock.Set(testT0.Add(10*time.Second + 500*time.Millisecond))
	rec := f.do(t, "GET", fmt.Sprintf("/v1/usage?user_id=%s&feature=refresh", userID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeResult(t, rec)
	assert.True(t, body.IsLimitReached)
	assert.Equal(t, int64(50), body.RemainingCooldown)
}
