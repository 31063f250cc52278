package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/huddlechat/gatekit/internal/domain"
	"github.com/huddlechat/gatekit/internal/gate"
	"github.com/huddlechat/gatekit/internal/session"
	"github.com/huddlechat/gatekit/internal/store"
)

// GateHandler serves the gating API.
type GateHandler struct {
	engine    *gate.Engine
	committer *gate.Committer
	registry  *session.Registry
	quotas    store.QuotaStore
	grace     time.Duration
	logger    *slog.Logger
}

// NewGateHandler creates the handler.
func NewGateHandler(
	engine *gate.Engine,
	committer *gate.Committer,
	registry *session.Registry,
	quotas store.QuotaStore,
	grace time.Duration,
	logger *slog.Logger,
) *GateHandler {
	return &GateHandler{
		engine:    engine,
		committer: committer,
		registry:  registry,
		quotas:    quotas,
		grace:     grace,
		logger:    logger,
	}
}

// RegisterRoutes attaches the gating API to the mux.
func (h *GateHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/evaluate", h.Evaluate)
	mux.HandleFunc("POST /v1/commit", h.Commit)
	mux.HandleFunc("GET /v1/usage", h.Usage)
	mux.HandleFunc("PUT /v1/session", h.PutSession)
	mux.HandleFunc("DELETE /v1/session", h.DeleteSession)
}

// gateRequest identifies one (user, feature) pair.
type gateRequest struct {
	UserID  string `json:"user_id"`
	Feature string `json:"feature"`
}

func (r gateRequest) parse(op string) (uuid.UUID, domain.FeatureKey, error) {
	userID, err := uuid.Parse(r.UserID)
	if err != nil {
		return uuid.Nil, "", domain.Invalid(op, "user_id must be a UUID")
	}
	feature := domain.FeatureKey(r.Feature)
	if !feature.Valid() {
		return uuid.Nil, "", domain.Invalid(op, "unknown feature "+r.Feature)
	}
	return userID, feature, nil
}

// gateResultBody is the wire form of a GateResult. Cooldown is reported in
// whole seconds, rounded up so the UI never undershoots the wait.
type gateResultBody struct {
	Feature           string `json:"feature"`
	Tier              string `json:"tier"`
	CurrentUsage      uint   `json:"current_usage"`
	Limit             uint   `json:"limit"`
	RemainingCooldown int64  `json:"remaining_cooldown_s"`
	IsLimitReached    bool   `json:"is_limit_reached"`
	ShowPopup         bool   `json:"show_popup"`
	CanProceed        bool   `json:"can_proceed"`
	Bypassed          bool   `json:"bypassed"`
	Reason            string `json:"trigger_reason"`
}

func toBody(r domain.GateResult) gateResultBody {
	cooldown := int64(r.RemainingCooldown / time.Second)
	if r.RemainingCooldown%time.Second != 0 {
		cooldown++
	}
	return gateResultBody{
		Feature:           string(r.Feature),
		Tier:              string(r.Tier),
		CurrentUsage:      r.CurrentUsage,
		Limit:             r.Limit,
		RemainingCooldown: cooldown,
		IsLimitReached:    r.IsLimitReached,
		ShowPopup:         r.ShowPopup,
		CanProceed:        r.CanProceed,
		Bypassed:          r.Bypassed,
		Reason:            string(r.Reason),
	}
}

// Evaluate returns the gate decision without committing anything.
func (h *GateHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	const op = "handler.evaluate"

	var req gateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, domain.Invalid(op, "malformed JSON body"))
		return
	}
	userID, feature, err := req.parse(op)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	result, err := h.engine.Evaluate(r.Context(), userID, feature)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, toBody(result))
}

// commitRequest reports the outcome of the gated action. The client runs
// the action itself (a network send, a list refresh) and tells the gate
// whether it succeeded; only confirmed successes consume quota.
type commitRequest struct {
	gateRequest
	Succeeded bool `json:"succeeded"`
}

// commitResponse pairs the commit outcome with the post-commit result.
type commitResponse struct {
	Committed bool           `json:"committed"`
	Result    gateResultBody `json:"result"`
}

var errActionReportedFailed = errors.New("action reported failed by client")

// Commit re-evaluates the gate and advances the counter when the client
// reports success.
func (h *GateHandler) Commit(w http.ResponseWriter, r *http.Request) {
	const op = "handler.commit"

	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, domain.Invalid(op, "malformed JSON body"))
		return
	}
	userID, feature, err := req.parse(op)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	action := func(context.Context) error {
		if !req.Succeeded {
			return errActionReportedFailed
		}
		return nil
	}

	result, err := h.committer.Commit(r.Context(), userID, feature, action)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, commitResponse{
		Committed: !result.Bypassed,
		Result:    toBody(result),
	})
}

// Usage returns the current gate status for a pair. It is a plain
// re-evaluation; like every read it applies the lazy window reset first.
func (h *GateHandler) Usage(w http.ResponseWriter, r *http.Request) {
	const op = "handler.usage"

	req := gateRequest{
		UserID:  r.URL.Query().Get("user_id"),
		Feature: r.URL.Query().Get("feature"),
	}
	userID, feature, err := req.parse(op)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	result, err := h.engine.Evaluate(r.Context(), userID, feature)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, toBody(result))
}

// sessionRequest is the snapshot pushed by the external session layer.
type sessionRequest struct {
	UserID                string `json:"user_id"`
	HasLite               bool   `json:"has_lite"`
	HasPlus               bool   `json:"has_plus"`
	HasPro                bool   `json:"has_pro"`
	FirstAccountCreatedAt string `json:"first_account_created_at,omitempty"` // RFC 3339
}

// PutSession upserts a user's subscription/account snapshot.
func (h *GateHandler) PutSession(w http.ResponseWriter, r *http.Request) {
	const op = "handler.put_session"

	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, domain.Invalid(op, "malformed JSON body"))
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		respondError(w, h.logger, domain.Invalid(op, "user_id must be a UUID"))
		return
	}

	var firstCreated time.Time
	if req.FirstAccountCreatedAt != "" {
		firstCreated, err = time.Parse(time.RFC3339, req.FirstAccountCreatedAt)
		if err != nil {
			respondError(w, h.logger, domain.Invalid(op, "first_account_created_at must be RFC 3339"))
			return
		}
	}

	h.registry.Put(userID, session.Snapshot{
		Subscription: domain.SubscriptionState{
			HasLite: req.HasLite,
			HasPlus: req.HasPlus,
			HasPro:  req.HasPro,
		},
		Account: domain.AccountMeta{
			FirstAccountCreatedAt: firstCreated,
			NewUserFreePeriod:     h.grace,
		},
	})

	w.WriteHeader(http.StatusNoContent)
}

// DeleteSession removes a user's snapshot and clears their usage windows.
// This is the explicit session/account-removal reset; nothing else clears
// windows.
func (h *GateHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	const op = "handler.delete_session"

	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		respondError(w, h.logger, domain.Invalid(op, "user_id must be a UUID"))
		return
	}

	h.registry.Remove(userID)
	if err := h.quotas.Reset(r.Context(), userID); err != nil {
		respondError(w, h.logger, domain.Internal(err, op, "failed to reset usage windows"))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
