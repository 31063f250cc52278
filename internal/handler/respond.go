// Package handler exposes the gating engine over JSON for the sidecar
// daemon. Screen controllers and QA tooling consume these endpoints; the
// embedded library surface is the gate package itself.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/huddlechat/gatekit/internal/domain"
)

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// respondError maps domain error codes onto HTTP statuses. Quota exhaustion
// maps to 429 so generic HTTP clients back off correctly; transient action
// failures map to 503 and must be rendered as a retry prompt, never as
// quota messaging.
func respondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	code := domain.ErrorCode(err)

	status := http.StatusInternalServerError
	switch code {
	case domain.EINVALID:
		status = http.StatusBadRequest
	case domain.ENOTFOUND:
		status = http.StatusNotFound
	case domain.ERATELIMIT:
		status = http.StatusTooManyRequests
	case domain.EUNAVAILABLE:
		status = http.StatusServiceUnavailable
	case domain.ECONFIG, domain.EINTERNAL:
		status = http.StatusInternalServerError
	}

	if status == http.StatusInternalServerError {
		logger.Error("request failed", "op", domain.ErrorOp(err), "error", err)
	}

	respondJSON(w, status, errorResponse{
		Error:   code,
		Message: domain.ErrorMessage(err),
	})
}
