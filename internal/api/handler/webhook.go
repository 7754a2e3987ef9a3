package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/genforge/internal/api/response"
	"github.com/kiranshivaraju/genforge/internal/jobs"
	"github.com/kiranshivaraju/genforge/internal/webhook"
)

// WebhookReceiver applies a signed provider callback.
type WebhookReceiver interface {
	Handle(ctx context.Context, body []byte, signature string) (webhook.Outcome, error)
}

// NewWebhookHandler returns an http.HandlerFunc for POST /api/webhooks/vendor.
// The raw body is handed over untouched so the signature can be checked
// against the exact bytes.
func NewWebhookHandler(rcv WebhookReceiver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_PAYLOAD", "Could not read body", nil)
			return
		}

		outcome, err := rcv.Handle(r.Context(), body, r.Header.Get(webhook.SignatureHeader))
		switch {
		case err == nil:
			response.JSON(w, http.StatusOK, map[string]any{"status": "processed", "outcome": outcome})
		case errors.Is(err, webhook.ErrInvalidSignature):
			slog.Warn("webhook rejected", "reason", "signature", "remote", r.RemoteAddr)
			response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid signature", nil)
		case errors.Is(err, webhook.ErrInvalidPayload):
			response.Error(w, http.StatusBadRequest, "INVALID_PAYLOAD", err.Error(), nil)
		case errors.Is(err, jobs.ErrJobNotFound):
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
		default:
			slog.Error("webhook processing failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
		}
	}
}
