package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/genforge/internal/api/response"
	"github.com/kiranshivaraju/genforge/internal/jobs"
)

// writeServiceError maps a jobs.Service error onto the error envelope.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *jobs.ValidationError
	var cerr *jobs.InsufficientCreditsError

	switch {
	case errors.As(err, &verr):
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", verr.Message,
			map[string]any{"field": verr.Field})
	case errors.As(err, &cerr):
		response.Error(w, http.StatusPaymentRequired, "INSUFFICIENT_CREDITS", "Not enough credits for this tool",
			map[string]any{"credits": cerr.Balance, "required": cerr.Required})
	case errors.Is(err, jobs.ErrInsufficientCredits):
		response.Error(w, http.StatusPaymentRequired, "INSUFFICIENT_CREDITS", "Not enough credits for this tool", nil)
	case errors.Is(err, jobs.ErrRateLimitExceeded):
		response.Error(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED",
			"Heavy job limit reached, try again later", nil)
	case errors.Is(err, jobs.ErrJobNotFound):
		response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
	default:
		slog.Error("request failed", "error", err, "method", r.Method, "path", r.URL.Path)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}
