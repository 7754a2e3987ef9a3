package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/genforge/internal/api/response"
)

// CreditService is the part of jobs.Service the credit endpoints use.
type CreditService interface {
	GetCredits(ctx context.Context, userID uuid.UUID) (int, error)
	GrantCredits(ctx context.Context, userID uuid.UUID, amount int) (int, error)
}

// NewCreditsHandler returns an http.HandlerFunc for GET /api/credits.
func NewCreditsHandler(svc CreditService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}
		credits, err := svc.GetCredits(r.Context(), id.UserID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.OK(w, response.Fields{"credits": credits})
	}
}

type grantRequest struct {
	UserID string `json:"userId"`
	Amount int    `json:"amount"`
}

// NewGrantCreditsHandler returns an http.HandlerFunc for
// POST /api/admin/credits. Without a userId the caller's own balance is
// topped up.
func NewGrantCreditsHandler(svc CreditService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}

		var req grantRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid JSON body", nil)
			return
		}

		userID := id.UserID
		if req.UserID != "" {
			parsed, err := uuid.Parse(req.UserID)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "userId must be a UUID",
					map[string]any{"field": "userId"})
				return
			}
			userID = parsed
		}

		credits, err := svc.GrantCredits(r.Context(), userID, req.Amount)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.OK(w, response.Fields{"userId": userID, "credits": credits})
	}
}
