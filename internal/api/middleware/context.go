package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the caller resolved from the session cookie.
type Identity struct {
	UserID    uuid.UUID
	SessionID uuid.UUID
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// GetIdentity returns the caller set by the Session middleware.
func GetIdentity(r *http.Request) (Identity, bool) {
	id, ok := r.Context().Value(identityKey).(Identity)
	return id, ok
}
