package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/genforge/internal/api/response"
)

// SessionCookieName names the signed session cookie.
const SessionCookieName = "genforge_session"

// IdentityStore creates the user and session rows behind an identity.
// *jobs.Service satisfies it.
type IdentityStore interface {
	EnsureIdentity(ctx context.Context, userID, sessionID uuid.UUID) error
}

type sessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Session issues and verifies the session cookie. Every visitor acts as the
// configured demo user; the cookie pins a stable session id, which is what
// heavy jobs are rate limited by.
type Session struct {
	secret     []byte
	ttl        time.Duration
	demoUser   uuid.UUID
	identities IdentityStore
	secure     bool
	now        func() time.Time
}

func NewSession(secret string, ttl time.Duration, demoUser uuid.UUID, identities IdentityStore, secure bool) *Session {
	return &Session{
		secret:     []byte(secret),
		ttl:        ttl,
		demoUser:   demoUser,
		identities: identities,
		secure:     secure,
		now:        time.Now,
	}
}

// Sign returns a token for id.
func (s *Session) Sign(id Identity) (string, error) {
	now := s.now()
	claims := sessionClaims{
		SessionID: id.SessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Parse verifies token and returns the identity it carries.
func (s *Session) Parse(token string) (Identity, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Identity{}, err
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid subject: %w", err)
	}
	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid session id: %w", err)
	}
	return Identity{UserID: userID, SessionID: sessionID}, nil
}

// Handler resolves the caller, starting a new session when the cookie is
// missing, expired or forged.
func (s *Session) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.fromCookie(r)
		if err != nil {
			id = Identity{UserID: s.demoUser, SessionID: uuid.New()}
			token, err := s.Sign(id)
			if err != nil {
				slog.Error("signing session", "error", err)
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to start session", nil)
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookieName,
				Value:    token,
				Path:     "/",
				MaxAge:   int(s.ttl.Seconds()),
				HttpOnly: true,
				Secure:   s.secure,
				SameSite: http.SameSiteLaxMode,
			})
		}

		if err := s.identities.EnsureIdentity(r.Context(), id.UserID, id.SessionID); err != nil {
			slog.Error("ensuring session identity", "error", err, "session_id", id.SessionID)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load session", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

var errNoSession = errors.New("no session cookie")

func (s *Session) fromCookie(r *http.Request) (Identity, error) {
	c, err := r.Cookie(SessionCookieName)
	if err != nil || c.Value == "" {
		return Identity{}, errNoSession
	}
	return s.Parse(c.Value)
}
