package middleware

import (
	"fmt"
	"net/http"

	"github.com/kiranshivaraju/genforge/internal/api/response"
	"golang.org/x/crypto/bcrypt"
)

// AdminPasswordHeader carries the admin password on admin requests.
const AdminPasswordHeader = "X-Admin-Password"

// Admin guards operator endpoints with a shared password. Only the bcrypt
// hash is kept in memory.
type Admin struct {
	hash []byte
}

// NewAdmin hashes password. An empty password disables admin endpoints.
func NewAdmin(password string) (*Admin, error) {
	if password == "" {
		return &Admin{}, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing admin password: %w", err)
	}
	return &Admin{hash: hash}, nil
}

// Require rejects requests without the admin password.
func (a *Admin) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(a.hash) == 0 {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Admin endpoints are disabled", nil)
			return
		}
		given := r.Header.Get(AdminPasswordHeader)
		if given == "" || bcrypt.CompareHashAndPassword(a.hash, []byte(given)) != nil {
			response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid admin password", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
