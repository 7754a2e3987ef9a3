package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/genforge/internal/api/response"
	"github.com/kiranshivaraju/genforge/internal/cache"
)

const defaultRequestsPerMinute = 120

// RateLimit bounds API requests per session in fixed one-minute windows.
// This is request throttling; the heavy-job quota lives in the ledger.
type RateLimit struct {
	cache          cache.Cache
	requestsPerMin int
	now            func() time.Time
}

func NewRateLimit(c cache.Cache, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{cache: c, requestsPerMin: requestsPerMin, now: time.Now}
}

// Limit must run after Session. Requests without an identity pass through.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := GetIdentity(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		now := rl.now()
		window := now.Unix() / 60
		count, err := rl.cache.IncrWithExpiry(r.Context(), cache.RateLimitKey(id.SessionID, window), time.Minute)
		if err != nil {
			// Fail open.
			slog.Warn("rate limit unavailable", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := max(rl.requestsPerMin-int(count), 0)
		resetIn := 60 - now.Unix()%60

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(now.Unix()+resetIn, 10))

		if count > int64(rl.requestsPerMin) {
			w.Header().Set("Retry-After", strconv.FormatInt(resetIn, 10))
			response.Error(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
