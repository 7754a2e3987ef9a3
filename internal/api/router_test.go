package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/genforge/internal/api"
	mw "github.com/kiranshivaraju/genforge/internal/api/middleware"
	"github.com/kiranshivaraju/genforge/internal/cache"
	"github.com/kiranshivaraju/genforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var demoUser = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// --- stubs ---

type stubIdentities struct{}

func (stubIdentities) EnsureIdentity(context.Context, uuid.UUID, uuid.UUID) error { return nil }

type stubCache struct {
	mu       sync.Mutex
	counters map[string]int64
}

func (c *stubCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *stubCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *stubCache) Delete(_ context.Context, _ string) error                          { return nil }
func (c *stubCache) Ping(_ context.Context) error                                      { return nil }
func (c *stubCache) SetJobStatus(_ context.Context, _ uuid.UUID, _ models.JobStatus, _ time.Duration) error {
	return nil
}
func (c *stubCache) GetJobStatus(_ context.Context, _ uuid.UUID) (models.JobStatus, bool, error) {
	return "", false, nil
}
func (c *stubCache) MarkOnce(_ context.Context, _ string, _ time.Duration) (bool, error) {
	return true, nil
}
func (c *stubCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counters == nil {
		c.counters = map[string]int64{}
	}
	c.counters[key]++
	return c.counters[key], nil
}

var _ cache.Cache = (*stubCache)(nil)

// --- router tests ---

func echoIdentity(w http.ResponseWriter, r *http.Request) {
	id, ok := mw.GetIdentity(r)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"hasIdentity": ok, "userId": id.UserID})
}

func newTestRouter(t *testing.T, rpm int) http.Handler {
	t.Helper()
	admin, err := mw.NewAdmin("letmein")
	require.NoError(t, err)

	return api.NewRouter(api.Dependencies{
		Session:     mw.NewSession("secret", time.Hour, demoUser, stubIdentities{}, false),
		RateLimit:   mw.NewRateLimit(&stubCache{}, rpm),
		Admin:       admin,
		CORSOrigins: []string{"*"},
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		},
		WebhookHandler:      echoIdentity,
		CreateJobHandler:    echoIdentity,
		GetJobHandler:       echoIdentity,
		ListJobsHandler:     echoIdentity,
		CreditsHandler:      echoIdentity,
		GrantCreditsHandler: echoIdentity,
	})
}

func serve(router http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouter_PublicRoutesSkipSession(t *testing.T) {
	router := newTestRouter(t, 60)

	w := serve(router, "GET", "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Result().Cookies())

	w = serve(router, "POST", "/api/webhooks/vendor", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Result().Cookies())
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["hasIdentity"])
}

func TestRouter_SessionRoutesResolveIdentity(t *testing.T) {
	router := newTestRouter(t, 60)

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/jobs"},
		{"GET", "/api/jobs"},
		{"GET", "/api/jobs/" + uuid.NewString()},
		{"GET", "/api/credits"},
	}
	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			w := serve(router, ep.method, ep.path, nil)
			require.Equal(t, http.StatusOK, w.Code)
			assert.NotEmpty(t, w.Result().Cookies())
			assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, true, body["hasIdentity"])
			assert.Equal(t, demoUser.String(), body["userId"])
		})
	}
}

func TestRouter_AdminRequiresPassword(t *testing.T) {
	router := newTestRouter(t, 60)

	w := serve(router, "POST", "/api/admin/credits", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(router, "POST", "/api/admin/credits", http.Header{mw.AdminPasswordHeader: {"letmein"}})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_RateLimitPerSession(t *testing.T) {
	router := newTestRouter(t, 2)

	first := serve(router, "GET", "/api/credits", nil)
	require.Equal(t, http.StatusOK, first.Code)
	cookie := first.Result().Cookies()[0]
	header := http.Header{"Cookie": {cookie.Name + "=" + cookie.Value}}

	assert.Equal(t, http.StatusOK, serve(router, "GET", "/api/credits", header).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, "GET", "/api/credits", header).Code)

	// A fresh session has its own window.
	assert.Equal(t, http.StatusOK, serve(router, "GET", "/api/credits", nil).Code)
}

func TestRouter_UnwiredHandlerIsNotImplemented(t *testing.T) {
	router := newTestRouter(t, 60)

	w := serve(router, "GET", "/api/assets/"+uuid.NewString()+"/download", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter(t, 60)

	w := serve(router, "GET", "/api/nonexistent", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
