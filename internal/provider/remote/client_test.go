package remote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/kiranshivaraju/genforge/internal/provider"
	"github.com/kiranshivaraju/genforge/internal/provider/remote"
	"github.com/kiranshivaraju/genforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeArchiver records archive calls and returns a local path per URL.
type fakeArchiver struct {
	mu       sync.Mutex
	prefixes []string
	err      error
}

func (a *fakeArchiver) Archive(_ context.Context, prefix string, urls []string, vendorStatus string) ([]models.Asset, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	a.prefixes = append(a.prefixes, prefix)
	out := make([]models.Asset, len(urls))
	for i, u := range urls {
		out[i] = models.Asset{OriginalURL: u, LocalPath: prefix + "/file", VendorStatus: vendorStatus}
	}
	return out, nil
}

func testSpec(baseURL string) remote.Spec {
	return remote.Spec{
		Name:    "acme",
		BaseURL: baseURL,
		APIKey:  "key-123",
		Headers: map[string]string{"X-Acme-Version": "2"},
		Endpoints: map[models.Tool]remote.Endpoint{
			models.ToolText2Mesh: {
				CreatePath: "/tasks",
				StatusPath: "/tasks/%s",
				Body: func(req models.GenerationRequest) map[string]any {
					return map[string]any{"prompt": req.Prompt}
				},
			},
		},
		IDExpr:     "task.id",
		StatusExpr: "task.state",
		URLsExpr:   "task.outputs[].url",
		ErrorExpr:  "task.error",
		StatusMap: map[string]models.JobStatus{
			"RUNNING": models.JobStatusProcessing,
			"DONE":    models.JobStatusCompleted,
			"ERROR":   models.JobStatusFailed,
		},
		WebhookField: "callback",
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient_MissingCredential(t *testing.T) {
	spec := testSpec("http://localhost")
	spec.APIKey = ""
	_, err := remote.NewClient(spec, remote.Options{Archiver: &fakeArchiver{}})
	assert.ErrorIs(t, err, provider.ErrMissingCredential)
}

func TestNewClient_InvalidExpression(t *testing.T) {
	spec := testSpec("http://localhost")
	spec.URLsExpr = "task.[["
	_, err := remote.NewClient(spec, remote.Options{Archiver: &fakeArchiver{}})
	assert.Error(t, err)
}

func TestSubmit_CreatesTask(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/tasks", r.URL.Path)
		assert.Equal(t, "Bearer key-123", r.Header.Get("Authorization"))
		assert.Equal(t, "2", r.Header.Get("X-Acme-Version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusAccepted, map[string]any{"task": map[string]any{"id": "t-1"}})
	}))
	defer srv.Close()

	c, err := remote.NewClient(testSpec(srv.URL), remote.Options{
		HTTPClient: srv.Client(),
		Archiver:   &fakeArchiver{},
		WebhookURL: "https://genforge.example/api/webhooks/vendor",
	})
	require.NoError(t, err)

	job, err := c.Submit(context.Background(), models.GenerationRequest{Tool: models.ToolText2Mesh, Prompt: "robot"})
	require.NoError(t, err)
	assert.Equal(t, "text2mesh:t-1", job.ID)
	assert.Equal(t, models.JobStatusProcessing, job.Status)
	assert.Equal(t, "t-1", job.Meta[remote.MetaRemoteTaskID])
	assert.Equal(t, "robot", got["prompt"])
	assert.Equal(t, "https://genforge.example/api/webhooks/vendor", got["callback"])
}

func TestSubmit_UnsupportedTool(t *testing.T) {
	c, err := remote.NewClient(testSpec("http://localhost"), remote.Options{Archiver: &fakeArchiver{}})
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), models.GenerationRequest{Tool: models.ToolText2Image, Prompt: "x"})
	assert.ErrorIs(t, err, provider.ErrUnsupportedTool)
	assert.Equal(t, []models.Tool{models.ToolText2Mesh}, c.Tools())
}

func TestSubmit_VendorErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"bad request", http.StatusBadRequest, provider.ErrProviderFailed},
		{"throttled", http.StatusTooManyRequests, provider.ErrProviderUnreachable},
		{"server error", http.StatusBadGateway, provider.ErrProviderUnreachable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, map[string]any{"message": "nope"})
			}))
			defer srv.Close()

			c, err := remote.NewClient(testSpec(srv.URL), remote.Options{HTTPClient: srv.Client(), Archiver: &fakeArchiver{}})
			require.NoError(t, err)

			_, err = c.Submit(context.Background(), models.GenerationRequest{Tool: models.ToolText2Mesh, Prompt: "x"})
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestSubmit_MissingTaskID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"task": map[string]any{}})
	}))
	defer srv.Close()

	c, err := remote.NewClient(testSpec(srv.URL), remote.Options{HTTPClient: srv.Client(), Archiver: &fakeArchiver{}})
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), models.GenerationRequest{Tool: models.ToolText2Mesh, Prompt: "x"})
	assert.ErrorIs(t, err, provider.ErrInvalidResponse)
}

func TestGetStatus_Lifecycle(t *testing.T) {
	state := "RUNNING"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tasks/t-9", r.URL.Path)
		task := map[string]any{"id": "t-9", "state": state}
		switch state {
		case "DONE":
			task["outputs"] = []any{map[string]any{"url": "https://cdn.acme/t-9.glb"}}
		case "ERROR":
			task["error"] = "mesh collapsed"
		}
		writeJSON(w, http.StatusOK, map[string]any{"task": task})
	}))
	defer srv.Close()

	arch := &fakeArchiver{}
	c, err := remote.NewClient(testSpec(srv.URL), remote.Options{HTTPClient: srv.Client(), Archiver: arch})
	require.NoError(t, err)
	ctx := context.Background()

	job, err := c.GetStatus(ctx, "text2mesh:t-9")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, job.Status)

	state = "DONE"
	job, err = c.GetStatus(ctx, "text2mesh:t-9")
	require.NoError(t, err)
	require.Equal(t, models.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, []string{"https://cdn.acme/t-9.glb"}, job.Result.AssetURLs)
	assets, ok := job.Result.Meta[models.MetaAssets].([]models.Asset)
	require.True(t, ok)
	assert.Equal(t, "remote/acme/t-9/file", assets[0].LocalPath)
	assert.Equal(t, "DONE", assets[0].VendorStatus)
	assert.Equal(t, []string{"remote/acme/t-9"}, arch.prefixes)

	state = "ERROR"
	job, err = c.GetStatus(ctx, "text2mesh:t-9")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, "mesh collapsed", job.Error)
}

func TestGetStatus_CompletedWithoutAssetsFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"task": map[string]any{"state": "DONE"}})
	}))
	defer srv.Close()

	c, err := remote.NewClient(testSpec(srv.URL), remote.Options{HTTPClient: srv.Client(), Archiver: &fakeArchiver{}})
	require.NoError(t, err)

	job, err := c.GetStatus(context.Background(), "text2mesh:t-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.NotEmpty(t, job.Error)
}

func TestGetStatus_ArchiveFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"task": map[string]any{
			"state": "DONE", "outputs": []any{map[string]any{"url": "https://cdn.acme/a.glb"}},
		}})
	}))
	defer srv.Close()

	c, err := remote.NewClient(testSpec(srv.URL), remote.Options{
		HTTPClient: srv.Client(),
		Archiver:   &fakeArchiver{err: assert.AnError},
	})
	require.NoError(t, err)

	_, err = c.GetStatus(context.Background(), "text2mesh:t-1")
	assert.ErrorIs(t, err, provider.ErrProviderUnreachable)
}

func TestGetStatus_UnknownIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c, err := remote.NewClient(testSpec(srv.URL), remote.Options{HTTPClient: srv.Client(), Archiver: &fakeArchiver{}})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.GetStatus(ctx, "text2mesh:gone")
	assert.ErrorIs(t, err, provider.ErrJobNotFound)
	_, err = c.GetStatus(ctx, "no-tool-prefix")
	assert.ErrorIs(t, err, provider.ErrJobNotFound)
	_, err = c.GetStatus(ctx, "text2image:t-1")
	assert.ErrorIs(t, err, provider.ErrJobNotFound)
}
