package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/genforge/internal/config"
	"github.com/kiranshivaraju/genforge/internal/provider"
	"github.com/kiranshivaraju/genforge/internal/provider/openai"
	"github.com/kiranshivaraju/genforge/internal/provider/remote"
	"github.com/kiranshivaraju/genforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type passthroughArchiver struct{}

func (passthroughArchiver) Archive(_ context.Context, prefix string, urls []string, status string) ([]models.Asset, error) {
	out := make([]models.Asset, len(urls))
	for i, u := range urls {
		out[i] = models.Asset{OriginalURL: u, LocalPath: prefix, VendorStatus: status}
	}
	return out, nil
}

func TestFactory_MissingKey(t *testing.T) {
	f := openai.Factory(config.OpenAIConfig{BaseURL: "https://api.openai.com"}, remote.Options{Archiver: passthroughArchiver{}})
	assert.Equal(t, "openai", f.Name)
	assert.Equal(t, []models.Tool{models.ToolText2Image}, f.Tools)

	_, err := f.New()
	assert.ErrorIs(t, err, provider.ErrMissingCredential)
}

func TestSubmit_CompletesSynchronously(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "dall-e-3", body["model"])
		assert.Equal(t, "512x512", body["size"])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"created": 1700000000,
			"data":    []any{map[string]any{"url": "https://oaidalle.example/img.png"}},
		})
	}))
	defer srv.Close()

	c, err := openai.New(config.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Model: "dall-e-3"},
		remote.Options{HTTPClient: srv.Client(), Archiver: passthroughArchiver{}})
	require.NoError(t, err)

	job, err := c.Submit(context.Background(), models.GenerationRequest{
		Tool:    models.ToolText2Image,
		Prompt:  "a lighthouse",
		Options: map[string]any{"size": "512x512"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, []string{"https://oaidalle.example/img.png"}, job.Result.AssetURLs)

	// Synchronous jobs have no status endpoint.
	_, err = c.GetStatus(context.Background(), job.ID)
	assert.ErrorIs(t, err, provider.ErrJobNotFound)
}
