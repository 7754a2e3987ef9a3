// Package meshy adapts the Meshy task API for text2mesh and texturing.
package meshy

import (
	"github.com/kiranshivaraju/genforge/internal/config"
	"github.com/kiranshivaraju/genforge/internal/provider"
	"github.com/kiranshivaraju/genforge/internal/provider/remote"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

const Name = "meshy"

var statuses = map[string]models.JobStatus{
	"PENDING":     models.JobStatusProcessing,
	"IN_PROGRESS": models.JobStatusProcessing,
	"SUCCEEDED":   models.JobStatusCompleted,
	"FAILED":      models.JobStatusFailed,
	"CANCELED":    models.JobStatusFailed,
	"EXPIRED":     models.JobStatusFailed,
}

func Spec(cfg config.MeshyConfig) remote.Spec {
	return remote.Spec{
		Name:    Name,
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Endpoints: map[models.Tool]remote.Endpoint{
			models.ToolText2Mesh: {
				CreatePath: "/openapi/v2/text-to-3d",
				StatusPath: "/openapi/v2/text-to-3d/%s",
				Body: func(req models.GenerationRequest) map[string]any {
					body := map[string]any{"mode": "preview", "prompt": req.Prompt}
					if style, ok := req.Options["artStyle"].(string); ok && style != "" {
						body["art_style"] = style
					}
					return body
				},
			},
			models.ToolTexturing: {
				CreatePath: "/openapi/v1/text-to-texture",
				StatusPath: "/openapi/v1/text-to-texture/%s",
				Body: func(req models.GenerationRequest) map[string]any {
					return map[string]any{
						"model_url":     req.ModelURL,
						"object_prompt": req.Prompt,
						"style_prompt":  req.Prompt,
					}
				},
			},
		},
		IDExpr:       "result",
		StatusExpr:   "status",
		URLsExpr:     "[model_urls.glb]",
		ErrorExpr:    "task_error.message",
		StatusMap:    statuses,
		WebhookField: "callback_url",
	}
}

func New(cfg config.MeshyConfig, opts remote.Options) (*remote.Client, error) {
	return remote.NewClient(Spec(cfg), opts)
}

func Factory(cfg config.MeshyConfig, opts remote.Options) provider.Factory {
	return provider.Factory{
		Name:  Name,
		Tools: []models.Tool{models.ToolText2Mesh, models.ToolTexturing},
		New: func() (models.Provider, error) {
			c, err := New(cfg, opts)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}
}
