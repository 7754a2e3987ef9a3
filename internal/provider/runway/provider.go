// Package runway adapts the Runway task API for image2video.
package runway

import (
	"github.com/kiranshivaraju/genforge/internal/config"
	"github.com/kiranshivaraju/genforge/internal/provider"
	"github.com/kiranshivaraju/genforge/internal/provider/remote"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

const (
	Name       = "runway"
	apiVersion = "2024-11-06"
)

var statuses = map[string]models.JobStatus{
	"PENDING":   models.JobStatusProcessing,
	"THROTTLED": models.JobStatusProcessing,
	"RUNNING":   models.JobStatusProcessing,
	"SUCCEEDED": models.JobStatusCompleted,
	"FAILED":    models.JobStatusFailed,
	"CANCELLED": models.JobStatusFailed,
}

func Spec(cfg config.RunwayConfig) remote.Spec {
	return remote.Spec{
		Name:    Name,
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Headers: map[string]string{"X-Runway-Version": apiVersion},
		Endpoints: map[models.Tool]remote.Endpoint{
			models.ToolImage2Video: {
				CreatePath: "/v1/image_to_video",
				StatusPath: "/v1/tasks/%s",
				Body: func(req models.GenerationRequest) map[string]any {
					body := map[string]any{
						"model":       "gen4_turbo",
						"promptImage": req.ImageURL,
						"promptText":  req.Prompt,
						"ratio":       "1280:720",
						"duration":    5,
					}
					if d, ok := req.Options["duration"].(float64); ok && d > 0 {
						body["duration"] = int(d)
					}
					return body
				},
			},
		},
		IDExpr:     "id",
		StatusExpr: "status",
		URLsExpr:   "output",
		ErrorExpr:  "failure",
		StatusMap:  statuses,
	}
}

func New(cfg config.RunwayConfig, opts remote.Options) (*remote.Client, error) {
	return remote.NewClient(Spec(cfg), opts)
}

func Factory(cfg config.RunwayConfig, opts remote.Options) provider.Factory {
	return provider.Factory{
		Name:  Name,
		Tools: []models.Tool{models.ToolImage2Video},
		New: func() (models.Provider, error) {
			c, err := New(cfg, opts)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}
}
