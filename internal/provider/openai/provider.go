// Package openai adapts the OpenAI image generation API for text2image.
package openai

import (
	"github.com/kiranshivaraju/genforge/internal/config"
	"github.com/kiranshivaraju/genforge/internal/provider"
	"github.com/kiranshivaraju/genforge/internal/provider/remote"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

const Name = "openai"

// Spec describes the images endpoint. It answers synchronously with
// short-lived URLs, which the client archives before reporting completion.
func Spec(cfg config.OpenAIConfig) remote.Spec {
	return remote.Spec{
		Name:    Name,
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Endpoints: map[models.Tool]remote.Endpoint{
			models.ToolText2Image: {
				CreatePath: "/v1/images/generations",
				Body: func(req models.GenerationRequest) map[string]any {
					body := map[string]any{
						"model":           cfg.Model,
						"prompt":          req.Prompt,
						"n":               1,
						"size":            "1024x1024",
						"response_format": "url",
					}
					if size, ok := req.Options["size"].(string); ok && size != "" {
						body["size"] = size
					}
					return body
				},
			},
		},
		URLsExpr:    "data[].url",
		Synchronous: true,
	}
}

func New(cfg config.OpenAIConfig, opts remote.Options) (*remote.Client, error) {
	return remote.NewClient(Spec(cfg), opts)
}

// Factory registers the adapter with the provider registry.
func Factory(cfg config.OpenAIConfig, opts remote.Options) provider.Factory {
	return provider.Factory{
		Name:  Name,
		Tools: []models.Tool{models.ToolText2Image},
		New: func() (models.Provider, error) {
			c, err := New(cfg, opts)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}
}
