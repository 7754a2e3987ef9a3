package models

import (
	"context"
	"errors"
	"strings"
)

// Provider is the contract every generation backend implements, simulated
// or vendor-backed. Never call a vendor directly; resolve a Provider through
// the registry instead.
type Provider interface {
	// Name returns the provider identifier (e.g. "simulation", "meshy").
	Name() string
	// Submit starts generation and must return promptly, normally with a
	// processing job handle.
	Submit(ctx context.Context, req GenerationRequest) (ProviderJob, error)
	// GetStatus reports the current state of a previously submitted job.
	// Unknown ids are an error, never a default status.
	GetStatus(ctx context.Context, providerJobID string) (ProviderJob, error)
}

// Capability views over Provider. A registry entry for a tool satisfies the
// matching capability.
type (
	TextToImage  interface{ Provider }
	TextToMesh   interface{ Provider }
	Texturer     interface{ Provider }
	ImageToVideo interface{ Provider }
)

// GenerationRequest is the normalized input passed to any provider.
type GenerationRequest struct {
	Tool    Tool
	Prompt  string
	Options map[string]any
	// ModelURL references the pre-uploaded model to texture.
	ModelURL string
	// ImageURL references the pre-uploaded image to animate.
	ImageURL string
}

// Validate checks the per-capability required inputs.
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return errors.New("prompt is required")
	}
	switch r.Tool {
	case ToolTexturing:
		if strings.TrimSpace(r.ModelURL) == "" {
			return errors.New("texturing requires a model url")
		}
	case ToolImage2Video:
		if strings.TrimSpace(r.ImageURL) == "" {
			return errors.New("image2video requires an image url")
		}
	}
	return nil
}

// ProviderJob is the provider-local view of a submitted job.
type ProviderJob struct {
	ID     string
	Status JobStatus
	Result *ProviderResult
	Error  string
	Meta   map[string]any
}

// ProviderResult holds the output of a completed provider job.
type ProviderResult struct {
	AssetURLs []string
	Meta      map[string]any
}
