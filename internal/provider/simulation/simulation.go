// Package simulation provides an in-process provider that completes every
// capability after a fixed per-tool latency without touching the network.
package simulation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/genforge/internal/provider"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

// retention is how long finished jobs stay queryable.
const retention = 24 * time.Hour

// Provider implements every capability. Jobs live in a mutex-guarded map and
// become complete once the clock passes their ready time.
type Provider struct {
	mu        sync.Mutex
	jobs      map[string]*simJob
	latencies map[models.Tool]time.Duration
	assetBase string
	now       func() time.Time
}

type simJob struct {
	tool    models.Tool
	readyAt time.Time
	result  models.ProviderResult
}

type Option func(*Provider)

// WithClock replaces time.Now, letting tests step completion deterministically.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// WithLatencies sets the delay before a job of each tool completes. A zero
// latency completes synchronously from Submit.
func WithLatencies(l map[models.Tool]time.Duration) Option {
	return func(p *Provider) {
		for tool, d := range l {
			p.latencies[tool] = d
		}
	}
}

// WithAssetBaseURL sets the prefix of the catalog asset URLs.
func WithAssetBaseURL(base string) Option {
	return func(p *Provider) { p.assetBase = strings.TrimRight(base, "/") }
}

func New(opts ...Option) *Provider {
	p := &Provider{
		jobs: make(map[string]*simJob),
		latencies: map[models.Tool]time.Duration{
			models.ToolText2Image:  2 * time.Second,
			models.ToolText2Mesh:   8 * time.Second,
			models.ToolTexturing:   6 * time.Second,
			models.ToolImage2Video: 10 * time.Second,
		},
		assetBase: "/samples",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return provider.SimulationName }

func (p *Provider) Submit(ctx context.Context, req models.GenerationRequest) (models.ProviderJob, error) {
	if err := ctx.Err(); err != nil {
		return models.ProviderJob{}, err
	}
	if !req.Tool.Valid() {
		return models.ProviderJob{}, fmt.Errorf("%w: %q", provider.ErrUnsupportedTool, req.Tool)
	}
	if err := req.Validate(); err != nil {
		return models.ProviderJob{}, fmt.Errorf("%w: %v", provider.ErrProviderFailed, err)
	}

	id := "sim_" + uuid.NewString()
	entry := match(req.Prompt)
	now := p.now()
	job := &simJob{
		tool:    req.Tool,
		readyAt: now.Add(p.latencies[req.Tool]),
		result: models.ProviderResult{
			AssetURLs: []string{p.assetURL(req.Tool, entry.slug)},
			Meta: map[string]any{
				"simulated": true,
				"catalog":   entry.slug,
			},
		},
	}

	p.mu.Lock()
	p.sweep(now)
	p.jobs[id] = job
	p.mu.Unlock()

	return p.view(id, job, now), nil
}

func (p *Provider) GetStatus(ctx context.Context, providerJobID string) (models.ProviderJob, error) {
	if err := ctx.Err(); err != nil {
		return models.ProviderJob{}, err
	}

	p.mu.Lock()
	job, ok := p.jobs[providerJobID]
	p.mu.Unlock()
	if !ok {
		return models.ProviderJob{}, fmt.Errorf("%w: %s", provider.ErrJobNotFound, providerJobID)
	}
	return p.view(providerJobID, job, p.now()), nil
}

func (p *Provider) view(id string, job *simJob, now time.Time) models.ProviderJob {
	pj := models.ProviderJob{
		ID:     id,
		Status: models.JobStatusProcessing,
		Meta:   map[string]any{"remote_task_id": id},
	}
	if !now.Before(job.readyAt) {
		pj.Status = models.JobStatusCompleted
		result := job.result
		result.AssetURLs = append([]string(nil), job.result.AssetURLs...)
		pj.Result = &result
	}
	return pj
}

// sweep drops jobs that finished more than retention ago. Callers hold mu.
func (p *Provider) sweep(now time.Time) {
	for id, job := range p.jobs {
		if now.Sub(job.readyAt) > retention {
			delete(p.jobs, id)
		}
	}
}

func (p *Provider) assetURL(tool models.Tool, slug string) string {
	switch tool {
	case models.ToolText2Mesh:
		return fmt.Sprintf("%s/meshes/%s.glb", p.assetBase, slug)
	case models.ToolTexturing:
		return fmt.Sprintf("%s/meshes/%s-textured.glb", p.assetBase, slug)
	case models.ToolImage2Video:
		return fmt.Sprintf("%s/videos/%s.mp4", p.assetBase, slug)
	default:
		return fmt.Sprintf("%s/images/%s.png", p.assetBase, slug)
	}
}

var (
	_ models.TextToImage  = (*Provider)(nil)
	_ models.TextToMesh   = (*Provider)(nil)
	_ models.Texturer     = (*Provider)(nil)
	_ models.ImageToVideo = (*Provider)(nil)
)
