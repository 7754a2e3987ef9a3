package provider

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/kiranshivaraju/genforge/internal/config"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

// SimulationName is the provider name that always resolves to the fallback.
const SimulationName = "simulation"

// Factory describes how to construct one vendor adapter. New is expected to
// return ErrMissingCredential when the vendor's key is not configured.
type Factory struct {
	Name  string
	Tools []models.Tool
	New   func() (models.Provider, error)
}

// Registry resolves the provider for each tool. It is built once at startup
// and passed explicitly to the components that dispatch work.
type Registry struct {
	fallback  models.Provider
	factories map[string]Factory

	mu        sync.Mutex
	instances map[string]models.Provider
	byTool    map[models.Tool]models.Provider
}

// NewRegistry resolves every tool's configured vendor. A vendor that cannot
// serve its tool is logged and replaced by fallback; NewRegistry never fails.
func NewRegistry(cfg config.ProvidersConfig, fallback models.Provider, factories ...Factory) *Registry {
	r := &Registry{
		fallback:  fallback,
		factories: make(map[string]Factory, len(factories)),
		instances: map[string]models.Provider{fallback.Name(): fallback},
		byTool:    make(map[models.Tool]models.Provider),
	}
	for _, f := range factories {
		r.factories[f.Name] = f
	}

	for _, tool := range models.AllTools() {
		r.byTool[tool] = r.resolve(tool, cfg.Selection(tool))
	}
	return r
}

func (r *Registry) resolve(tool models.Tool, name string) models.Provider {
	if name == SimulationName {
		return r.fallback
	}

	f, ok := r.factories[name]
	if !ok {
		r.degrade(tool, name, fmt.Errorf("%w: unknown provider %q", ErrProviderUnavailable, name))
		return r.fallback
	}
	if !slices.Contains(f.Tools, tool) {
		r.degrade(tool, name, fmt.Errorf("%w: %w", ErrProviderUnavailable, ErrUnsupportedTool))
		return r.fallback
	}

	p, err := r.instance(f)
	if err != nil {
		r.degrade(tool, name, err)
		return r.fallback
	}
	return p
}

func (r *Registry) instance(f Factory) (models.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.instances[f.Name]; ok {
		return p, nil
	}
	p, err := f.New()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	r.instances[f.Name] = p
	return p, nil
}

func (r *Registry) degrade(tool models.Tool, name string, err error) {
	slog.Warn("provider degraded, falling back to simulation",
		"tool", tool, "provider", name, "error", err)
}

// For returns the provider that serves tool.
func (r *Registry) For(tool models.Tool) models.Provider {
	if p, ok := r.byTool[tool]; ok {
		return p
	}
	return r.fallback
}

// ByName returns the provider that owns jobs recorded under name. Unlike For
// it does not fall back: a job submitted to one vendor cannot be tracked by
// another.
func (r *Registry) ByName(name string) (models.Provider, error) {
	r.mu.Lock()
	p, ok := r.instances[name]
	r.mu.Unlock()
	if ok {
		return p, nil
	}

	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", ErrProviderUnavailable, name)
	}
	return r.instance(f)
}

// Fallback returns the simulation provider.
func (r *Registry) Fallback() models.Provider {
	return r.fallback
}
