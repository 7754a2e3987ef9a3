package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/genforge/internal/cache"
	"github.com/kiranshivaraju/genforge/internal/jobs"
	"github.com/kiranshivaraju/genforge/internal/store"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

// DeliveryTTL is how long a processed body is remembered for duplicate
// detection.
const DeliveryTTL = 24 * time.Hour

var ErrInvalidPayload = errors.New("invalid webhook payload")

// Payload is the callback body a provider posts when a job changes state.
type Payload struct {
	ProviderJobID string  `json:"providerJobId"`
	Provider      string  `json:"provider,omitempty"`
	Status        string  `json:"status"`
	Result        *Result `json:"result,omitempty"`
	Error         string  `json:"error,omitempty"`
}

type Result struct {
	AssetURLs []string       `json:"assetUrls"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Outcome describes what a delivery did.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	// OutcomeIgnored covers non-terminal statuses and jobs already terminal.
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
)

// JobLookup finds the job a callback refers to.
type JobLookup interface {
	GetJobByProviderJobID(ctx context.Context, providerJobID string) (*models.Job, error)
}

// Finisher applies terminal transitions. *jobs.Service satisfies it.
type Finisher interface {
	CompleteJob(ctx context.Context, id uuid.UUID, result *models.ProviderResult) (*models.Job, error)
	FailJob(ctx context.Context, id uuid.UUID, reason string) (*models.Job, error)
}

// Archiver copies remote result files into local storage.
type Archiver interface {
	Archive(ctx context.Context, prefix string, urls []string, vendorStatus string) ([]models.Asset, error)
}

// Receiver verifies and applies provider callbacks.
type Receiver struct {
	secret   string
	lookup   JobLookup
	finisher Finisher
	archiver Archiver
	cache    cache.Cache
}

// NewReceiver creates a Receiver. archiver and c may be nil, which disables
// asset archiving and duplicate detection respectively.
func NewReceiver(secret string, lookup JobLookup, finisher Finisher, archiver Archiver, c cache.Cache) *Receiver {
	return &Receiver{secret: secret, lookup: lookup, finisher: finisher, archiver: archiver, cache: c}
}

// Handle authenticates body against signature and applies it. Nothing in the
// body is read before the signature checks out.
func (r *Receiver) Handle(ctx context.Context, body []byte, signature string) (Outcome, error) {
	if err := Verify(r.secret, body, signature); err != nil {
		return "", err
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	p.ProviderJobID = strings.TrimSpace(p.ProviderJobID)
	if p.ProviderJobID == "" {
		return "", fmt.Errorf("%w: providerJobId is required", ErrInvalidPayload)
	}

	// Redis only short-circuits replays; the guarded status update in the
	// store is what makes delivery idempotent.
	key := cache.WebhookDeliveryKey(body)
	if r.cache != nil {
		first, err := r.cache.MarkOnce(ctx, key, DeliveryTTL)
		if err != nil {
			slog.Warn("webhook dedupe unavailable", "error", err)
		} else if !first {
			slog.Info("duplicate webhook delivery", "provider_job_id", p.ProviderJobID)
			return OutcomeDuplicate, nil
		}
	}

	outcome, err := r.apply(ctx, p)
	if err != nil && r.cache != nil {
		// Let the provider's retry through.
		_ = r.cache.Delete(ctx, key)
	}
	return outcome, err
}

func (r *Receiver) apply(ctx context.Context, p Payload) (Outcome, error) {
	job, err := r.lookup.GetJobByProviderJobID(ctx, p.ProviderJobID)
	if errors.Is(err, store.ErrNotFound) {
		return "", jobs.ErrJobNotFound
	}
	if err != nil {
		return "", fmt.Errorf("looking up job: %w", err)
	}
	if p.Provider != "" && job.Provider != "" && !strings.EqualFold(p.Provider, job.Provider) {
		return "", fmt.Errorf("%w: job belongs to provider %q", ErrInvalidPayload, job.Provider)
	}

	log := slog.With("job_id", job.ID, "provider", job.Provider, "status", p.Status)
	if job.Status.Terminal() {
		log.Info("webhook for terminal job ignored")
		return OutcomeIgnored, nil
	}

	switch normalizeStatus(p.Status) {
	case models.JobStatusCompleted:
		result, err := r.result(ctx, job.ID, p)
		if err != nil {
			return "", err
		}
		if _, err := r.finisher.CompleteJob(ctx, job.ID, result); err != nil {
			if errors.Is(err, store.ErrAlreadyTerminal) {
				return OutcomeIgnored, nil
			}
			return "", fmt.Errorf("completing job: %w", err)
		}
		log.Info("webhook completed job")
		return OutcomeCompleted, nil

	case models.JobStatusFailed:
		if _, err := r.finisher.FailJob(ctx, job.ID, p.Error); err != nil {
			if errors.Is(err, store.ErrAlreadyTerminal) {
				return OutcomeIgnored, nil
			}
			return "", fmt.Errorf("failing job: %w", err)
		}
		log.Info("webhook failed job")
		return OutcomeFailed, nil
	}

	return OutcomeIgnored, nil
}

// result archives the delivered assets and records their provenance.
func (r *Receiver) result(ctx context.Context, jobID uuid.UUID, p Payload) (*models.ProviderResult, error) {
	res := &models.ProviderResult{Meta: map[string]any{}}
	if p.Result == nil {
		return res, nil
	}
	res.AssetURLs = p.Result.AssetURLs
	maps.Copy(res.Meta, p.Result.Meta)

	if r.archiver == nil || len(res.AssetURLs) == 0 {
		return res, nil
	}
	assets, err := r.archiver.Archive(ctx, "jobs/"+jobID.String(), res.AssetURLs, p.Status)
	if err != nil {
		return nil, fmt.Errorf("archiving assets: %w", err)
	}
	res.Meta[models.MetaAssets] = assets
	return res, nil
}

func normalizeStatus(s string) models.JobStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "completed", "succeeded", "success":
		return models.JobStatusCompleted
	case "failed", "error", "expired", "canceled", "cancelled":
		return models.JobStatusFailed
	}
	return models.JobStatusProcessing
}
