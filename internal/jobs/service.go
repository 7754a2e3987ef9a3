package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/genforge/internal/cache"
	"github.com/kiranshivaraju/genforge/internal/store"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

// MaxPromptLength bounds the prompt in runes.
const MaxPromptLength = 2000

// Failure messages recorded in meta.error.
const (
	msgProviderFailed  = "provider reported failure"
	msgNoAssets        = "provider returned no assets"
	msgNoProviderJobID = "provider returned no job id"
	msgInterrupted     = "interrupted before submission"
)

// Providers resolves generation backends. *provider.Registry satisfies it.
type Providers interface {
	For(tool models.Tool) models.Provider
	ByName(name string) (models.Provider, error)
}

// Config tunes the orchestrator.
type Config struct {
	// BaseURL prefixes download links for archived assets. Empty yields
	// relative links.
	BaseURL         string
	InitialCredits  int
	PollInterval    time.Duration
	PollMaxAttempts int
	// ProviderTimeout bounds a single Submit or GetStatus call.
	ProviderTimeout time.Duration
	Now             func() time.Time
}

// CreateJobParams holds an unvalidated job request.
type CreateJobParams struct {
	Tool      string
	Prompt    string
	Inputs    map[string]any
	UserID    uuid.UUID
	SessionID uuid.UUID
}

// JobPage is one page of a user's jobs, newest first.
type JobPage struct {
	Jobs   []*models.Job
	Limit  int
	Offset int
	Total  int
}

// HasMore reports whether jobs exist past this page.
func (p JobPage) HasMore() bool {
	return p.Offset+len(p.Jobs) < p.Total
}

// Service orchestrates the job lifecycle: reservation, dispatch, and the
// terminal transitions reached through polling or webhooks.
type Service struct {
	store     store.Store
	cache     cache.Cache
	providers Providers
	poller    *Poller
	cfg       Config

	inflight sync.WaitGroup
}

// NewService creates a Service and its poller.
func NewService(st store.Store, c cache.Cache, providers Providers, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.PollMaxAttempts <= 0 {
		cfg.PollMaxAttempts = 60
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	s := &Service{store: st, cache: c, providers: providers, cfg: cfg}
	s.poller = newPoller(s)
	return s
}

// Poller returns the poller that tracks processing jobs.
func (s *Service) Poller() *Poller {
	return s.poller
}

// EnsureIdentity creates the user (with the initial grant) and session rows
// on first use.
func (s *Service) EnsureIdentity(ctx context.Context, userID, sessionID uuid.UUID) error {
	if _, err := s.store.EnsureUser(ctx, userID, "demo", s.cfg.InitialCredits); err != nil {
		return fmt.Errorf("ensuring user: %w", err)
	}
	if _, err := s.store.EnsureSession(ctx, sessionID, userID); err != nil {
		return fmt.Errorf("ensuring session: %w", err)
	}
	return nil
}

// CreateJob validates the request, reserves credits and a heavy-job slot,
// persists a queued job and dispatches it in the background. The returned job
// is queued; its outcome is observed through GetJob.
func (s *Service) CreateJob(ctx context.Context, p CreateJobParams) (*models.Job, error) {
	tool, ok := models.ParseTool(p.Tool)
	if !ok {
		return nil, &ValidationError{Field: "tool", Message: fmt.Sprintf("unsupported tool %q", p.Tool)}
	}
	prompt := strings.TrimSpace(p.Prompt)
	if prompt == "" {
		return nil, &ValidationError{Field: "prompt", Message: "prompt is required"}
	}
	if utf8.RuneCountInString(prompt) > MaxPromptLength {
		return nil, &ValidationError{Field: "prompt", Message: fmt.Sprintf("prompt exceeds %d characters", MaxPromptLength)}
	}
	if err := buildRequest(tool, prompt, p.Inputs).Validate(); err != nil {
		return nil, &ValidationError{Field: "inputs", Message: err.Error()}
	}

	cost := tool.Cost()
	now := s.cfg.Now().UTC()

	balance, err := s.store.GetCredits(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("reading credits: %w", err)
	}
	if balance < cost {
		return nil, &InsufficientCreditsError{Balance: balance, Required: cost}
	}

	if tool.Heavy() {
		sess, err := s.store.GetSession(ctx, p.SessionID, p.UserID)
		if err != nil {
			return nil, fmt.Errorf("reading session: %w", err)
		}
		if !sess.CanStartHeavyJob(now) {
			return nil, ErrRateLimitExceeded
		}
	}

	job := &models.Job{
		ID:          uuid.New(),
		Tool:        tool,
		Prompt:      prompt,
		Inputs:      p.Inputs,
		Status:      models.JobStatusQueued,
		AssetURLs:   []string{},
		Meta:        map[string]any{},
		UserID:      p.UserID,
		SessionID:   p.SessionID,
		CreditsUsed: cost,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// The checks above are advisory; ReserveJob repeats them atomically.
	balance, err = s.store.ReserveJob(ctx, job, now)
	switch {
	case errors.Is(err, store.ErrInsufficientCredits):
		return nil, &InsufficientCreditsError{Balance: balance, Required: cost}
	case errors.Is(err, store.ErrRateLimited):
		return nil, ErrRateLimitExceeded
	case err != nil:
		return nil, fmt.Errorf("reserving job: %w", err)
	}

	_ = s.cache.SetJobStatus(ctx, job.ID, models.JobStatusQueued, cache.JobStatusTTL)
	slog.Info("job created", "job_id", job.ID, "tool", tool, "credits_used", cost, "balance", balance)

	s.inflight.Add(1)
	go s.dispatch(job)

	return job, nil
}

// dispatch hands a queued job to its provider. Every exit path leaves the job
// processing with a poll task, or terminal.
func (s *Service) dispatch(job *models.Job) {
	defer s.inflight.Done()

	ctx := context.Background()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in dispatch", "error", r, "job_id", job.ID)
			s.failQuietly(ctx, job.ID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	prov := s.providers.For(job.Tool)
	if err := s.store.MarkProcessing(ctx, job.ID, prov.Name()); err != nil {
		if !errors.Is(err, store.ErrAlreadyTerminal) {
			s.failQuietly(ctx, job.ID, fmt.Sprintf("dispatch: %v", err))
		}
		return
	}
	_ = s.cache.SetJobStatus(ctx, job.ID, models.JobStatusProcessing, cache.JobStatusTTL)

	submitCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	pj, err := prov.Submit(submitCtx, buildRequest(job.Tool, job.Prompt, job.Inputs))
	cancel()
	if err != nil {
		slog.Warn("provider submit failed", "job_id", job.ID, "provider", prov.Name(), "error", err)
		s.failQuietly(ctx, job.ID, err.Error())
		return
	}

	if pj.ID != "" {
		if err := s.store.SetProviderJobID(ctx, job.ID, pj.ID, pj.Meta); err != nil {
			if !errors.Is(err, store.ErrAlreadyTerminal) {
				s.failQuietly(ctx, job.ID, fmt.Sprintf("recording provider job id: %v", err))
			}
			return
		}
	}

	switch pj.Status {
	case models.JobStatusCompleted:
		if _, err := s.CompleteJob(ctx, job.ID, pj.Result); err != nil && !errors.Is(err, store.ErrAlreadyTerminal) {
			slog.Error("completing job", "job_id", job.ID, "error", err)
		}
	case models.JobStatusFailed:
		s.failQuietly(ctx, job.ID, pj.Error)
	default:
		if pj.ID == "" {
			s.failQuietly(ctx, job.ID, msgNoProviderJobID)
			return
		}
		s.poller.Schedule(job.ID)
	}
}

// CompleteJob records a provider result. Archived assets are exposed through
// the download endpoint; everything else keeps the provider's URL. A result
// without assets fails the job instead.
func (s *Service) CompleteJob(ctx context.Context, id uuid.UUID, result *models.ProviderResult) (*models.Job, error) {
	if result == nil || len(result.AssetURLs) == 0 {
		return s.FailJob(ctx, id, msgNoAssets)
	}

	meta := maps.Clone(result.Meta)
	urls := s.publicURLs(id, result.AssetURLs, models.AssetsFromMeta(meta))

	job, err := s.store.CompleteJob(ctx, id, urls, meta)
	if err != nil {
		return nil, s.mapTransitionError(err)
	}

	_ = s.cache.SetJobStatus(ctx, id, models.JobStatusCompleted, cache.JobStatusTTL)
	slog.Info("job completed", "job_id", id, "provider", job.Provider, "assets", len(urls))
	return job, nil
}

// FailJob marks a job failed and refunds its credits exactly once. A job that
// is already terminal yields store.ErrAlreadyTerminal and changes nothing.
func (s *Service) FailJob(ctx context.Context, id uuid.UUID, reason string) (*models.Job, error) {
	if strings.TrimSpace(reason) == "" {
		reason = msgProviderFailed
	}

	job, err := s.store.FailJob(ctx, id, reason)
	if err != nil {
		return nil, s.mapTransitionError(err)
	}

	_ = s.cache.SetJobStatus(ctx, id, models.JobStatusFailed, cache.JobStatusTTL)
	slog.Info("job failed", "job_id", id, "provider", job.Provider, "refunded", job.CreditsUsed, "error", reason)
	return job, nil
}

// failQuietly fails a job from a background path where the caller cannot act
// on the error.
func (s *Service) failQuietly(ctx context.Context, id uuid.UUID, reason string) {
	if _, err := s.FailJob(ctx, id, reason); err != nil && !errors.Is(err, store.ErrAlreadyTerminal) {
		slog.Error("failing job", "job_id", id, "error", err)
	}
}

func (s *Service) mapTransitionError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrJobNotFound
	}
	return err
}

func (s *Service) publicURLs(id uuid.UUID, urls []string, assets []models.Asset) []string {
	out := make([]string, len(urls))
	for i, u := range urls {
		out[i] = u
		if i < len(assets) && assets[i].LocalPath != "" {
			out[i] = fmt.Sprintf("%s/api/assets/%s/download?index=%d", s.cfg.BaseURL, id, i)
		}
	}
	return out
}

// GetJob returns a job owned by userID.
func (s *Service) GetJob(ctx context.Context, id, userID uuid.UUID) (*models.Job, error) {
	job, err := s.store.GetJob(ctx, id, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting job: %w", err)
	}
	return job, nil
}

// ListJobs returns one page of the user's jobs. Out-of-range limits are
// clamped.
func (s *Service) ListJobs(ctx context.Context, userID uuid.UUID, limit, offset int) (JobPage, error) {
	filter := store.JobFilter{UserID: userID, Limit: limit, Offset: offset}.Normalize()
	jobs, total, err := s.store.ListJobs(ctx, filter)
	if err != nil {
		return JobPage{}, fmt.Errorf("listing jobs: %w", err)
	}
	return JobPage{Jobs: jobs, Limit: filter.Limit, Offset: filter.Offset, Total: total}, nil
}

// GetCredits returns the user's balance.
func (s *Service) GetCredits(ctx context.Context, userID uuid.UUID) (int, error) {
	credits, err := s.store.GetCredits(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("getting credits: %w", err)
	}
	return credits, nil
}

// GrantCredits adds amount to the user's balance and returns the new balance.
func (s *Service) GrantCredits(ctx context.Context, userID uuid.UUID, amount int) (int, error) {
	if amount <= 0 {
		return 0, &ValidationError{Field: "amount", Message: "amount must be positive"}
	}
	credits, err := s.store.GrantCredits(ctx, userID, amount)
	if errors.Is(err, store.ErrNotFound) {
		return 0, &ValidationError{Field: "userId", Message: "unknown user"}
	}
	if err != nil {
		return 0, fmt.Errorf("granting credits: %w", err)
	}
	slog.Info("credits granted", "user_id", userID, "amount", amount, "balance", credits)
	return credits, nil
}

// Resume picks up work left behind by a previous process: queued jobs are
// dispatched again, processing jobs with a provider handle are polled, and
// processing jobs without one are failed.
func (s *Service) Resume(ctx context.Context) error {
	pending, err := s.store.ListJobsByStatus(ctx, models.JobStatusQueued, models.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("listing unfinished jobs: %w", err)
	}

	var dispatched, polled, failed int
	for _, job := range pending {
		switch {
		case job.Status == models.JobStatusQueued:
			s.inflight.Add(1)
			go s.dispatch(job)
			dispatched++
		case job.ProviderJobID != nil && *job.ProviderJobID != "":
			s.poller.Schedule(job.ID)
			polled++
		default:
			s.failQuietly(ctx, job.ID, msgInterrupted)
			failed++
		}
	}

	if len(pending) > 0 {
		slog.Info("resumed unfinished jobs", "dispatched", dispatched, "polled", polled, "failed", failed)
	}
	return nil
}

// Wait blocks until every in-flight dispatch has returned.
func (s *Service) Wait() {
	s.inflight.Wait()
}

// buildRequest maps stored job inputs onto a provider request. modelUrl and
// imageUrl are lifted out; everything else passes through as options.
func buildRequest(tool models.Tool, prompt string, inputs map[string]any) models.GenerationRequest {
	req := models.GenerationRequest{Tool: tool, Prompt: prompt, Options: map[string]any{}}
	for k, v := range inputs {
		switch k {
		case "modelUrl":
			req.ModelURL, _ = v.(string)
		case "imageUrl":
			req.ImageURL, _ = v.(string)
		default:
			req.Options[k] = v
		}
	}
	return req
}
