package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/genforge/internal/provider"
	"github.com/kiranshivaraju/genforge/internal/store"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

// Poller tracks processing jobs by asking their provider for status on a
// fixed interval. Each job has at most one poll task.
type Poller struct {
	svc *Service

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	tasks map[uuid.UUID]struct{}
	wg    sync.WaitGroup
}

func newPoller(svc *Service) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		svc:    svc,
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[uuid.UUID]struct{}),
	}
}

// Schedule starts polling jobID. It is a no-op when the job already has a
// task or the poller has stopped.
func (p *Poller) Schedule(jobID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx.Err() != nil {
		return
	}
	if _, ok := p.tasks[jobID]; ok {
		return
	}
	p.tasks[jobID] = struct{}{}
	p.wg.Add(1)
	go p.poll(jobID)
}

// Active returns the number of running poll tasks.
func (p *Poller) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

// Run blocks until ctx is done, then stops every task.
func (p *Poller) Run(ctx context.Context) error {
	<-ctx.Done()
	p.Stop()
	return nil
}

// Stop cancels all poll tasks and waits for them to return. Jobs stay
// processing and are picked up again by Service.Resume on the next start.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.cancel()
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Poller) poll(jobID uuid.UUID) {
	defer func() {
		p.mu.Lock()
		delete(p.tasks, jobID)
		p.mu.Unlock()
		p.wg.Done()
	}()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in poller", "error", r, "job_id", jobID)
			p.svc.failQuietly(context.Background(), jobID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	timer := time.NewTimer(p.svc.cfg.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-timer.C:
		}

		if done := p.attempt(p.ctx, jobID); done {
			return
		}
		timer.Reset(p.svc.cfg.PollInterval)
	}
}

// attempt runs one poll and reports whether the task is finished.
func (p *Poller) attempt(ctx context.Context, jobID uuid.UUID) bool {
	svc := p.svc

	if status, ok, err := svc.cache.GetJobStatus(ctx, jobID); err == nil && ok && status.Terminal() {
		return true
	}

	job, err := svc.store.GetJobByID(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return true
	}
	if err != nil {
		slog.Warn("poll: loading job", "job_id", jobID, "error", err)
		return ctx.Err() != nil
	}
	if job.Status != models.JobStatusProcessing {
		return true
	}
	if job.ProviderJobID == nil || *job.ProviderJobID == "" {
		svc.failQuietly(ctx, jobID, msgNoProviderJobID)
		return true
	}

	attempts, err := svc.store.RecordPollAttempt(ctx, jobID)
	if errors.Is(err, store.ErrAlreadyTerminal) {
		return true
	}
	if err != nil {
		slog.Warn("poll: recording attempt", "job_id", jobID, "error", err)
		attempts = job.PollAttempts + 1
	}

	prov, err := svc.providers.ByName(job.Provider)
	if err != nil {
		svc.failQuietly(ctx, jobID, err.Error())
		return true
	}

	callCtx, cancel := context.WithTimeout(ctx, svc.cfg.ProviderTimeout)
	pj, err := prov.GetStatus(callCtx, *job.ProviderJobID)
	cancel()

	switch {
	case ctx.Err() != nil:
		return true
	case errors.Is(err, provider.ErrJobNotFound):
		svc.failQuietly(ctx, jobID, err.Error())
		return true
	case err != nil:
		slog.Warn("poll: provider status", "job_id", jobID, "provider", prov.Name(), "attempt", attempts, "error", err)
	case pj.Status == models.JobStatusCompleted:
		if _, err := svc.CompleteJob(ctx, jobID, pj.Result); err != nil && !errors.Is(err, store.ErrAlreadyTerminal) {
			slog.Error("poll: completing job", "job_id", jobID, "error", err)
		}
		return true
	case pj.Status == models.JobStatusFailed:
		svc.failQuietly(ctx, jobID, pj.Error)
		return true
	}

	if attempts >= svc.cfg.PollMaxAttempts {
		slog.Warn("poll: giving up", "job_id", jobID, "attempts", attempts)
		svc.failQuietly(ctx, jobID, ErrPollTimeout.Error())
		return true
	}
	return false
}
