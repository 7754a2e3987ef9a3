package jobs_test

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/genforge/internal/provider"
	"github.com/kiranshivaraju/genforge/internal/store"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

// memStore is an in-memory store.Store. One mutex makes every method atomic,
// which mirrors the single-statement guards of the Postgres implementation.
type memStore struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*models.User
	sessions map[uuid.UUID]*models.Session
	jobs     map[uuid.UUID]*models.Job
	refunds  map[uuid.UUID]int
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[uuid.UUID]*models.User),
		sessions: make(map[uuid.UUID]*models.Session),
		jobs:     make(map[uuid.UUID]*models.Job),
		refunds:  make(map[uuid.UUID]int),
	}
}

func cloneJob(j *models.Job) *models.Job {
	c := *j
	c.Meta = maps.Clone(j.Meta)
	c.Inputs = maps.Clone(j.Inputs)
	c.AssetURLs = append([]string(nil), j.AssetURLs...)
	return &c
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) EnsureUser(_ context.Context, id uuid.UUID, name string, credits int) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		m.users[id] = &models.User{ID: id, DisplayName: name, Credits: credits}
	}
	u := *m.users[id]
	return &u, nil
}

func (m *memStore) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (m *memStore) GetCredits(_ context.Context, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	return u.Credits, nil
}

func (m *memStore) EnsureSession(_ context.Context, id, userID uuid.UUID) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := m.sessions[id]; !ok {
		m.sessions[id] = &models.Session{ID: id, UserID: userID}
	}
	s := *m.sessions[id]
	return &s, nil
}

func (m *memStore) GetSession(_ context.Context, id, userID uuid.UUID) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.UserID != userID {
		return nil, store.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (m *memStore) GetJob(_ context.Context, id, userID uuid.UUID) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.UserID != userID {
		return nil, store.ErrNotFound
	}
	return cloneJob(j), nil
}

func (m *memStore) GetJobByID(_ context.Context, id uuid.UUID) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneJob(j), nil
}

func (m *memStore) GetJobByProviderJobID(_ context.Context, pid string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if (j.ProviderJobID != nil && *j.ProviderJobID == pid) || j.Meta["remote_task_id"] == pid {
			return cloneJob(j), nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) sorted(keep func(*models.Job) bool) []*models.Job {
	var out []*models.Job
	for _, j := range m.jobs {
		if keep(j) {
			out = append(out, cloneJob(j))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out
}

func (m *memStore) ListJobs(_ context.Context, f store.JobFilter) ([]*models.Job, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f = f.Normalize()
	all := m.sorted(func(j *models.Job) bool { return j.UserID == f.UserID })
	total := len(all)
	if f.Offset >= total {
		return []*models.Job{}, total, nil
	}
	end := min(f.Offset+f.Limit, total)
	return all[f.Offset:end], total, nil
}

func (m *memStore) ListJobsByStatus(_ context.Context, statuses ...models.JobStatus) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(j *models.Job) bool {
		for _, s := range statuses {
			if j.Status == s {
				return true
			}
		}
		return false
	}), nil
}

func (m *memStore) guard(id uuid.UUID, from ...models.JobStatus) (*models.Job, error) {
	j, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	for _, s := range from {
		if j.Status == s {
			return j, nil
		}
	}
	if j.Status.Terminal() {
		return nil, store.ErrAlreadyTerminal
	}
	return nil, fmt.Errorf("%w: %s", store.ErrInvalidTransition, j.Status)
}

func (m *memStore) MarkProcessing(_ context.Context, id uuid.UUID, providerName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.guard(id, models.JobStatusQueued)
	if err != nil {
		return err
	}
	j.Status = models.JobStatusProcessing
	j.Provider = providerName
	return nil
}

func (m *memStore) SetProviderJobID(_ context.Context, id uuid.UUID, pid string, meta map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.guard(id, models.JobStatusProcessing)
	if err != nil {
		return err
	}
	j.ProviderJobID = &pid
	maps.Copy(j.Meta, meta)
	return nil
}

func (m *memStore) RecordPollAttempt(_ context.Context, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.guard(id, models.JobStatusProcessing)
	if err != nil {
		return 0, err
	}
	j.PollAttempts++
	return j.PollAttempts, nil
}

func (m *memStore) CompleteJob(_ context.Context, id uuid.UUID, urls []string, meta map[string]any) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(urls) == 0 {
		return nil, store.ErrInvalidTransition
	}
	j, err := m.guard(id, models.JobStatusProcessing)
	if err != nil {
		return nil, err
	}
	j.Status = models.JobStatusCompleted
	j.AssetURLs = append([]string(nil), urls...)
	maps.Copy(j.Meta, meta)
	return cloneJob(j), nil
}

func (m *memStore) ReserveJob(_ context.Context, job *models.Job, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[job.UserID]
	if !ok {
		return 0, store.ErrNotFound
	}
	if u.Credits < job.CreditsUsed {
		return u.Credits, store.ErrInsufficientCredits
	}
	if job.Tool.Heavy() {
		s, ok := m.sessions[job.SessionID]
		if !ok {
			return 0, store.ErrNotFound
		}
		if !s.CanStartHeavyJob(now) {
			return 0, store.ErrRateLimited
		}
		s.HeavyJobsThisHour = s.HeavyJobsInWindow(now) + 1
		s.LastHeavyJobAt = &now
	}
	u.Credits -= job.CreditsUsed
	c := cloneJob(job)
	if c.Meta == nil {
		c.Meta = map[string]any{}
	}
	m.jobs[job.ID] = c
	return u.Credits, nil
}

func (m *memStore) FailJob(_ context.Context, id uuid.UUID, msg string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.guard(id, models.JobStatusQueued, models.JobStatusProcessing)
	if err != nil {
		return nil, err
	}
	j.Status = models.JobStatusFailed
	j.Meta["error"] = msg
	m.users[j.UserID].Credits += j.CreditsUsed
	m.refunds[id]++
	return cloneJob(j), nil
}

func (m *memStore) GrantCredits(_ context.Context, userID uuid.UUID, amount int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return 0, store.ErrNotFound
	}
	u.Credits += amount
	return u.Credits, nil
}

func (m *memStore) refundCount(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refunds[id]
}

var _ store.Store = (*memStore)(nil)

// memCache is an in-memory cache.Cache.
type memCache struct {
	mu       sync.Mutex
	values   map[string][]byte
	statuses map[uuid.UUID]models.JobStatus
	counters map[string]int64
}

func newMemCache() *memCache {
	return &memCache{
		values:   make(map[string][]byte),
		statuses: make(map[uuid.UUID]models.JobStatus),
		counters: make(map[string]int64),
	}
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

func (c *memCache) Ping(context.Context) error { return nil }

func (c *memCache) SetJobStatus(_ context.Context, id uuid.UUID, status models.JobStatus, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[id] = status
	return nil
}

func (c *memCache) GetJobStatus(_ context.Context, id uuid.UUID) (models.JobStatus, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.statuses[id]
	return s, ok, nil
}

func (c *memCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key]++
	return c.counters[key], nil
}

func (c *memCache) MarkOnce(_ context.Context, key string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[key]; ok {
		return false, nil
	}
	c.values[key] = []byte("1")
	return true, nil
}

// staticProviders routes every tool to one provider.
type staticProviders struct {
	p models.Provider
}

func (s staticProviders) For(models.Tool) models.Provider { return s.p }

func (s staticProviders) ByName(name string) (models.Provider, error) {
	if name != s.p.Name() {
		return nil, fmt.Errorf("%w: %s", provider.ErrProviderUnavailable, name)
	}
	return s.p, nil
}
