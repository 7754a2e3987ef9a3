package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

var (
	ErrNotFound            = errors.New("resource not found")
	ErrDuplicateKey        = errors.New("duplicate key violation")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrRateLimited         = errors.New("heavy job limit reached for session")
	ErrAlreadyTerminal     = errors.New("job already in a terminal state")
	ErrInvalidTransition   = errors.New("invalid job status transition")
)

// Users persists user identities and balances. Balances change only through
// the Ledger.
type Users interface {
	EnsureUser(ctx context.Context, id uuid.UUID, displayName string, initialCredits int) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetCredits(ctx context.Context, id uuid.UUID) (int, error)
}

// Sessions persists rate-limit counters, one row per client session.
type Sessions interface {
	EnsureSession(ctx context.Context, id, userID uuid.UUID) (*models.Session, error)
	GetSession(ctx context.Context, id, userID uuid.UUID) (*models.Session, error)
}

// Jobs persists generation jobs. Every status write is guarded by the
// current status so concurrent writers cannot both succeed.
type Jobs interface {
	GetJob(ctx context.Context, id, userID uuid.UUID) (*models.Job, error)
	GetJobByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetJobByProviderJobID(ctx context.Context, providerJobID string) (*models.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error)
	ListJobsByStatus(ctx context.Context, statuses ...models.JobStatus) ([]*models.Job, error)

	MarkProcessing(ctx context.Context, id uuid.UUID, provider string) error
	SetProviderJobID(ctx context.Context, id uuid.UUID, providerJobID string, meta map[string]any) error
	RecordPollAttempt(ctx context.Context, id uuid.UUID) (int, error)
	CompleteJob(ctx context.Context, id uuid.UUID, assetURLs []string, meta map[string]any) (*models.Job, error)
}

// Ledger groups the operations that touch credits. Each runs in a single
// transaction.
type Ledger interface {
	// ReserveJob deducts job.CreditsUsed from the owner, claims a heavy-job
	// slot on the session when the tool is heavy, and inserts the job. It
	// returns the remaining balance.
	ReserveJob(ctx context.Context, job *models.Job, now time.Time) (int, error)
	// FailJob marks a non-terminal job failed and refunds its CreditsUsed.
	// A job that is already terminal yields ErrAlreadyTerminal and no refund.
	FailJob(ctx context.Context, id uuid.UUID, errMsg string) (*models.Job, error)
	GrantCredits(ctx context.Context, userID uuid.UUID, amount int) (int, error)
}

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	Users
	Sessions
	Jobs
	Ledger
}

type JobFilter struct {
	UserID uuid.UUID
	Limit  int
	Offset int
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Normalize clamps the pagination window to the supported range.
func (f JobFilter) Normalize() JobFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
