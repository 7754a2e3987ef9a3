package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// --- Users ---

func (s *PostgresStore) EnsureUser(ctx context.Context, id uuid.UUID, displayName string, initialCredits int) (*models.User, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, display_name, credits) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO NOTHING`, id, displayName, initialCredits)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return s.GetUser(ctx, id)
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, display_name, credential, credits, created_at, updated_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.DisplayName, &u.Credential, &u.Credits, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) GetCredits(ctx context.Context, id uuid.UUID) (int, error) {
	return currentCredits(ctx, s.pool, id)
}

func currentCredits(ctx context.Context, q querier, id uuid.UUID) (int, error) {
	var credits int
	err := q.QueryRow(ctx, `SELECT credits FROM users WHERE id = $1`, id).Scan(&credits)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get credits: %w", err)
	}
	return credits, nil
}

// --- Sessions ---

func (s *PostgresStore) EnsureSession(ctx context.Context, id, userID uuid.UUID) (*models.Session, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, user_id) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, id, userID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ensure session: %w", err)
	}
	return s.GetSession(ctx, id, userID)
}

func (s *PostgresStore) GetSession(ctx context.Context, id, userID uuid.UUID) (*models.Session, error) {
	var sess models.Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, heavy_jobs_this_hour, last_heavy_job_at, created_at, updated_at
		 FROM sessions WHERE id = $1 AND user_id = $2`, id, userID,
	).Scan(&sess.ID, &sess.UserID, &sess.HeavyJobsThisHour, &sess.LastHeavyJobAt, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

// --- Jobs ---

const jobColumns = `id, tool, prompt, inputs, status, asset_urls, provider, provider_job_id, meta,
	user_id, session_id, credits_used, poll_attempts, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.Tool, &j.Prompt, &j.Inputs, &j.Status, &j.AssetURLs, &j.Provider,
		&j.ProviderJobID, &j.Meta, &j.UserID, &j.SessionID, &j.CreditsUsed, &j.PollAttempts,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id, userID uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) GetJobByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job by id: %w", err)
	}
	return j, nil
}

// GetJobByProviderJobID matches either our provider job handle or the vendor's
// raw task id recorded in meta.
func (s *PostgresStore) GetJobByProviderJobID(ctx context.Context, providerJobID string) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE provider_job_id = $1 OR meta->>'remote_task_id' = $1
		 ORDER BY (provider_job_id = $1) DESC, created_at DESC LIMIT 1`, providerJobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job by provider job id: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error) {
	filter = filter.Normalize()

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM jobs WHERE user_id = $1`, filter.UserID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE user_id = $1
		 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, filter.UserID, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*models.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, total, rows.Err()
}

func (s *PostgresStore) ListJobsByStatus(ctx context.Context, statuses ...models.JobStatus) ([]*models.Job, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ANY($1) ORDER BY created_at`, names)
	if err != nil {
		return nil, fmt.Errorf("list jobs by status: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) MarkProcessing(ctx context.Context, id uuid.UUID, provider string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'processing', provider = $2, updated_at = NOW()
		 WHERE id = $1 AND status = 'queued'`, id, provider)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, s.pool, id, models.JobStatusProcessing)
	}
	return nil
}

func (s *PostgresStore) SetProviderJobID(ctx context.Context, id uuid.UUID, providerJobID string, meta map[string]any) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET provider_job_id = $2, meta = meta || $3::jsonb, updated_at = NOW()
		 WHERE id = $1 AND status = 'processing'`, id, providerJobID, nonNilMap(meta))
	if err != nil {
		return fmt.Errorf("set provider job id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, s.pool, id, models.JobStatusProcessing)
	}
	return nil
}

func (s *PostgresStore) RecordPollAttempt(ctx context.Context, id uuid.UUID) (int, error) {
	var attempts int
	err := s.pool.QueryRow(ctx,
		`UPDATE jobs SET poll_attempts = poll_attempts + 1, updated_at = NOW()
		 WHERE id = $1 AND status = 'processing' RETURNING poll_attempts`, id).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, s.transitionError(ctx, s.pool, id, models.JobStatusProcessing)
	}
	if err != nil {
		return 0, fmt.Errorf("record poll attempt: %w", err)
	}
	return attempts, nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, id uuid.UUID, assetURLs []string, meta map[string]any) (*models.Job, error) {
	if len(assetURLs) == 0 {
		return nil, fmt.Errorf("complete job: %w: no asset urls", ErrInvalidTransition)
	}
	j, err := scanJob(s.pool.QueryRow(ctx,
		`UPDATE jobs SET status = 'completed', asset_urls = $2, meta = meta || $3::jsonb, updated_at = NOW()
		 WHERE id = $1 AND status = 'processing'
		 RETURNING `+jobColumns, id, assetURLs, nonNilMap(meta)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.transitionError(ctx, s.pool, id, models.JobStatusCompleted)
	}
	if err != nil {
		return nil, fmt.Errorf("complete job: %w", err)
	}
	return j, nil
}

// transitionError explains why a guarded status update matched no row.
func (s *PostgresStore) transitionError(ctx context.Context, q querier, id uuid.UUID, to models.JobStatus) error {
	var current models.JobStatus
	err := q.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}
	if current.Terminal() {
		return ErrAlreadyTerminal
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, to)
}

// --- Ledger ---

func (s *PostgresStore) ReserveJob(ctx context.Context, job *models.Job, now time.Time) (int, error) {
	var balance int
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`UPDATE users SET credits = credits - $2, updated_at = NOW()
			 WHERE id = $1 AND credits >= $2 RETURNING credits`, job.UserID, job.CreditsUsed).Scan(&balance)
		if errors.Is(err, pgx.ErrNoRows) {
			current, cerr := currentCredits(ctx, tx, job.UserID)
			if cerr != nil {
				return cerr
			}
			balance = current
			return ErrInsufficientCredits
		}
		if err != nil {
			return fmt.Errorf("deduct credits: %w", err)
		}

		if job.Tool.Heavy() {
			if err := claimHeavySlot(ctx, tx, job.SessionID, job.UserID, now); err != nil {
				return err
			}
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO jobs (id, tool, prompt, inputs, status, asset_urls, provider, meta,
			   user_id, session_id, credits_used, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			job.ID, job.Tool, job.Prompt, nonNilMap(job.Inputs), job.Status, nonNilSlice(job.AssetURLs),
			job.Provider, nonNilMap(job.Meta), job.UserID, job.SessionID, job.CreditsUsed,
			job.CreatedAt, job.UpdatedAt)
		if err != nil {
			switch {
			case isDuplicateKeyError(err):
				return ErrDuplicateKey
			case isForeignKeyViolation(err):
				return ErrNotFound
			}
			return fmt.Errorf("insert job: %w", err)
		}
		return nil
	})
	return balance, err
}

// claimHeavySlot locks the session row and takes one heavy-job slot in the
// current window, resetting the counter once the window has elapsed.
func claimHeavySlot(ctx context.Context, tx pgx.Tx, sessionID, userID uuid.UUID, now time.Time) error {
	sess := models.Session{ID: sessionID, UserID: userID}
	err := tx.QueryRow(ctx,
		`SELECT heavy_jobs_this_hour, last_heavy_job_at FROM sessions
		 WHERE id = $1 AND user_id = $2 FOR UPDATE`, sessionID, userID,
	).Scan(&sess.HeavyJobsThisHour, &sess.LastHeavyJobAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock session: %w", err)
	}

	if !sess.CanStartHeavyJob(now) {
		return ErrRateLimited
	}

	_, err = tx.Exec(ctx,
		`UPDATE sessions SET heavy_jobs_this_hour = $2, last_heavy_job_at = $3, updated_at = NOW()
		 WHERE id = $1`, sessionID, sess.HeavyJobsInWindow(now)+1, now)
	if err != nil {
		return fmt.Errorf("claim heavy slot: %w", err)
	}
	return nil
}

func (s *PostgresStore) FailJob(ctx context.Context, id uuid.UUID, errMsg string) (*models.Job, error) {
	var failed *models.Job
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		j, err := scanJob(tx.QueryRow(ctx,
			`UPDATE jobs SET status = 'failed', meta = meta || jsonb_build_object('error', $2::text), updated_at = NOW()
			 WHERE id = $1 AND status IN ('queued', 'processing')
			 RETURNING `+jobColumns, id, errMsg))
		if errors.Is(err, pgx.ErrNoRows) {
			return s.transitionError(ctx, tx, id, models.JobStatusFailed)
		}
		if err != nil {
			return fmt.Errorf("fail job: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE users SET credits = credits + $2, updated_at = NOW() WHERE id = $1`,
			j.UserID, j.CreditsUsed); err != nil {
			return fmt.Errorf("refund credits: %w", err)
		}
		failed = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return failed, nil
}

func (s *PostgresStore) GrantCredits(ctx context.Context, userID uuid.UUID, amount int) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("grant credits: amount must be positive, got %d", amount)
	}
	var balance int
	err := s.pool.QueryRow(ctx,
		`UPDATE users SET credits = credits + $2, updated_at = NOW() WHERE id = $1 RETURNING credits`,
		userID, amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("grant credits: %w", err)
	}
	return balance, nil
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nonNilSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation
}
