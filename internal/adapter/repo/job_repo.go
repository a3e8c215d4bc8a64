package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository backed by PostgreSQL.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

const jobColumns = `id, type, organization_id, user_id, payload, priority, status, attempts, max_attempts,
idempotency_key, scheduled_for, result, error_message, created_at, updated_at, started_at, completed_at`

// Enqueue inserts a new pending job row.
func (r *JobRepositoryPG) Enqueue(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO jobs (id, type, organization_id, user_id, payload, priority, status, attempts, max_attempts, idempotency_key, scheduled_for)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Type,
		job.OrganizationID,
		job.UserID,
		job.Payload,
		job.Priority,
		job.Status,
		job.Attempts,
		job.MaxAttempts,
		job.IdempotencyKey,
		job.ScheduledFor,
	)
	return err
}

// LeaseNext atomically claims up to limit due pending jobs of the given type.
// SKIP LOCKED keeps a claimed row invisible to any concurrent lease call;
// ordering is priority ascending with creation time as the FIFO tie-break.
func (r *JobRepositoryPG) LeaseNext(ctx context.Context, jobType domain.JobType, limit int) ([]*domain.Job, error) {
	query := `
WITH next_jobs AS (
    SELECT id
    FROM jobs
    WHERE type = $1
      AND status = 'pending'
      AND scheduled_for <= NOW()
    ORDER BY priority ASC, created_at ASC
    FOR UPDATE SKIP LOCKED
    LIMIT $2
)
UPDATE jobs
SET status = 'processing', started_at = NOW(), updated_at = NOW()
WHERE id IN (SELECT id FROM next_jobs)
RETURNING ` + jobColumns + `;
`
	rows, err := r.pool.Query(ctx, query, jobType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateStatus applies a status transition; nil update fields keep the stored
// value. completed_at is stamped when the transition is terminal success.
func (r *JobRepositoryPG) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, upd domain.JobUpdate) error {
	query := `
UPDATE jobs
SET status = $2,
    updated_at = NOW(),
    result = COALESCE($3, result),
    error_message = COALESCE($4, error_message),
    scheduled_for = COALESCE($5, scheduled_for),
    attempts = COALESCE($6, attempts),
    completed_at = CASE WHEN $2 = 'completed' THEN NOW() ELSE completed_at END
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query,
		jobID,
		status,
		nullableBytes(upd.Result),
		upd.ErrorMessage,
		upd.ScheduledFor,
		upd.Attempts,
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)
	return scanJob(row)
}

// FindActiveByKey locates the job currently holding (organization, key).
// Failed and cancelled jobs do not hold keys.
func (r *JobRepositoryPG) FindActiveByKey(ctx context.Context, orgID, idempotencyKey string) (*domain.Job, error) {
	query := `
SELECT ` + jobColumns + `
FROM jobs
WHERE organization_id = $1
  AND idempotency_key = $2
  AND status IN ('pending', 'processing', 'completed')
LIMIT 1;
`
	row := r.pool.QueryRow(ctx, query, orgID, idempotencyKey)
	return scanJob(row)
}

// CancelPending cancels a job iff it has not begun processing. The guard is
// in the WHERE clause so a lease racing this call wins or loses atomically.
func (r *JobRepositoryPG) CancelPending(ctx context.Context, jobID string) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE jobs
SET status = 'cancelled', updated_at = NOW()
WHERE id = $1 AND status = 'pending';
`, jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		exists, err := r.exists(ctx, jobID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrJobNotCancellable
	}
	return nil
}

// GetHistory lists a tenant's most recent jobs.
func (r *JobRepositoryPG) GetHistory(ctx context.Context, orgID string, limit int) ([]*domain.Job, error) {
	query := `
SELECT ` + jobColumns + `
FROM jobs
WHERE organization_id = $1
ORDER BY created_at DESC
LIMIT $2;
`
	rows, err := r.pool.Query(ctx, query, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// GetOldestPending returns the longest-waiting pending job, optionally
// restricted to one type. Used for scheduling-lag health checks.
func (r *JobRepositoryPG) GetOldestPending(ctx context.Context, jobType *domain.JobType) (*domain.Job, error) {
	query := `
SELECT ` + jobColumns + `
FROM jobs
WHERE status = 'pending'
  AND ($1::text IS NULL OR type = $1)
ORDER BY created_at ASC
LIMIT 1;
`
	row := r.pool.QueryRow(ctx, query, jobType)
	return scanJob(row)
}

// DeleteTerminalBefore prunes completed, failed and cancelled jobs last
// touched before the cutoff. Returns the number of rows removed.
func (r *JobRepositoryPG) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
DELETE FROM jobs
WHERE status IN ('completed', 'failed', 'cancelled')
  AND updated_at < $1;
`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *JobRepositoryPG) exists(ctx context.Context, jobID string) (bool, error) {
	var found bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, jobID).Scan(&found)
	return found, err
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job            domain.Job
		idempotencyKey *string
		errorMessage   *string
	)
	if err := row.Scan(
		&job.ID,
		&job.Type,
		&job.OrganizationID,
		&job.UserID,
		&job.Payload,
		&job.Priority,
		&job.Status,
		&job.Attempts,
		&job.MaxAttempts,
		&idempotencyKey,
		&job.ScheduledFor,
		&job.Result,
		&errorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if idempotencyKey != nil {
		job.IdempotencyKey = *idempotencyKey
	}
	if errorMessage != nil {
		job.ErrorMessage = *errorMessage
	}
	return &job, nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
