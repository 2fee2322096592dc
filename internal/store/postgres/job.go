package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/tenantd/internal/domain"
)

const jobColumns = `id, kind, tenant_id, dedupe_key, payload, status, attempts,
	max_attempts, run_at, last_error, created_at, updated_at`

type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

func (r *JobRepo) Enqueue(ctx context.Context, j *domain.Job) error {
	err := r.enqueue(ctx, r.pool, j)
	if err != nil {
		return fmt.Errorf("jobRepo.Enqueue: %w", err)
	}
	return nil
}

// enqueue inserts a job unless a pending job with the same dedupe key exists.
func (r *JobRepo) enqueue(ctx context.Context, db dbtx, j *domain.Job) error {
	_, err := db.Exec(ctx,
		`INSERT INTO jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (dedupe_key) WHERE status = 'pending' DO NOTHING`,
		j.ID, j.Kind, j.TenantID, j.DedupeKey, j.Payload, j.Status,
		j.Attempts, j.MaxAttempts, j.RunAt, j.LastError, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// ClaimNext picks the oldest runnable pending job with SKIP LOCKED so
// concurrent workers never claim the same job, marks it running and bumps
// its attempt counter.
func (r *JobRepo) ClaimNext(ctx context.Context, now time.Time) (*domain.Job, error) {
	var j domain.Job

	err := r.pool.QueryRow(ctx,
		`UPDATE jobs SET status = 'running', attempts = attempts + 1, updated_at = now()
		 WHERE id = (
		   SELECT id FROM jobs
		   WHERE status = 'pending' AND run_at <= $1
		   ORDER BY run_at
		   FOR UPDATE SKIP LOCKED
		   LIMIT 1
		 )
		 RETURNING `+jobColumns, now,
	).Scan(&j.ID, &j.Kind, &j.TenantID, &j.DedupeKey, &j.Payload, &j.Status,
		&j.Attempts, &j.MaxAttempts, &j.RunAt, &j.LastError, &j.CreatedAt, &j.UpdatedAt)
	if notFound(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jobRepo.ClaimNext: %w", err)
	}

	return &j, nil
}

func (r *JobRepo) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE jobs SET status = 'completed', updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("jobRepo.MarkCompleted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("jobRepo.MarkCompleted: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *JobRepo) MarkRetry(ctx context.Context, id uuid.UUID, runAt time.Time, lastError string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE jobs SET status = 'pending', run_at = $1, last_error = $2, updated_at = now()
		 WHERE id = $3`, runAt, lastError, id)
	if err != nil {
		return fmt.Errorf("jobRepo.MarkRetry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("jobRepo.MarkRetry: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *JobRepo) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE jobs SET status = 'failed', last_error = $1, updated_at = now()
		 WHERE id = $2`, lastError, id)
	if err != nil {
		return fmt.Errorf("jobRepo.MarkFailed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("jobRepo.MarkFailed: %w", domain.ErrNotFound)
	}
	return nil
}

// ReclaimStale moves running jobs whose claim predates cutoff back to
// pending. ClaimNext bumps updated_at, so it doubles as the claim timestamp.
func (r *JobRepo) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE jobs SET status = 'pending', updated_at = now()
		 WHERE status = 'running' AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("jobRepo.ReclaimStale: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *JobRepo) DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("jobRepo.DeleteByTenant: %w", err)
	}
	return nil
}
