package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type JobKind string

const (
	JobKindProvisionTenant JobKind = "provision_tenant"
	JobKindRunBackup       JobKind = "run_backup"
	JobKindRestoreBackup   JobKind = "restore_backup"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job is one durable unit of background work. Jobs are delivered at least
// once; handlers must be idempotent. DedupeKey prevents duplicate pending
// jobs for the same (tenant, operation) pair.
type Job struct {
	ID          uuid.UUID
	Kind        JobKind
	TenantID    uuid.UUID
	DedupeKey   string
	Payload     []byte
	Status      JobStatus
	Attempts    int
	MaxAttempts int
	RunAt       time.Time
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type JobRepository interface {
	Enqueue(ctx context.Context, j *Job) error
	// ClaimNext picks the oldest runnable pending job, marks it running and
	// returns it. Returns ErrNotFound when no job is runnable. Claiming is
	// safe under concurrent workers.
	ClaimNext(ctx context.Context, now time.Time) (*Job, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	// MarkRetry reschedules a failed attempt; MarkFailed is terminal.
	MarkRetry(ctx context.Context, id uuid.UUID, runAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
	// ReclaimStale returns jobs claimed before cutoff but never finished to
	// pending, so another worker can pick them up. A worker killed between
	// claiming and finishing would otherwise strand its job in running.
	ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error
}
