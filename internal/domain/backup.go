package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type BackupType string

const (
	BackupTypeFull        BackupType = "full"
	BackupTypeDatabase    BackupType = "database"
	BackupTypeFiles       BackupType = "files"
	BackupTypeIncremental BackupType = "incremental"
)

type BackupStatus string

const (
	BackupStatusPending    BackupStatus = "pending"
	BackupStatusInProgress BackupStatus = "in_progress"
	BackupStatusCompleted  BackupStatus = "completed"
	BackupStatusFailed     BackupStatus = "failed"
	BackupStatusExpired    BackupStatus = "expired"
)

// ValidTransition checks if a backup status transition is allowed.
// Allowed: pending->in_progress, in_progress->{completed,failed},
// completed->expired.
func (s BackupStatus) ValidTransition(to BackupStatus) bool {
	switch s {
	case BackupStatusPending:
		return to == BackupStatusInProgress || to == BackupStatusFailed
	case BackupStatusInProgress:
		return to == BackupStatusCompleted || to == BackupStatusFailed
	case BackupStatusCompleted:
		return to == BackupStatusExpired
	default:
		return false
	}
}

// Artifact is one object produced by a backup run.
type Artifact struct {
	Key       string `json:"key"`
	SizeBytes int64  `json:"size_bytes"`
}

// BackupRecord is the metadata row for one backup. The record is persisted in
// pending status before any work runs, so a backup's existence is observable
// even if execution crashes. The encryption key is never stored here; it lives
// in the key store under the backup ID.
type BackupRecord struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	Type            BackupType
	Status          BackupStatus
	IncludeDatabase bool
	IncludeFiles    bool
	Encrypted       bool
	RetentionDays   int
	ExpiresAt       *time.Time
	Artifacts       []Artifact
	Checksum        string
	StepErrors      []string
	InitiatedBy     string
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time
}

// BackupFilter narrows ListBackups results. Zero values mean "no filter".
type BackupFilter struct {
	Status BackupStatus
	Type   BackupType
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

type BackupRepository interface {
	Create(ctx context.Context, b *BackupRecord) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*BackupRecord, error)
	Update(ctx context.Context, b *BackupRecord) error
	List(ctx context.Context, tenantID uuid.UUID, f BackupFilter) ([]*BackupRecord, error)
	ListExpired(ctx context.Context, now time.Time) ([]*BackupRecord, error)
	// ListStuck returns in_progress records whose execution started before
	// the cutoff, for the reconciliation sweep.
	ListStuck(ctx context.Context, cutoff time.Time) ([]*BackupRecord, error)
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error
}

type BackupFrequency string

const (
	BackupFrequencyDaily   BackupFrequency = "daily"
	BackupFrequencyWeekly  BackupFrequency = "weekly"
	BackupFrequencyMonthly BackupFrequency = "monthly"
)

// BackupSchedule is the single per-tenant recurring backup configuration.
// Reconfiguring replaces the previous schedule (last write wins).
type BackupSchedule struct {
	TenantID        uuid.UUID
	Frequency       BackupFrequency
	Hour            int
	Minute          int
	Type            BackupType
	RetentionDays   int
	NotifyOnFailure bool
	NextRunAt       time.Time
	UpdatedAt       time.Time
}

type BackupScheduleRepository interface {
	Upsert(ctx context.Context, s *BackupSchedule) error
	Get(ctx context.Context, tenantID uuid.UUID) (*BackupSchedule, error)
	ListDue(ctx context.Context, now time.Time) ([]*BackupSchedule, error)
	MarkRun(ctx context.Context, tenantID uuid.UUID, nextRunAt time.Time) error
	DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error
}

type RestoreStatus string

const (
	RestoreStatusInProgress RestoreStatus = "in_progress"
	RestoreStatusCompleted  RestoreStatus = "completed"
	RestoreStatusFailed     RestoreStatus = "failed"
)

// RestoreRecord tracks one restore run under its own ID, distinct from the
// backup being restored and from the pre-restore backup taken beforehand.
type RestoreRecord struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	BackupID    uuid.UUID
	PreBackupID *uuid.UUID
	Status      RestoreStatus
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

type RestoreRepository interface {
	Create(ctx context.Context, r *RestoreRecord) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*RestoreRecord, error)
	Update(ctx context.Context, r *RestoreRecord) error
	DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error
}
