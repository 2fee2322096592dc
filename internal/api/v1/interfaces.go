package v1

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/tenantd/internal/backup"
	"github.com/gosuda/tenantd/internal/domain"
	"github.com/gosuda/tenantd/internal/maintenance"
	"github.com/gosuda/tenantd/internal/provision"
	"github.com/gosuda/tenantd/internal/purge"
	"github.com/gosuda/tenantd/internal/retention"
)

// TenantReader is the read surface handlers need beyond the services.
// *postgres.TenantRepo satisfies this interface.
type TenantReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Tenant, error)
}

// ProvisioningService abstracts tenant registration for handler testing.
// *provision.Service satisfies this interface.
type ProvisioningService interface {
	Register(ctx context.Context, reg *provision.Registration) (*domain.Tenant, error)
	VerifyEmail(ctx context.Context, tenantID uuid.UUID, code string) error
}

// DomainService abstracts custom-domain management.
// *provision.DomainService satisfies this interface.
type DomainService interface {
	AddCustom(ctx context.Context, tenantID uuid.UUID, hostname string) (*domain.Domain, error)
	Verify(ctx context.Context, tenantID, id uuid.UUID) (*domain.Domain, error)
	SetPrimary(ctx context.Context, tenantID, id uuid.UUID) error
	List(ctx context.Context, tenantID uuid.UUID) ([]*domain.Domain, error)
}

// RetentionService abstracts archive and restore.
// *retention.Service satisfies this interface.
type RetentionService interface {
	Archive(ctx context.Context, tenantID uuid.UUID) (*domain.Tenant, error)
	Restore(ctx context.Context, tenantID uuid.UUID) (*domain.Tenant, error)
	ListArchived(ctx context.Context) ([]*retention.ArchivedTenant, error)
}

// PurgeService abstracts permanent deletion.
// *purge.Service satisfies this interface.
type PurgeService interface {
	Purge(ctx context.Context, tenantID uuid.UUID) error
	BatchPurge(ctx context.Context, tenantIDs []uuid.UUID) (*purge.BatchResult, error)
	ListEligible(ctx context.Context) ([]*domain.Tenant, error)
}

// BackupService abstracts backup lifecycle operations.
// *backup.Service satisfies this interface.
type BackupService interface {
	Create(ctx context.Context, tenantID uuid.UUID, req backup.Request) (*domain.BackupRecord, error)
	Get(ctx context.Context, tenantID, backupID uuid.UUID) (*domain.BackupRecord, error)
	List(ctx context.Context, tenantID uuid.UUID, f domain.BackupFilter) ([]*domain.BackupRecord, error)
	Delete(ctx context.Context, tenantID, backupID uuid.UUID) error
	Restore(ctx context.Context, tenantID, backupID uuid.UUID, opts backup.RestoreOptions) (*domain.RestoreRecord, error)
	Schedule(ctx context.Context, tenantID uuid.UUID, req backup.ScheduleRequest) (*domain.BackupSchedule, error)
	GetSchedule(ctx context.Context, tenantID uuid.UUID) (*domain.BackupSchedule, error)
}

// MaintenanceService abstracts maintenance-mode operations.
// *maintenance.Service satisfies this interface.
type MaintenanceService interface {
	Enable(ctx context.Context, tenantID uuid.UUID, req maintenance.EnableRequest) (*domain.MaintenanceWindow, error)
	Disable(ctx context.Context, tenantID uuid.UUID) (*domain.MaintenanceWindow, error)
	Schedule(ctx context.Context, tenantID uuid.UUID, req maintenance.ScheduleRequest) (*domain.MaintenanceWindow, error)
	Cancel(ctx context.Context, tenantID, windowID uuid.UUID) error
	Active(ctx context.Context, tenantID uuid.UUID) (*domain.MaintenanceWindow, error)
	History(ctx context.Context, tenantID uuid.UUID) ([]*domain.MaintenanceWindow, error)
}

// parseTimes builds an optional time range filter from query parameters.
func parseTimes(from, to time.Time) (f, t *time.Time) {
	if !from.IsZero() {
		f = &from
	}
	if !to.IsZero() {
		t = &to
	}
	return f, t
}
