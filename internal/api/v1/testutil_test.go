package v1_test

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
	"github.com/gosuda/tenantd/internal/server/middleware"
)

// ---------------------------------------------------------------------------
// Context helpers — inject caller identity into context for DoCtx
// ---------------------------------------------------------------------------

func userCtx(userID string) context.Context {
	return context.WithValue(context.Background(), middleware.ContextKeyUserID, userID)
}

func adminCtx(userID string) context.Context {
	ctx := userCtx(userID)
	return context.WithValue(ctx, middleware.ContextKeyUserRole, "admin")
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func activeTenant(id uuid.UUID) *domain.Tenant {
	now := time.Now()
	return &domain.Tenant{
		ID:           id,
		Name:         "Acme Corp",
		Type:         domain.TenantTypeCompany,
		Subdomain:    "acme",
		ContactEmail: "ops@acme.example",
		Status:       domain.TenantStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ---------------------------------------------------------------------------
// Mock ProvisioningService
// ---------------------------------------------------------------------------

type mockProvisioner struct {
	registerFunc    func(ctx context.Context, reg *provision.Registration) (*domain.Tenant, error)
	verifyEmailFunc func(ctx context.Context, tenantID uuid.UUID, code string) error
}

func (m *mockProvisioner) Register(ctx context.Context, reg *provision.Registration) (*domain.Tenant, error) {
	return m.registerFunc(ctx, reg)
}

func (m *mockProvisioner) VerifyEmail(ctx context.Context, tenantID uuid.UUID, code string) error {
	return m.verifyEmailFunc(ctx, tenantID, code)
}

// ---------------------------------------------------------------------------
// Mock TenantReader
// ---------------------------------------------------------------------------

type mockTenantReader struct {
	getByIDFunc func(ctx context.Context, id uuid.UUID) (*domain.Tenant, error)
	listFunc    func(ctx context.Context, limit, offset int) ([]*domain.Tenant, error)
}

func (m *mockTenantReader) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockTenantReader) List(ctx context.Context, limit, offset int) ([]*domain.Tenant, error) {
	return m.listFunc(ctx, limit, offset)
}

// ---------------------------------------------------------------------------
// Mock RetentionService
// ---------------------------------------------------------------------------

type mockRetention struct {
	archiveFunc      func(ctx context.Context, tenantID uuid.UUID) (*domain.Tenant, error)
	restoreFunc      func(ctx context.Context, tenantID uuid.UUID) (*domain.Tenant, error)
	listArchivedFunc func(ctx context.Context) ([]*retention.ArchivedTenant, error)
}

func (m *mockRetention) Archive(ctx context.Context, tenantID uuid.UUID) (*domain.Tenant, error) {
	return m.archiveFunc(ctx, tenantID)
}

func (m *mockRetention) Restore(ctx context.Context, tenantID uuid.UUID) (*domain.Tenant, error) {
	return m.restoreFunc(ctx, tenantID)
}

func (m *mockRetention) ListArchived(ctx context.Context) ([]*retention.ArchivedTenant, error) {
	return m.listArchivedFunc(ctx)
}

// ---------------------------------------------------------------------------
// Mock PurgeService
// ---------------------------------------------------------------------------

type mockPurger struct {
	purgeFunc        func(ctx context.Context, tenantID uuid.UUID) error
	batchPurgeFunc   func(ctx context.Context, tenantIDs []uuid.UUID) (*purge.BatchResult, error)
	listEligibleFunc func(ctx context.Context) ([]*domain.Tenant, error)
}

func (m *mockPurger) Purge(ctx context.Context, tenantID uuid.UUID) error {
	return m.purgeFunc(ctx, tenantID)
}

func (m *mockPurger) BatchPurge(ctx context.Context, tenantIDs []uuid.UUID) (*purge.BatchResult, error) {
	return m.batchPurgeFunc(ctx, tenantIDs)
}

func (m *mockPurger) ListEligible(ctx context.Context) ([]*domain.Tenant, error) {
	return m.listEligibleFunc(ctx)
}

// ---------------------------------------------------------------------------
// Mock BackupService
// ---------------------------------------------------------------------------

type mockBackups struct {
	createFunc      func(ctx context.Context, tenantID uuid.UUID, req backup.Request) (*domain.BackupRecord, error)
	getFunc         func(ctx context.Context, tenantID, backupID uuid.UUID) (*domain.BackupRecord, error)
	listFunc        func(ctx context.Context, tenantID uuid.UUID, f domain.BackupFilter) ([]*domain.BackupRecord, error)
	deleteFunc      func(ctx context.Context, tenantID, backupID uuid.UUID) error
	restoreFunc     func(ctx context.Context, tenantID, backupID uuid.UUID, opts backup.RestoreOptions) (*domain.RestoreRecord, error)
	scheduleFunc    func(ctx context.Context, tenantID uuid.UUID, req backup.ScheduleRequest) (*domain.BackupSchedule, error)
	getScheduleFunc func(ctx context.Context, tenantID uuid.UUID) (*domain.BackupSchedule, error)
}

func (m *mockBackups) Create(ctx context.Context, tenantID uuid.UUID, req backup.Request) (*domain.BackupRecord, error) {
	return m.createFunc(ctx, tenantID, req)
}

func (m *mockBackups) Get(ctx context.Context, tenantID, backupID uuid.UUID) (*domain.BackupRecord, error) {
	return m.getFunc(ctx, tenantID, backupID)
}

func (m *mockBackups) List(ctx context.Context, tenantID uuid.UUID, f domain.BackupFilter) ([]*domain.BackupRecord, error) {
	return m.listFunc(ctx, tenantID, f)
}

func (m *mockBackups) Delete(ctx context.Context, tenantID, backupID uuid.UUID) error {
	return m.deleteFunc(ctx, tenantID, backupID)
}

func (m *mockBackups) Restore(ctx context.Context, tenantID, backupID uuid.UUID, opts backup.RestoreOptions) (*domain.RestoreRecord, error) {
	return m.restoreFunc(ctx, tenantID, backupID, opts)
}

func (m *mockBackups) Schedule(ctx context.Context, tenantID uuid.UUID, req backup.ScheduleRequest) (*domain.BackupSchedule, error) {
	return m.scheduleFunc(ctx, tenantID, req)
}

func (m *mockBackups) GetSchedule(ctx context.Context, tenantID uuid.UUID) (*domain.BackupSchedule, error) {
	return m.getScheduleFunc(ctx, tenantID)
}

// ---------------------------------------------------------------------------
// Mock MaintenanceService
// ---------------------------------------------------------------------------

type mockMaintenance struct {
	enableFunc   func(ctx context.Context, tenantID uuid.UUID, req maintenance.EnableRequest) (*domain.MaintenanceWindow, error)
	disableFunc  func(ctx context.Context, tenantID uuid.UUID) (*domain.MaintenanceWindow, error)
	scheduleFunc func(ctx context.Context, tenantID uuid.UUID, req maintenance.ScheduleRequest) (*domain.MaintenanceWindow, error)
	cancelFunc   func(ctx context.Context, tenantID, windowID uuid.UUID) error
	activeFunc   func(ctx context.Context, tenantID uuid.UUID) (*domain.MaintenanceWindow, error)
	historyFunc  func(ctx context.Context, tenantID uuid.UUID) ([]*domain.MaintenanceWindow, error)
}

func (m *mockMaintenance) Enable(ctx context.Context, tenantID uuid.UUID, req maintenance.EnableRequest) (*domain.MaintenanceWindow, error) {
	return m.enableFunc(ctx, tenantID, req)
}

func (m *mockMaintenance) Disable(ctx context.Context, tenantID uuid.UUID) (*domain.MaintenanceWindow, error) {
	return m.disableFunc(ctx, tenantID)
}

func (m *mockMaintenance) Schedule(ctx context.Context, tenantID uuid.UUID, req maintenance.ScheduleRequest) (*domain.MaintenanceWindow, error) {
	return m.scheduleFunc(ctx, tenantID, req)
}

func (m *mockMaintenance) Cancel(ctx context.Context, tenantID, windowID uuid.UUID) error {
	return m.cancelFunc(ctx, tenantID, windowID)
}

func (m *mockMaintenance) Active(ctx context.Context, tenantID uuid.UUID) (*domain.MaintenanceWindow, error) {
	return m.activeFunc(ctx, tenantID)
}

func (m *mockMaintenance) History(ctx context.Context, tenantID uuid.UUID) ([]*domain.MaintenanceWindow, error) {
	return m.historyFunc(ctx, tenantID)
}

// ---------------------------------------------------------------------------
// Mock DomainService
// ---------------------------------------------------------------------------

type mockDomains struct {
	addCustomFunc  func(ctx context.Context, tenantID uuid.UUID, hostname string) (*domain.Domain, error)
	verifyFunc     func(ctx context.Context, tenantID, id uuid.UUID) (*domain.Domain, error)
	setPrimaryFunc func(ctx context.Context, tenantID, id uuid.UUID) error
	listFunc       func(ctx context.Context, tenantID uuid.UUID) ([]*domain.Domain, error)
}

func (m *mockDomains) AddCustom(ctx context.Context, tenantID uuid.UUID, hostname string) (*domain.Domain, error) {
	return m.addCustomFunc(ctx, tenantID, hostname)
}

func (m *mockDomains) Verify(ctx context.Context, tenantID, id uuid.UUID) (*domain.Domain, error) {
	return m.verifyFunc(ctx, tenantID, id)
}

func (m *mockDomains) SetPrimary(ctx context.Context, tenantID, id uuid.UUID) error {
	return m.setPrimaryFunc(ctx, tenantID, id)
}

func (m *mockDomains) List(ctx context.Context, tenantID uuid.UUID) ([]*domain.Domain, error) {
	return m.listFunc(ctx, tenantID)
}
