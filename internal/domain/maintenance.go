package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type MaintenanceStatus string

const (
	MaintenanceStatusScheduled MaintenanceStatus = "scheduled"
	MaintenanceStatusActive    MaintenanceStatus = "active"
	MaintenanceStatusCompleted MaintenanceStatus = "completed"
	MaintenanceStatusCancelled MaintenanceStatus = "cancelled"
)

// ValidTransition checks if a maintenance status transition is allowed.
// Allowed: scheduled->{active,cancelled}, active->completed.
func (s MaintenanceStatus) ValidTransition(to MaintenanceStatus) bool {
	switch s {
	case MaintenanceStatusScheduled:
		return to == MaintenanceStatusActive || to == MaintenanceStatusCancelled
	case MaintenanceStatusActive:
		return to == MaintenanceStatusCompleted
	default:
		return false
	}
}

type MaintenanceType string

const (
	MaintenanceTypePlanned   MaintenanceType = "planned"
	MaintenanceTypeEmergency MaintenanceType = "emergency"
	MaintenanceTypeUpgrade   MaintenanceType = "upgrade"
	MaintenanceTypeMigration MaintenanceType = "migration"
)

// MaintenanceWindow is one maintenance record for a tenant. At most one
// window is active per tenant at a time; a tenant may hold multiple future
// scheduled windows. RemindersSent is the persisted ledger of pre-start
// reminder offsets (in minutes) already fired, so reminders are not
// duplicated or skipped under irregular scheduler intervals.
type MaintenanceWindow struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	Status          MaintenanceStatus
	Type            MaintenanceType
	Message         string
	BypassToken     string
	BypassIPs       []string
	BypassUserIDs   []string
	AllowedRoutes   []string
	StartsAt        time.Time
	EndsAt          time.Time
	ExpiresAt       time.Time // safety TTL; an active window past this is force-closed
	DurationSeconds *int64    // actual duration, recorded on completion
	RemindersSent   []int32
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type MaintenanceRepository interface {
	Create(ctx context.Context, w *MaintenanceWindow) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*MaintenanceWindow, error)
	// GetActive returns the tenant's active window or ErrNotFound.
	GetActive(ctx context.Context, tenantID uuid.UUID) (*MaintenanceWindow, error)
	ListScheduled(ctx context.Context) ([]*MaintenanceWindow, error)
	ListActive(ctx context.Context) ([]*MaintenanceWindow, error)
	ListHistory(ctx context.Context, tenantID uuid.UUID, limit int) ([]*MaintenanceWindow, error)
	// Update writes the window guarded by its version column and returns
	// ErrVersionMismatch on a concurrent modification.
	Update(ctx context.Context, w *MaintenanceWindow) error
	// TrimHistory deletes completed/cancelled windows beyond the most
	// recent keep entries for the tenant.
	TrimHistory(ctx context.Context, tenantID uuid.UUID, keep int) error
	DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error
}
