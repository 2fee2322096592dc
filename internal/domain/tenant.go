package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

type TenantType string

const (
	TenantTypeCompany    TenantType = "company"
	TenantTypeIndividual TenantType = "individual"
)

type TenantStatus string

const (
	TenantStatusPending      TenantStatus = "pending"
	TenantStatusProvisioning TenantStatus = "provisioning"
	TenantStatusActive       TenantStatus = "active"
	TenantStatusSuspended    TenantStatus = "suspended"
)

// ProvisionStep marks how far asynchronous provisioning has progressed so a
// crashed provisioning job can resume without redoing completed steps.
type ProvisionStep string

const (
	ProvisionStepNone            ProvisionStep = ""
	ProvisionStepDatabaseCreated ProvisionStep = "database_created"
	ProvisionStepMigrated        ProvisionStep = "migrated"
	ProvisionStepSeeded          ProvisionStep = "seeded"
	ProvisionStepCompleted       ProvisionStep = "completed"
)

// Verification tracks one contact-channel verification flow (email or phone).
type Verification struct {
	Code       string
	SentAt     *time.Time
	VerifiedAt *time.Time
}

// AdminBootstrap is the transient admin account data carried on a pending
// tenant until provisioning seeds the tenant database, then cleared.
type AdminBootstrap struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
}

// Tenant is the central-database record for one customer organization.
// Subdomain and contact email are unique across all non-purged tenants.
type Tenant struct {
	ID                uuid.UUID
	Name              string
	Type              TenantType
	Subdomain         string
	ContactEmail      string
	ContactPhone      string
	EmailVerification Verification
	PhoneVerification Verification
	PlanID            string
	BillingCycle      string
	Modules           []string
	TrialEndsAt       *time.Time
	SubscribedUntil   *time.Time
	Status            TenantStatus
	ProvisionStep     ProvisionStep
	AdminBootstrap    *AdminBootstrap
	Metadata          map[string]any
	MaintenanceMode   bool
	DeletedAt         *time.Time
	Version           int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Archived reports whether the tenant has been soft-deleted.
func (t *Tenant) Archived() bool { return t.DeletedAt != nil }

// DatabaseName returns the name of the tenant's dedicated database,
// derived deterministically from the tenant ID.
func (t *Tenant) DatabaseName() string {
	return "tenant_" + strings.ReplaceAll(t.ID.String(), "-", "")
}

type TenantRepository interface {
	Create(ctx context.Context, t *Tenant) error
	GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	GetBySubdomain(ctx context.Context, subdomain string) (*Tenant, error)
	GetByContactEmail(ctx context.Context, email string) (*Tenant, error)
	// Update writes the tenant row guarded by its version column and
	// returns ErrVersionMismatch on a concurrent modification.
	Update(ctx context.Context, t *Tenant) error
	List(ctx context.Context, limit, offset int) ([]*Tenant, error)
	ListArchived(ctx context.Context) ([]*Tenant, error)
	Archive(ctx context.Context, id uuid.UUID, at time.Time) error
	Unarchive(ctx context.Context, id uuid.UUID) error
}
