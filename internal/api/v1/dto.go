package v1

import (
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/tenantd/internal/domain"
	"github.com/gosuda/tenantd/internal/retention"
)

// Tenant is the wire representation of a tenant. Bootstrap credentials and
// verification codes never leave the server.
type Tenant struct {
	ID              uuid.UUID           `json:"id"`
	Name            string              `json:"name"`
	Type            domain.TenantType   `json:"type"`
	Subdomain       string              `json:"subdomain"`
	ContactEmail    string              `json:"contact_email"`
	ContactPhone    string              `json:"contact_phone,omitempty"`
	EmailVerified   bool                `json:"email_verified"`
	PlanID          string              `json:"plan_id,omitempty"`
	BillingCycle    string              `json:"billing_cycle,omitempty"`
	Modules         []string            `json:"modules,omitempty"`
	TrialEndsAt     *time.Time          `json:"trial_ends_at,omitempty"`
	Status          domain.TenantStatus `json:"status"`
	MaintenanceMode bool                `json:"maintenance_mode"`
	DeletedAt       *time.Time          `json:"deleted_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func toTenant(t *domain.Tenant) *Tenant {
	return &Tenant{
		ID:              t.ID,
		Name:            t.Name,
		Type:            t.Type,
		Subdomain:       t.Subdomain,
		ContactEmail:    t.ContactEmail,
		ContactPhone:    t.ContactPhone,
		EmailVerified:   t.EmailVerification.VerifiedAt != nil,
		PlanID:          t.PlanID,
		BillingCycle:    t.BillingCycle,
		Modules:         t.Modules,
		TrialEndsAt:     t.TrialEndsAt,
		Status:          t.Status,
		MaintenanceMode: t.MaintenanceMode,
		DeletedAt:       t.DeletedAt,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

func toTenants(ts []*domain.Tenant) []*Tenant {
	out := make([]*Tenant, 0, len(ts))
	for _, t := range ts {
		out = append(out, toTenant(t))
	}
	return out
}

// ArchivedTenant annotates a tenant with its retention countdown.
type ArchivedTenant struct {
	Tenant        *Tenant   `json:"tenant"`
	ExpiresAt     time.Time `json:"expires_at"`
	DaysRemaining int       `json:"days_remaining"`
	PurgeEligible bool      `json:"purge_eligible"`
}

func toArchivedTenants(ts []*retention.ArchivedTenant) []*ArchivedTenant {
	out := make([]*ArchivedTenant, 0, len(ts))
	for _, t := range ts {
		out = append(out, &ArchivedTenant{
			Tenant:        toTenant(t.Tenant),
			ExpiresAt:     t.ExpiresAt,
			DaysRemaining: t.DaysRemaining,
			PurgeEligible: t.PurgeEligible,
		})
	}
	return out
}

// Backup is the wire representation of a backup record.
type Backup struct {
	ID              uuid.UUID           `json:"id"`
	TenantID        uuid.UUID           `json:"tenant_id"`
	Type            domain.BackupType   `json:"type"`
	Status          domain.BackupStatus `json:"status"`
	IncludeDatabase bool                `json:"include_database"`
	IncludeFiles    bool                `json:"include_files"`
	Encrypted       bool                `json:"encrypted"`
	RetentionDays   int                 `json:"retention_days"`
	ExpiresAt       *time.Time          `json:"expires_at,omitempty"`
	Artifacts       []domain.Artifact   `json:"artifacts,omitempty"`
	Checksum        string              `json:"checksum,omitempty"`
	StepErrors      []string            `json:"step_errors,omitempty"`
	InitiatedBy     string              `json:"initiated_by,omitempty"`
	StartedAt       *time.Time          `json:"started_at,omitempty"`
	CompletedAt     *time.Time          `json:"completed_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

func toBackup(b *domain.BackupRecord) *Backup {
	return &Backup{
		ID:              b.ID,
		TenantID:        b.TenantID,
		Type:            b.Type,
		Status:          b.Status,
		IncludeDatabase: b.IncludeDatabase,
		IncludeFiles:    b.IncludeFiles,
		Encrypted:       b.Encrypted,
		RetentionDays:   b.RetentionDays,
		ExpiresAt:       b.ExpiresAt,
		Artifacts:       b.Artifacts,
		Checksum:        b.Checksum,
		StepErrors:      b.StepErrors,
		InitiatedBy:     b.InitiatedBy,
		StartedAt:       b.StartedAt,
		CompletedAt:     b.CompletedAt,
		CreatedAt:       b.CreatedAt,
	}
}

func toBackups(bs []*domain.BackupRecord) []*Backup {
	out := make([]*Backup, 0, len(bs))
	for _, b := range bs {
		out = append(out, toBackup(b))
	}
	return out
}

// BackupSchedule is the wire representation of a recurring backup config.
type BackupSchedule struct {
	TenantID        uuid.UUID              `json:"tenant_id"`
	Frequency       domain.BackupFrequency `json:"frequency"`
	Hour            int                    `json:"hour"`
	Minute          int                    `json:"minute"`
	Type            domain.BackupType      `json:"type"`
	RetentionDays   int                    `json:"retention_days"`
	NotifyOnFailure bool                   `json:"notify_on_failure"`
	NextRunAt       time.Time              `json:"next_run_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

func toBackupSchedule(s *domain.BackupSchedule) *BackupSchedule {
	return &BackupSchedule{
		TenantID:        s.TenantID,
		Frequency:       s.Frequency,
		Hour:            s.Hour,
		Minute:          s.Minute,
		Type:            s.Type,
		RetentionDays:   s.RetentionDays,
		NotifyOnFailure: s.NotifyOnFailure,
		NextRunAt:       s.NextRunAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

// Restore is the wire representation of a restore run.
type Restore struct {
	ID          uuid.UUID            `json:"id"`
	TenantID    uuid.UUID            `json:"tenant_id"`
	BackupID    uuid.UUID            `json:"backup_id"`
	PreBackupID *uuid.UUID           `json:"pre_backup_id,omitempty"`
	Status      domain.RestoreStatus `json:"status"`
	Error       string               `json:"error,omitempty"`
	StartedAt   time.Time            `json:"started_at"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
}

func toRestore(r *domain.RestoreRecord) *Restore {
	return &Restore{
		ID:          r.ID,
		TenantID:    r.TenantID,
		BackupID:    r.BackupID,
		PreBackupID: r.PreBackupID,
		Status:      r.Status,
		Error:       r.Error,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
}

// MaintenanceWindow is the wire representation of a maintenance window. The
// bypass token is included: this is an operator API and the token is how
// operators reach a tenant under maintenance.
type MaintenanceWindow struct {
	ID              uuid.UUID                `json:"id"`
	TenantID        uuid.UUID                `json:"tenant_id"`
	Status          domain.MaintenanceStatus `json:"status"`
	Type            domain.MaintenanceType   `json:"type"`
	Message         string                   `json:"message,omitempty"`
	BypassToken     string                   `json:"bypass_token,omitempty"`
	BypassIPs       []string                 `json:"bypass_ips,omitempty"`
	BypassUserIDs   []string                 `json:"bypass_user_ids,omitempty"`
	AllowedRoutes   []string                 `json:"allowed_routes,omitempty"`
	StartsAt        time.Time                `json:"starts_at"`
	EndsAt          time.Time                `json:"ends_at"`
	DurationSeconds *int64                   `json:"duration_seconds,omitempty"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
}

func toMaintenanceWindow(w *domain.MaintenanceWindow) *MaintenanceWindow {
	return &MaintenanceWindow{
		ID:              w.ID,
		TenantID:        w.TenantID,
		Status:          w.Status,
		Type:            w.Type,
		Message:         w.Message,
		BypassToken:     w.BypassToken,
		BypassIPs:       w.BypassIPs,
		BypassUserIDs:   w.BypassUserIDs,
		AllowedRoutes:   w.AllowedRoutes,
		StartsAt:        w.StartsAt,
		EndsAt:          w.EndsAt,
		DurationSeconds: w.DurationSeconds,
		CreatedAt:       w.CreatedAt,
		UpdatedAt:       w.UpdatedAt,
	}
}

func toMaintenanceWindows(ws []*domain.MaintenanceWindow) []*MaintenanceWindow {
	out := make([]*MaintenanceWindow, 0, len(ws))
	for _, w := range ws {
		out = append(out, toMaintenanceWindow(w))
	}
	return out
}

// Domain is the wire representation of a tenant domain. The verification code
// is included so operators can publish the TXT challenge record.
type Domain struct {
	ID               uuid.UUID                 `json:"id"`
	TenantID         uuid.UUID                 `json:"tenant_id"`
	Hostname         string                    `json:"hostname"`
	IsPrimary        bool                      `json:"is_primary"`
	IsCustom         bool                      `json:"is_custom"`
	Verification     domain.DomainVerification `json:"verification"`
	VerificationCode string                    `json:"verification_code,omitempty"`
	SSL              domain.SSLStatus          `json:"ssl"`
	CreatedAt        time.Time                 `json:"created_at"`
	UpdatedAt        time.Time                 `json:"updated_at"`
}

func toDomain(d *domain.Domain) *Domain {
	return &Domain{
		ID:               d.ID,
		TenantID:         d.TenantID,
		Hostname:         d.Hostname,
		IsPrimary:        d.IsPrimary,
		IsCustom:         d.IsCustom,
		Verification:     d.Verification,
		VerificationCode: d.VerificationCode,
		SSL:              d.SSL,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func toDomains(ds []*domain.Domain) []*Domain {
	out := make([]*Domain, 0, len(ds))
	for _, d := range ds {
		out = append(out, toDomain(d))
	}
	return out
}
