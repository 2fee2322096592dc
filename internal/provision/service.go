// Package provision registers tenants and provisions their dedicated
// databases. Registration is synchronous and transactional; the heavy
// provisioning work runs as a durable background job that can be retried and
// resumed mid-way.
package provision

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/gosuda/tenantd/internal/dbprovider"
	"github.com/gosuda/tenantd/internal/domain"
	"github.com/gosuda/tenantd/internal/notify"
	"github.com/gosuda/tenantd/internal/retention"
)

//nolint:gochecknoglobals // compiled once
var subdomainRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// Subdomains that would shadow platform surfaces.
//
//nolint:gochecknoglobals // static lookup table
var reservedSubdomains = map[string]struct{}{
	"www": {}, "api": {}, "admin": {}, "app": {}, "mail": {},
	"ftp": {}, "status": {}, "docs": {}, "cdn": {}, "assets": {},
}

// RegistrationStore persists a registration atomically: the tenant, its
// primary domain and the provisioning job land in one transaction.
type RegistrationStore interface {
	SaveRegistration(ctx context.Context, t *domain.Tenant, primary *domain.Domain, job *domain.Job) error
}

// Registration is the signup payload.
type Registration struct {
	Name          string
	Type          domain.TenantType
	Subdomain     string
	ContactEmail  string
	ContactPhone  string
	PlanID        string
	BillingCycle  string
	Modules       []string
	TrialDays     int
	Metadata      map[string]any
	AdminName     string
	AdminEmail    string
	AdminPassword string
}

type Service struct {
	tenants     domain.TenantRepository
	domains     domain.DomainRepository
	store       RegistrationStore
	provider    dbprovider.Provider
	locker      retention.Locker
	notifier    *notify.Notifier
	baseDomain  string
	maxAttempts int
	now         func() time.Time
}

func NewService(
	tenants domain.TenantRepository,
	domains domain.DomainRepository,
	store RegistrationStore,
	provider dbprovider.Provider,
	locker retention.Locker,
	notifier *notify.Notifier,
	baseDomain string,
	maxAttempts int,
) *Service {
	return &Service{
		tenants:     tenants,
		domains:     domains,
		store:       store,
		provider:    provider,
		locker:      locker,
		notifier:    notifier,
		baseDomain:  baseDomain,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Register creates a tenant from a signup or merges a resubmission. A second
// registration with the same contact email updates the existing tenant in
// place, keeping verification timestamps and already-set metadata keys. A
// subdomain owned by a different tenant is a conflict.
func (s *Service) Register(ctx context.Context, reg *Registration) (*domain.Tenant, error) {
	const op = "provision.Service.Register"

	err := s.validate(op, reg)
	if err != nil {
		return nil, err
	}

	bySubdomain, err := s.tenants.GetBySubdomain(ctx, reg.Subdomain)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	existing, err := s.tenants.GetByContactEmail(ctx, reg.ContactEmail)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if bySubdomain != nil && (existing == nil || bySubdomain.ID != existing.ID) {
		return nil, fmt.Errorf("%s: subdomain %q is taken: %w", op, reg.Subdomain, domain.ErrConflict)
	}

	now := s.now().UTC()

	var t *domain.Tenant
	if existing != nil {
		t = s.merge(existing, reg, now)
	} else {
		t, err = s.newTenant(op, reg, now)
		if err != nil {
			return nil, err
		}
	}

	var job *domain.Job
	if t.Status != domain.TenantStatusActive {
		job = &domain.Job{
			ID:          uuid.New(),
			Kind:        domain.JobKindProvisionTenant,
			TenantID:    t.ID,
			DedupeKey:   "provision:" + t.ID.String(),
			Status:      domain.JobStatusPending,
			MaxAttempts: s.maxAttempts,
			RunAt:       now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}

	primary := &domain.Domain{
		ID:           uuid.New(),
		TenantID:     t.ID,
		Hostname:     t.Subdomain + "." + s.baseDomain,
		IsPrimary:    true,
		Verification: domain.DomainVerificationVerified,
		SSL:          domain.SSLStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.store.SaveRegistration(ctx, t, primary, job)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info().
		Str("tenant_id", t.ID.String()).
		Str("subdomain", t.Subdomain).
		Bool("merged", existing != nil).
		Msg("tenant registered")

	return t, nil
}

// VerifyEmail confirms the tenant's contact email with the code sent at
// registration. Verification is permanent; re-verifying is a no-op.
func (s *Service) VerifyEmail(ctx context.Context, tenantID uuid.UUID, code string) error {
	const op = "provision.Service.VerifyEmail"

	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if t.EmailVerification.VerifiedAt != nil {
		return nil
	}

	if t.EmailVerification.Code == "" || t.EmailVerification.Code != code {
		return &domain.ValidationError{Op: op, Field: "code", Reason: "verification code does not match"}
	}

	now := s.now().UTC()
	t.EmailVerification.VerifiedAt = &now
	t.EmailVerification.Code = ""

	err = s.tenants.Update(ctx, t)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// HandleProvisionJob executes one provisioning attempt. Progress is recorded
// per step on the tenant, so a retried job resumes where the previous attempt
// stopped instead of redoing completed steps.
func (s *Service) HandleProvisionJob(ctx context.Context, job *domain.Job) error {
	const op = "provision.Service.HandleProvisionJob"

	release, err := s.locker.Acquire(ctx, job.TenantID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer release()

	t, err := s.tenants.GetByID(ctx, job.TenantID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if t.Status == domain.TenantStatusActive || t.ProvisionStep == domain.ProvisionStepCompleted {
		return nil
	}
	if t.Archived() {
		return fmt.Errorf("%s: tenant %s archived before provisioning finished", op, t.ID)
	}

	if t.Status != domain.TenantStatusProvisioning {
		t.Status = domain.TenantStatusProvisioning
		if err = s.tenants.Update(ctx, t); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	dbName := t.DatabaseName()

	if t.ProvisionStep == domain.ProvisionStepNone {
		if err = s.provider.Create(ctx, dbName); err != nil {
			return fmt.Errorf("%s: create database: %w", op, err)
		}
		if err = s.advance(ctx, t, domain.ProvisionStepDatabaseCreated); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if t.ProvisionStep == domain.ProvisionStepDatabaseCreated {
		if err = s.provider.Migrate(ctx, dbName); err != nil {
			return fmt.Errorf("%s: migrate: %w", op, err)
		}
		if err = s.advance(ctx, t, domain.ProvisionStepMigrated); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if t.ProvisionStep == domain.ProvisionStepMigrated {
		if err = s.provider.Seed(ctx, dbName, t.AdminBootstrap); err != nil {
			return fmt.Errorf("%s: seed: %w", op, err)
		}
		if err = s.advance(ctx, t, domain.ProvisionStepSeeded); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	t.Status = domain.TenantStatusActive
	t.ProvisionStep = domain.ProvisionStepCompleted
	t.AdminBootstrap = nil

	err = s.tenants.Update(ctx, t)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info().
		Str("tenant_id", t.ID.String()).
		Str("database", dbName).
		Msg("tenant provisioned")

	s.notifier.Notify(ctx, notify.Event{
		Type:     notify.EventTenantProvisioned,
		TenantID: t.ID,
		Message:  fmt.Sprintf("tenant %q is active", t.Subdomain),
	})

	return nil
}

func (s *Service) advance(ctx context.Context, t *domain.Tenant, step domain.ProvisionStep) error {
	t.ProvisionStep = step
	if err := s.tenants.Update(ctx, t); err != nil {
		return fmt.Errorf("advance to %s: %w", step, err)
	}
	return nil
}

func (s *Service) validate(op string, reg *Registration) error {
	if strings.TrimSpace(reg.Name) == "" {
		return &domain.ValidationError{Op: op, Field: "name", Reason: "must not be empty"}
	}

	if reg.Type != domain.TenantTypeCompany && reg.Type != domain.TenantTypeIndividual {
		return &domain.ValidationError{Op: op, Field: "type", Reason: "must be company or individual"}
	}

	sub := strings.ToLower(strings.TrimSpace(reg.Subdomain))
	if !subdomainRe.MatchString(sub) {
		return &domain.ValidationError{Op: op, Field: "subdomain", Reason: "must be 1-63 lowercase letters, digits or hyphens, not starting or ending with a hyphen"}
	}
	if _, reserved := reservedSubdomains[sub]; reserved {
		return &domain.ValidationError{Op: op, Field: "subdomain", Reason: fmt.Sprintf("%q is reserved", sub)}
	}
	reg.Subdomain = sub

	email := strings.ToLower(strings.TrimSpace(reg.ContactEmail))
	if email == "" || !strings.Contains(email, "@") {
		return &domain.ValidationError{Op: op, Field: "contact_email", Reason: "must be a valid email address"}
	}
	reg.ContactEmail = email

	if reg.AdminEmail != "" && reg.AdminPassword == "" {
		return &domain.ValidationError{Op: op, Field: "admin_password", Reason: "required when admin_email is set"}
	}

	return nil
}

// merge folds a resubmitted registration into the existing tenant. Contact
// details, plan and modules follow the new payload; verification state and
// metadata keys absent from the payload are kept.
func (s *Service) merge(existing *domain.Tenant, reg *Registration, now time.Time) *domain.Tenant {
	t := existing

	t.Name = reg.Name
	t.Type = reg.Type
	t.Subdomain = reg.Subdomain
	t.ContactPhone = reg.ContactPhone
	t.PlanID = reg.PlanID
	t.BillingCycle = reg.BillingCycle
	t.Modules = reg.Modules
	t.UpdatedAt = now

	if t.Metadata == nil {
		t.Metadata = make(map[string]any, len(reg.Metadata))
	}
	for k, v := range reg.Metadata {
		t.Metadata[k] = v
	}

	if reg.TrialDays > 0 {
		at := now.AddDate(0, 0, reg.TrialDays)
		t.TrialEndsAt = &at
	}

	return t
}

func (s *Service) newTenant(op string, reg *Registration, now time.Time) (*domain.Tenant, error) {
	t := &domain.Tenant{
		ID:            uuid.New(),
		Name:          reg.Name,
		Type:          reg.Type,
		Subdomain:     reg.Subdomain,
		ContactEmail:  reg.ContactEmail,
		ContactPhone:  reg.ContactPhone,
		PlanID:        reg.PlanID,
		BillingCycle:  reg.BillingCycle,
		Modules:       reg.Modules,
		Status:        domain.TenantStatusPending,
		ProvisionStep: domain.ProvisionStepNone,
		Metadata:      reg.Metadata,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if reg.TrialDays > 0 {
		at := now.AddDate(0, 0, reg.TrialDays)
		t.TrialEndsAt = &at
	}

	code, err := verificationCode()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	t.EmailVerification = domain.Verification{Code: code, SentAt: &now}

	if reg.AdminEmail != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(reg.AdminPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("%s: hash admin password: %w", op, err)
		}
		t.AdminBootstrap = &domain.AdminBootstrap{
			Name:         reg.AdminName,
			Email:        strings.ToLower(strings.TrimSpace(reg.AdminEmail)),
			PasswordHash: string(hash),
		}
	}

	return t, nil
}

// verificationCode returns a random 6-digit code.
func verificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
