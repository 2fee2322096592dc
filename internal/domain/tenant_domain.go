package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type DomainVerification string

const (
	DomainVerificationPending  DomainVerification = "pending"
	DomainVerificationVerified DomainVerification = "verified"
	DomainVerificationFailed   DomainVerification = "failed"
)

type SSLStatus string

const (
	SSLStatusNone    SSLStatus = "none"
	SSLStatusPending SSLStatus = "pending"
	SSLStatusActive  SSLStatus = "active"
)

// Domain maps a hostname to a tenant. Exactly one primary domain exists per
// tenant; custom domains must pass DNS-ownership verification before they can
// be promoted to primary.
type Domain struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	Hostname         string
	IsPrimary        bool
	IsCustom         bool
	Verification     DomainVerification
	VerificationCode string
	SSL              SSLStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type DomainRepository interface {
	Create(ctx context.Context, d *Domain) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Domain, error)
	GetByHostname(ctx context.Context, hostname string) (*Domain, error)
	GetPrimary(ctx context.Context, tenantID uuid.UUID) (*Domain, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Domain, error)
	Update(ctx context.Context, d *Domain) error
	// SetPrimary atomically demotes the current primary and promotes the
	// given domain, preserving the one-primary-per-tenant invariant.
	SetPrimary(ctx context.Context, tenantID, id uuid.UUID) error
	DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error
}
