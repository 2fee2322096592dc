package provision

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/tenantd/internal/domain"
)

const verificationRecordPrefix = "_tenantd-challenge."

// DomainService manages the hostnames attached to a tenant. Custom domains
// must prove DNS ownership via a TXT challenge before they can serve traffic
// or be promoted to primary.
type DomainService struct {
	domains   domain.DomainRepository
	tenants   domain.TenantRepository
	lookupTXT func(ctx context.Context, name string) ([]string, error)
	now       func() time.Time
}

func NewDomainService(domains domain.DomainRepository, tenants domain.TenantRepository) *DomainService {
	return &DomainService{
		domains:   domains,
		tenants:   tenants,
		lookupTXT: net.DefaultResolver.LookupTXT,
		now:       time.Now,
	}
}

// AddCustom attaches a customer-owned hostname in pending state and returns
// the TXT challenge the customer must publish.
func (s *DomainService) AddCustom(ctx context.Context, tenantID uuid.UUID, hostname string) (*domain.Domain, error) {
	const op = "provision.DomainService.AddCustom"

	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hostname == "" || !strings.Contains(hostname, ".") {
		return nil, &domain.ValidationError{Op: op, Field: "hostname", Reason: "must be a fully qualified domain name"}
	}

	_, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	taken, err := s.domains.GetByHostname(ctx, hostname)
	if err == nil && taken.TenantID != tenantID {
		return nil, fmt.Errorf("%s: hostname %q is taken: %w", op, hostname, domain.ErrConflict)
	}
	if err == nil {
		return taken, nil
	}

	code, err := verificationCode()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now().UTC()
	d := &domain.Domain{
		ID:               uuid.New(),
		TenantID:         tenantID,
		Hostname:         hostname,
		IsCustom:         true,
		Verification:     domain.DomainVerificationPending,
		VerificationCode: code,
		SSL:              domain.SSLStatusNone,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.domains.Create(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return d, nil
}

// Verify checks the DNS TXT challenge for a pending custom domain and marks
// it verified or failed accordingly.
func (s *DomainService) Verify(ctx context.Context, tenantID, id uuid.UUID) (*domain.Domain, error) {
	const op = "provision.DomainService.Verify"

	d, err := s.domains.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if d.Verification == domain.DomainVerificationVerified {
		return d, nil
	}

	records, err := s.lookupTXT(ctx, verificationRecordPrefix+d.Hostname)
	if err != nil {
		log.Debug().Err(err).Str("hostname", d.Hostname).Msg("domain challenge lookup failed")
	}

	found := false
	for _, r := range records {
		if strings.TrimSpace(r) == d.VerificationCode {
			found = true
			break
		}
	}

	if found {
		d.Verification = domain.DomainVerificationVerified
		d.VerificationCode = ""
		d.SSL = domain.SSLStatusPending
	} else {
		d.Verification = domain.DomainVerificationFailed
	}

	err = s.domains.Update(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return d, nil
}

// SetPrimary promotes a verified domain to primary, demoting the current one.
func (s *DomainService) SetPrimary(ctx context.Context, tenantID, id uuid.UUID) error {
	const op = "provision.DomainService.SetPrimary"

	d, err := s.domains.GetByID(ctx, tenantID, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if d.Verification != domain.DomainVerificationVerified {
		return &domain.PreconditionError{
			Op:       op,
			TenantID: tenantID,
			Reason:   fmt.Sprintf("domain %q is not verified", d.Hostname),
		}
	}

	err = s.domains.SetPrimary(ctx, tenantID, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *DomainService) List(ctx context.Context, tenantID uuid.UUID) ([]*domain.Domain, error) {
	domains, err := s.domains.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("provision.DomainService.List: %w", err)
	}
	return domains, nil
}
