package provision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/tenantd/internal/domain"
)

type memDomainRepo struct {
	domains map[uuid.UUID]*domain.Domain
}

func (m *memDomainRepo) Create(_ context.Context, d *domain.Domain) error {
	cp := *d
	m.domains[d.ID] = &cp
	return nil
}

func (m *memDomainRepo) GetByID(_ context.Context, tenantID, id uuid.UUID) (*domain.Domain, error) {
	d, ok := m.domains[id]
	if !ok || d.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memDomainRepo) GetByHostname(_ context.Context, hostname string) (*domain.Domain, error) {
	for _, d := range m.domains {
		if d.Hostname == hostname {
			cp := *d
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memDomainRepo) GetPrimary(_ context.Context, tenantID uuid.UUID) (*domain.Domain, error) {
	for _, d := range m.domains {
		if d.TenantID == tenantID && d.IsPrimary {
			cp := *d
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memDomainRepo) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]*domain.Domain, error) {
	var out []*domain.Domain
	for _, d := range m.domains {
		if d.TenantID == tenantID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memDomainRepo) Update(_ context.Context, d *domain.Domain) error {
	if _, ok := m.domains[d.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *d
	m.domains[d.ID] = &cp
	return nil
}

func (m *memDomainRepo) SetPrimary(_ context.Context, tenantID, id uuid.UUID) error {
	for _, d := range m.domains {
		if d.TenantID == tenantID {
			d.IsPrimary = d.ID == id
		}
	}
	return nil
}

func (m *memDomainRepo) DeleteByTenant(context.Context, uuid.UUID) error { return nil }

type memTenantRepo struct {
	tenant *domain.Tenant
}

func (m *memTenantRepo) Create(context.Context, *domain.Tenant) error { return nil }

func (m *memTenantRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Tenant, error) {
	if m.tenant == nil || m.tenant.ID != id {
		return nil, domain.ErrNotFound
	}
	return m.tenant, nil
}

func (m *memTenantRepo) GetBySubdomain(context.Context, string) (*domain.Tenant, error) {
	return nil, domain.ErrNotFound
}

func (m *memTenantRepo) GetByContactEmail(context.Context, string) (*domain.Tenant, error) {
	return nil, domain.ErrNotFound
}

func (m *memTenantRepo) Update(context.Context, *domain.Tenant) error { return nil }

func (m *memTenantRepo) List(context.Context, int, int) ([]*domain.Tenant, error) { return nil, nil }

func (m *memTenantRepo) ListArchived(context.Context) ([]*domain.Tenant, error) { return nil, nil }

func (m *memTenantRepo) Archive(context.Context, uuid.UUID, time.Time) error { return nil }

func (m *memTenantRepo) Unarchive(context.Context, uuid.UUID) error { return nil }

func newDomainFixture() (*DomainService, *memDomainRepo, *domain.Tenant) {
	tenant := &domain.Tenant{ID: uuid.New(), Subdomain: "acme"}
	repo := &memDomainRepo{domains: make(map[uuid.UUID]*domain.Domain)}
	svc := NewDomainService(repo, &memTenantRepo{tenant: tenant})
	return svc, repo, tenant
}

func TestAddCustomDomainIssuesChallenge(t *testing.T) {
	svc, _, tenant := newDomainFixture()

	d, err := svc.AddCustom(context.Background(), tenant.ID, "Shop.Acme.COM")
	require.NoError(t, err)

	assert.Equal(t, "shop.acme.com", d.Hostname)
	assert.True(t, d.IsCustom)
	assert.Equal(t, domain.DomainVerificationPending, d.Verification)
	assert.NotEmpty(t, d.VerificationCode)
}

func TestAddCustomDomainTakenByOtherTenant(t *testing.T) {
	svc, repo, tenant := newDomainFixture()

	other := &domain.Domain{ID: uuid.New(), TenantID: uuid.New(), Hostname: "shop.acme.com"}
	repo.domains[other.ID] = other

	_, err := svc.AddCustom(context.Background(), tenant.ID, "shop.acme.com")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestVerifyDomainAgainstTXTRecord(t *testing.T) {
	svc, repo, tenant := newDomainFixture()
	ctx := context.Background()

	d, err := svc.AddCustom(ctx, tenant.ID, "shop.acme.com")
	require.NoError(t, err)

	var queried string
	svc.lookupTXT = func(_ context.Context, name string) ([]string, error) {
		queried = name
		return []string{"unrelated", d.VerificationCode}, nil
	}

	verified, err := svc.Verify(ctx, tenant.ID, d.ID)
	require.NoError(t, err)

	assert.Equal(t, "_tenantd-challenge.shop.acme.com", queried)
	assert.Equal(t, domain.DomainVerificationVerified, verified.Verification)
	assert.Empty(t, verified.VerificationCode)
	assert.Equal(t, domain.SSLStatusPending, verified.SSL)
	assert.Equal(t, domain.DomainVerificationVerified, repo.domains[d.ID].Verification)
}

func TestVerifyDomainMissingRecordFails(t *testing.T) {
	svc, _, tenant := newDomainFixture()
	ctx := context.Background()

	d, err := svc.AddCustom(ctx, tenant.ID, "shop.acme.com")
	require.NoError(t, err)

	svc.lookupTXT = func(context.Context, string) ([]string, error) {
		return nil, errors.New("NXDOMAIN")
	}

	failed, err := svc.Verify(ctx, tenant.ID, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DomainVerificationFailed, failed.Verification)
}

func TestSetPrimaryRequiresVerified(t *testing.T) {
	svc, repo, tenant := newDomainFixture()
	ctx := context.Background()

	d, err := svc.AddCustom(ctx, tenant.ID, "shop.acme.com")
	require.NoError(t, err)

	err = svc.SetPrimary(ctx, tenant.ID, d.ID)
	var pre *domain.PreconditionError
	require.ErrorAs(t, err, &pre)

	repo.domains[d.ID].Verification = domain.DomainVerificationVerified
	require.NoError(t, svc.SetPrimary(ctx, tenant.ID, d.ID))
	assert.True(t, repo.domains[d.ID].IsPrimary)
}
