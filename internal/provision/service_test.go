package provision_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/gosuda/tenantd/internal/domain"
	"github.com/gosuda/tenantd/internal/notify"
	"github.com/gosuda/tenantd/internal/provision"
)

type fakeLocker struct{}

func (fakeLocker) Acquire(context.Context, uuid.UUID) (func(), error) {
	return func() {}, nil
}

type tenantRepoMock struct {
	tenants map[uuid.UUID]*domain.Tenant
}

func newTenantRepoMock() *tenantRepoMock {
	return &tenantRepoMock{tenants: make(map[uuid.UUID]*domain.Tenant)}
}

func (m *tenantRepoMock) Create(_ context.Context, t *domain.Tenant) error {
	cp := *t
	m.tenants[t.ID] = &cp
	return nil
}

func (m *tenantRepoMock) GetByID(_ context.Context, id uuid.UUID) (*domain.Tenant, error) {
	t, ok := m.tenants[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *tenantRepoMock) GetBySubdomain(_ context.Context, sub string) (*domain.Tenant, error) {
	for _, t := range m.tenants {
		if t.Subdomain == sub {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *tenantRepoMock) GetByContactEmail(_ context.Context, email string) (*domain.Tenant, error) {
	for _, t := range m.tenants {
		if t.ContactEmail == email {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *tenantRepoMock) Update(_ context.Context, t *domain.Tenant) error {
	if _, ok := m.tenants[t.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *t
	m.tenants[t.ID] = &cp
	return nil
}

func (m *tenantRepoMock) List(context.Context, int, int) ([]*domain.Tenant, error) { return nil, nil }

func (m *tenantRepoMock) ListArchived(context.Context) ([]*domain.Tenant, error) { return nil, nil }

func (m *tenantRepoMock) Archive(context.Context, uuid.UUID, time.Time) error { return nil }

func (m *tenantRepoMock) Unarchive(context.Context, uuid.UUID) error { return nil }

type domainRepoMock struct {
	domains map[uuid.UUID]*domain.Domain
}

func (m *domainRepoMock) Create(_ context.Context, d *domain.Domain) error {
	cp := *d
	m.domains[d.ID] = &cp
	return nil
}

func (m *domainRepoMock) GetByID(_ context.Context, tenantID, id uuid.UUID) (*domain.Domain, error) {
	d, ok := m.domains[id]
	if !ok || d.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *domainRepoMock) GetByHostname(_ context.Context, hostname string) (*domain.Domain, error) {
	for _, d := range m.domains {
		if d.Hostname == hostname {
			cp := *d
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *domainRepoMock) GetPrimary(_ context.Context, tenantID uuid.UUID) (*domain.Domain, error) {
	for _, d := range m.domains {
		if d.TenantID == tenantID && d.IsPrimary {
			cp := *d
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *domainRepoMock) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]*domain.Domain, error) {
	var out []*domain.Domain
	for _, d := range m.domains {
		if d.TenantID == tenantID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *domainRepoMock) Update(_ context.Context, d *domain.Domain) error {
	if _, ok := m.domains[d.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *d
	m.domains[d.ID] = &cp
	return nil
}

func (m *domainRepoMock) SetPrimary(_ context.Context, tenantID, id uuid.UUID) error {
	for _, d := range m.domains {
		if d.TenantID == tenantID {
			d.IsPrimary = d.ID == id
		}
	}
	return nil
}

func (m *domainRepoMock) DeleteByTenant(context.Context, uuid.UUID) error { return nil }

// registrationStoreMock applies a SaveRegistration to the backing mocks the
// way the transactional store would.
type registrationStoreMock struct {
	tenants *tenantRepoMock
	domains *domainRepoMock
	jobs    []*domain.Job
	fail    error
}

func (m *registrationStoreMock) SaveRegistration(ctx context.Context, t *domain.Tenant, primary *domain.Domain, job *domain.Job) error {
	if m.fail != nil {
		return m.fail
	}
	_ = m.tenants.Create(ctx, t)
	_ = m.domains.Create(ctx, primary)
	if job != nil {
		m.jobs = append(m.jobs, job)
	}
	return nil
}

type providerMock struct {
	created   []string
	migrated  []string
	seeded    []*domain.AdminBootstrap
	failStep  string
	stepError error
}

func (p *providerMock) Create(_ context.Context, name string) error {
	if p.failStep == "create" {
		return p.stepError
	}
	p.created = append(p.created, name)
	return nil
}

func (p *providerMock) Exists(context.Context, string) (bool, error) { return false, nil }

func (p *providerMock) Drop(context.Context, string) error { return nil }

func (p *providerMock) Migrate(_ context.Context, name string) error {
	if p.failStep == "migrate" {
		return p.stepError
	}
	p.migrated = append(p.migrated, name)
	return nil
}

func (p *providerMock) Seed(_ context.Context, _ string, admin *domain.AdminBootstrap) error {
	if p.failStep == "seed" {
		return p.stepError
	}
	p.seeded = append(p.seeded, admin)
	return nil
}

func (p *providerMock) Dump(context.Context, string, io.Writer) error { return nil }

func (p *providerMock) Restore(context.Context, string, io.Reader) error { return nil }

type captureChannel struct {
	events []notify.Event
}

func (c *captureChannel) Name() string { return "capture" }

func (c *captureChannel) Send(_ context.Context, e notify.Event) error {
	c.events = append(c.events, e)
	return nil
}

type fixture struct {
	svc      *provision.Service
	tenants  *tenantRepoMock
	domains  *domainRepoMock
	store    *registrationStoreMock
	provider *providerMock
	events   *captureChannel
}

func newFixture() *fixture {
	f := &fixture{
		tenants:  newTenantRepoMock(),
		domains:  &domainRepoMock{domains: make(map[uuid.UUID]*domain.Domain)},
		provider: &providerMock{},
		events:   &captureChannel{},
	}
	f.store = &registrationStoreMock{tenants: f.tenants, domains: f.domains}
	f.svc = provision.NewService(
		f.tenants, f.domains, f.store, f.provider,
		fakeLocker{}, notify.New(f.events), "example.com", 5,
	)
	return f
}

func validRegistration() *provision.Registration {
	return &provision.Registration{
		Name:          "Acme Corp",
		Type:          domain.TenantTypeCompany,
		Subdomain:     "acme",
		ContactEmail:  "ops@acme.test",
		PlanID:        "pro",
		BillingCycle:  "monthly",
		Modules:       []string{"crm", "billing"},
		AdminName:     "Ada",
		AdminEmail:    "ada@acme.test",
		AdminPassword: "hunter2hunter2",
	}
}

func TestRegisterNewTenant(t *testing.T) {
	f := newFixture()

	tenant, err := f.svc.Register(context.Background(), validRegistration())
	require.NoError(t, err)

	assert.Equal(t, domain.TenantStatusPending, tenant.Status)
	assert.Equal(t, "acme", tenant.Subdomain)
	assert.NotEmpty(t, tenant.EmailVerification.Code)
	assert.NotNil(t, tenant.EmailVerification.SentAt)

	require.NotNil(t, tenant.AdminBootstrap)
	assert.Equal(t, "ada@acme.test", tenant.AdminBootstrap.Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword(
		[]byte(tenant.AdminBootstrap.PasswordHash), []byte("hunter2hunter2")))

	// Primary domain and provisioning job land with the registration.
	primary, err := f.domains.GetPrimary(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme.example.com", primary.Hostname)

	require.Len(t, f.store.jobs, 1)
	assert.Equal(t, domain.JobKindProvisionTenant, f.store.jobs[0].Kind)
	assert.Equal(t, "provision:"+tenant.ID.String(), f.store.jobs[0].DedupeKey)
}

func TestRegisterMergesOnSameEmail(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	// Simulate verification happening between submissions.
	stored := f.tenants.tenants[first.ID]
	verifiedAt := time.Now().UTC()
	stored.EmailVerification.VerifiedAt = &verifiedAt
	stored.Metadata = map[string]any{"utm_source": "launch"}

	resubmit := validRegistration()
	resubmit.Name = "Acme Corporation"
	resubmit.PlanID = "enterprise"
	resubmit.Metadata = map[string]any{"referrer": "partner"}

	second, err := f.svc.Register(ctx, resubmit)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Acme Corporation", second.Name)
	assert.Equal(t, "enterprise", second.PlanID)

	// Verification survives and metadata merges instead of replacing.
	require.NotNil(t, second.EmailVerification.VerifiedAt)
	assert.Equal(t, "launch", second.Metadata["utm_source"])
	assert.Equal(t, "partner", second.Metadata["referrer"])
}

func TestRegisterSubdomainConflict(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	other := validRegistration()
	other.ContactEmail = "someone@else.test"

	_, err = f.svc.Register(ctx, other)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture()

	tests := []struct {
		name   string
		mutate func(*provision.Registration)
		field  string
	}{
		{"empty name", func(r *provision.Registration) { r.Name = " " }, "name"},
		{"bad type", func(r *provision.Registration) { r.Type = "llc" }, "type"},
		{"leading hyphen subdomain", func(r *provision.Registration) { r.Subdomain = "-acme" }, "subdomain"},
		{"reserved subdomain", func(r *provision.Registration) { r.Subdomain = "admin" }, "subdomain"},
		{"bad email", func(r *provision.Registration) { r.ContactEmail = "nope" }, "contact_email"},
		{"admin without password", func(r *provision.Registration) { r.AdminPassword = "" }, "admin_password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := validRegistration()
			tt.mutate(reg)

			_, err := f.svc.Register(context.Background(), reg)

			var val *domain.ValidationError
			require.ErrorAs(t, err, &val)
			assert.Equal(t, tt.field, val.Field)
		})
	}
}

func provisionJob(tenantID uuid.UUID) *domain.Job {
	return &domain.Job{
		ID:       uuid.New(),
		Kind:     domain.JobKindProvisionTenant,
		TenantID: tenantID,
	}
}

func TestHandleProvisionJobRunsAllSteps(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tenant, err := f.svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	err = f.svc.HandleProvisionJob(ctx, provisionJob(tenant.ID))
	require.NoError(t, err)

	dbName := tenant.DatabaseName()
	assert.Equal(t, []string{dbName}, f.provider.created)
	assert.Equal(t, []string{dbName}, f.provider.migrated)
	require.Len(t, f.provider.seeded, 1)
	assert.Equal(t, "ada@acme.test", f.provider.seeded[0].Email)

	final := f.tenants.tenants[tenant.ID]
	assert.Equal(t, domain.TenantStatusActive, final.Status)
	assert.Equal(t, domain.ProvisionStepCompleted, final.ProvisionStep)
	assert.Nil(t, final.AdminBootstrap, "bootstrap credentials must be cleared")

	require.Len(t, f.events.events, 1)
	assert.Equal(t, notify.EventTenantProvisioned, f.events.events[0].Type)
}

func TestHandleProvisionJobResumesAfterFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tenant, err := f.svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	f.provider.failStep = "migrate"
	f.provider.stepError = errors.New("connection refused")

	err = f.svc.HandleProvisionJob(ctx, provisionJob(tenant.ID))
	require.Error(t, err)

	// Progress up to the failure is persisted.
	mid := f.tenants.tenants[tenant.ID]
	assert.Equal(t, domain.TenantStatusProvisioning, mid.Status)
	assert.Equal(t, domain.ProvisionStepDatabaseCreated, mid.ProvisionStep)

	// The retry resumes at migration without re-creating the database.
	f.provider.failStep = ""
	err = f.svc.HandleProvisionJob(ctx, provisionJob(tenant.ID))
	require.NoError(t, err)

	assert.Len(t, f.provider.created, 1)
	assert.Len(t, f.provider.migrated, 1)
	assert.Equal(t, domain.TenantStatusActive, f.tenants.tenants[tenant.ID].Status)
}

func TestHandleProvisionJobIdempotentWhenActive(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tenant, err := f.svc.Register(ctx, validRegistration())
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleProvisionJob(ctx, provisionJob(tenant.ID)))

	// Redelivery of the same job does nothing.
	require.NoError(t, f.svc.HandleProvisionJob(ctx, provisionJob(tenant.ID)))
	assert.Len(t, f.provider.created, 1)
	assert.Len(t, f.provider.migrated, 1)
	assert.Len(t, f.provider.seeded, 1)
}

func TestVerifyEmail(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tenant, err := f.svc.Register(ctx, validRegistration())
	require.NoError(t, err)
	code := tenant.EmailVerification.Code

	require.Error(t, f.svc.VerifyEmail(ctx, tenant.ID, "000000x"))

	require.NoError(t, f.svc.VerifyEmail(ctx, tenant.ID, code))
	stored := f.tenants.tenants[tenant.ID]
	assert.NotNil(t, stored.EmailVerification.VerifiedAt)
	assert.Empty(t, stored.EmailVerification.Code)

	// Re-verifying is a no-op.
	require.NoError(t, f.svc.VerifyEmail(ctx, tenant.ID, "anything"))
}
