package maintenance_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/tenantd/internal/domain"
	"github.com/gosuda/tenantd/internal/maintenance"
	"github.com/gosuda/tenantd/internal/notify"
)

type fakeLocker struct{}

func (fakeLocker) Acquire(context.Context, uuid.UUID) (func(), error) {
	return func() {}, nil
}

type windowRepoMock struct {
	windows map[uuid.UUID]*domain.MaintenanceWindow
	trimmed []uuid.UUID
}

func newWindowRepoMock() *windowRepoMock {
	return &windowRepoMock{windows: make(map[uuid.UUID]*domain.MaintenanceWindow)}
}

func (m *windowRepoMock) Create(_ context.Context, w *domain.MaintenanceWindow) error {
	cp := *w
	m.windows[w.ID] = &cp
	return nil
}

func (m *windowRepoMock) GetByID(_ context.Context, tenantID, id uuid.UUID) (*domain.MaintenanceWindow, error) {
	w, ok := m.windows[id]
	if !ok || w.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *windowRepoMock) GetActive(_ context.Context, tenantID uuid.UUID) (*domain.MaintenanceWindow, error) {
	for _, w := range m.windows {
		if w.TenantID == tenantID && w.Status == domain.MaintenanceStatusActive {
			cp := *w
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *windowRepoMock) ListScheduled(context.Context) ([]*domain.MaintenanceWindow, error) {
	return m.listByStatus(domain.MaintenanceStatusScheduled), nil
}

func (m *windowRepoMock) ListActive(context.Context) ([]*domain.MaintenanceWindow, error) {
	return m.listByStatus(domain.MaintenanceStatusActive), nil
}

func (m *windowRepoMock) listByStatus(status domain.MaintenanceStatus) []*domain.MaintenanceWindow {
	var out []*domain.MaintenanceWindow
	for _, w := range m.windows {
		if w.Status == status {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out
}

func (m *windowRepoMock) ListHistory(_ context.Context, tenantID uuid.UUID, _ int) ([]*domain.MaintenanceWindow, error) {
	var out []*domain.MaintenanceWindow
	for _, w := range m.windows {
		if w.TenantID == tenantID &&
			(w.Status == domain.MaintenanceStatusCompleted || w.Status == domain.MaintenanceStatusCancelled) {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *windowRepoMock) Update(_ context.Context, w *domain.MaintenanceWindow) error {
	stored, ok := m.windows[w.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != w.Version {
		return domain.ErrVersionMismatch
	}
	w.Version++
	cp := *w
	m.windows[w.ID] = &cp
	return nil
}

func (m *windowRepoMock) TrimHistory(_ context.Context, tenantID uuid.UUID, _ int) error {
	m.trimmed = append(m.trimmed, tenantID)
	return nil
}

func (m *windowRepoMock) DeleteByTenant(context.Context, uuid.UUID) error { return nil }

type tenantRepoMock struct {
	tenants map[uuid.UUID]*domain.Tenant
}

func (m *tenantRepoMock) Create(_ context.Context, t *domain.Tenant) error {
	m.tenants[t.ID] = t
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

func (m *tenantRepoMock) GetBySubdomain(context.Context, string) (*domain.Tenant, error) {
	return nil, domain.ErrNotFound
}

func (m *tenantRepoMock) GetByContactEmail(context.Context, string) (*domain.Tenant, error) {
	return nil, domain.ErrNotFound
}

func (m *tenantRepoMock) Update(_ context.Context, t *domain.Tenant) error {
	cp := *t
	m.tenants[t.ID] = &cp
	return nil
}

func (m *tenantRepoMock) List(context.Context, int, int) ([]*domain.Tenant, error) { return nil, nil }

func (m *tenantRepoMock) ListArchived(context.Context) ([]*domain.Tenant, error) { return nil, nil }

func (m *tenantRepoMock) Archive(context.Context, uuid.UUID, time.Time) error { return nil }

func (m *tenantRepoMock) Unarchive(context.Context, uuid.UUID) error { return nil }

type captureChannel struct {
	events []notify.Event
}

func (c *captureChannel) Name() string { return "capture" }

func (c *captureChannel) Send(_ context.Context, e notify.Event) error {
	c.events = append(c.events, e)
	return nil
}

func (c *captureChannel) byType(t notify.EventType) []notify.Event {
	var out []notify.Event
	for _, e := range c.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	svc     *maintenance.Service
	windows *windowRepoMock
	tenants *tenantRepoMock
	events  *captureChannel
	tenant  *domain.Tenant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		windows: newWindowRepoMock(),
		tenants: &tenantRepoMock{tenants: make(map[uuid.UUID]*domain.Tenant)},
		events:  &captureChannel{},
		tenant:  &domain.Tenant{ID: uuid.New(), Status: domain.TenantStatusActive},
	}
	f.tenants.tenants[f.tenant.ID] = f.tenant

	f.svc = maintenance.NewService(
		f.windows, f.tenants, fakeLocker{}, notify.New(f.events),
		7*24*time.Hour, 20,
	)
	return f
}

func TestEnableDisableCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w, err := f.svc.Enable(ctx, f.tenant.ID, maintenance.EnableRequest{
		Type:    domain.MaintenanceTypeEmergency,
		Message: "emergency patch",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MaintenanceStatusActive, w.Status)
	assert.NotEmpty(t, w.BypassToken)
	assert.True(t, f.tenants.tenants[f.tenant.ID].MaintenanceMode)

	// A second enable conflicts with the active window.
	_, err = f.svc.Enable(ctx, f.tenant.ID, maintenance.EnableRequest{})
	assert.ErrorIs(t, err, domain.ErrConflict)

	done, err := f.svc.Disable(ctx, f.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MaintenanceStatusCompleted, done.Status)
	require.NotNil(t, done.DurationSeconds)
	assert.False(t, f.tenants.tenants[f.tenant.ID].MaintenanceMode)
	assert.Equal(t, []uuid.UUID{f.tenant.ID}, f.windows.trimmed)
}

func TestDisableWithoutActiveWindow(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Disable(context.Background(), f.tenant.ID)

	var pre *domain.PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.Contains(t, pre.Reason, "not active")
}

func TestScheduleRejectsPastStart(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Schedule(context.Background(), f.tenant.ID, maintenance.ScheduleRequest{
		StartsAt: time.Now().Add(-time.Hour),
		EndsAt:   time.Now().Add(time.Hour),
	})

	var val *domain.ValidationError
	require.ErrorAs(t, err, &val)
	assert.Equal(t, "starts_at", val.Field)
}

func TestCancelScheduledWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w, err := f.svc.Schedule(ctx, f.tenant.ID, maintenance.ScheduleRequest{
		Type:     domain.MaintenanceTypePlanned,
		StartsAt: time.Now().Add(2 * time.Hour),
		EndsAt:   time.Now().Add(4 * time.Hour),
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(ctx, f.tenant.ID, w.ID))
	assert.Equal(t, domain.MaintenanceStatusCancelled, f.windows.windows[w.ID].Status)

	// Cancelling again is a precondition failure, not a repeat.
	err = f.svc.Cancel(ctx, f.tenant.ID, w.ID)
	var pre *domain.PreconditionError
	assert.ErrorAs(t, err, &pre)
}

func TestCanBypassOrdering(t *testing.T) {
	w := &domain.MaintenanceWindow{
		Status:        domain.MaintenanceStatusActive,
		BypassToken:   "secret-token",
		BypassIPs:     []string{"10.0.0.5", "192.168.1.0/24"},
		BypassUserIDs: []string{"user-1"},
		AllowedRoutes: []string{"/api/v1/health", "/webhooks/"},
	}

	tests := []struct {
		name  string
		check maintenance.BypassCheck
		want  bool
	}{
		{"no credentials", maintenance.BypassCheck{}, false},
		{"valid token", maintenance.BypassCheck{Token: "secret-token"}, true},
		{"wrong token falls through", maintenance.BypassCheck{Token: "nope"}, false},
		{"allowlisted ip", maintenance.BypassCheck{IP: "10.0.0.5"}, true},
		{"ip in cidr", maintenance.BypassCheck{IP: "192.168.1.77"}, true},
		{"ip outside cidr", maintenance.BypassCheck{IP: "192.168.2.1"}, false},
		{"allowlisted user", maintenance.BypassCheck{UserID: "user-1"}, true},
		{"unknown user", maintenance.BypassCheck{UserID: "user-2"}, false},
		{"allowed route prefix", maintenance.BypassCheck{Route: "/webhooks/stripe"}, true},
		{"blocked route", maintenance.BypassCheck{Route: "/api/v1/orders"}, false},
		{"wrong token but allowed ip", maintenance.BypassCheck{Token: "nope", IP: "10.0.0.5"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, maintenance.CanBypass(w, tt.check))
		})
	}
}

func TestCanBypassNoActiveWindow(t *testing.T) {
	assert.True(t, maintenance.CanBypass(nil, maintenance.BypassCheck{}))

	completed := &domain.MaintenanceWindow{Status: domain.MaintenanceStatusCompleted}
	assert.True(t, maintenance.CanBypass(completed, maintenance.BypassCheck{}))
}
