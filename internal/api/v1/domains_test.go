package v1_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/gosuda/tenantd/internal/api/v1"
	"github.com/gosuda/tenantd/internal/domain"
)

func customDomain(tenantID uuid.UUID, hostname string) *domain.Domain {
	now := time.Now()
	return &domain.Domain{
		ID:               uuid.New(),
		TenantID:         tenantID,
		Hostname:         hostname,
		IsCustom:         true,
		Verification:     domain.DomainVerificationPending,
		VerificationCode: "txt-challenge-code",
		SSL:              domain.SSLStatusNone,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// ---------------------------------------------------------------------------
// POST /tenants/{tenantID}/domains
// ---------------------------------------------------------------------------

func TestAddCustomDomain(t *testing.T) {
	t.Parallel()

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		tenantID := uuid.New()

		_, api := humatest.New(t)
		domains := &mockDomains{
			addCustomFunc: func(_ context.Context, id uuid.UUID, hostname string) (*domain.Domain, error) {
				assert.Equal(t, tenantID, id)
				assert.Equal(t, "app.acme.io", hostname)
				return customDomain(id, hostname), nil
			},
		}

		v1.RegisterDomainRoutes(api, domains)

		resp := api.Post("/tenants/"+tenantID.String()+"/domains", map[string]any{
			"hostname": "app.acme.io",
		})

		require.Equal(t, http.StatusCreated, resp.Code)

		var body v1.Domain
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "app.acme.io", body.Hostname)
		assert.Equal(t, "txt-challenge-code", body.VerificationCode, "operators need the TXT challenge")
	})

	t.Run("duplicate_hostname_maps_to_409", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		domains := &mockDomains{
			addCustomFunc: func(_ context.Context, _ uuid.UUID, _ string) (*domain.Domain, error) {
				return nil, domain.ErrConflict
			},
		}

		v1.RegisterDomainRoutes(api, domains)

		resp := api.Post("/tenants/"+uuid.NewString()+"/domains", map[string]any{
			"hostname": "taken.example.com",
		})

		assert.Equal(t, http.StatusConflict, resp.Code)
	})
}

// ---------------------------------------------------------------------------
// POST /tenants/{tenantID}/domains/{domainID}/verify
// ---------------------------------------------------------------------------

func TestVerifyDomain(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	domainID := uuid.New()

	_, api := humatest.New(t)
	domains := &mockDomains{
		verifyFunc: func(_ context.Context, tid, did uuid.UUID) (*domain.Domain, error) {
			assert.Equal(t, tenantID, tid)
			assert.Equal(t, domainID, did)
			d := customDomain(tid, "app.acme.io")
			d.ID = did
			d.Verification = domain.DomainVerificationVerified
			return d, nil
		},
	}

	v1.RegisterDomainRoutes(api, domains)

	resp := api.Post("/tenants/"+tenantID.String()+"/domains/"+domainID.String()+"/verify", map[string]any{})

	require.Equal(t, http.StatusOK, resp.Code)

	var body v1.Domain
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, domain.DomainVerificationVerified, body.Verification)
}

// ---------------------------------------------------------------------------
// PUT /tenants/{tenantID}/domains/{domainID}/primary
// ---------------------------------------------------------------------------

func TestSetPrimaryDomain(t *testing.T) {
	t.Parallel()

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		promoted := false

		_, api := humatest.New(t)
		domains := &mockDomains{
			setPrimaryFunc: func(_ context.Context, _, _ uuid.UUID) error {
				promoted = true
				return nil
			},
		}

		v1.RegisterDomainRoutes(api, domains)

		resp := api.Put("/tenants/"+uuid.NewString()+"/domains/"+uuid.NewString()+"/primary", map[string]any{})

		assert.Equal(t, http.StatusNoContent, resp.Code)
		assert.True(t, promoted)
	})

	t.Run("unverified_returns_412", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		domains := &mockDomains{
			setPrimaryFunc: func(_ context.Context, tid, _ uuid.UUID) error {
				return &domain.PreconditionError{
					Op:       "provision.DomainService.SetPrimary",
					TenantID: tid,
					Reason:   "domain is not verified",
				}
			},
		}

		v1.RegisterDomainRoutes(api, domains)

		resp := api.Put("/tenants/"+uuid.NewString()+"/domains/"+uuid.NewString()+"/primary", map[string]any{})

		assert.Equal(t, http.StatusPreconditionFailed, resp.Code)
	})
}

// ---------------------------------------------------------------------------
// GET /tenants/{tenantID}/domains
// ---------------------------------------------------------------------------

func TestListDomains(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()

	_, api := humatest.New(t)
	domains := &mockDomains{
		listFunc: func(_ context.Context, id uuid.UUID) ([]*domain.Domain, error) {
			primary := customDomain(id, "acme.tenantd.example.com")
			primary.IsCustom = false
			primary.IsPrimary = true
			primary.Verification = domain.DomainVerificationVerified
			return []*domain.Domain{primary, customDomain(id, "app.acme.io")}, nil
		},
	}

	v1.RegisterDomainRoutes(api, domains)

	resp := api.Get("/tenants/" + tenantID.String() + "/domains")

	require.Equal(t, http.StatusOK, resp.Code)

	var body []*v1.Domain
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body, 2)
	assert.True(t, body[0].IsPrimary)
}
