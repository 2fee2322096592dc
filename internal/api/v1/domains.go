package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
)

type AddDomainInput struct {
	TenantID uuid.UUID `path:"tenantID" doc:"Tenant ID"`
	Body     struct {
		Hostname string `json:"hostname" minLength:"3" maxLength:"253" doc:"Fully qualified custom hostname"`
	}
}

type DomainOutput struct {
	Status int
	Body   *Domain
}

type DomainIDInput struct {
	TenantID uuid.UUID `path:"tenantID" doc:"Tenant ID"`
	DomainID uuid.UUID `path:"domainID" doc:"Domain ID"`
}

type VerifyDomainOutput struct {
	Body *Domain
}

type SetPrimaryDomainOutput struct {
	Status int
}

type ListDomainsOutput struct {
	Body []*Domain
}

func RegisterDomainRoutes(api huma.API, domains DomainService) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-custom-domain",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenantID}/domains",
		Summary:       "Attach a custom domain and issue its TXT challenge",
		Tags:          []string{"Domains"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *AddDomainInput) (*DomainOutput, error) {
		d, err := domains.AddCustom(ctx, input.TenantID, input.Body.Hostname)
		if err != nil {
			return nil, mapError(err)
		}
		return &DomainOutput{Status: http.StatusCreated, Body: toDomain(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "verify-domain",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenantID}/domains/{domainID}/verify",
		Summary:     "Check the DNS TXT challenge for a custom domain",
		Tags:        []string{"Domains"},
	}, func(ctx context.Context, input *DomainIDInput) (*VerifyDomainOutput, error) {
		d, err := domains.Verify(ctx, input.TenantID, input.DomainID)
		if err != nil {
			return nil, mapError(err)
		}
		return &VerifyDomainOutput{Body: toDomain(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "set-primary-domain",
		Method:        http.MethodPut,
		Path:          "/tenants/{tenantID}/domains/{domainID}/primary",
		Summary:       "Promote a verified domain to primary",
		Tags:          []string{"Domains"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *DomainIDInput) (*SetPrimaryDomainOutput, error) {
		if err := domains.SetPrimary(ctx, input.TenantID, input.DomainID); err != nil {
			return nil, mapError(err)
		}
		return &SetPrimaryDomainOutput{Status: http.StatusNoContent}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-domains",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenantID}/domains",
		Summary:     "List the tenant's domains",
		Tags:        []string{"Domains"},
	}, func(ctx context.Context, input *TenantIDInput) (*ListDomainsOutput, error) {
		ds, err := domains.List(ctx, input.TenantID)
		if err != nil {
			return nil, mapError(err)
		}
		return &ListDomainsOutput{Body: toDomains(ds)}, nil
	})
}
