package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/tenantd/internal/domain"
	"github.com/gosuda/tenantd/internal/provision"
	"github.com/gosuda/tenantd/internal/server/middleware"
)

type RegisterTenantInput struct {
	Body struct {
		Name          string         `json:"name" minLength:"1" maxLength:"255" doc:"Organization name"`
		Type          string         `json:"type" enum:"company,individual" doc:"Tenant type"`
		Subdomain     string         `json:"subdomain" minLength:"1" maxLength:"63" doc:"Subdomain under the platform base domain"`
		ContactEmail  string         `json:"contact_email" format:"email" doc:"Primary contact email"`
		ContactPhone  string         `json:"contact_phone,omitempty" doc:"Primary contact phone"`
		PlanID        string         `json:"plan_id,omitempty" doc:"Subscription plan"`
		BillingCycle  string         `json:"billing_cycle,omitempty" enum:",monthly,yearly" doc:"Billing cycle"`
		Modules       []string       `json:"modules,omitempty" doc:"Enabled feature modules"`
		TrialDays     int            `json:"trial_days,omitempty" minimum:"0" maximum:"365" doc:"Trial period in days"`
		Metadata      map[string]any `json:"metadata,omitempty" doc:"Free-form tenant metadata"`
		AdminName     string         `json:"admin_name" minLength:"1" doc:"Initial admin account name"`
		AdminEmail    string         `json:"admin_email" format:"email" doc:"Initial admin account email"`
		AdminPassword string         `json:"admin_password" minLength:"8" doc:"Initial admin account password"`
	}
}

type RegisterTenantOutput struct {
	Status int
	Body   *Tenant
}

type VerifyEmailInput struct {
	TenantID uuid.UUID `path:"tenantID" doc:"Tenant ID"`
	Body     struct {
		Code string `json:"code" minLength:"1" doc:"Verification code from the signup email"`
	}
}

type VerifyEmailOutput struct {
	Body struct {
		Verified bool `json:"verified"`
	}
}

type ListTenantsInput struct {
	Limit  int `query:"limit" minimum:"1" maximum:"200" default:"50" doc:"Max results"`
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Offset for pagination"`
}

type ListTenantsOutput struct {
	Body []*Tenant
}

type GetTenantInput struct {
	TenantID uuid.UUID `path:"tenantID" doc:"Tenant ID"`
}

type GetTenantOutput struct {
	Body *Tenant
}

type TenantIDInput struct {
	TenantID uuid.UUID `path:"tenantID" doc:"Tenant ID"`
}

type TenantOutput struct {
	Body *Tenant
}

type ListArchivedOutput struct {
	Body []*ArchivedTenant
}

type PurgeTenantOutput struct {
	Status int
}

type BatchPurgeInput struct {
	Body struct {
		TenantIDs []uuid.UUID `json:"tenant_ids" minItems:"1" doc:"Tenants to purge"`
	}
}

type BatchPurgeOutput struct {
	Body struct {
		Succeeded []uuid.UUID       `json:"succeeded"`
		Failed    map[string]string `json:"failed,omitempty"`
	}
}

type ListEligibleOutput struct {
	Body []*Tenant
}

func RegisterTenantRoutes(api huma.API, provisioner ProvisioningService, tenants TenantReader, ret RetentionService, purger PurgeService) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-tenant",
		Method:        http.MethodPost,
		Path:          "/tenants",
		Summary:       "Register a tenant and start provisioning",
		Tags:          []string{"Tenants"},
		DefaultStatus: http.StatusAccepted,
	}, func(ctx context.Context, input *RegisterTenantInput) (*RegisterTenantOutput, error) {
		t, err := provisioner.Register(ctx, &provision.Registration{
			Name:          input.Body.Name,
			Type:          domain.TenantType(input.Body.Type),
			Subdomain:     input.Body.Subdomain,
			ContactEmail:  input.Body.ContactEmail,
			ContactPhone:  input.Body.ContactPhone,
			PlanID:        input.Body.PlanID,
			BillingCycle:  input.Body.BillingCycle,
			Modules:       input.Body.Modules,
			TrialDays:     input.Body.TrialDays,
			Metadata:      input.Body.Metadata,
			AdminName:     input.Body.AdminName,
			AdminEmail:    input.Body.AdminEmail,
			AdminPassword: input.Body.AdminPassword,
		})
		if err != nil {
			return nil, mapError(err)
		}
		return &RegisterTenantOutput{Status: http.StatusAccepted, Body: toTenant(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "verify-tenant-email",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenantID}/verify-email",
		Summary:     "Verify the tenant contact email",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *VerifyEmailInput) (*VerifyEmailOutput, error) {
		if err := provisioner.VerifyEmail(ctx, input.TenantID, input.Body.Code); err != nil {
			return nil, mapError(err)
		}
		out := &VerifyEmailOutput{}
		out.Body.Verified = true
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tenants",
		Method:      http.MethodGet,
		Path:        "/tenants",
		Summary:     "List tenants",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *ListTenantsInput) (*ListTenantsOutput, error) {
		ts, err := tenants.List(ctx, input.Limit, input.Offset)
		if err != nil {
			return nil, mapError(err)
		}
		return &ListTenantsOutput{Body: toTenants(ts)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-archived-tenants",
		Method:      http.MethodGet,
		Path:        "/tenants/archived",
		Summary:     "List archived tenants with retention countdowns",
		Tags:        []string{"Retention"},
	}, func(ctx context.Context, _ *struct{}) (*ListArchivedOutput, error) {
		ts, err := ret.ListArchived(ctx)
		if err != nil {
			return nil, mapError(err)
		}
		return &ListArchivedOutput{Body: toArchivedTenants(ts)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-purge-eligible-tenants",
		Method:      http.MethodGet,
		Path:        "/tenants/purge-eligible",
		Summary:     "List archived tenants past their retention window",
		Tags:        []string{"Purge"},
	}, func(ctx context.Context, _ *struct{}) (*ListEligibleOutput, error) {
		ts, err := purger.ListEligible(ctx)
		if err != nil {
			return nil, mapError(err)
		}
		return &ListEligibleOutput{Body: toTenants(ts)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-tenant",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenantID}",
		Summary:     "Get one tenant",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *GetTenantInput) (*GetTenantOutput, error) {
		t, err := tenants.GetByID(ctx, input.TenantID)
		if err != nil {
			return nil, mapError(err)
		}
		return &GetTenantOutput{Body: toTenant(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "archive-tenant",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenantID}/archive",
		Summary:     "Soft-delete a tenant into the retention window",
		Tags:        []string{"Retention"},
	}, func(ctx context.Context, input *TenantIDInput) (*TenantOutput, error) {
		t, err := ret.Archive(ctx, input.TenantID)
		if err != nil {
			return nil, mapError(err)
		}
		return &TenantOutput{Body: toTenant(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "restore-tenant",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenantID}/restore",
		Summary:     "Restore an archived tenant within its retention window",
		Tags:        []string{"Retention"},
	}, func(ctx context.Context, input *TenantIDInput) (*TenantOutput, error) {
		t, err := ret.Restore(ctx, input.TenantID)
		if err != nil {
			return nil, mapError(err)
		}
		return &TenantOutput{Body: toTenant(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "purge-tenant",
		Method:        http.MethodDelete,
		Path:          "/tenants/{tenantID}",
		Summary:       "Permanently destroy a tenant past its retention window",
		Tags:          []string{"Purge"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *TenantIDInput) (*PurgeTenantOutput, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		if err := purger.Purge(ctx, input.TenantID); err != nil {
			return nil, mapError(err)
		}
		return &PurgeTenantOutput{Status: http.StatusNoContent}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "batch-purge-tenants",
		Method:      http.MethodPost,
		Path:        "/tenants/purge",
		Summary:     "Purge a batch of tenants, collecting per-tenant failures",
		Tags:        []string{"Purge"},
	}, func(ctx context.Context, input *BatchPurgeInput) (*BatchPurgeOutput, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		result, err := purger.BatchPurge(ctx, input.Body.TenantIDs)
		if err != nil {
			return nil, mapError(err)
		}

		out := &BatchPurgeOutput{}
		out.Body.Succeeded = result.Succeeded
		if len(result.Failed) > 0 {
			out.Body.Failed = make(map[string]string, len(result.Failed))
			for _, f := range result.Failed {
				out.Body.Failed[f.TenantID.String()] = f.Err.Error()
			}
		}
		return out, nil
	})
}

func requireAdmin(ctx context.Context) error {
	role, ok := middleware.RoleFromContext(ctx)
	if !ok || role != "admin" {
		return huma.Error403Forbidden("admin role required")
	}
	return nil
}

// callerID identifies the authenticated operator for audit fields.
func callerID(ctx context.Context) string {
	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		return "unknown"
	}
	return userID
}
