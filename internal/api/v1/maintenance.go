package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/tenantd/internal/domain"
	"github.com/gosuda/tenantd/internal/maintenance"
)

type EnableMaintenanceInput struct {
	TenantID uuid.UUID `path:"tenantID" doc:"Tenant ID"`
	Body     struct {
		Type          string     `json:"type,omitempty" enum:",planned,emergency,upgrade,migration" doc:"Maintenance type"`
		Message       string     `json:"message,omitempty" maxLength:"1024" doc:"Message shown to blocked tenant traffic"`
		EndsAt        *time.Time `json:"ends_at,omitempty" doc:"Planned end; defaults to four hours from now"`
		BypassIPs     []string   `json:"bypass_ips,omitempty" doc:"IPs or CIDR ranges allowed through"`
		BypassUserIDs []string   `json:"bypass_user_ids,omitempty" doc:"User IDs allowed through"`
		AllowedRoutes []string   `json:"allowed_routes,omitempty" doc:"Route prefixes allowed through"`
	}
}

type MaintenanceWindowOutput struct {
	Body *MaintenanceWindow
}

type ScheduleMaintenanceInput struct {
	TenantID uuid.UUID `path:"tenantID" doc:"Tenant ID"`
	Body     struct {
		Type          string    `json:"type,omitempty" enum:",planned,emergency,upgrade,migration" doc:"Maintenance type"`
		Message       string    `json:"message,omitempty" maxLength:"1024" doc:"Message shown to blocked tenant traffic"`
		StartsAt      time.Time `json:"starts_at" doc:"Window start (must be in the future)"`
		EndsAt        time.Time `json:"ends_at" doc:"Window end (must be after the start)"`
		BypassIPs     []string  `json:"bypass_ips,omitempty" doc:"IPs or CIDR ranges allowed through"`
		BypassUserIDs []string  `json:"bypass_user_ids,omitempty" doc:"User IDs allowed through"`
		AllowedRoutes []string  `json:"allowed_routes,omitempty" doc:"Route prefixes allowed through"`
	}
}

type CancelMaintenanceInput struct {
	TenantID uuid.UUID `path:"tenantID" doc:"Tenant ID"`
	WindowID uuid.UUID `path:"windowID" doc:"Maintenance window ID"`
}

type CancelMaintenanceOutput struct {
	Status int
}

type MaintenanceHistoryOutput struct {
	Body []*MaintenanceWindow
}

func RegisterMaintenanceRoutes(api huma.API, windows MaintenanceService) {
	huma.Register(api, huma.Operation{
		OperationID: "enable-maintenance",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenantID}/maintenance/enable",
		Summary:     "Enable maintenance mode immediately",
		Tags:        []string{"Maintenance"},
	}, func(ctx context.Context, input *EnableMaintenanceInput) (*MaintenanceWindowOutput, error) {
		w, err := windows.Enable(ctx, input.TenantID, maintenance.EnableRequest{
			Type:          domain.MaintenanceType(input.Body.Type),
			Message:       input.Body.Message,
			EndsAt:        input.Body.EndsAt,
			BypassIPs:     input.Body.BypassIPs,
			BypassUserIDs: input.Body.BypassUserIDs,
			AllowedRoutes: input.Body.AllowedRoutes,
		})
		if err != nil {
			return nil, mapError(err)
		}
		return &MaintenanceWindowOutput{Body: toMaintenanceWindow(w)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "disable-maintenance",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenantID}/maintenance/disable",
		Summary:     "End the active maintenance window",
		Tags:        []string{"Maintenance"},
	}, func(ctx context.Context, input *TenantIDInput) (*MaintenanceWindowOutput, error) {
		w, err := windows.Disable(ctx, input.TenantID)
		if err != nil {
			return nil, mapError(err)
		}
		return &MaintenanceWindowOutput{Body: toMaintenanceWindow(w)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "schedule-maintenance",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenantID}/maintenance/schedule",
		Summary:       "Schedule a future maintenance window",
		Tags:          []string{"Maintenance"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *ScheduleMaintenanceInput) (*MaintenanceWindowOutput, error) {
		w, err := windows.Schedule(ctx, input.TenantID, maintenance.ScheduleRequest{
			Type:          domain.MaintenanceType(input.Body.Type),
			Message:       input.Body.Message,
			StartsAt:      input.Body.StartsAt,
			EndsAt:        input.Body.EndsAt,
			BypassIPs:     input.Body.BypassIPs,
			BypassUserIDs: input.Body.BypassUserIDs,
			AllowedRoutes: input.Body.AllowedRoutes,
		})
		if err != nil {
			return nil, mapError(err)
		}
		return &MaintenanceWindowOutput{Body: toMaintenanceWindow(w)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "cancel-maintenance",
		Method:        http.MethodDelete,
		Path:          "/tenants/{tenantID}/maintenance/windows/{windowID}",
		Summary:       "Cancel a scheduled maintenance window",
		Tags:          []string{"Maintenance"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *CancelMaintenanceInput) (*CancelMaintenanceOutput, error) {
		if err := windows.Cancel(ctx, input.TenantID, input.WindowID); err != nil {
			return nil, mapError(err)
		}
		return &CancelMaintenanceOutput{Status: http.StatusNoContent}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-active-maintenance",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenantID}/maintenance/active",
		Summary:     "Get the tenant's active maintenance window",
		Tags:        []string{"Maintenance"},
	}, func(ctx context.Context, input *TenantIDInput) (*MaintenanceWindowOutput, error) {
		w, err := windows.Active(ctx, input.TenantID)
		if err != nil {
			return nil, mapError(err)
		}
		return &MaintenanceWindowOutput{Body: toMaintenanceWindow(w)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-maintenance-history",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenantID}/maintenance/history",
		Summary:     "List the tenant's past maintenance windows",
		Tags:        []string{"Maintenance"},
	}, func(ctx context.Context, input *TenantIDInput) (*MaintenanceHistoryOutput, error) {
		ws, err := windows.History(ctx, input.TenantID)
		if err != nil {
			return nil, mapError(err)
		}
		return &MaintenanceHistoryOutput{Body: toMaintenanceWindows(ws)}, nil
	})
}
