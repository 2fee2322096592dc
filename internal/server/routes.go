package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/tenantd/internal/api/v1"
	"github.com/gosuda/tenantd/internal/api/ws"
	"github.com/gosuda/tenantd/internal/store/postgres"
)

func registerAPIRoutes(api huma.API, store *postgres.Store, svcs Services) {
	v1.RegisterTenantRoutes(api, svcs.Provisioner, store.Tenants(), svcs.Retention, svcs.Purge)
	v1.RegisterDomainRoutes(api, svcs.Domains)
	v1.RegisterBackupRoutes(api, svcs.Backups)
	v1.RegisterMaintenanceRoutes(api, svcs.Maintenance)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/tenants/{tenantID}", hub.ServeTenant)
}
