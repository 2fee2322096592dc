package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/tenantd/internal/domain"
	"github.com/gosuda/tenantd/internal/maintenance"
)

// BypassTokenHeader carries the operator bypass token on tenant traffic.
const BypassTokenHeader = "X-Maintenance-Bypass" //nolint:gosec // G101: header name, not a credential

// TenantResolver maps an incoming hostname to a tenant.
type TenantResolver interface {
	GetBySubdomain(ctx context.Context, subdomain string) (*domain.Tenant, error)
}

// DomainResolver maps a custom hostname to its domain record.
type DomainResolver interface {
	GetByHostname(ctx context.Context, hostname string) (*domain.Domain, error)
}

// WindowSource fetches a tenant's active maintenance window.
type WindowSource interface {
	GetActive(ctx context.Context, tenantID uuid.UUID) (*domain.MaintenanceWindow, error)
}

// MaintenanceGate returns 503 for tenant traffic while the tenant's
// maintenance window is active, unless the request qualifies for a bypass.
// The tenant is resolved from the Host header: a subdomain of baseDomain or
// a verified custom domain. Requests for unknown hosts pass through; the
// router behind the gate owns that decision.
func MaintenanceGate(tenants TenantResolver, domains DomainResolver, windows WindowSource, baseDomain string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID, ok := resolveTenant(r, tenants, domains, baseDomain)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			window, err := windows.GetActive(r.Context(), tenantID)
			if err != nil {
				if !errors.Is(err, domain.ErrNotFound) {
					log.Error().Err(err).Str("tenant_id", tenantID.String()).Msg("maintenance gate lookup failed")
				}
				next.ServeHTTP(w, r)
				return
			}

			userID, _ := UserIDFromContext(r.Context())
			check := maintenance.BypassCheck{
				Token:  r.Header.Get(BypassTokenHeader),
				IP:     clientIP(r),
				UserID: userID,
				Route:  r.URL.Path,
			}

			if maintenance.CanBypass(window, check) {
				next.ServeHTTP(w, r)
				return
			}

			serveUnavailable(w, window)
		})
	}
}

func resolveTenant(r *http.Request, tenants TenantResolver, domains DomainResolver, baseDomain string) (uuid.UUID, bool) {
	host := strings.ToLower(r.Host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	if suffix := "." + baseDomain; strings.HasSuffix(host, suffix) {
		sub := strings.TrimSuffix(host, suffix)
		t, err := tenants.GetBySubdomain(r.Context(), sub)
		if err != nil {
			return uuid.Nil, false
		}
		return t.ID, true
	}

	d, err := domains.GetByHostname(r.Context(), host)
	if err != nil {
		return uuid.Nil, false
	}
	return d.TenantID, true
}

func clientIP(r *http.Request) string {
	// chi's RealIP middleware has already rewritten RemoteAddr.
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func serveUnavailable(w http.ResponseWriter, window *domain.MaintenanceWindow) {
	message := window.Message
	if message == "" {
		message = "scheduled maintenance in progress"
	}

	retryAfter := time.Until(window.EndsAt)
	if retryAfter < time.Minute {
		retryAfter = time.Minute
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	w.WriteHeader(http.StatusServiceUnavailable)

	_ = json.NewEncoder(w).Encode(map[string]any{
		"title":   "Service Unavailable",
		"status":  http.StatusServiceUnavailable,
		"detail":  message,
		"type":    window.Type,
		"ends_at": window.EndsAt.UTC().Format(time.RFC3339),
	})
}
