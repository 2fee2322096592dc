// Package maintenance controls per-tenant maintenance mode: immediate
// enable/disable, scheduled windows with pre-start reminders, and the bypass
// rules the HTTP gate evaluates while a window is active.
package maintenance

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/tenantd/internal/domain"
	"github.com/gosuda/tenantd/internal/notify"
	"github.com/gosuda/tenantd/internal/retention"
)

// Reminder offsets in minutes before a scheduled window starts.
//
//nolint:gochecknoglobals // static schedule
var reminderOffsets = []int32{60, 30, 15, 5}

const defaultWindowDuration = 4 * time.Hour

// EnableRequest starts maintenance immediately.
type EnableRequest struct {
	Type          domain.MaintenanceType
	Message       string
	EndsAt        *time.Time
	BypassIPs     []string
	BypassUserIDs []string
	AllowedRoutes []string
}

// ScheduleRequest books a future maintenance window.
type ScheduleRequest struct {
	Type          domain.MaintenanceType
	Message       string
	StartsAt      time.Time
	EndsAt        time.Time
	BypassIPs     []string
	BypassUserIDs []string
	AllowedRoutes []string
}

// BypassCheck is one request's credentials against an active window.
type BypassCheck struct {
	Token  string
	IP     string
	UserID string
	Route  string
}

type Service struct {
	windows      domain.MaintenanceRepository
	tenants      domain.TenantRepository
	locker       retention.Locker
	notifier     *notify.Notifier
	activeTTL    time.Duration
	historyLimit int
	now          func() time.Time
}

func NewService(
	windows domain.MaintenanceRepository,
	tenants domain.TenantRepository,
	locker retention.Locker,
	notifier *notify.Notifier,
	activeTTL time.Duration,
	historyLimit int,
) *Service {
	return &Service{
		windows:      windows,
		tenants:      tenants,
		locker:       locker,
		notifier:     notifier,
		activeTTL:    activeTTL,
		historyLimit: historyLimit,
		now:          time.Now,
	}
}

// Enable puts the tenant into maintenance mode now. At most one window can be
// active per tenant. The window carries a safety TTL: if nobody disables it,
// the sweep force-closes it once the TTL passes.
func (s *Service) Enable(ctx context.Context, tenantID uuid.UUID, req EnableRequest) (*domain.MaintenanceWindow, error) {
	const op = "maintenance.Service.Enable"

	release, err := s.locker.Acquire(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer release()

	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.windows.GetActive(ctx, tenantID)
	if err == nil {
		return nil, fmt.Errorf("%s: maintenance already active for tenant %s: %w", op, tenantID, domain.ErrConflict)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now().UTC()
	endsAt := now.Add(defaultWindowDuration)
	if req.EndsAt != nil {
		if !req.EndsAt.After(now) {
			return nil, &domain.ValidationError{Op: op, Field: "ends_at", Reason: "must be in the future"}
		}
		endsAt = req.EndsAt.UTC()
	}

	token, err := bypassToken()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	w := &domain.MaintenanceWindow{
		ID:            uuid.New(),
		TenantID:      tenantID,
		Status:        domain.MaintenanceStatusActive,
		Type:          req.Type,
		Message:       req.Message,
		BypassToken:   token,
		BypassIPs:     req.BypassIPs,
		BypassUserIDs: req.BypassUserIDs,
		AllowedRoutes: req.AllowedRoutes,
		StartsAt:      now,
		EndsAt:        endsAt,
		ExpiresAt:     now.Add(s.activeTTL),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.windows.Create(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	err = s.setTenantFlag(ctx, t, true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info().
		Str("tenant_id", tenantID.String()).
		Str("window_id", w.ID.String()).
		Str("type", string(w.Type)).
		Msg("maintenance enabled")

	s.notifier.Notify(ctx, notify.Event{
		Type:     notify.EventMaintenanceStarted,
		TenantID: tenantID,
		Message:  req.Message,
	})

	return w, nil
}

// Disable ends the active maintenance window, recording its actual duration.
func (s *Service) Disable(ctx context.Context, tenantID uuid.UUID) (*domain.MaintenanceWindow, error) {
	const op = "maintenance.Service.Disable"

	release, err := s.locker.Acquire(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer release()

	w, err := s.windows.GetActive(ctx, tenantID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &domain.PreconditionError{Op: op, TenantID: tenantID, Reason: "maintenance is not active"}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	err = s.complete(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	err = s.setTenantFlag(ctx, t, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	err = s.windows.TrimHistory(ctx, tenantID, s.historyLimit)
	if err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID.String()).Msg("trimming maintenance history failed")
	}

	s.notifier.Notify(ctx, notify.Event{
		Type:     notify.EventMaintenanceCompleted,
		TenantID: tenantID,
		Message:  fmt.Sprintf("maintenance finished after %ds", *w.DurationSeconds),
	})

	return w, nil
}

// Schedule books a future maintenance window. The start time must be in the
// future; overlapping scheduled windows are allowed, activation sorts them
// out in order.
func (s *Service) Schedule(ctx context.Context, tenantID uuid.UUID, req ScheduleRequest) (*domain.MaintenanceWindow, error) {
	const op = "maintenance.Service.Schedule"

	now := s.now().UTC()
	if !req.StartsAt.After(now) {
		return nil, &domain.ValidationError{Op: op, Field: "starts_at", Reason: "start time cannot be in the past"}
	}
	if !req.EndsAt.After(req.StartsAt) {
		return nil, &domain.ValidationError{Op: op, Field: "ends_at", Reason: "must be after starts_at"}
	}

	if _, err := s.tenants.GetByID(ctx, tenantID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	token, err := bypassToken()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	w := &domain.MaintenanceWindow{
		ID:            uuid.New(),
		TenantID:      tenantID,
		Status:        domain.MaintenanceStatusScheduled,
		Type:          req.Type,
		Message:       req.Message,
		BypassToken:   token,
		BypassIPs:     req.BypassIPs,
		BypassUserIDs: req.BypassUserIDs,
		AllowedRoutes: req.AllowedRoutes,
		StartsAt:      req.StartsAt.UTC(),
		EndsAt:        req.EndsAt.UTC(),
		ExpiresAt:     req.StartsAt.UTC().Add(s.activeTTL),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.windows.Create(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.notifier.Notify(ctx, notify.Event{
		Type:     notify.EventMaintenanceScheduled,
		TenantID: tenantID,
		Message:  fmt.Sprintf("maintenance scheduled for %s", w.StartsAt.Format(time.RFC3339)),
	})

	return w, nil
}

// Cancel withdraws a scheduled window. Active windows cannot be cancelled,
// only disabled.
func (s *Service) Cancel(ctx context.Context, tenantID, windowID uuid.UUID) error {
	const op = "maintenance.Service.Cancel"

	w, err := s.windows.GetByID(ctx, tenantID, windowID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if !w.Status.ValidTransition(domain.MaintenanceStatusCancelled) {
		return &domain.PreconditionError{
			Op:       op,
			TenantID: tenantID,
			Reason:   fmt.Sprintf("window %s is %s and cannot be cancelled", windowID, w.Status),
		}
	}

	w.Status = domain.MaintenanceStatusCancelled
	err = s.windows.Update(ctx, w)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.notifier.Notify(ctx, notify.Event{
		Type:     notify.EventMaintenanceCancelled,
		TenantID: tenantID,
		Message:  fmt.Sprintf("scheduled maintenance for %s cancelled", w.StartsAt.Format(time.RFC3339)),
	})

	return nil
}

// Active returns the tenant's active window, or ErrNotFound.
func (s *Service) Active(ctx context.Context, tenantID uuid.UUID) (*domain.MaintenanceWindow, error) {
	w, err := s.windows.GetActive(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("maintenance.Service.Active: %w", err)
	}
	return w, nil
}

func (s *Service) History(ctx context.Context, tenantID uuid.UUID) ([]*domain.MaintenanceWindow, error) {
	ws, err := s.windows.ListHistory(ctx, tenantID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("maintenance.Service.History: %w", err)
	}
	return ws, nil
}

// CanBypass reports whether a request may pass the maintenance gate. Checks
// run in a fixed order: bypass token, then IP allowlist, then user
// allowlist, then route allowlist.
func CanBypass(w *domain.MaintenanceWindow, check BypassCheck) bool {
	if w == nil || w.Status != domain.MaintenanceStatusActive {
		return true
	}

	if check.Token != "" && check.Token == w.BypassToken {
		return true
	}

	if check.IP != "" {
		ip := net.ParseIP(check.IP)
		for _, allowed := range w.BypassIPs {
			if allowed == check.IP {
				return true
			}
			if _, cidr, err := net.ParseCIDR(allowed); err == nil && ip != nil && cidr.Contains(ip) {
				return true
			}
		}
	}

	if check.UserID != "" && slices.Contains(w.BypassUserIDs, check.UserID) {
		return true
	}

	if check.Route != "" {
		for _, prefix := range w.AllowedRoutes {
			if strings.HasPrefix(check.Route, prefix) {
				return true
			}
		}
	}

	return false
}

func (s *Service) complete(ctx context.Context, w *domain.MaintenanceWindow) error {
	now := s.now().UTC()
	dur := int64(now.Sub(w.StartsAt).Seconds())

	w.Status = domain.MaintenanceStatusCompleted
	w.DurationSeconds = &dur

	return s.windows.Update(ctx, w)
}

func (s *Service) setTenantFlag(ctx context.Context, t *domain.Tenant, on bool) error {
	if t.MaintenanceMode == on {
		return nil
	}
	t.MaintenanceMode = on
	return s.tenants.Update(ctx, t)
}

// bypassToken returns a 32-hex-char random token.
func bypassToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("bypass token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
