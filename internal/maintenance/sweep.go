package maintenance

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/tenantd/internal/domain"
	"github.com/gosuda/tenantd/internal/notify"
)

// ProcessScheduled is the periodic maintenance sweep. One pass activates due
// scheduled windows, fires pre-start reminders, and closes active windows
// whose end time or safety TTL has passed. Version conflicts mean another
// instance won the same window and are skipped, not retried.
func (s *Service) ProcessScheduled(ctx context.Context) error {
	now := s.now().UTC()

	scheduled, err := s.windows.ListScheduled(ctx)
	if err != nil {
		return fmt.Errorf("maintenance.Service.ProcessScheduled: %w", err)
	}

	for _, w := range scheduled {
		if !w.StartsAt.After(now) {
			s.activate(ctx, w, now)
			continue
		}
		s.remind(ctx, w, now)
	}

	active, err := s.windows.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("maintenance.Service.ProcessScheduled: %w", err)
	}

	for _, w := range active {
		if now.Before(w.EndsAt) && now.Before(w.ExpiresAt) {
			continue
		}
		s.forceClose(ctx, w, now)
	}

	return nil
}

func (s *Service) activate(ctx context.Context, w *domain.MaintenanceWindow, now time.Time) {
	release, err := s.locker.Acquire(ctx, w.TenantID)
	if err != nil {
		return
	}
	defer release()

	// A window whose whole span passed while the sweep was down is
	// completed without ever interrupting the tenant.
	if !now.Before(w.EndsAt) {
		w.Status = domain.MaintenanceStatusActive
		if err = s.windows.Update(ctx, w); err != nil {
			s.logSweepErr(err, w, "activating overdue window")
			return
		}
		if err = s.complete(ctx, w); err != nil {
			s.logSweepErr(err, w, "completing overdue window")
		}
		return
	}

	w.Status = domain.MaintenanceStatusActive
	w.ExpiresAt = now.Add(s.activeTTL)

	err = s.windows.Update(ctx, w)
	if err != nil {
		s.logSweepErr(err, w, "activating window")
		return
	}

	t, err := s.tenants.GetByID(ctx, w.TenantID)
	if err != nil {
		s.logSweepErr(err, w, "loading tenant for activation")
		return
	}
	if err = s.setTenantFlag(ctx, t, true); err != nil {
		s.logSweepErr(err, w, "setting maintenance flag")
		return
	}

	log.Info().
		Str("tenant_id", w.TenantID.String()).
		Str("window_id", w.ID.String()).
		Msg("scheduled maintenance activated")

	s.notifier.Notify(ctx, notify.Event{
		Type:     notify.EventMaintenanceStarted,
		TenantID: w.TenantID,
		Message:  w.Message,
	})
}

// remind fires pre-start reminders. Each offset fires exactly once per
// window; the ledger of fired offsets is persisted on the window so
// restarts and irregular sweep intervals neither duplicate nor skip one.
func (s *Service) remind(ctx context.Context, w *domain.MaintenanceWindow, now time.Time) {
	minutesUntil := int32(w.StartsAt.Sub(now) / time.Minute)

	var due []int32
	for _, offset := range reminderOffsets {
		if minutesUntil <= offset && !slices.Contains(w.RemindersSent, offset) {
			due = append(due, offset)
		}
	}
	if len(due) == 0 {
		return
	}

	w.RemindersSent = append(w.RemindersSent, due...)

	err := s.windows.Update(ctx, w)
	if errors.Is(err, domain.ErrVersionMismatch) {
		return
	}
	if err != nil {
		s.logSweepErr(err, w, "recording reminders")
		return
	}

	s.notifier.Notify(ctx, notify.Event{
		Type:     notify.EventMaintenanceReminder,
		TenantID: w.TenantID,
		Message:  fmt.Sprintf("maintenance starts in %d minutes", minutesUntil),
		Meta:     map[string]any{"window_id": w.ID.String(), "starts_at": w.StartsAt},
	})
}

func (s *Service) forceClose(ctx context.Context, w *domain.MaintenanceWindow, now time.Time) {
	release, err := s.locker.Acquire(ctx, w.TenantID)
	if err != nil {
		return
	}
	defer release()

	expired := !now.Before(w.ExpiresAt)

	err = s.complete(ctx, w)
	if errors.Is(err, domain.ErrVersionMismatch) {
		return
	}
	if err != nil {
		s.logSweepErr(err, w, "closing window")
		return
	}

	t, err := s.tenants.GetByID(ctx, w.TenantID)
	if err != nil {
		s.logSweepErr(err, w, "loading tenant for close")
		return
	}
	if err = s.setTenantFlag(ctx, t, false); err != nil {
		s.logSweepErr(err, w, "clearing maintenance flag")
		return
	}

	if expired {
		log.Warn().
			Str("tenant_id", w.TenantID.String()).
			Str("window_id", w.ID.String()).
			Msg("maintenance window hit safety TTL, force closed")
	}

	s.notifier.Notify(ctx, notify.Event{
		Type:     notify.EventMaintenanceCompleted,
		TenantID: w.TenantID,
		Message:  "maintenance window ended",
	})
}

func (s *Service) logSweepErr(err error, w *domain.MaintenanceWindow, what string) {
	log.Error().
		Err(err).
		Str("tenant_id", w.TenantID.String()).
		Str("window_id", w.ID.String()).
		Msg(what + " failed")
}
