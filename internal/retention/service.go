package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/tenantd/internal/domain"
	"github.com/gosuda/tenantd/internal/notify"
)

// Locker serializes lifecycle operations per tenant.
type Locker interface {
	Acquire(ctx context.Context, tenantID uuid.UUID) (func(), error)
}

// ArchivedTenant is a tenant in its retention window, annotated with where it
// stands in that window.
type ArchivedTenant struct {
	Tenant        *domain.Tenant
	ExpiresAt     time.Time
	DaysRemaining int
	PurgeEligible bool
}

// Service soft-deletes tenants into the retention window and brings them
// back, and flags archived tenants approaching permanent deletion.
type Service struct {
	tenants  domain.TenantRepository
	policy   Policy
	locker   Locker
	notifier *notify.Notifier

	mu      sync.Mutex
	noticed map[uuid.UUID]string // tenant -> date a purge notice last went out
}

func NewService(tenants domain.TenantRepository, policy Policy, locker Locker, notifier *notify.Notifier) *Service {
	return &Service{
		tenants:  tenants,
		policy:   policy,
		locker:   locker,
		notifier: notifier,
		noticed:  make(map[uuid.UUID]string),
	}
}

// Archive soft-deletes the tenant, starting its retention window. Archiving
// an already-archived tenant is a no-op; the original deletion time and with
// it the purge deadline stay put.
func (s *Service) Archive(ctx context.Context, tenantID uuid.UUID) (*domain.Tenant, error) {
	release, err := s.locker.Acquire(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("retention.Service.Archive: %w", err)
	}
	defer release()

	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("retention.Service.Archive: %w", err)
	}

	if t.Archived() {
		return t, nil
	}

	now := s.policy.now().UTC()
	err = s.tenants.Archive(ctx, tenantID, now)
	if err != nil {
		return nil, fmt.Errorf("retention.Service.Archive: %w", err)
	}
	t.DeletedAt = &now

	log.Info().
		Str("tenant_id", tenantID.String()).
		Time("purge_eligible_at", *s.policy.ExpiresAt(t)).
		Msg("tenant archived")

	s.notifier.Notify(ctx, notify.Event{
		Type:     notify.EventTenantArchived,
		TenantID: tenantID,
		Message:  fmt.Sprintf("archived; data retained for %d days", s.policy.RetentionDays),
	})

	return t, nil
}

// Restore unarchives a tenant whose retention window has not ended.
func (s *Service) Restore(ctx context.Context, tenantID uuid.UUID) (*domain.Tenant, error) {
	release, err := s.locker.Acquire(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("retention.Service.Restore: %w", err)
	}
	defer release()

	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("retention.Service.Restore: %w", err)
	}

	if !t.Archived() {
		return nil, &domain.PreconditionError{
			Op:       "retention.Service.Restore",
			TenantID: tenantID,
			Reason:   "tenant is not archived",
		}
	}

	if s.policy.Expired(t) {
		return nil, &domain.PreconditionError{
			Op:       "retention.Service.Restore",
			TenantID: tenantID,
			Reason:   "retention window has expired",
		}
	}

	err = s.tenants.Unarchive(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("retention.Service.Restore: %w", err)
	}
	t.DeletedAt = nil

	log.Info().Str("tenant_id", tenantID.String()).Msg("tenant restored from archive")

	s.notifier.Notify(ctx, notify.Event{
		Type:     notify.EventTenantRestored,
		TenantID: tenantID,
		Message:  "restored from archive",
	})

	return t, nil
}

// ListArchived returns all archived tenants annotated with their position in
// the retention window.
func (s *Service) ListArchived(ctx context.Context) ([]*ArchivedTenant, error) {
	tenants, err := s.tenants.ListArchived(ctx)
	if err != nil {
		return nil, fmt.Errorf("retention.Service.ListArchived: %w", err)
	}

	out := make([]*ArchivedTenant, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, &ArchivedTenant{
			Tenant:        t,
			ExpiresAt:     *s.policy.ExpiresAt(t),
			DaysRemaining: s.policy.DaysRemaining(t),
			PurgeEligible: s.policy.CanPurge(t),
		})
	}

	return out, nil
}

// SendPurgeNotices notifies for archived tenants inside the pre-purge notice
// window, at most once per day per tenant. The once-a-day guard is in-memory;
// a restart may repeat a notice, which is acceptable for a warning.
func (s *Service) SendPurgeNotices(ctx context.Context) error {
	tenants, err := s.tenants.ListArchived(ctx)
	if err != nil {
		return fmt.Errorf("retention.Service.SendPurgeNotices: %w", err)
	}

	today := s.policy.now().UTC().Format(time.DateOnly)

	for _, t := range tenants {
		if !s.policy.NearingPurge(t) {
			continue
		}

		s.mu.Lock()
		sent := s.noticed[t.ID] == today
		if !sent {
			s.noticed[t.ID] = today
		}
		s.mu.Unlock()
		if sent {
			continue
		}

		days := s.policy.DaysRemaining(t)
		s.notifier.Notify(ctx, notify.Event{
			Type:     notify.EventPurgeNotice,
			TenantID: t.ID,
			Message:  fmt.Sprintf("permanent deletion in %d days", days),
			Meta:     map[string]any{"days_remaining": days},
		})
	}

	return nil
}

// IsRecoverable reports whether err is a workflow error the caller can act
// on, as opposed to an infrastructure failure.
func IsRecoverable(err error) bool {
	var pre *domain.PreconditionError
	var val *domain.ValidationError
	return errors.As(err, &pre) || errors.As(err, &val)
}
