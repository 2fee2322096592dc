// Package purge permanently destroys archived tenants whose retention window
// has ended: the dedicated database, stored backup artifacts, and every
// metadata row. Purging is deliberately never retried automatically; a purge
// that fails its post-drop check stops and waits for an operator.
package purge

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/tenantd/internal/artifact"
	"github.com/gosuda/tenantd/internal/dbprovider"
	"github.com/gosuda/tenantd/internal/domain"
	"github.com/gosuda/tenantd/internal/notify"
	"github.com/gosuda/tenantd/internal/retention"
)

// Eraser removes all central-database metadata for a tenant in one
// transaction.
type Eraser interface {
	EraseTenant(ctx context.Context, tenantID uuid.UUID) error
}

type Service struct {
	tenants   domain.TenantRepository
	eraser    Eraser
	provider  dbprovider.Provider
	artifacts artifact.Store
	policy    retention.Policy
	locker    retention.Locker
	notifier  *notify.Notifier
}

func NewService(
	tenants domain.TenantRepository,
	eraser Eraser,
	provider dbprovider.Provider,
	artifacts artifact.Store,
	policy retention.Policy,
	locker retention.Locker,
	notifier *notify.Notifier,
) *Service {
	return &Service{
		tenants:   tenants,
		eraser:    eraser,
		provider:  provider,
		artifacts: artifacts,
		policy:    policy,
		locker:    locker,
		notifier:  notifier,
	}
}

// BatchResult collects per-tenant outcomes of a batch purge.
type BatchResult struct {
	Succeeded []uuid.UUID
	Failed    []*domain.BatchItemError
}

// Purge permanently destroys one tenant. The tenant must be archived and its
// retention window must have ended. Order matters: the dedicated database is
// dropped and verified gone before any metadata is touched, so a failed purge
// always leaves the tenant row in place for an operator to inspect.
func (s *Service) Purge(ctx context.Context, tenantID uuid.UUID) error {
	release, err := s.locker.Acquire(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("purge.Service.Purge: %w", err)
	}
	defer release()

	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("purge.Service.Purge: %w", err)
	}

	if !t.Archived() {
		return &domain.PreconditionError{
			Op:       "purge.Service.Purge",
			TenantID: tenantID,
			Reason:   "tenant is not archived",
		}
	}

	if !s.policy.Expired(t) {
		return &domain.PreconditionError{
			Op:         "purge.Service.Purge",
			TenantID:   tenantID,
			Reason:     "retention window has not ended",
			EligibleAt: s.policy.ExpiresAt(t),
		}
	}

	dbName := t.DatabaseName()

	err = s.provider.Drop(ctx, dbName)
	if err != nil {
		return fmt.Errorf("purge.Service.Purge: drop database: %w", err)
	}

	exists, err := s.provider.Exists(ctx, dbName)
	if err != nil {
		return fmt.Errorf("purge.Service.Purge: verify drop: %w", err)
	}
	if exists {
		return &domain.PostconditionError{
			Op:       "purge.Service.Purge",
			TenantID: tenantID,
			Reason:   fmt.Sprintf("database %q still exists after drop", dbName),
		}
	}

	err = s.deleteArtifacts(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("purge.Service.Purge: %w", err)
	}

	err = s.eraser.EraseTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("purge.Service.Purge: %w", err)
	}

	log.Info().
		Str("tenant_id", tenantID.String()).
		Str("subdomain", t.Subdomain).
		Msg("tenant purged")

	s.notifier.Notify(ctx, notify.Event{
		Type:     notify.EventTenantPurged,
		TenantID: tenantID,
		Message:  fmt.Sprintf("tenant %q permanently deleted", t.Subdomain),
	})

	return nil
}

// BatchPurge purges each tenant independently, collecting failures instead of
// aborting on the first one.
func (s *Service) BatchPurge(ctx context.Context, tenantIDs []uuid.UUID) (*BatchResult, error) {
	result := &BatchResult{}

	for _, id := range tenantIDs {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("purge.Service.BatchPurge: %w", err)
		}

		err := s.Purge(ctx, id)
		if err != nil {
			log.Warn().Err(err).Str("tenant_id", id.String()).Msg("batch purge item failed")
			result.Failed = append(result.Failed, &domain.BatchItemError{TenantID: id, Err: err})
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}

	return result, nil
}

// ListEligible returns archived tenants whose retention window has ended.
func (s *Service) ListEligible(ctx context.Context) ([]*domain.Tenant, error) {
	archived, err := s.tenants.ListArchived(ctx)
	if err != nil {
		return nil, fmt.Errorf("purge.Service.ListEligible: %w", err)
	}

	var eligible []*domain.Tenant
	for _, t := range archived {
		if s.policy.CanPurge(t) {
			eligible = append(eligible, t)
		}
	}

	return eligible, nil
}

func (s *Service) deleteArtifacts(ctx context.Context, tenantID uuid.UUID) error {
	prefix := "tenants/" + tenantID.String() + "/"

	keys, err := s.artifacts.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("list artifacts: %w", err)
	}

	for _, key := range keys {
		if err := s.artifacts.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete artifact %s: %w", key, err)
		}
	}

	return nil
}
