package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/tenantd/internal/domain"
)

// ScheduleRequest configures a tenant's recurring backup. A tenant has at
// most one schedule; configuring again replaces it.
type ScheduleRequest struct {
	Frequency       domain.BackupFrequency
	Hour            int
	Minute          int
	Type            domain.BackupType
	RetentionDays   int
	NotifyOnFailure bool
}

// Schedule sets or replaces the tenant's recurring backup configuration.
func (s *Service) Schedule(ctx context.Context, tenantID uuid.UUID, req ScheduleRequest) (*domain.BackupSchedule, error) {
	const op = "backup.Service.Schedule"

	switch req.Frequency {
	case domain.BackupFrequencyDaily, domain.BackupFrequencyWeekly, domain.BackupFrequencyMonthly:
	default:
		return nil, &domain.ValidationError{Op: op, Field: "frequency", Reason: "must be daily, weekly or monthly"}
	}
	if req.Hour < 0 || req.Hour > 23 {
		return nil, &domain.ValidationError{Op: op, Field: "hour", Reason: "must be 0-23"}
	}
	if req.Minute < 0 || req.Minute > 59 {
		return nil, &domain.ValidationError{Op: op, Field: "minute", Reason: "must be 0-59"}
	}

	if _, err := s.tenants.GetByID(ctx, tenantID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	retentionDays := req.RetentionDays
	if retentionDays <= 0 {
		retentionDays = s.retentionDays
	}

	now := s.now().UTC()
	sched := &domain.BackupSchedule{
		TenantID:        tenantID,
		Frequency:       req.Frequency,
		Hour:            req.Hour,
		Minute:          req.Minute,
		Type:            req.Type,
		RetentionDays:   retentionDays,
		NotifyOnFailure: req.NotifyOnFailure,
		NextRunAt:       nextRun(now, req.Frequency, req.Hour, req.Minute),
		UpdatedAt:       now,
	}

	err := s.schedules.Upsert(ctx, sched)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return sched, nil
}

func (s *Service) GetSchedule(ctx context.Context, tenantID uuid.UUID) (*domain.BackupSchedule, error) {
	sched, err := s.schedules.Get(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("backup.Service.GetSchedule: %w", err)
	}
	return sched, nil
}

// RunDue creates backups for every schedule whose next run has arrived and
// advances the schedule, collecting per-tenant failures.
func (s *Service) RunDue(ctx context.Context) []*domain.BatchItemError {
	now := s.now().UTC()

	due, err := s.schedules.ListDue(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("listing due backup schedules failed")
		return nil
	}

	var failures []*domain.BatchItemError
	for _, sched := range due {
		_, err = s.Create(ctx, sched.TenantID, Request{
			Type:            sched.Type,
			IncludeDatabase: true,
			IncludeFiles:    sched.Type == domain.BackupTypeFull,
			Encrypt:         true,
			RetentionDays:   sched.RetentionDays,
			InitiatedBy:     "system:schedule",
		})
		if err != nil {
			failures = append(failures, &domain.BatchItemError{TenantID: sched.TenantID, Err: err})
			log.Warn().Err(err).Str("tenant_id", sched.TenantID.String()).Msg("scheduled backup failed to start")
			continue
		}

		err = s.schedules.MarkRun(ctx, sched.TenantID, nextRun(now, sched.Frequency, sched.Hour, sched.Minute))
		if err != nil {
			failures = append(failures, &domain.BatchItemError{TenantID: sched.TenantID, Err: err})
		}
	}

	return failures
}

// CleanupExpired expires backups past their retention: artifacts and sealed
// keys are deleted, completed records become expired tombstones and failed
// records are removed. Idempotent; failures are collected per backup.
func (s *Service) CleanupExpired(ctx context.Context) []*domain.BatchItemError {
	now := s.now().UTC()

	expired, err := s.backups.ListExpired(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("listing expired backups failed")
		return nil
	}

	var failures []*domain.BatchItemError
	for _, rec := range expired {
		err = s.expireOne(ctx, rec)
		if err != nil {
			failures = append(failures, &domain.BatchItemError{TenantID: rec.TenantID, Err: err})
			log.Warn().Err(err).Str("backup_id", rec.ID.String()).Msg("backup cleanup failed")
		}
	}

	if len(expired) > 0 {
		log.Info().
			Int("expired", len(expired)).
			Int("failed", len(failures)).
			Msg("backup retention sweep finished")
	}

	return failures
}

func (s *Service) expireOne(ctx context.Context, rec *domain.BackupRecord) error {
	err := s.run.deleteArtifacts(ctx, rec.TenantID, rec.ID)
	if err != nil {
		return err
	}

	err = s.keys.Delete(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("delete key: %w", err)
	}

	if rec.Status == domain.BackupStatusCompleted {
		rec.Status = domain.BackupStatusExpired
		rec.Artifacts = nil
		return s.backups.Update(ctx, rec)
	}

	return s.backups.Delete(ctx, rec.TenantID, rec.ID)
}

// ReconcileStuck fails backups that have sat in in_progress past the cutoff,
// so a worker crash mid-backup cannot strand a record forever.
func (s *Service) ReconcileStuck(ctx context.Context, stuckAfter time.Duration) []*domain.BatchItemError {
	now := s.now().UTC()

	stuck, err := s.backups.ListStuck(ctx, now.Add(-stuckAfter))
	if err != nil {
		log.Error().Err(err).Msg("listing stuck backups failed")
		return nil
	}

	var reconciled []*domain.BatchItemError
	for _, rec := range stuck {
		cause := fmt.Errorf("no progress for %s, marked failed by reconciliation", stuckAfter)
		_ = s.fail(ctx, rec, cause)
		reconciled = append(reconciled, &domain.BatchItemError{TenantID: rec.TenantID, Err: cause})

		log.Warn().
			Str("tenant_id", rec.TenantID.String()).
			Str("backup_id", rec.ID.String()).
			Time("started_at", derefTime(rec.StartedAt)).
			Msg("stuck backup reconciled to failed")
	}

	return reconciled
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// nextRun computes the first hh:mm occurrence strictly after now for the
// given frequency.
func nextRun(now time.Time, freq domain.BackupFrequency, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)

	for !next.After(now) {
		switch freq {
		case domain.BackupFrequencyDaily:
			next = next.AddDate(0, 0, 1)
		case domain.BackupFrequencyWeekly:
			next = next.AddDate(0, 0, 7)
		case domain.BackupFrequencyMonthly:
			next = next.AddDate(0, 1, 0)
		default:
			next = next.AddDate(0, 0, 1)
		}
	}

	return next
}
