// Package scheduler drives the periodic sweeps: maintenance window
// activation, backup schedules, backup expiry, stuck-backup reconciliation
// and pre-purge notices.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/tenantd/internal/backup"
	"github.com/gosuda/tenantd/internal/maintenance"
	"github.com/gosuda/tenantd/internal/retention"
)

type Scheduler struct {
	maintenance *maintenance.Service
	backups     *backup.Service
	retention   *retention.Service
	interval    time.Duration
	stuckAfter  time.Duration
}

func New(
	maint *maintenance.Service,
	backups *backup.Service,
	ret *retention.Service,
	interval time.Duration,
	stuckAfter time.Duration,
) *Scheduler {
	return &Scheduler{
		maintenance: maint,
		backups:     backups,
		retention:   ret,
		interval:    interval,
		stuckAfter:  stuckAfter,
	}
}

// Run ticks until ctx is cancelled. Each sweep is independent; one failing
// does not stop the others.
func (s *Scheduler) Run(ctx context.Context) {
	log.Info().Dur("interval", s.interval).Msg("scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one pass of every sweep.
func (s *Scheduler) Tick(ctx context.Context) {
	if err := s.maintenance.ProcessScheduled(ctx); err != nil {
		log.Error().Err(err).Msg("maintenance sweep failed")
	}

	s.backups.RunDue(ctx)
	s.backups.CleanupExpired(ctx)
	s.backups.ReconcileStuck(ctx, s.stuckAfter)

	if err := s.retention.SendPurgeNotices(ctx); err != nil {
		log.Error().Err(err).Msg("purge notice sweep failed")
	}
}
