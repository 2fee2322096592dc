// Package queue runs durable background jobs from the central database.
// Jobs are claimed with row locks so multiple instances can share the queue,
// delivered at least once, and retried with exponential backoff until their
// attempt budget runs out. Purging a tenant is deliberately not a job kind:
// destructive work must never be retried automatically.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/tenantd/internal/domain"
)

// Handler executes one job attempt. A nil return completes the job; an error
// schedules a retry or, on the final attempt, fails it.
type Handler func(ctx context.Context, job *domain.Job) error

// FailureHook runs after a job exhausts its attempts.
type FailureHook func(ctx context.Context, job *domain.Job, err error)

type Worker struct {
	jobs         domain.JobRepository
	handlers     map[domain.JobKind]Handler
	onFailure    FailureHook
	pollInterval time.Duration
	backoffBase  time.Duration
	staleAfter   time.Duration
	nextReclaim  time.Time
	now          func() time.Time
}

func NewWorker(jobs domain.JobRepository, pollInterval, backoffBase time.Duration) *Worker {
	return &Worker{
		jobs:         jobs,
		handlers:     make(map[domain.JobKind]Handler),
		pollInterval: pollInterval,
		backoffBase:  backoffBase,
		now:          time.Now,
	}
}

func (w *Worker) Handle(kind domain.JobKind, h Handler) {
	w.handlers[kind] = h
}

func (w *Worker) OnFailure(hook FailureHook) {
	w.onFailure = hook
}

// ReclaimAfter enables the stale-claim sweep: jobs still marked running d
// after they were claimed are returned to pending. A worker killed between
// claiming and finishing would otherwise strand its job in running.
func (w *Worker) ReclaimAfter(d time.Duration) {
	w.staleAfter = d
}

// Run polls for jobs until ctx is cancelled. Draining is greedy: after a
// successful claim the next poll happens immediately.
func (w *Worker) Run(ctx context.Context) {
	log.Info().Dur("poll_interval", w.pollInterval).Msg("job worker started")

	for {
		claimed := w.RunOnce(ctx)

		if !claimed {
			select {
			case <-ctx.Done():
				log.Info().Msg("job worker stopped")
				return
			case <-time.After(w.pollInterval):
			}
			continue
		}

		if ctx.Err() != nil {
			log.Info().Msg("job worker stopped")
			return
		}
	}
}

// RunOnce claims and executes at most one job, reporting whether one was
// claimed.
func (w *Worker) RunOnce(ctx context.Context) bool {
	w.reclaimStale(ctx)

	job, err := w.jobs.ClaimNext(ctx, w.now().UTC())
	if errors.Is(err, domain.ErrNotFound) {
		return false
	}
	if err != nil {
		log.Error().Err(err).Msg("claiming job failed")
		return false
	}

	w.execute(ctx, job)
	return true
}

// reclaimStale sweeps stale claims back to pending, at most once per half
// stale window so a busy queue does not hammer the jobs table.
func (w *Worker) reclaimStale(ctx context.Context) {
	if w.staleAfter <= 0 {
		return
	}

	now := w.now().UTC()
	if now.Before(w.nextReclaim) {
		return
	}
	w.nextReclaim = now.Add(w.staleAfter / 2)

	n, err := w.jobs.ReclaimStale(ctx, now.Add(-w.staleAfter))
	if err != nil {
		log.Error().Err(err).Msg("reclaiming stale jobs failed")
		return
	}
	if n > 0 {
		log.Warn().Int64("jobs", n).Msg("reclaimed stale running jobs")
	}
}

func (w *Worker) execute(ctx context.Context, job *domain.Job) {
	handler, ok := w.handlers[job.Kind]
	if !ok {
		w.fail(ctx, job, errors.New("no handler registered for kind "+string(job.Kind)))
		return
	}

	err := handler(ctx, job)
	if err == nil {
		if err = w.jobs.MarkCompleted(ctx, job.ID); err != nil {
			log.Error().Err(err).Str("job_id", job.ID.String()).Msg("marking job completed failed")
		}
		return
	}

	if job.Attempts >= job.MaxAttempts {
		w.fail(ctx, job, err)
		return
	}

	delay := Backoff(w.backoffBase, job.Attempts)
	runAt := w.now().UTC().Add(delay)

	log.Warn().
		Err(err).
		Str("job_id", job.ID.String()).
		Str("kind", string(job.Kind)).
		Int("attempt", job.Attempts).
		Dur("retry_in", delay).
		Msg("job attempt failed, scheduling retry")

	if err = w.jobs.MarkRetry(ctx, job.ID, runAt, err.Error()); err != nil {
		log.Error().Err(err).Str("job_id", job.ID.String()).Msg("marking job for retry failed")
	}
}

func (w *Worker) fail(ctx context.Context, job *domain.Job, cause error) {
	log.Error().
		Err(cause).
		Str("job_id", job.ID.String()).
		Str("kind", string(job.Kind)).
		Str("tenant_id", job.TenantID.String()).
		Int("attempts", job.Attempts).
		Msg("job failed permanently")

	if err := w.jobs.MarkFailed(ctx, job.ID, cause.Error()); err != nil {
		log.Error().Err(err).Str("job_id", job.ID.String()).Msg("marking job failed failed")
	}

	if w.onFailure != nil {
		w.onFailure(ctx, job, cause)
	}
}

// Backoff returns the delay before retry number attempt (1-based): base,
// 2*base, 4*base, ... capped at one hour.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= time.Hour {
			return time.Hour
		}
	}

	if delay > time.Hour {
		return time.Hour
	}
	return delay
}
