package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/tenantd/internal/domain"
	"github.com/gosuda/tenantd/internal/queue"
)

type jobRepoMock struct {
	queue         []*domain.Job
	stale         []*domain.Job
	completed     []uuid.UUID
	retried       []uuid.UUID
	failed        []uuid.UUID
	lastError     string
	retryAt       time.Time
	reclaimCutoff time.Time
}

func (m *jobRepoMock) Enqueue(context.Context, *domain.Job) error { return nil }

func (m *jobRepoMock) ClaimNext(context.Context, time.Time) (*domain.Job, error) {
	if len(m.queue) == 0 {
		return nil, domain.ErrNotFound
	}
	job := m.queue[0]
	m.queue = m.queue[1:]
	job.Attempts++
	job.Status = domain.JobStatusRunning
	return job, nil
}

func (m *jobRepoMock) MarkCompleted(_ context.Context, id uuid.UUID) error {
	m.completed = append(m.completed, id)
	return nil
}

func (m *jobRepoMock) MarkRetry(_ context.Context, id uuid.UUID, runAt time.Time, lastError string) error {
	m.retried = append(m.retried, id)
	m.retryAt = runAt
	m.lastError = lastError
	return nil
}

func (m *jobRepoMock) MarkFailed(_ context.Context, id uuid.UUID, lastError string) error {
	m.failed = append(m.failed, id)
	m.lastError = lastError
	return nil
}

func (m *jobRepoMock) ReclaimStale(_ context.Context, cutoff time.Time) (int64, error) {
	m.reclaimCutoff = cutoff
	n := int64(len(m.stale))
	for _, j := range m.stale {
		j.Status = domain.JobStatusPending
		m.queue = append(m.queue, j)
	}
	m.stale = nil
	return n, nil
}

func (m *jobRepoMock) DeleteByTenant(context.Context, uuid.UUID) error { return nil }

func newJob(kind domain.JobKind, maxAttempts int) *domain.Job {
	return &domain.Job{
		ID:          uuid.New(),
		Kind:        kind,
		TenantID:    uuid.New(),
		Status:      domain.JobStatusPending,
		MaxAttempts: maxAttempts,
	}
}

func TestWorkerCompletesJob(t *testing.T) {
	repo := &jobRepoMock{}
	job := newJob(domain.JobKindProvisionTenant, 3)
	repo.queue = append(repo.queue, job)

	var handled *domain.Job
	w := queue.NewWorker(repo, time.Millisecond, time.Second)
	w.Handle(domain.JobKindProvisionTenant, func(_ context.Context, j *domain.Job) error {
		handled = j
		return nil
	})

	claimed := w.RunOnce(context.Background())

	require.True(t, claimed)
	require.NotNil(t, handled)
	assert.Equal(t, job.ID, handled.ID)
	assert.Equal(t, []uuid.UUID{job.ID}, repo.completed)
	assert.Empty(t, repo.retried)
	assert.Empty(t, repo.failed)
}

func TestWorkerRetriesUntilAttemptsExhausted(t *testing.T) {
	repo := &jobRepoMock{}
	job := newJob(domain.JobKindRunBackup, 2)
	repo.queue = append(repo.queue, job)

	w := queue.NewWorker(repo, time.Millisecond, time.Second)
	w.Handle(domain.JobKindRunBackup, func(context.Context, *domain.Job) error {
		return errors.New("dump failed")
	})

	// First attempt: retried.
	require.True(t, w.RunOnce(context.Background()))
	assert.Equal(t, []uuid.UUID{job.ID}, repo.retried)
	assert.Equal(t, "dump failed", repo.lastError)
	assert.Empty(t, repo.failed)

	// Second attempt hits MaxAttempts: failed permanently.
	repo.queue = append(repo.queue, job)
	require.True(t, w.RunOnce(context.Background()))
	assert.Equal(t, []uuid.UUID{job.ID}, repo.failed)
}

func TestWorkerFailureHookFires(t *testing.T) {
	repo := &jobRepoMock{}
	job := newJob(domain.JobKindRunBackup, 1)
	repo.queue = append(repo.queue, job)

	var hookJob *domain.Job
	var hookErr error

	w := queue.NewWorker(repo, time.Millisecond, time.Second)
	w.Handle(domain.JobKindRunBackup, func(context.Context, *domain.Job) error {
		return errors.New("boom")
	})
	w.OnFailure(func(_ context.Context, j *domain.Job, err error) {
		hookJob = j
		hookErr = err
	})

	require.True(t, w.RunOnce(context.Background()))
	require.NotNil(t, hookJob)
	assert.Equal(t, job.ID, hookJob.ID)
	assert.EqualError(t, hookErr, "boom")
}

func TestWorkerUnknownKindFailsJob(t *testing.T) {
	repo := &jobRepoMock{}
	job := newJob(domain.JobKind("mystery"), 3)
	repo.queue = append(repo.queue, job)

	w := queue.NewWorker(repo, time.Millisecond, time.Second)

	require.True(t, w.RunOnce(context.Background()))
	assert.Equal(t, []uuid.UUID{job.ID}, repo.failed)
}

func TestWorkerReclaimsStaleRunningJobs(t *testing.T) {
	repo := &jobRepoMock{}
	job := newJob(domain.JobKindProvisionTenant, 3)
	job.Status = domain.JobStatusRunning
	repo.stale = append(repo.stale, job)

	var handled *domain.Job
	w := queue.NewWorker(repo, time.Millisecond, time.Second)
	w.ReclaimAfter(10 * time.Minute)
	w.Handle(domain.JobKindProvisionTenant, func(_ context.Context, j *domain.Job) error {
		handled = j
		return nil
	})

	// The job a dead worker left in running comes back and gets executed.
	require.True(t, w.RunOnce(context.Background()))
	require.NotNil(t, handled)
	assert.Equal(t, job.ID, handled.ID)
	assert.WithinDuration(t, time.Now().Add(-10*time.Minute), repo.reclaimCutoff, time.Minute)
}

func TestWorkerReclaimDisabledWithoutWindow(t *testing.T) {
	repo := &jobRepoMock{}
	repo.stale = append(repo.stale, newJob(domain.JobKindRunBackup, 3))

	w := queue.NewWorker(repo, time.Millisecond, time.Second)

	assert.False(t, w.RunOnce(context.Background()))
	assert.Len(t, repo.stale, 1)
}

func TestWorkerNoJobs(t *testing.T) {
	w := queue.NewWorker(&jobRepoMock{}, time.Millisecond, time.Second)
	assert.False(t, w.RunOnce(context.Background()))
}

func TestBackoff(t *testing.T) {
	base := 10 * time.Second

	assert.Equal(t, 10*time.Second, queue.Backoff(base, 1))
	assert.Equal(t, 20*time.Second, queue.Backoff(base, 2))
	assert.Equal(t, 40*time.Second, queue.Backoff(base, 3))
	assert.Equal(t, 80*time.Second, queue.Backoff(base, 4))

	// Invalid attempts clamp to the first delay; large ones cap at an hour.
	assert.Equal(t, 10*time.Second, queue.Backoff(base, 0))
	assert.Equal(t, time.Hour, queue.Backoff(base, 30))
}
