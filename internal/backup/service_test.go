package backup_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/tenantd/internal/backup"
	"github.com/gosuda/tenantd/internal/domain"
	"github.com/gosuda/tenantd/internal/notify"
	"github.com/gosuda/tenantd/internal/secrets"
)

type fakeLocker struct{}

func (fakeLocker) Acquire(context.Context, uuid.UUID) (func(), error) {
	return func() {}, nil
}

type tenantRepoMock struct {
	tenant *domain.Tenant
}

func (m *tenantRepoMock) Create(context.Context, *domain.Tenant) error { return nil }

func (m *tenantRepoMock) GetByID(_ context.Context, id uuid.UUID) (*domain.Tenant, error) {
	if m.tenant == nil || m.tenant.ID != id {
		return nil, domain.ErrNotFound
	}
	return m.tenant, nil
}

func (m *tenantRepoMock) GetBySubdomain(context.Context, string) (*domain.Tenant, error) {
	return nil, domain.ErrNotFound
}

func (m *tenantRepoMock) GetByContactEmail(context.Context, string) (*domain.Tenant, error) {
	return nil, domain.ErrNotFound
}

func (m *tenantRepoMock) Update(context.Context, *domain.Tenant) error { return nil }

func (m *tenantRepoMock) List(context.Context, int, int) ([]*domain.Tenant, error) { return nil, nil }

func (m *tenantRepoMock) ListArchived(context.Context) ([]*domain.Tenant, error) { return nil, nil }

func (m *tenantRepoMock) Archive(context.Context, uuid.UUID, time.Time) error { return nil }

func (m *tenantRepoMock) Unarchive(context.Context, uuid.UUID) error { return nil }

type backupRepoMock struct {
	records map[uuid.UUID]*domain.BackupRecord
}

func (m *backupRepoMock) Create(_ context.Context, b *domain.BackupRecord) error {
	cp := *b
	m.records[b.ID] = &cp
	return nil
}

func (m *backupRepoMock) GetByID(_ context.Context, tenantID, id uuid.UUID) (*domain.BackupRecord, error) {
	b, ok := m.records[id]
	if !ok || b.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *backupRepoMock) Update(_ context.Context, b *domain.BackupRecord) error {
	if _, ok := m.records[b.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *b
	m.records[b.ID] = &cp
	return nil
}

func (m *backupRepoMock) List(_ context.Context, tenantID uuid.UUID, _ domain.BackupFilter) ([]*domain.BackupRecord, error) {
	var out []*domain.BackupRecord
	for _, b := range m.records {
		if b.TenantID == tenantID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *backupRepoMock) ListExpired(_ context.Context, now time.Time) ([]*domain.BackupRecord, error) {
	var out []*domain.BackupRecord
	for _, b := range m.records {
		if b.ExpiresAt != nil && !b.ExpiresAt.After(now) &&
			(b.Status == domain.BackupStatusCompleted || b.Status == domain.BackupStatusFailed) {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *backupRepoMock) ListStuck(_ context.Context, cutoff time.Time) ([]*domain.BackupRecord, error) {
	var out []*domain.BackupRecord
	for _, b := range m.records {
		if b.Status == domain.BackupStatusInProgress && b.StartedAt != nil && b.StartedAt.Before(cutoff) {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *backupRepoMock) Delete(_ context.Context, _, id uuid.UUID) error {
	if _, ok := m.records[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *backupRepoMock) DeleteByTenant(context.Context, uuid.UUID) error { return nil }

type scheduleRepoMock struct {
	schedules map[uuid.UUID]*domain.BackupSchedule
}

func (m *scheduleRepoMock) Upsert(_ context.Context, s *domain.BackupSchedule) error {
	cp := *s
	m.schedules[s.TenantID] = &cp
	return nil
}

func (m *scheduleRepoMock) Get(_ context.Context, tenantID uuid.UUID) (*domain.BackupSchedule, error) {
	s, ok := m.schedules[tenantID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *scheduleRepoMock) ListDue(_ context.Context, now time.Time) ([]*domain.BackupSchedule, error) {
	var out []*domain.BackupSchedule
	for _, s := range m.schedules {
		if !s.NextRunAt.After(now) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *scheduleRepoMock) MarkRun(_ context.Context, tenantID uuid.UUID, nextRunAt time.Time) error {
	s, ok := m.schedules[tenantID]
	if !ok {
		return domain.ErrNotFound
	}
	s.NextRunAt = nextRunAt
	return nil
}

func (m *scheduleRepoMock) DeleteByTenant(context.Context, uuid.UUID) error { return nil }

type restoreRepoMock struct {
	records map[uuid.UUID]*domain.RestoreRecord
}

func (m *restoreRepoMock) Create(_ context.Context, r *domain.RestoreRecord) error {
	cp := *r
	m.records[r.ID] = &cp
	return nil
}

func (m *restoreRepoMock) GetByID(_ context.Context, tenantID, id uuid.UUID) (*domain.RestoreRecord, error) {
	r, ok := m.records[id]
	if !ok || r.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *restoreRepoMock) Update(_ context.Context, r *domain.RestoreRecord) error {
	if _, ok := m.records[r.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *r
	m.records[r.ID] = &cp
	return nil
}

func (m *restoreRepoMock) DeleteByTenant(context.Context, uuid.UUID) error { return nil }

type jobRepoMock struct {
	enqueued []*domain.Job
}

func (m *jobRepoMock) Enqueue(_ context.Context, j *domain.Job) error {
	m.enqueued = append(m.enqueued, j)
	return nil
}

func (m *jobRepoMock) ClaimNext(context.Context, time.Time) (*domain.Job, error) {
	return nil, domain.ErrNotFound
}

func (m *jobRepoMock) MarkCompleted(context.Context, uuid.UUID) error { return nil }

func (m *jobRepoMock) MarkRetry(context.Context, uuid.UUID, time.Time, string) error { return nil }

func (m *jobRepoMock) MarkFailed(context.Context, uuid.UUID, string) error { return nil }

func (m *jobRepoMock) ReclaimStale(context.Context, time.Time) (int64, error) { return 0, nil }

func (m *jobRepoMock) DeleteByTenant(context.Context, uuid.UUID) error { return nil }

type keyStoreMock struct {
	keys map[uuid.UUID]string
}

func (m *keyStoreMock) Put(_ context.Context, _, backupID uuid.UUID, sealed string) error {
	m.keys[backupID] = sealed
	return nil
}

func (m *keyStoreMock) Get(_ context.Context, backupID uuid.UUID) (string, error) {
	sealed, ok := m.keys[backupID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return sealed, nil
}

func (m *keyStoreMock) Delete(_ context.Context, backupID uuid.UUID) error {
	delete(m.keys, backupID)
	return nil
}

// providerMock serves a fixed dump and records what gets restored.
type providerMock struct {
	dump     string
	restored []string
	dumpErr  error
}

func (p *providerMock) Create(context.Context, string) error { return nil }

func (p *providerMock) Exists(context.Context, string) (bool, error) { return true, nil }

func (p *providerMock) Drop(context.Context, string) error { return nil }

func (p *providerMock) Migrate(context.Context, string) error { return nil }

func (p *providerMock) Seed(context.Context, string, *domain.AdminBootstrap) error { return nil }

func (p *providerMock) Dump(_ context.Context, _ string, w io.Writer) error {
	if p.dumpErr != nil {
		return p.dumpErr
	}
	_, err := io.WriteString(w, p.dump)
	return err
}

func (p *providerMock) Restore(_ context.Context, _ string, r io.Reader) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	p.restored = append(p.restored, string(body))
	return nil
}

type artifactStoreMock struct {
	objects map[string][]byte
}

func (a *artifactStoreMock) Put(_ context.Context, key string, r io.Reader, _ int64) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	a.objects[key] = body
	return nil
}

func (a *artifactStoreMock) Get(_ context.Context, key string) (io.ReadCloser, error) {
	body, ok := a.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (a *artifactStoreMock) Delete(_ context.Context, key string) error {
	delete(a.objects, key)
	return nil
}

func (a *artifactStoreMock) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range a.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

type captureChannel struct {
	events []notify.Event
}

func (c *captureChannel) Name() string { return "capture" }

func (c *captureChannel) Send(_ context.Context, e notify.Event) error {
	c.events = append(c.events, e)
	return nil
}

type fixture struct {
	svc       *backup.Service
	tenant    *domain.Tenant
	backups   *backupRepoMock
	schedules *scheduleRepoMock
	restores  *restoreRepoMock
	jobs      *jobRepoMock
	keys      *keyStoreMock
	provider  *providerMock
	artifacts *artifactStoreMock
	events    *captureChannel
	filesRoot string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	keybox, err := secrets.NewKeybox(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)

	f := &fixture{
		tenant:    &domain.Tenant{ID: uuid.New(), Subdomain: "acme", Status: domain.TenantStatusActive},
		backups:   &backupRepoMock{records: make(map[uuid.UUID]*domain.BackupRecord)},
		schedules: &scheduleRepoMock{schedules: make(map[uuid.UUID]*domain.BackupSchedule)},
		restores:  &restoreRepoMock{records: make(map[uuid.UUID]*domain.RestoreRecord)},
		jobs:      &jobRepoMock{},
		keys:      &keyStoreMock{keys: make(map[uuid.UUID]string)},
		provider:  &providerMock{dump: "-- pg dump of acme\nCREATE TABLE users ();\n"},
		artifacts: &artifactStoreMock{objects: make(map[string][]byte)},
		events:    &captureChannel{},
		filesRoot: t.TempDir(),
	}

	f.svc = backup.NewService(
		&tenantRepoMock{tenant: f.tenant},
		f.backups, f.schedules, f.restores, f.jobs,
		f.keys, keybox, f.provider, f.artifacts,
		f.filesRoot, fakeLocker{}, notify.New(f.events),
		30, 5,
	)
	return f
}

func TestCreatePersistsPendingAndEnqueues(t *testing.T) {
	f := newFixture(t)

	rec, err := f.svc.Create(context.Background(), f.tenant.ID, backup.Request{
		Type:            domain.BackupTypeDatabase,
		IncludeDatabase: true,
		InitiatedBy:     "admin@acme.test",
	})
	require.NoError(t, err)

	stored := f.backups.records[rec.ID]
	require.NotNil(t, stored, "record must exist before any work runs")
	assert.Equal(t, domain.BackupStatusPending, stored.Status)
	assert.Equal(t, 30, stored.RetentionDays)

	require.Len(t, f.jobs.enqueued, 1)
	assert.Equal(t, domain.JobKindRunBackup, f.jobs.enqueued[0].Kind)
	assert.Equal(t, "backup:"+rec.ID.String(), f.jobs.enqueued[0].DedupeKey)
}

func TestCreateRejectsEmptyScope(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), f.tenant.ID, backup.Request{})

	var val *domain.ValidationError
	assert.ErrorAs(t, err, &val)
}

func TestExecuteAndRestoreRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, f.tenant.ID, backup.Request{
		Type:            domain.BackupTypeDatabase,
		IncludeDatabase: true,
		Encrypt:         true,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Execute(ctx, f.tenant.ID, rec.ID))

	done := f.backups.records[rec.ID]
	assert.Equal(t, domain.BackupStatusCompleted, done.Status)
	assert.NotEmpty(t, done.Checksum)
	require.Len(t, done.Artifacts, 1)
	assert.Positive(t, done.Artifacts[0].SizeBytes)
	require.NotNil(t, done.ExpiresAt)

	// The stored object is encrypted: the raw dump must not appear in it.
	stored := f.artifacts.objects[done.Artifacts[0].Key]
	assert.NotContains(t, string(stored), "CREATE TABLE users")
	assert.Contains(t, f.keys.keys, rec.ID)

	restore, err := f.svc.Restore(ctx, f.tenant.ID, rec.ID, backup.RestoreOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.RestoreStatusCompleted, restore.Status)
	assert.NotEqual(t, rec.ID, restore.ID, "restore has its own identity")

	// A safety backup with a distinct ID was taken first.
	require.NotNil(t, restore.PreBackupID)
	assert.NotEqual(t, rec.ID, *restore.PreBackupID)
	pre := f.backups.records[*restore.PreBackupID]
	require.NotNil(t, pre)
	assert.Equal(t, domain.BackupStatusCompleted, pre.Status)
	assert.Equal(t, "system:pre-restore", pre.InitiatedBy)

	// The database got back exactly what was dumped.
	require.Len(t, f.provider.restored, 1)
	assert.Equal(t, f.provider.dump, f.provider.restored[0])
}

func TestFileBackupRestoreRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tenantDir := filepath.Join(f.filesRoot, f.tenant.ID.String())
	require.NoError(t, os.MkdirAll(filepath.Join(tenantDir, "uploads"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(tenantDir, "uploads", "logo.png"), []byte("png bytes"), 0o640))

	rec, err := f.svc.Create(ctx, f.tenant.ID, backup.Request{
		Type:         domain.BackupTypeFiles,
		IncludeFiles: true,
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.Execute(ctx, f.tenant.ID, rec.ID))

	// Lose the files, then bring them back.
	require.NoError(t, os.RemoveAll(tenantDir))

	_, err = f.svc.Restore(ctx, f.tenant.ID, rec.ID, backup.RestoreOptions{
		SkipPreBackup: true,
		RestoreFiles:  true,
	})
	require.NoError(t, err)

	body, err := os.ReadFile(filepath.Join(tenantDir, "uploads", "logo.png"))
	require.NoError(t, err)
	assert.Equal(t, "png bytes", string(body))
}

func TestExecuteFailureKeepsStepErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.provider.dumpErr = io.ErrUnexpectedEOF

	rec, err := f.svc.Create(ctx, f.tenant.ID, backup.Request{IncludeDatabase: true})
	require.NoError(t, err)

	err = f.svc.Execute(ctx, f.tenant.ID, rec.ID)
	require.Error(t, err)

	failed := f.backups.records[rec.ID]
	assert.Equal(t, domain.BackupStatusFailed, failed.Status)
	assert.NotEmpty(t, failed.StepErrors)
	require.NotNil(t, failed.CompletedAt)

	// Even a fully failed backup leaves a manifest behind.
	manifestKey := "tenants/" + f.tenant.ID.String() + "/backups/" + rec.ID.String() + "/manifest.json"
	assert.Contains(t, f.artifacts.objects, manifestKey)

	var found bool
	for _, e := range f.events.events {
		if e.Type == notify.EventBackupFailed {
			found = true
		}
	}
	assert.True(t, found)
}

func TestExecutePartialFailureFailsBackup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.provider.dumpErr = io.ErrUnexpectedEOF

	rec, err := f.svc.Create(ctx, f.tenant.ID, backup.Request{
		Type:            domain.BackupTypeFull,
		IncludeDatabase: true,
		IncludeFiles:    true,
	})
	require.NoError(t, err)

	err = f.svc.Execute(ctx, f.tenant.ID, rec.ID)
	require.Error(t, err)

	failed := f.backups.records[rec.ID]
	assert.Equal(t, domain.BackupStatusFailed, failed.Status, "one failed step fails the backup")

	// The files step succeeded: its artifact and the database error are
	// both on the record.
	require.Len(t, failed.Artifacts, 1)
	assert.Contains(t, failed.Artifacts[0].Key, "files.tar.gz")
	require.Len(t, failed.StepErrors, 1)
	assert.Contains(t, failed.StepErrors[0], "database:")

	// The manifest covering the uploaded artifact still went out.
	manifestKey := "tenants/" + f.tenant.ID.String() + "/backups/" + rec.ID.String() + "/manifest.json"
	assert.Contains(t, f.artifacts.objects, manifestKey)
	assert.NotEmpty(t, failed.Checksum)
}

func TestRestoreRequiresCompletedBackup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, f.tenant.ID, backup.Request{IncludeDatabase: true})
	require.NoError(t, err)

	_, err = f.svc.Restore(ctx, f.tenant.ID, rec.ID, backup.RestoreOptions{})

	var pre *domain.PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.Contains(t, pre.Reason, "pending")
}

func TestRestoreRejectsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, f.tenant.ID, backup.Request{
		Type:         domain.BackupTypeFiles,
		IncludeFiles: true,
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.Execute(ctx, f.tenant.ID, rec.ID))

	// A files-only backup without restore_files would restore nothing.
	_, err = f.svc.Restore(ctx, f.tenant.ID, rec.ID, backup.RestoreOptions{SkipPreBackup: true})

	var val *domain.ValidationError
	require.ErrorAs(t, err, &val)
	assert.Equal(t, "restore_files", val.Field)
	assert.Empty(t, f.provider.restored)
}

func TestDeleteRemovesArtifactsKeyAndMetadata(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, f.tenant.ID, backup.Request{IncludeDatabase: true, Encrypt: true})
	require.NoError(t, err)
	require.NoError(t, f.svc.Execute(ctx, f.tenant.ID, rec.ID))
	require.NotEmpty(t, f.artifacts.objects)

	require.NoError(t, f.svc.Delete(ctx, f.tenant.ID, rec.ID))

	assert.Empty(t, f.artifacts.objects)
	assert.NotContains(t, f.keys.keys, rec.ID)
	assert.NotContains(t, f.backups.records, rec.ID)
}

func TestCleanupExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)

	completedID := uuid.New()
	dumpKey := "tenants/" + f.tenant.ID.String() + "/backups/" + completedID.String() + "/database.sql.gz"
	completed := &domain.BackupRecord{
		ID: completedID, TenantID: f.tenant.ID,
		Status: domain.BackupStatusCompleted, ExpiresAt: &past,
		Artifacts: []domain.Artifact{{Key: dumpKey}},
	}
	failed := &domain.BackupRecord{
		ID: uuid.New(), TenantID: f.tenant.ID,
		Status: domain.BackupStatusFailed, ExpiresAt: &past,
	}
	f.backups.records[completed.ID] = completed
	f.backups.records[failed.ID] = failed
	f.artifacts.objects[dumpKey] = []byte("old dump")

	failures := f.svc.CleanupExpired(ctx)
	assert.Empty(t, failures)

	// Completed records become tombstones; failed ones disappear.
	assert.Equal(t, domain.BackupStatusExpired, f.backups.records[completed.ID].Status)
	assert.Empty(t, f.backups.records[completed.ID].Artifacts)
	assert.NotContains(t, f.artifacts.objects, dumpKey)
	assert.NotContains(t, f.backups.records, failed.ID)

	// A second pass finds nothing to do.
	assert.Empty(t, f.svc.CleanupExpired(ctx))
}

func TestReconcileStuck(t *testing.T) {
	f := newFixture(t)

	started := time.Now().Add(-3 * time.Hour)
	stuck := &domain.BackupRecord{
		ID: uuid.New(), TenantID: f.tenant.ID,
		Status: domain.BackupStatusInProgress, StartedAt: &started,
	}
	fresh := time.Now().Add(-10 * time.Minute)
	running := &domain.BackupRecord{
		ID: uuid.New(), TenantID: f.tenant.ID,
		Status: domain.BackupStatusInProgress, StartedAt: &fresh,
	}
	f.backups.records[stuck.ID] = stuck
	f.backups.records[running.ID] = running

	reconciled := f.svc.ReconcileStuck(context.Background(), 2*time.Hour)

	require.Len(t, reconciled, 1)
	assert.Equal(t, domain.BackupStatusFailed, f.backups.records[stuck.ID].Status)
	assert.Equal(t, domain.BackupStatusInProgress, f.backups.records[running.ID].Status)
}

func TestScheduleLastWriteWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Schedule(ctx, f.tenant.ID, backup.ScheduleRequest{
		Frequency: domain.BackupFrequencyDaily, Hour: 3, Minute: 0,
		Type: domain.BackupTypeDatabase,
	})
	require.NoError(t, err)

	second, err := f.svc.Schedule(ctx, f.tenant.ID, backup.ScheduleRequest{
		Frequency: domain.BackupFrequencyWeekly, Hour: 5, Minute: 30,
		Type: domain.BackupTypeFull, RetentionDays: 90,
	})
	require.NoError(t, err)

	stored, err := f.svc.GetSchedule(ctx, f.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BackupFrequencyWeekly, stored.Frequency)
	assert.Equal(t, 90, stored.RetentionDays)
	assert.Equal(t, second.NextRunAt, stored.NextRunAt)
	assert.True(t, stored.NextRunAt.After(time.Now()))
}

func TestScheduleValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Schedule(context.Background(), f.tenant.ID, backup.ScheduleRequest{
		Frequency: "hourly", Hour: 3,
	})
	var val *domain.ValidationError
	require.ErrorAs(t, err, &val)
	assert.Equal(t, "frequency", val.Field)

	_, err = f.svc.Schedule(context.Background(), f.tenant.ID, backup.ScheduleRequest{
		Frequency: domain.BackupFrequencyDaily, Hour: 24,
	})
	require.ErrorAs(t, err, &val)
	assert.Equal(t, "hour", val.Field)
}

func TestRunDueCreatesBackupAndAdvancesSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	due := &domain.BackupSchedule{
		TenantID:  f.tenant.ID,
		Frequency: domain.BackupFrequencyDaily,
		Hour:      3,
		Type:      domain.BackupTypeDatabase,
		NextRunAt: time.Now().Add(-time.Minute),
	}
	f.schedules.schedules[f.tenant.ID] = due

	failures := f.svc.RunDue(ctx)
	assert.Empty(t, failures)

	require.Len(t, f.jobs.enqueued, 1)
	assert.True(t, f.schedules.schedules[f.tenant.ID].NextRunAt.After(time.Now()))
}
