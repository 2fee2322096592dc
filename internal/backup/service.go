// Package backup creates, restores and expires tenant backups. A backup's
// metadata row is persisted before any work runs, every artifact is streamed
// through the blob store, and per-backup encryption keys live sealed in a
// separate key store.
package backup

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/tenantd/internal/artifact"
	"github.com/gosuda/tenantd/internal/dbprovider"
	"github.com/gosuda/tenantd/internal/domain"
	"github.com/gosuda/tenantd/internal/notify"
	"github.com/gosuda/tenantd/internal/retention"
	"github.com/gosuda/tenantd/internal/secrets"
)

// KeyStore persists sealed per-backup data keys, separate from backup
// metadata.
type KeyStore interface {
	Put(ctx context.Context, tenantID, backupID uuid.UUID, sealed string) error
	Get(ctx context.Context, backupID uuid.UUID) (string, error)
	Delete(ctx context.Context, backupID uuid.UUID) error
}

// Request describes one backup to create.
type Request struct {
	Type            domain.BackupType
	IncludeDatabase bool
	IncludeFiles    bool
	Encrypt         bool
	RetentionDays   int
	InitiatedBy     string
}

// RestoreOptions tunes a restore run.
type RestoreOptions struct {
	// SkipPreBackup disables the safety backup taken before restoring.
	SkipPreBackup bool
	RestoreFiles  bool
}

// jobPayload is the run_backup / restore_backup job body.
type jobPayload struct {
	BackupID uuid.UUID `json:"backup_id"`
}

type Service struct {
	tenants       domain.TenantRepository
	backups       domain.BackupRepository
	schedules     domain.BackupScheduleRepository
	restores      domain.RestoreRepository
	jobs          domain.JobRepository
	keys          KeyStore
	keybox        *secrets.Keybox
	run           *runner
	locker        retention.Locker
	notifier      *notify.Notifier
	retentionDays int
	maxAttempts   int
	now           func() time.Time
}

func NewService(
	tenants domain.TenantRepository,
	backups domain.BackupRepository,
	schedules domain.BackupScheduleRepository,
	restores domain.RestoreRepository,
	jobs domain.JobRepository,
	keys KeyStore,
	keybox *secrets.Keybox,
	provider dbprovider.Provider,
	artifacts artifact.Store,
	filesRoot string,
	locker retention.Locker,
	notifier *notify.Notifier,
	defaultRetentionDays int,
	maxAttempts int,
) *Service {
	return &Service{
		tenants:       tenants,
		backups:       backups,
		schedules:     schedules,
		restores:      restores,
		jobs:          jobs,
		keys:          keys,
		keybox:        keybox,
		run:           &runner{provider: provider, artifacts: artifacts, filesRoot: filesRoot},
		locker:        locker,
		notifier:      notifier,
		retentionDays: defaultRetentionDays,
		maxAttempts:   maxAttempts,
		now:           time.Now,
	}
}

// Create registers a backup in pending status and enqueues its execution.
// The record exists before any work runs, so a crash mid-backup is always
// observable.
func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, req Request) (*domain.BackupRecord, error) {
	const op = "backup.Service.Create"

	if !req.IncludeDatabase && !req.IncludeFiles {
		return nil, &domain.ValidationError{Op: op, Reason: "backup must include the database, files, or both"}
	}

	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if t.Archived() {
		return nil, &domain.PreconditionError{Op: op, TenantID: tenantID, Reason: "tenant is archived"}
	}

	retentionDays := req.RetentionDays
	if retentionDays <= 0 {
		retentionDays = s.retentionDays
	}

	now := s.now().UTC()
	rec := &domain.BackupRecord{
		ID:              uuid.New(),
		TenantID:        tenantID,
		Type:            req.Type,
		Status:          domain.BackupStatusPending,
		IncludeDatabase: req.IncludeDatabase,
		IncludeFiles:    req.IncludeFiles,
		Encrypted:       req.Encrypt,
		RetentionDays:   retentionDays,
		InitiatedBy:     req.InitiatedBy,
		CreatedAt:       now,
	}

	err = s.backups.Create(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	payload, err := json.Marshal(jobPayload{BackupID: rec.ID})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	err = s.jobs.Enqueue(ctx, &domain.Job{
		ID:          uuid.New(),
		Kind:        domain.JobKindRunBackup,
		TenantID:    tenantID,
		DedupeKey:   "backup:" + rec.ID.String(),
		Payload:     payload,
		Status:      domain.JobStatusPending,
		MaxAttempts: s.maxAttempts,
		RunAt:       now,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return rec, nil
}

// HandleBackupJob is the run_backup job handler.
func (s *Service) HandleBackupJob(ctx context.Context, job *domain.Job) error {
	var p jobPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("backup.Service.HandleBackupJob: payload: %w", err)
	}
	return s.Execute(ctx, job.TenantID, p.BackupID)
}

// Execute runs a pending backup under the tenant lock. A backup already
// completed or failed is left alone, making retries safe. Any step error
// fails the backup; artifacts that uploaded before the failure are kept.
func (s *Service) Execute(ctx context.Context, tenantID, backupID uuid.UUID) error {
	const op = "backup.Service.Execute"

	release, err := s.locker.Acquire(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer release()

	rec, err := s.backups.GetByID(ctx, tenantID, backupID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	switch rec.Status {
	case domain.BackupStatusPending:
	case domain.BackupStatusInProgress:
		// A previous attempt died mid-run; its partial artifacts are
		// replaced by rerunning from scratch.
	default:
		return nil
	}

	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	now := s.now().UTC()
	rec.Status = domain.BackupStatusInProgress
	rec.StartedAt = &now
	rec.StepErrors = nil

	err = s.backups.Update(ctx, rec)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var dataKey []byte
	if rec.Encrypted {
		dataKey, err = s.ensureDataKey(ctx, rec)
		if err != nil {
			return s.fail(ctx, rec, fmt.Errorf("%s: %w", op, err))
		}
	}

	var artifacts []manifestArtifact

	if rec.IncludeDatabase {
		a, err := s.run.uploadDatabase(ctx, t.DatabaseName(), rec, dataKey)
		if err != nil {
			rec.StepErrors = append(rec.StepErrors, "database: "+err.Error())
		} else {
			artifacts = append(artifacts, a)
		}
	}

	if rec.IncludeFiles {
		a, err := s.run.uploadFiles(ctx, rec, dataKey)
		if err != nil {
			rec.StepErrors = append(rec.StepErrors, "files: "+err.Error())
		} else {
			artifacts = append(artifacts, a)
		}
	}

	// The manifest is written even when steps failed, so whatever did get
	// uploaded stays verifiable.
	checksum, err := s.run.uploadManifest(ctx, rec, artifacts)
	if err != nil {
		rec.StepErrors = append(rec.StepErrors, "manifest: "+err.Error())
	} else {
		rec.Checksum = checksum
	}

	done := s.now().UTC()
	expires := done.AddDate(0, 0, rec.RetentionDays)

	rec.CompletedAt = &done
	rec.ExpiresAt = &expires
	rec.Artifacts = rec.Artifacts[:0]
	for _, a := range artifacts {
		rec.Artifacts = append(rec.Artifacts, domain.Artifact{Key: a.Key, SizeBytes: a.SizeBytes})
	}

	// One failed step fails the whole backup. Artifacts from steps that
	// succeeded stay recorded for diagnosis and partial recovery.
	if len(rec.StepErrors) > 0 {
		rec.Status = domain.BackupStatusFailed

		if err := s.backups.Update(ctx, rec); err != nil {
			log.Error().Err(err).Str("backup_id", rec.ID.String()).Msg("recording backup failure failed")
		}

		log.Error().
			Str("tenant_id", tenantID.String()).
			Str("backup_id", backupID.String()).
			Int("artifacts", len(artifacts)).
			Strs("step_errors", rec.StepErrors).
			Msg("backup failed")

		s.notifier.Notify(ctx, notify.Event{
			Type:     notify.EventBackupFailed,
			TenantID: tenantID,
			Message:  fmt.Sprintf("backup %s failed: %s", backupID, strings.Join(rec.StepErrors, "; ")),
			Meta:     map[string]any{"backup_id": backupID.String()},
		})

		return fmt.Errorf("%s: %s", op, strings.Join(rec.StepErrors, "; "))
	}

	rec.Status = domain.BackupStatusCompleted

	err = s.backups.Update(ctx, rec)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info().
		Str("tenant_id", tenantID.String()).
		Str("backup_id", backupID.String()).
		Int("artifacts", len(artifacts)).
		Msg("backup completed")

	s.notifier.Notify(ctx, notify.Event{
		Type:     notify.EventBackupCompleted,
		TenantID: tenantID,
		Message:  fmt.Sprintf("backup %s completed with %d artifact(s)", backupID, len(artifacts)),
		Meta:     map[string]any{"backup_id": backupID.String()},
	})

	return nil
}

// Restore replaces the tenant's data from a completed backup. Unless skipped,
// a fresh safety backup with its own ID is taken first and recorded on the
// restore.
func (s *Service) Restore(ctx context.Context, tenantID, backupID uuid.UUID, opts RestoreOptions) (*domain.RestoreRecord, error) {
	const op = "backup.Service.Restore"

	release, err := s.locker.Acquire(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer release()

	rec, err := s.backups.GetByID(ctx, tenantID, backupID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if rec.Status != domain.BackupStatusCompleted {
		return nil, &domain.PreconditionError{
			Op:       op,
			TenantID: tenantID,
			Reason:   fmt.Sprintf("backup %s is %s, only completed backups can be restored", backupID, rec.Status),
		}
	}

	// A restore that would apply no artifacts is a caller mistake, not a
	// success.
	var hasDatabase, hasFiles bool
	for _, a := range rec.Artifacts {
		switch {
		case strings.Contains(a.Key, "/database.sql.gz"):
			hasDatabase = true
		case strings.Contains(a.Key, "/files.tar.gz"):
			hasFiles = true
		}
	}
	if !hasDatabase && !(hasFiles && opts.RestoreFiles) {
		return nil, &domain.ValidationError{
			Op:     op,
			Field:  "restore_files",
			Reason: fmt.Sprintf("backup %s holds only a files archive; set restore_files to restore it", backupID),
		}
	}

	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	restore := &domain.RestoreRecord{
		ID:        uuid.New(),
		TenantID:  tenantID,
		BackupID:  backupID,
		Status:    domain.RestoreStatusInProgress,
		StartedAt: s.now().UTC(),
	}

	err = s.restores.Create(ctx, restore)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !opts.SkipPreBackup {
		pre, err := s.preBackup(ctx, t, rec)
		if err != nil {
			return s.failRestore(ctx, restore, fmt.Errorf("pre-restore backup: %w", err))
		}
		restore.PreBackupID = &pre.ID
	}

	var dataKey []byte
	if rec.Encrypted {
		dataKey, err = s.loadDataKey(ctx, rec.ID)
		if err != nil {
			return s.failRestore(ctx, restore, err)
		}
	}

	for _, a := range rec.Artifacts {
		switch {
		case strings.Contains(a.Key, "/database.sql.gz"):
			err = s.run.restoreDatabase(ctx, t.DatabaseName(), a.Key, dataKey)
		case strings.Contains(a.Key, "/files.tar.gz") && opts.RestoreFiles:
			err = s.run.restoreFiles(ctx, tenantID, a.Key, dataKey)
		default:
			continue
		}
		if err != nil {
			return s.failRestore(ctx, restore, err)
		}
	}

	done := s.now().UTC()
	restore.Status = domain.RestoreStatusCompleted
	restore.CompletedAt = &done

	err = s.restores.Update(ctx, restore)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info().
		Str("tenant_id", tenantID.String()).
		Str("backup_id", backupID.String()).
		Str("restore_id", restore.ID.String()).
		Msg("restore completed")

	s.notifier.Notify(ctx, notify.Event{
		Type:     notify.EventRestoreCompleted,
		TenantID: tenantID,
		Message:  fmt.Sprintf("restored from backup %s", backupID),
		Meta:     map[string]any{"restore_id": restore.ID.String()},
	})

	return restore, nil
}

// preBackup takes the safety backup before a restore, synchronously and
// outside the job queue since the tenant lock is already held.
func (s *Service) preBackup(ctx context.Context, t *domain.Tenant, source *domain.BackupRecord) (*domain.BackupRecord, error) {
	now := s.now().UTC()

	pre := &domain.BackupRecord{
		ID:              uuid.New(),
		TenantID:        t.ID,
		Type:            domain.BackupTypeDatabase,
		Status:          domain.BackupStatusInProgress,
		IncludeDatabase: true,
		Encrypted:       source.Encrypted,
		RetentionDays:   source.RetentionDays,
		InitiatedBy:     "system:pre-restore",
		StartedAt:       &now,
		CreatedAt:       now,
	}

	err := s.backups.Create(ctx, pre)
	if err != nil {
		return nil, err
	}

	var dataKey []byte
	if pre.Encrypted {
		dataKey, err = s.ensureDataKey(ctx, pre)
		if err != nil {
			return nil, s.fail(ctx, pre, err)
		}
	}

	a, err := s.run.uploadDatabase(ctx, t.DatabaseName(), pre, dataKey)
	if err != nil {
		return nil, s.fail(ctx, pre, err)
	}

	checksum, err := s.run.uploadManifest(ctx, pre, []manifestArtifact{a})
	if err != nil {
		return nil, s.fail(ctx, pre, err)
	}

	done := s.now().UTC()
	expires := done.AddDate(0, 0, pre.RetentionDays)
	pre.Status = domain.BackupStatusCompleted
	pre.CompletedAt = &done
	pre.ExpiresAt = &expires
	pre.Checksum = checksum
	pre.Artifacts = []domain.Artifact{{Key: a.Key, SizeBytes: a.SizeBytes}}

	err = s.backups.Update(ctx, pre)
	if err != nil {
		return nil, err
	}

	return pre, nil
}

func (s *Service) Get(ctx context.Context, tenantID, backupID uuid.UUID) (*domain.BackupRecord, error) {
	rec, err := s.backups.GetByID(ctx, tenantID, backupID)
	if err != nil {
		return nil, fmt.Errorf("backup.Service.Get: %w", err)
	}
	return rec, nil
}

func (s *Service) List(ctx context.Context, tenantID uuid.UUID, f domain.BackupFilter) ([]*domain.BackupRecord, error) {
	recs, err := s.backups.List(ctx, tenantID, f)
	if err != nil {
		return nil, fmt.Errorf("backup.Service.List: %w", err)
	}
	return recs, nil
}

// Delete removes a backup: artifacts first, then the sealed key, then the
// metadata row, so a partial failure never leaves metadata pointing at data
// that still exists without a key.
func (s *Service) Delete(ctx context.Context, tenantID, backupID uuid.UUID) error {
	const op = "backup.Service.Delete"

	rec, err := s.backups.GetByID(ctx, tenantID, backupID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if rec.Status == domain.BackupStatusInProgress {
		return &domain.PreconditionError{
			Op:       op,
			TenantID: tenantID,
			Reason:   fmt.Sprintf("backup %s is in progress", backupID),
		}
	}

	err = s.run.deleteArtifacts(ctx, tenantID, backupID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = s.keys.Delete(ctx, backupID)
	if err != nil {
		return fmt.Errorf("%s: delete key: %w", op, err)
	}

	err = s.backups.Delete(ctx, tenantID, backupID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// fail transitions the record to failed, keeping accumulated step errors for
// diagnosis, and returns the original error.
func (s *Service) fail(ctx context.Context, rec *domain.BackupRecord, cause error) error {
	now := s.now().UTC()
	rec.Status = domain.BackupStatusFailed
	rec.CompletedAt = &now
	expires := now.AddDate(0, 0, rec.RetentionDays)
	rec.ExpiresAt = &expires
	rec.StepErrors = append(rec.StepErrors, cause.Error())

	if err := s.backups.Update(ctx, rec); err != nil {
		log.Error().Err(err).Str("backup_id", rec.ID.String()).Msg("recording backup failure failed")
	}

	s.notifier.Notify(ctx, notify.Event{
		Type:     notify.EventBackupFailed,
		TenantID: rec.TenantID,
		Message:  fmt.Sprintf("backup %s failed: %v", rec.ID, cause),
		Meta:     map[string]any{"backup_id": rec.ID.String()},
	})

	return cause
}

func (s *Service) failRestore(ctx context.Context, restore *domain.RestoreRecord, cause error) (*domain.RestoreRecord, error) {
	now := s.now().UTC()
	restore.Status = domain.RestoreStatusFailed
	restore.Error = cause.Error()
	restore.CompletedAt = &now

	if err := s.restores.Update(ctx, restore); err != nil {
		log.Error().Err(err).Str("restore_id", restore.ID.String()).Msg("recording restore failure failed")
	}

	s.notifier.Notify(ctx, notify.Event{
		Type:     notify.EventRestoreFailed,
		TenantID: restore.TenantID,
		Message:  fmt.Sprintf("restore %s failed: %v", restore.ID, cause),
	})

	return nil, fmt.Errorf("backup.Service.Restore: %w", cause)
}

// ensureDataKey generates, seals and stores the backup's data key. A key
// already stored for this backup (a retried attempt) is reused.
func (s *Service) ensureDataKey(ctx context.Context, rec *domain.BackupRecord) ([]byte, error) {
	existing, err := s.keys.Get(ctx, rec.ID)
	if err == nil {
		sealed, err := hex.DecodeString(existing)
		if err != nil {
			return nil, fmt.Errorf("data key: decode: %w", err)
		}
		return s.keybox.Unseal(sealed)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("data key: %w", err)
	}

	dataKey, err := s.keybox.GenerateDataKey()
	if err != nil {
		return nil, fmt.Errorf("data key: %w", err)
	}

	sealed, err := s.keybox.Seal(dataKey)
	if err != nil {
		return nil, fmt.Errorf("data key: %w", err)
	}

	err = s.keys.Put(ctx, rec.TenantID, rec.ID, hex.EncodeToString(sealed))
	if err != nil {
		return nil, fmt.Errorf("data key: %w", err)
	}

	return dataKey, nil
}

func (s *Service) loadDataKey(ctx context.Context, backupID uuid.UUID) ([]byte, error) {
	sealedHex, err := s.keys.Get(ctx, backupID)
	if err != nil {
		return nil, fmt.Errorf("data key: %w", err)
	}

	sealed, err := hex.DecodeString(sealedHex)
	if err != nil {
		return nil, fmt.Errorf("data key: decode: %w", err)
	}

	return s.keybox.Unseal(sealed)
}
