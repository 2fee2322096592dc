package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/tenantd/internal/domain"
)

const backupColumns = `id, tenant_id, type, status, include_database,
	include_files, encrypted, retention_days, expires_at, artifacts, checksum,
	step_errors, initiated_by, started_at, completed_at, created_at`

type BackupRepo struct {
	pool *pgxpool.Pool
}

func NewBackupRepo(pool *pgxpool.Pool) *BackupRepo {
	return &BackupRepo{pool: pool}
}

func (r *BackupRepo) Create(ctx context.Context, b *domain.BackupRecord) error {
	artifacts, err := json.Marshal(b.Artifacts)
	if err != nil {
		return fmt.Errorf("backupRepo.Create: marshal artifacts: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO backup_records (`+backupColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		b.ID, b.TenantID, b.Type, b.Status, b.IncludeDatabase,
		b.IncludeFiles, b.Encrypted, b.RetentionDays, b.ExpiresAt, artifacts,
		b.Checksum, b.StepErrors, b.InitiatedBy, b.StartedAt, b.CompletedAt, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("backupRepo.Create: %w", err)
	}
	return nil
}

func (r *BackupRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.BackupRecord, error) {
	b, err := scanBackup(r.pool.QueryRow(ctx,
		`SELECT `+backupColumns+` FROM backup_records WHERE tenant_id = $1 AND id = $2`,
		tenantID, id))
	if err != nil {
		return nil, fmt.Errorf("backupRepo.GetByID: %w", err)
	}
	return b, nil
}

func (r *BackupRepo) Update(ctx context.Context, b *domain.BackupRecord) error {
	artifacts, err := json.Marshal(b.Artifacts)
	if err != nil {
		return fmt.Errorf("backupRepo.Update: marshal artifacts: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE backup_records SET
		   status = $1, expires_at = $2, artifacts = $3, checksum = $4,
		   step_errors = $5, started_at = $6, completed_at = $7
		 WHERE tenant_id = $8 AND id = $9`,
		b.Status, b.ExpiresAt, artifacts, b.Checksum,
		b.StepErrors, b.StartedAt, b.CompletedAt, b.TenantID, b.ID,
	)
	if err != nil {
		return fmt.Errorf("backupRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("backupRepo.Update: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *BackupRepo) List(ctx context.Context, tenantID uuid.UUID, f domain.BackupFilter) ([]*domain.BackupRecord, error) {
	query := `SELECT ` + backupColumns + ` FROM backup_records WHERE tenant_id = $1`
	args := []any{tenantID}

	if f.Status != "" {
		args = append(args, f.Status)
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		query += ` AND type = $` + strconv.Itoa(len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		query += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		query += ` AND created_at < $` + strconv.Itoa(len(args))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args))
	args = append(args, f.Offset)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("backupRepo.List: %w", err)
	}
	defer rows.Close()

	backups, err := collectBackups(rows)
	if err != nil {
		return nil, fmt.Errorf("backupRepo.List: %w", err)
	}
	return backups, nil
}

func (r *BackupRepo) ListExpired(ctx context.Context, now time.Time) ([]*domain.BackupRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+backupColumns+` FROM backup_records
		 WHERE expires_at IS NOT NULL AND expires_at <= $1
		   AND status IN ('completed', 'failed')
		 ORDER BY expires_at`, now)
	if err != nil {
		return nil, fmt.Errorf("backupRepo.ListExpired: %w", err)
	}
	defer rows.Close()

	backups, err := collectBackups(rows)
	if err != nil {
		return nil, fmt.Errorf("backupRepo.ListExpired: %w", err)
	}
	return backups, nil
}

func (r *BackupRepo) ListStuck(ctx context.Context, cutoff time.Time) ([]*domain.BackupRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+backupColumns+` FROM backup_records
		 WHERE status = 'in_progress' AND started_at < $1
		 ORDER BY started_at`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("backupRepo.ListStuck: %w", err)
	}
	defer rows.Close()

	backups, err := collectBackups(rows)
	if err != nil {
		return nil, fmt.Errorf("backupRepo.ListStuck: %w", err)
	}
	return backups, nil
}

func (r *BackupRepo) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM backup_records WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("backupRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("backupRepo.Delete: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *BackupRepo) DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM backup_records WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("backupRepo.DeleteByTenant: %w", err)
	}
	return nil
}

func scanBackup(row pgx.Row) (*domain.BackupRecord, error) {
	var (
		b         domain.BackupRecord
		artifacts []byte
	)

	err := row.Scan(
		&b.ID, &b.TenantID, &b.Type, &b.Status, &b.IncludeDatabase,
		&b.IncludeFiles, &b.Encrypted, &b.RetentionDays, &b.ExpiresAt, &artifacts,
		&b.Checksum, &b.StepErrors, &b.InitiatedBy, &b.StartedAt, &b.CompletedAt, &b.CreatedAt,
	)
	if notFound(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if len(artifacts) > 0 {
		if err = json.Unmarshal(artifacts, &b.Artifacts); err != nil {
			return nil, fmt.Errorf("unmarshal artifacts: %w", err)
		}
	}

	return &b, nil
}

func collectBackups(rows pgx.Rows) ([]*domain.BackupRecord, error) {
	var backups []*domain.BackupRecord
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		backups = append(backups, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return backups, nil
}

type BackupScheduleRepo struct {
	pool *pgxpool.Pool
}

func NewBackupScheduleRepo(pool *pgxpool.Pool) *BackupScheduleRepo {
	return &BackupScheduleRepo{pool: pool}
}

// Upsert replaces any existing schedule for the tenant (last write wins).
func (r *BackupScheduleRepo) Upsert(ctx context.Context, s *domain.BackupSchedule) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO backup_schedules
		   (tenant_id, frequency, hour, minute, type, retention_days,
		    notify_on_failure, next_run_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (tenant_id) DO UPDATE SET
		   frequency = EXCLUDED.frequency, hour = EXCLUDED.hour,
		   minute = EXCLUDED.minute, type = EXCLUDED.type,
		   retention_days = EXCLUDED.retention_days,
		   notify_on_failure = EXCLUDED.notify_on_failure,
		   next_run_at = EXCLUDED.next_run_at, updated_at = now()`,
		s.TenantID, s.Frequency, s.Hour, s.Minute, s.Type, s.RetentionDays,
		s.NotifyOnFailure, s.NextRunAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("backupScheduleRepo.Upsert: %w", err)
	}
	return nil
}

func (r *BackupScheduleRepo) Get(ctx context.Context, tenantID uuid.UUID) (*domain.BackupSchedule, error) {
	var s domain.BackupSchedule

	err := r.pool.QueryRow(ctx,
		`SELECT tenant_id, frequency, hour, minute, type, retention_days,
		        notify_on_failure, next_run_at, updated_at
		 FROM backup_schedules WHERE tenant_id = $1`, tenantID,
	).Scan(&s.TenantID, &s.Frequency, &s.Hour, &s.Minute, &s.Type,
		&s.RetentionDays, &s.NotifyOnFailure, &s.NextRunAt, &s.UpdatedAt)
	if notFound(err) {
		return nil, fmt.Errorf("backupScheduleRepo.Get: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("backupScheduleRepo.Get: %w", err)
	}

	return &s, nil
}

func (r *BackupScheduleRepo) ListDue(ctx context.Context, now time.Time) ([]*domain.BackupSchedule, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT tenant_id, frequency, hour, minute, type, retention_days,
		        notify_on_failure, next_run_at, updated_at
		 FROM backup_schedules WHERE next_run_at <= $1
		 ORDER BY next_run_at`, now)
	if err != nil {
		return nil, fmt.Errorf("backupScheduleRepo.ListDue: %w", err)
	}
	defer rows.Close()

	var schedules []*domain.BackupSchedule
	for rows.Next() {
		var s domain.BackupSchedule
		err = rows.Scan(&s.TenantID, &s.Frequency, &s.Hour, &s.Minute, &s.Type,
			&s.RetentionDays, &s.NotifyOnFailure, &s.NextRunAt, &s.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("backupScheduleRepo.ListDue: scan: %w", err)
		}
		schedules = append(schedules, &s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("backupScheduleRepo.ListDue: rows: %w", err)
	}

	return schedules, nil
}

func (r *BackupScheduleRepo) MarkRun(ctx context.Context, tenantID uuid.UUID, nextRunAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE backup_schedules SET next_run_at = $1, updated_at = now()
		 WHERE tenant_id = $2`, nextRunAt, tenantID)
	if err != nil {
		return fmt.Errorf("backupScheduleRepo.MarkRun: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("backupScheduleRepo.MarkRun: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *BackupScheduleRepo) DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM backup_schedules WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("backupScheduleRepo.DeleteByTenant: %w", err)
	}
	return nil
}

type RestoreRepo struct {
	pool *pgxpool.Pool
}

func NewRestoreRepo(pool *pgxpool.Pool) *RestoreRepo {
	return &RestoreRepo{pool: pool}
}

func (r *RestoreRepo) Create(ctx context.Context, rec *domain.RestoreRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO restore_records
		   (id, tenant_id, backup_id, pre_backup_id, status, error, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.TenantID, rec.BackupID, rec.PreBackupID, rec.Status,
		rec.Error, rec.StartedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("restoreRepo.Create: %w", err)
	}
	return nil
}

func (r *RestoreRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.RestoreRecord, error) {
	var rec domain.RestoreRecord

	err := r.pool.QueryRow(ctx,
		`SELECT id, tenant_id, backup_id, pre_backup_id, status, error, started_at, completed_at
		 FROM restore_records WHERE tenant_id = $1 AND id = $2`, tenantID, id,
	).Scan(&rec.ID, &rec.TenantID, &rec.BackupID, &rec.PreBackupID, &rec.Status,
		&rec.Error, &rec.StartedAt, &rec.CompletedAt)
	if notFound(err) {
		return nil, fmt.Errorf("restoreRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("restoreRepo.GetByID: %w", err)
	}

	return &rec, nil
}

func (r *RestoreRepo) Update(ctx context.Context, rec *domain.RestoreRecord) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE restore_records SET
		   pre_backup_id = $1, status = $2, error = $3, completed_at = $4
		 WHERE tenant_id = $5 AND id = $6`,
		rec.PreBackupID, rec.Status, rec.Error, rec.CompletedAt, rec.TenantID, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("restoreRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("restoreRepo.Update: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *RestoreRepo) DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM restore_records WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("restoreRepo.DeleteByTenant: %w", err)
	}
	return nil
}
