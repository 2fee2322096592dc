package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/tenantd/internal/domain"
)

type Store struct {
	pool        *pgxpool.Pool
	tenants     *TenantRepo
	domains     *DomainRepo
	backups     *BackupRepo
	schedules   *BackupScheduleRepo
	restores    *RestoreRepo
	maintenance *MaintenanceRepo
	keys        *EncryptionKeyRepo
	jobs        *JobRepo
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{
		pool:        pool,
		tenants:     NewTenantRepo(pool),
		domains:     NewDomainRepo(pool),
		backups:     NewBackupRepo(pool),
		schedules:   NewBackupScheduleRepo(pool),
		restores:    NewRestoreRepo(pool),
		maintenance: NewMaintenanceRepo(pool),
		keys:        NewEncryptionKeyRepo(pool),
		jobs:        NewJobRepo(pool),
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Tenants() domain.TenantRepository                 { return s.tenants }
func (s *Store) Domains() domain.DomainRepository                 { return s.domains }
func (s *Store) Backups() domain.BackupRepository                 { return s.backups }
func (s *Store) BackupSchedules() domain.BackupScheduleRepository { return s.schedules }
func (s *Store) Restores() domain.RestoreRepository               { return s.restores }
func (s *Store) Maintenance() domain.MaintenanceRepository        { return s.maintenance }
func (s *Store) EncryptionKeys() *EncryptionKeyRepo               { return s.keys }
func (s *Store) Jobs() domain.JobRepository                       { return s.jobs }

// SaveRegistration writes a tenant, its primary domain and the optional
// provisioning job in a single transaction, so a registration either lands
// completely or not at all.
func (s *Store) SaveRegistration(ctx context.Context, t *domain.Tenant, primary *domain.Domain, job *domain.Job) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store.SaveRegistration: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = s.tenants.upsert(ctx, tx, t)
	if err != nil {
		return fmt.Errorf("store.SaveRegistration: %w", err)
	}

	err = s.domains.upsertPrimary(ctx, tx, primary)
	if err != nil {
		return fmt.Errorf("store.SaveRegistration: %w", err)
	}

	if job != nil {
		err = s.jobs.enqueue(ctx, tx, job)
		if err != nil {
			return fmt.Errorf("store.SaveRegistration: %w", err)
		}
	}

	err = tx.Commit(ctx)
	if err != nil {
		return fmt.Errorf("store.SaveRegistration: commit: %w", err)
	}

	return nil
}

// EraseTenant force-deletes all metadata for a tenant in one transaction:
// domains, backups, schedules, restores, maintenance windows, encryption
// keys, jobs, and finally the tenant row. The tenant's dedicated database
// must already be gone; that is the purge service's responsibility.
func (s *Store) EraseTenant(ctx context.Context, tenantID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store.EraseTenant: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tables := []string{
		"domains",
		"backup_records",
		"backup_schedules",
		"restore_records",
		"maintenance_windows",
		"encryption_keys",
		"jobs",
	}
	for _, table := range tables {
		_, err = tx.Exec(ctx, "DELETE FROM "+table+" WHERE tenant_id = $1", tenantID)
		if err != nil {
			return fmt.Errorf("store.EraseTenant: delete %s: %w", table, err)
		}
	}

	tag, err := tx.Exec(ctx, "DELETE FROM tenants WHERE id = $1", tenantID)
	if err != nil {
		return fmt.Errorf("store.EraseTenant: delete tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store.EraseTenant: %w", domain.ErrNotFound)
	}

	err = tx.Commit(ctx)
	if err != nil {
		return fmt.Errorf("store.EraseTenant: commit: %w", err)
	}

	return nil
}

// notFound maps pgx.ErrNoRows onto the domain sentinel.
func notFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
