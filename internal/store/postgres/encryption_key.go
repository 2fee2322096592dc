package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/tenantd/internal/domain"
)

// EncryptionKeyRepo stores backup encryption keys sealed by the keybox,
// deliberately apart from the backup metadata rows they protect.
type EncryptionKeyRepo struct {
	pool *pgxpool.Pool
}

func NewEncryptionKeyRepo(pool *pgxpool.Pool) *EncryptionKeyRepo {
	return &EncryptionKeyRepo{pool: pool}
}

func (r *EncryptionKeyRepo) Put(ctx context.Context, tenantID, backupID uuid.UUID, sealed string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO encryption_keys (backup_id, tenant_id, sealed_key, created_at)
		 VALUES ($1, $2, $3, $4)`,
		backupID, tenantID, sealed, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("encryptionKeyRepo.Put: %w", err)
	}
	return nil
}

func (r *EncryptionKeyRepo) Get(ctx context.Context, backupID uuid.UUID) (string, error) {
	var sealed string

	err := r.pool.QueryRow(ctx,
		`SELECT sealed_key FROM encryption_keys WHERE backup_id = $1`, backupID,
	).Scan(&sealed)
	if notFound(err) {
		return "", fmt.Errorf("encryptionKeyRepo.Get: %w", domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("encryptionKeyRepo.Get: %w", err)
	}

	return sealed, nil
}

func (r *EncryptionKeyRepo) Delete(ctx context.Context, backupID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM encryption_keys WHERE backup_id = $1`, backupID)
	if err != nil {
		return fmt.Errorf("encryptionKeyRepo.Delete: %w", err)
	}
	return nil
}
