package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/tenantd/internal/domain"
)

const domainColumns = `id, tenant_id, hostname, is_primary, is_custom,
	verification, verification_code, ssl_status, created_at, updated_at`

type DomainRepo struct {
	pool *pgxpool.Pool
}

func NewDomainRepo(pool *pgxpool.Pool) *DomainRepo {
	return &DomainRepo{pool: pool}
}

func (r *DomainRepo) Create(ctx context.Context, d *domain.Domain) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO domains (`+domainColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID, d.TenantID, d.Hostname, d.IsPrimary, d.IsCustom,
		d.Verification, d.VerificationCode, d.SSL, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("domainRepo.Create: %w", err)
	}
	return nil
}

// upsertPrimary writes the tenant's primary platform domain, replacing a
// previous primary hostname if the subdomain changed during registration.
func (r *DomainRepo) upsertPrimary(ctx context.Context, db dbtx, d *domain.Domain) error {
	_, err := db.Exec(ctx,
		`INSERT INTO domains (`+domainColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (tenant_id) WHERE is_primary DO UPDATE SET
		   hostname = EXCLUDED.hostname,
		   verification = EXCLUDED.verification,
		   ssl_status = EXCLUDED.ssl_status,
		   updated_at = now()`,
		d.ID, d.TenantID, d.Hostname, d.IsPrimary, d.IsCustom,
		d.Verification, d.VerificationCode, d.SSL, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert primary domain: %w", err)
	}
	return nil
}

func (r *DomainRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.Domain, error) {
	d, err := scanDomain(r.pool.QueryRow(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE tenant_id = $1 AND id = $2`,
		tenantID, id))
	if err != nil {
		return nil, fmt.Errorf("domainRepo.GetByID: %w", err)
	}
	return d, nil
}

func (r *DomainRepo) GetByHostname(ctx context.Context, hostname string) (*domain.Domain, error) {
	d, err := scanDomain(r.pool.QueryRow(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE hostname = $1`, hostname))
	if err != nil {
		return nil, fmt.Errorf("domainRepo.GetByHostname: %w", err)
	}
	return d, nil
}

func (r *DomainRepo) GetPrimary(ctx context.Context, tenantID uuid.UUID) (*domain.Domain, error) {
	d, err := scanDomain(r.pool.QueryRow(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE tenant_id = $1 AND is_primary`,
		tenantID))
	if err != nil {
		return nil, fmt.Errorf("domainRepo.GetPrimary: %w", err)
	}
	return d, nil
}

func (r *DomainRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*domain.Domain, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+domainColumns+` FROM domains
		 WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("domainRepo.ListByTenant: %w", err)
	}
	defer rows.Close()

	var domains []*domain.Domain
	for rows.Next() {
		d, scanErr := scanDomain(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("domainRepo.ListByTenant: scan: %w", scanErr)
		}
		domains = append(domains, d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("domainRepo.ListByTenant: rows: %w", err)
	}

	return domains, nil
}

func (r *DomainRepo) Update(ctx context.Context, d *domain.Domain) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE domains SET
		   hostname = $1, is_custom = $2, verification = $3,
		   verification_code = $4, ssl_status = $5, updated_at = now()
		 WHERE tenant_id = $6 AND id = $7`,
		d.Hostname, d.IsCustom, d.Verification, d.VerificationCode, d.SSL,
		d.TenantID, d.ID,
	)
	if err != nil {
		return fmt.Errorf("domainRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("domainRepo.Update: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *DomainRepo) SetPrimary(ctx context.Context, tenantID, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("domainRepo.SetPrimary: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`UPDATE domains SET is_primary = false, updated_at = now()
		 WHERE tenant_id = $1 AND is_primary`, tenantID)
	if err != nil {
		return fmt.Errorf("domainRepo.SetPrimary: demote: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE domains SET is_primary = true, updated_at = now()
		 WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("domainRepo.SetPrimary: promote: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("domainRepo.SetPrimary: %w", domain.ErrNotFound)
	}

	err = tx.Commit(ctx)
	if err != nil {
		return fmt.Errorf("domainRepo.SetPrimary: commit: %w", err)
	}
	return nil
}

func (r *DomainRepo) DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM domains WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("domainRepo.DeleteByTenant: %w", err)
	}
	return nil
}

func scanDomain(row pgx.Row) (*domain.Domain, error) {
	var d domain.Domain

	err := row.Scan(
		&d.ID, &d.TenantID, &d.Hostname, &d.IsPrimary, &d.IsCustom,
		&d.Verification, &d.VerificationCode, &d.SSL, &d.CreatedAt, &d.UpdatedAt,
	)
	if notFound(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &d, nil
}
