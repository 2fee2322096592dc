package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/tenantd/internal/domain"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx, so repo queries can run
// inside or outside a transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const tenantColumns = `id, name, type, subdomain, contact_email, contact_phone,
	email_verification_code, email_verification_sent_at, email_verified_at,
	phone_verification_code, phone_verification_sent_at, phone_verified_at,
	plan_id, billing_cycle, modules, trial_ends_at, subscribed_until,
	status, provision_step, admin_bootstrap, metadata, maintenance_mode,
	deleted_at, version, created_at, updated_at`

type TenantRepo struct {
	pool *pgxpool.Pool
}

func NewTenantRepo(pool *pgxpool.Pool) *TenantRepo {
	return &TenantRepo{pool: pool}
}

func (r *TenantRepo) Create(ctx context.Context, t *domain.Tenant) error {
	err := r.upsert(ctx, r.pool, t)
	if err != nil {
		return fmt.Errorf("tenantRepo.Create: %w", err)
	}
	return nil
}

// upsert inserts the tenant or, when the row already exists, rewrites it in
// place. The caller is responsible for merge semantics; this just persists.
func (r *TenantRepo) upsert(ctx context.Context, db dbtx, t *domain.Tenant) error {
	bootstrap, err := marshalNullable(t.AdminBootstrap)
	if err != nil {
		return fmt.Errorf("upsert tenant: marshal bootstrap: %w", err)
	}

	_, err = db.Exec(ctx,
		`INSERT INTO tenants (`+tenantColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		         $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name, type = EXCLUDED.type,
		   subdomain = EXCLUDED.subdomain,
		   contact_email = EXCLUDED.contact_email,
		   contact_phone = EXCLUDED.contact_phone,
		   email_verification_code = EXCLUDED.email_verification_code,
		   email_verification_sent_at = EXCLUDED.email_verification_sent_at,
		   email_verified_at = EXCLUDED.email_verified_at,
		   phone_verification_code = EXCLUDED.phone_verification_code,
		   phone_verification_sent_at = EXCLUDED.phone_verification_sent_at,
		   phone_verified_at = EXCLUDED.phone_verified_at,
		   plan_id = EXCLUDED.plan_id, billing_cycle = EXCLUDED.billing_cycle,
		   modules = EXCLUDED.modules, trial_ends_at = EXCLUDED.trial_ends_at,
		   subscribed_until = EXCLUDED.subscribed_until,
		   status = EXCLUDED.status, provision_step = EXCLUDED.provision_step,
		   admin_bootstrap = EXCLUDED.admin_bootstrap,
		   metadata = EXCLUDED.metadata,
		   maintenance_mode = EXCLUDED.maintenance_mode,
		   deleted_at = EXCLUDED.deleted_at,
		   version = tenants.version + 1,
		   updated_at = now()`,
		t.ID, t.Name, t.Type, t.Subdomain, t.ContactEmail, t.ContactPhone,
		t.EmailVerification.Code, t.EmailVerification.SentAt, t.EmailVerification.VerifiedAt,
		t.PhoneVerification.Code, t.PhoneVerification.SentAt, t.PhoneVerification.VerifiedAt,
		t.PlanID, t.BillingCycle, t.Modules, t.TrialEndsAt, t.SubscribedUntil,
		t.Status, t.ProvisionStep, bootstrap, t.Metadata, t.MaintenanceMode,
		t.DeletedAt, t.Version, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert tenant: %w", err)
	}

	return nil
}

func (r *TenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	t, err := scanTenant(r.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("tenantRepo.GetByID: %w", err)
	}
	return t, nil
}

func (r *TenantRepo) GetBySubdomain(ctx context.Context, subdomain string) (*domain.Tenant, error) {
	t, err := scanTenant(r.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE subdomain = $1`, subdomain))
	if err != nil {
		return nil, fmt.Errorf("tenantRepo.GetBySubdomain: %w", err)
	}
	return t, nil
}

func (r *TenantRepo) GetByContactEmail(ctx context.Context, email string) (*domain.Tenant, error) {
	t, err := scanTenant(r.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE contact_email = $1`, email))
	if err != nil {
		return nil, fmt.Errorf("tenantRepo.GetByContactEmail: %w", err)
	}
	return t, nil
}

func (r *TenantRepo) Update(ctx context.Context, t *domain.Tenant) error {
	bootstrap, err := marshalNullable(t.AdminBootstrap)
	if err != nil {
		return fmt.Errorf("tenantRepo.Update: marshal bootstrap: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE tenants SET
		   name = $1, type = $2, subdomain = $3, contact_email = $4,
		   contact_phone = $5,
		   email_verification_code = $6, email_verification_sent_at = $7,
		   email_verified_at = $8,
		   phone_verification_code = $9, phone_verification_sent_at = $10,
		   phone_verified_at = $11,
		   plan_id = $12, billing_cycle = $13, modules = $14,
		   trial_ends_at = $15, subscribed_until = $16,
		   status = $17, provision_step = $18, admin_bootstrap = $19,
		   metadata = $20, maintenance_mode = $21, deleted_at = $22,
		   version = version + 1, updated_at = now()
		 WHERE id = $23 AND version = $24`,
		t.Name, t.Type, t.Subdomain, t.ContactEmail, t.ContactPhone,
		t.EmailVerification.Code, t.EmailVerification.SentAt, t.EmailVerification.VerifiedAt,
		t.PhoneVerification.Code, t.PhoneVerification.SentAt, t.PhoneVerification.VerifiedAt,
		t.PlanID, t.BillingCycle, t.Modules, t.TrialEndsAt, t.SubscribedUntil,
		t.Status, t.ProvisionStep, bootstrap, t.Metadata, t.MaintenanceMode,
		t.DeletedAt, t.ID, t.Version,
	)
	if err != nil {
		return fmt.Errorf("tenantRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a stale version from a missing row.
		var exists bool
		checkErr := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM tenants WHERE id = $1)`, t.ID).Scan(&exists)
		if checkErr == nil && exists {
			return fmt.Errorf("tenantRepo.Update: %w", domain.ErrVersionMismatch)
		}
		return fmt.Errorf("tenantRepo.Update: %w", domain.ErrNotFound)
	}

	t.Version++
	return nil
}

func (r *TenantRepo) List(ctx context.Context, limit, offset int) ([]*domain.Tenant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants
		 WHERE deleted_at IS NULL
		 ORDER BY created_at
		 LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("tenantRepo.List: %w", err)
	}
	defer rows.Close()

	tenants, err := collectTenants(rows)
	if err != nil {
		return nil, fmt.Errorf("tenantRepo.List: %w", err)
	}
	return tenants, nil
}

func (r *TenantRepo) ListArchived(ctx context.Context) ([]*domain.Tenant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants
		 WHERE deleted_at IS NOT NULL
		 ORDER BY deleted_at`)
	if err != nil {
		return nil, fmt.Errorf("tenantRepo.ListArchived: %w", err)
	}
	defer rows.Close()

	tenants, err := collectTenants(rows)
	if err != nil {
		return nil, fmt.Errorf("tenantRepo.ListArchived: %w", err)
	}
	return tenants, nil
}

func (r *TenantRepo) Archive(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tenants SET deleted_at = $1, version = version + 1, updated_at = now()
		 WHERE id = $2 AND deleted_at IS NULL`, at, id)
	if err != nil {
		return fmt.Errorf("tenantRepo.Archive: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tenantRepo.Archive: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *TenantRepo) Unarchive(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tenants SET deleted_at = NULL, version = version + 1, updated_at = now()
		 WHERE id = $1 AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return fmt.Errorf("tenantRepo.Unarchive: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tenantRepo.Unarchive: %w", domain.ErrNotFound)
	}
	return nil
}

func scanTenant(row pgx.Row) (*domain.Tenant, error) {
	var (
		t         domain.Tenant
		bootstrap []byte
	)

	err := row.Scan(
		&t.ID, &t.Name, &t.Type, &t.Subdomain, &t.ContactEmail, &t.ContactPhone,
		&t.EmailVerification.Code, &t.EmailVerification.SentAt, &t.EmailVerification.VerifiedAt,
		&t.PhoneVerification.Code, &t.PhoneVerification.SentAt, &t.PhoneVerification.VerifiedAt,
		&t.PlanID, &t.BillingCycle, &t.Modules, &t.TrialEndsAt, &t.SubscribedUntil,
		&t.Status, &t.ProvisionStep, &bootstrap, &t.Metadata, &t.MaintenanceMode,
		&t.DeletedAt, &t.Version, &t.CreatedAt, &t.UpdatedAt,
	)
	if notFound(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if len(bootstrap) > 0 {
		var ab domain.AdminBootstrap
		if err = json.Unmarshal(bootstrap, &ab); err != nil {
			return nil, fmt.Errorf("unmarshal bootstrap: %w", err)
		}
		t.AdminBootstrap = &ab
	}

	return &t, nil
}

func collectTenants(rows pgx.Rows) ([]*domain.Tenant, error) {
	var tenants []*domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return tenants, nil
}

func marshalNullable(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	// Typed nil pointers also encode as SQL NULL.
	if ab, ok := v.(*domain.AdminBootstrap); ok && ab == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
