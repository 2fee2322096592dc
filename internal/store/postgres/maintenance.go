package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/tenantd/internal/domain"
)

const maintenanceColumns = `id, tenant_id, status, type, message, bypass_token,
	bypass_ips, bypass_user_ids, allowed_routes, starts_at, ends_at, expires_at,
	duration_seconds, reminders_sent, version, created_at, updated_at`

type MaintenanceRepo struct {
	pool *pgxpool.Pool
}

func NewMaintenanceRepo(pool *pgxpool.Pool) *MaintenanceRepo {
	return &MaintenanceRepo{pool: pool}
}

func (r *MaintenanceRepo) Create(ctx context.Context, w *domain.MaintenanceWindow) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO maintenance_windows (`+maintenanceColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		w.ID, w.TenantID, w.Status, w.Type, w.Message, w.BypassToken,
		w.BypassIPs, w.BypassUserIDs, w.AllowedRoutes, w.StartsAt, w.EndsAt,
		w.ExpiresAt, w.DurationSeconds, w.RemindersSent, w.Version, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("maintenanceRepo.Create: %w", err)
	}
	return nil
}

func (r *MaintenanceRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.MaintenanceWindow, error) {
	w, err := scanMaintenance(r.pool.QueryRow(ctx,
		`SELECT `+maintenanceColumns+` FROM maintenance_windows
		 WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if err != nil {
		return nil, fmt.Errorf("maintenanceRepo.GetByID: %w", err)
	}
	return w, nil
}

func (r *MaintenanceRepo) GetActive(ctx context.Context, tenantID uuid.UUID) (*domain.MaintenanceWindow, error) {
	w, err := scanMaintenance(r.pool.QueryRow(ctx,
		`SELECT `+maintenanceColumns+` FROM maintenance_windows
		 WHERE tenant_id = $1 AND status = 'active'`, tenantID))
	if err != nil {
		return nil, fmt.Errorf("maintenanceRepo.GetActive: %w", err)
	}
	return w, nil
}

func (r *MaintenanceRepo) ListScheduled(ctx context.Context) ([]*domain.MaintenanceWindow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+maintenanceColumns+` FROM maintenance_windows
		 WHERE status = 'scheduled' ORDER BY starts_at`)
	if err != nil {
		return nil, fmt.Errorf("maintenanceRepo.ListScheduled: %w", err)
	}
	defer rows.Close()

	windows, err := collectMaintenance(rows)
	if err != nil {
		return nil, fmt.Errorf("maintenanceRepo.ListScheduled: %w", err)
	}
	return windows, nil
}

func (r *MaintenanceRepo) ListActive(ctx context.Context) ([]*domain.MaintenanceWindow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+maintenanceColumns+` FROM maintenance_windows
		 WHERE status = 'active' ORDER BY starts_at`)
	if err != nil {
		return nil, fmt.Errorf("maintenanceRepo.ListActive: %w", err)
	}
	defer rows.Close()

	windows, err := collectMaintenance(rows)
	if err != nil {
		return nil, fmt.Errorf("maintenanceRepo.ListActive: %w", err)
	}
	return windows, nil
}

func (r *MaintenanceRepo) ListHistory(ctx context.Context, tenantID uuid.UUID, limit int) ([]*domain.MaintenanceWindow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+maintenanceColumns+` FROM maintenance_windows
		 WHERE tenant_id = $1 AND status IN ('completed', 'cancelled')
		 ORDER BY updated_at DESC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("maintenanceRepo.ListHistory: %w", err)
	}
	defer rows.Close()

	windows, err := collectMaintenance(rows)
	if err != nil {
		return nil, fmt.Errorf("maintenanceRepo.ListHistory: %w", err)
	}
	return windows, nil
}

func (r *MaintenanceRepo) Update(ctx context.Context, w *domain.MaintenanceWindow) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE maintenance_windows SET
		   status = $1, message = $2, bypass_token = $3, bypass_ips = $4,
		   bypass_user_ids = $5, allowed_routes = $6, starts_at = $7,
		   ends_at = $8, expires_at = $9, duration_seconds = $10,
		   reminders_sent = $11, version = version + 1, updated_at = now()
		 WHERE tenant_id = $12 AND id = $13 AND version = $14`,
		w.Status, w.Message, w.BypassToken, w.BypassIPs,
		w.BypassUserIDs, w.AllowedRoutes, w.StartsAt, w.EndsAt, w.ExpiresAt,
		w.DurationSeconds, w.RemindersSent, w.TenantID, w.ID, w.Version,
	)
	if err != nil {
		return fmt.Errorf("maintenanceRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		checkErr := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM maintenance_windows WHERE id = $1)`, w.ID).Scan(&exists)
		if checkErr == nil && exists {
			return fmt.Errorf("maintenanceRepo.Update: %w", domain.ErrVersionMismatch)
		}
		return fmt.Errorf("maintenanceRepo.Update: %w", domain.ErrNotFound)
	}

	w.Version++
	return nil
}

func (r *MaintenanceRepo) TrimHistory(ctx context.Context, tenantID uuid.UUID, keep int) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM maintenance_windows
		 WHERE tenant_id = $1 AND status IN ('completed', 'cancelled')
		   AND id NOT IN (
		     SELECT id FROM maintenance_windows
		     WHERE tenant_id = $1 AND status IN ('completed', 'cancelled')
		     ORDER BY updated_at DESC LIMIT $2
		   )`, tenantID, keep)
	if err != nil {
		return fmt.Errorf("maintenanceRepo.TrimHistory: %w", err)
	}
	return nil
}

func (r *MaintenanceRepo) DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM maintenance_windows WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("maintenanceRepo.DeleteByTenant: %w", err)
	}
	return nil
}

func scanMaintenance(row pgx.Row) (*domain.MaintenanceWindow, error) {
	var w domain.MaintenanceWindow

	err := row.Scan(
		&w.ID, &w.TenantID, &w.Status, &w.Type, &w.Message, &w.BypassToken,
		&w.BypassIPs, &w.BypassUserIDs, &w.AllowedRoutes, &w.StartsAt, &w.EndsAt,
		&w.ExpiresAt, &w.DurationSeconds, &w.RemindersSent, &w.Version, &w.CreatedAt, &w.UpdatedAt,
	)
	if notFound(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &w, nil
}

func collectMaintenance(rows pgx.Rows) ([]*domain.MaintenanceWindow, error) {
	var windows []*domain.MaintenanceWindow
	for rows.Next() {
		w, err := scanMaintenance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		windows = append(windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return windows, nil
}
