package dbprovider

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/tenantd/internal/config"
	"github.com/gosuda/tenantd/internal/domain"
)

// tenantSchema is the baseline schema applied to every new tenant database.
// Application modules run their own migrations on top of this.
const tenantSchema = `
CREATE TABLE IF NOT EXISTS users (
	id          uuid PRIMARY KEY,
	name        text NOT NULL,
	email       text NOT NULL UNIQUE,
	password    text NOT NULL,
	role        text NOT NULL DEFAULT 'member',
	created_at  timestamptz NOT NULL DEFAULT now(),
	updated_at  timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS settings (
	key         text PRIMARY KEY,
	value       jsonb NOT NULL,
	updated_at  timestamptz NOT NULL DEFAULT now()
);
`

// PostgresProvider provisions tenant databases on the same PostgreSQL server
// that holds the central metadata database. Dumps and restores shell out to
// pg_dump/psql, which must be on PATH.
type PostgresProvider struct {
	admin *pgxpool.Pool
	cfg   config.DatabaseConfig
}

// NewPostgresProvider connects an admin pool to the maintenance database
// ("postgres"), from which CREATE/DROP DATABASE statements are issued.
func NewPostgresProvider(ctx context.Context, cfg config.DatabaseConfig) (*PostgresProvider, error) {
	pool, err := pgxpool.New(ctx, cfg.DSNFor("postgres"))
	if err != nil {
		return nil, fmt.Errorf("dbprovider.NewPostgresProvider: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("dbprovider.NewPostgresProvider: ping: %w", err)
	}

	return &PostgresProvider{admin: pool, cfg: cfg}, nil
}

func (p *PostgresProvider) Close() {
	p.admin.Close()
}

func (p *PostgresProvider) Create(ctx context.Context, name string) error {
	if !ValidDatabaseName(name) {
		return fmt.Errorf("dbprovider.PostgresProvider.Create: %q: %w", name, ErrInvalidDatabaseName)
	}

	exists, err := p.Exists(ctx, name)
	if err != nil {
		return fmt.Errorf("dbprovider.PostgresProvider.Create: %w", err)
	}
	if exists {
		return nil
	}

	// Database names cannot be bound parameters; name is validated above.
	_, err = p.admin.Exec(ctx, `CREATE DATABASE "`+name+`"`)
	if err != nil {
		return fmt.Errorf("dbprovider.PostgresProvider.Create: %w", err)
	}

	return nil
}

func (p *PostgresProvider) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool

	err := p.admin.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("dbprovider.PostgresProvider.Exists: %w", err)
	}

	return exists, nil
}

func (p *PostgresProvider) Drop(ctx context.Context, name string) error {
	if !ValidDatabaseName(name) {
		return fmt.Errorf("dbprovider.PostgresProvider.Drop: %q: %w", name, ErrInvalidDatabaseName)
	}

	// Kick off remaining connections so the drop does not block forever.
	_, err := p.admin.Exec(ctx,
		`SELECT pg_terminate_backend(pid) FROM pg_stat_activity
		 WHERE datname = $1 AND pid <> pg_backend_pid()`, name)
	if err != nil {
		return fmt.Errorf("dbprovider.PostgresProvider.Drop: terminate: %w", err)
	}

	_, err = p.admin.Exec(ctx, `DROP DATABASE IF EXISTS "`+name+`"`)
	if err != nil {
		return fmt.Errorf("dbprovider.PostgresProvider.Drop: %w", err)
	}

	return nil
}

func (p *PostgresProvider) Migrate(ctx context.Context, name string) error {
	conn, err := p.connect(ctx, name)
	if err != nil {
		return fmt.Errorf("dbprovider.PostgresProvider.Migrate: %w", err)
	}
	defer conn.Close()

	_, err = conn.Exec(ctx, tenantSchema)
	if err != nil {
		return fmt.Errorf("dbprovider.PostgresProvider.Migrate: %w", err)
	}

	return nil
}

func (p *PostgresProvider) Seed(ctx context.Context, name string, admin *domain.AdminBootstrap) error {
	if admin == nil {
		return nil
	}

	conn, err := p.connect(ctx, name)
	if err != nil {
		return fmt.Errorf("dbprovider.PostgresProvider.Seed: %w", err)
	}
	defer conn.Close()

	_, err = conn.Exec(ctx,
		`INSERT INTO users (id, name, email, password, role)
		 VALUES (gen_random_uuid(), $1, $2, $3, 'admin')
		 ON CONFLICT (email) DO NOTHING`,
		admin.Name, admin.Email, admin.PasswordHash,
	)
	if err != nil {
		return fmt.Errorf("dbprovider.PostgresProvider.Seed: %w", err)
	}

	return nil
}

func (p *PostgresProvider) Dump(ctx context.Context, name string, w io.Writer) error {
	if !ValidDatabaseName(name) {
		return fmt.Errorf("dbprovider.PostgresProvider.Dump: %q: %w", name, ErrInvalidDatabaseName)
	}

	cmd := exec.CommandContext(ctx, "pg_dump",
		"--host", p.cfg.Host,
		"--port", strconv.Itoa(p.cfg.Port),
		"--username", p.cfg.User,
		"--no-password",
		"--format", "plain",
		"--clean", "--if-exists",
		name,
	)
	cmd.Env = append(cmd.Environ(), "PGPASSWORD="+p.cfg.Password)
	cmd.Stdout = w

	err := cmd.Run()
	if err != nil {
		return fmt.Errorf("dbprovider.PostgresProvider.Dump: pg_dump: %w", err)
	}

	return nil
}

func (p *PostgresProvider) Restore(ctx context.Context, name string, r io.Reader) error {
	if !ValidDatabaseName(name) {
		return fmt.Errorf("dbprovider.PostgresProvider.Restore: %q: %w", name, ErrInvalidDatabaseName)
	}

	cmd := exec.CommandContext(ctx, "psql",
		"--host", p.cfg.Host,
		"--port", strconv.Itoa(p.cfg.Port),
		"--username", p.cfg.User,
		"--no-password",
		"--quiet",
		"--set", "ON_ERROR_STOP=1",
		name,
	)
	cmd.Env = append(cmd.Environ(), "PGPASSWORD="+p.cfg.Password)
	cmd.Stdin = r

	err := cmd.Run()
	if err != nil {
		return fmt.Errorf("dbprovider.PostgresProvider.Restore: psql: %w", err)
	}

	return nil
}

// connect opens a short-lived pool against a tenant database.
func (p *PostgresProvider) connect(ctx context.Context, name string) (*pgxpool.Pool, error) {
	if !ValidDatabaseName(name) {
		return nil, fmt.Errorf("connect %q: %w", name, ErrInvalidDatabaseName)
	}

	cfg, err := pgxpool.ParseConfig(p.cfg.DSNFor(name))
	if err != nil {
		return nil, fmt.Errorf("connect %q: parse config: %w", name, err)
	}
	cfg.MaxConns = 2
	cfg.MaxConnLifetime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect %q: %w", name, err)
	}

	return pool, nil
}
