// Package dbprovider manages the dedicated database that backs each tenant:
// creation, schema migration, seeding, dumps, restores and the final drop.
package dbprovider

import (
	"context"
	"errors"
	"io"
	"regexp"

	"github.com/gosuda/tenantd/internal/domain"
)

//nolint:gochecknoglobals // sentinel error
var ErrInvalidDatabaseName = errors.New("dbprovider: invalid database name")

// Database names are derived from tenant IDs; anything else is rejected
// before it reaches an SQL identifier position.
//
//nolint:gochecknoglobals // compiled once
var databaseNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// ValidDatabaseName reports whether name is a safe tenant database identifier.
func ValidDatabaseName(name string) bool {
	return databaseNameRe.MatchString(name)
}

// Provider is the per-tenant database backend. Implementations must make
// Create and Drop idempotent: creating an existing database and dropping a
// missing one both succeed, so provisioning and purge can be retried safely.
type Provider interface {
	Create(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) (bool, error)
	Drop(ctx context.Context, name string) error
	Migrate(ctx context.Context, name string) error
	Seed(ctx context.Context, name string, admin *domain.AdminBootstrap) error
	// Dump streams a logical dump of the database to w.
	Dump(ctx context.Context, name string, w io.Writer) error
	// Restore replaces the database contents from a dump produced by Dump.
	Restore(ctx context.Context, name string, r io.Reader) error
}
