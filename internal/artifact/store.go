// Package artifact stores backup artifacts as opaque blobs, keyed by
// hierarchical paths of the form "tenants/<tenant_id>/backups/<backup_id>/...".
package artifact

import (
	"context"
	"errors"
	"io"
)

//nolint:gochecknoglobals // sentinel error
var ErrNotFound = errors.New("artifact: object not found")

// Store is a blob store for backup artifacts. Implementations stream object
// bodies; callers own closing the reader returned by Get.
type Store interface {
	// Put uploads an object. size may be -1 when unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	// Get opens an object for reading. Returns ErrNotFound for missing keys.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes an object. Deleting a missing key succeeds.
	Delete(ctx context.Context, key string) error
	// List returns the keys under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
