package artifact

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps backup artifacts on the local filesystem under a root
// directory. Used for self-hosted installs without object storage.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	err := os.MkdirAll(root, 0o750)
	if err != nil {
		return nil, fmt.Errorf("artifact.NewLocalStore: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// path resolves key under the root and rejects keys that escape it.
func (l *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(l.root, clean), nil
}

func (l *LocalStore) Put(ctx context.Context, key string, r io.Reader, _ int64) error {
	p, err := l.path(key)
	if err != nil {
		return fmt.Errorf("artifact.LocalStore.Put: %w", err)
	}

	err = os.MkdirAll(filepath.Dir(p), 0o750)
	if err != nil {
		return fmt.Errorf("artifact.LocalStore.Put: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return fmt.Errorf("artifact.LocalStore.Put: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	_, err = io.Copy(tmp, r)
	if err != nil {
		return fmt.Errorf("artifact.LocalStore.Put: %s: %w", key, err)
	}

	err = tmp.Close()
	if err != nil {
		return fmt.Errorf("artifact.LocalStore.Put: %s: %w", key, err)
	}

	err = os.Rename(tmp.Name(), p)
	if err != nil {
		return fmt.Errorf("artifact.LocalStore.Put: %s: %w", key, err)
	}

	return nil
}

func (l *LocalStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := l.path(key)
	if err != nil {
		return nil, fmt.Errorf("artifact.LocalStore.Get: %w", err)
	}

	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact.LocalStore.Get: %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("artifact.LocalStore.Get: %s: %w", key, err)
	}

	return f, nil
}

func (l *LocalStore) Delete(_ context.Context, key string) error {
	p, err := l.path(key)
	if err != nil {
		return fmt.Errorf("artifact.LocalStore.Delete: %w", err)
	}

	err = os.Remove(p)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("artifact.LocalStore.Delete: %s: %w", key, err)
	}

	return nil
}

func (l *LocalStore) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string

	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}

		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("artifact.LocalStore.List: %s: %w", prefix, err)
	}

	return keys, nil
}
