package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/tenantd/internal/artifact"
	"github.com/gosuda/tenantd/internal/dbprovider"
	"github.com/gosuda/tenantd/internal/domain"
)

const aesIVSize = 16

// manifest is the integrity record uploaded alongside the artifacts. The
// backup's checksum is the sha256 of this document.
type manifest struct {
	BackupID  uuid.UUID          `json:"backup_id"`
	TenantID  uuid.UUID          `json:"tenant_id"`
	CreatedAt time.Time          `json:"created_at"`
	Artifacts []manifestArtifact `json:"artifacts"`
}

type manifestArtifact struct {
	Key       string `json:"key"`
	SizeBytes int64  `json:"size_bytes"`
	SHA256    string `json:"sha256"`
}

// runner streams backup artifacts between the database provider, the files
// directory and the blob store without buffering whole dumps in memory.
type runner struct {
	provider  dbprovider.Provider
	artifacts artifact.Store
	filesRoot string
}

func backupPrefix(tenantID, backupID uuid.UUID) string {
	return fmt.Sprintf("tenants/%s/backups/%s/", tenantID, backupID)
}

// uploadDatabase dumps the tenant database through gzip (and AES-CTR when a
// data key is given) straight into the blob store.
func (r *runner) uploadDatabase(ctx context.Context, dbName string, rec *domain.BackupRecord, dataKey []byte) (manifestArtifact, error) {
	key := backupPrefix(rec.TenantID, rec.ID) + "database.sql.gz"
	if dataKey != nil {
		key += ".enc"
	}

	return r.upload(ctx, key, dataKey, func(w io.Writer) error {
		return r.provider.Dump(ctx, dbName, w)
	})
}

// uploadFiles archives the tenant's uploaded-files directory as a tarball.
// A tenant with no files directory produces an empty archive, not an error.
func (r *runner) uploadFiles(ctx context.Context, rec *domain.BackupRecord, dataKey []byte) (manifestArtifact, error) {
	key := backupPrefix(rec.TenantID, rec.ID) + "files.tar.gz"
	if dataKey != nil {
		key += ".enc"
	}

	dir := filepath.Join(r.filesRoot, rec.TenantID.String())

	return r.upload(ctx, key, dataKey, func(w io.Writer) error {
		return writeTar(w, dir)
	})
}

// upload runs produce into a write chain of gzip, optional AES-CTR and the
// blob store, hashing and counting the stored bytes on the way.
func (r *runner) upload(ctx context.Context, key string, dataKey []byte, produce func(io.Writer) error) (manifestArtifact, error) {
	pr, pw := io.Pipe()

	go func() {
		var sink io.Writer = pw

		if dataKey != nil {
			block, err := aes.NewCipher(dataKey)
			if err != nil {
				pw.CloseWithError(fmt.Errorf("cipher: %w", err))
				return
			}
			iv := make([]byte, aesIVSize)
			if _, err = rand.Read(iv); err != nil {
				pw.CloseWithError(fmt.Errorf("iv: %w", err))
				return
			}
			if _, err = pw.Write(iv); err != nil {
				pw.CloseWithError(err)
				return
			}
			sink = cipher.StreamWriter{S: cipher.NewCTR(block, iv), W: pw}
		}

		gz := gzip.NewWriter(sink)

		err := produce(gz)
		if cerr := gz.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	hasher := sha256.New()
	counter := &countingReader{r: io.TeeReader(pr, hasher)}

	err := r.artifacts.Put(ctx, key, counter, -1)
	if err != nil {
		_ = pr.CloseWithError(err)
		return manifestArtifact{}, fmt.Errorf("upload %s: %w", key, err)
	}

	return manifestArtifact{
		Key:       key,
		SizeBytes: counter.n,
		SHA256:    hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// uploadManifest stores the manifest and returns its sha256 checksum.
func (r *runner) uploadManifest(ctx context.Context, rec *domain.BackupRecord, artifacts []manifestArtifact) (string, error) {
	m := manifest{
		BackupID:  rec.ID,
		TenantID:  rec.TenantID,
		CreatedAt: rec.CreatedAt,
		Artifacts: artifacts,
	}

	body, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("manifest: marshal: %w", err)
	}

	key := backupPrefix(rec.TenantID, rec.ID) + "manifest.json"
	err = r.artifacts.Put(ctx, key, strings.NewReader(string(body)), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("manifest: %w", err)
	}

	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}

// restoreDatabase streams a database artifact back through decryption and
// gunzip into the provider.
func (r *runner) restoreDatabase(ctx context.Context, dbName, key string, dataKey []byte) error {
	obj, err := r.artifacts.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("restore database: %w", err)
	}
	defer obj.Close()

	body, err := openStream(obj, dataKey)
	if err != nil {
		return fmt.Errorf("restore database: %w", err)
	}
	defer body.Close()

	err = r.provider.Restore(ctx, dbName, body)
	if err != nil {
		return fmt.Errorf("restore database: %w", err)
	}

	return nil
}

// restoreFiles extracts a files artifact back into the tenant's directory.
func (r *runner) restoreFiles(ctx context.Context, tenantID uuid.UUID, key string, dataKey []byte) error {
	obj, err := r.artifacts.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("restore files: %w", err)
	}
	defer obj.Close()

	body, err := openStream(obj, dataKey)
	if err != nil {
		return fmt.Errorf("restore files: %w", err)
	}
	defer body.Close()

	dir := filepath.Join(r.filesRoot, tenantID.String())
	err = extractTar(body, dir)
	if err != nil {
		return fmt.Errorf("restore files: %w", err)
	}

	return nil
}

// deleteArtifacts removes every stored object for the backup.
func (r *runner) deleteArtifacts(ctx context.Context, tenantID, backupID uuid.UUID) error {
	prefix := backupPrefix(tenantID, backupID)

	keys, err := r.artifacts.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("delete artifacts: %w", err)
	}

	for _, key := range keys {
		if err := r.artifacts.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete artifact %s: %w", key, err)
		}
	}

	return nil
}

// openStream peels the optional AES-CTR layer and the gzip layer off a
// stored artifact.
func openStream(obj io.Reader, dataKey []byte) (io.ReadCloser, error) {
	var body io.Reader = obj

	if dataKey != nil {
		iv := make([]byte, aesIVSize)
		if _, err := io.ReadFull(obj, iv); err != nil {
			return nil, fmt.Errorf("read iv: %w", err)
		}
		block, err := aes.NewCipher(dataKey)
		if err != nil {
			return nil, fmt.Errorf("cipher: %w", err)
		}
		body = cipher.StreamReader{S: cipher.NewCTR(block, iv), R: obj}
	}

	gz, err := gzip.NewReader(body)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}

	return gz, nil
}

// writeTar archives dir into w. A missing dir yields an empty archive.
func writeTar(w io.Writer, dir string) error {
	tw := tar.NewWriter(w)

	_, err := os.Stat(dir)
	if err == nil {
		err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			if rel == "." {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return err
			}

			hdr, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			hdr.Name = filepath.ToSlash(rel)

			if err = tw.WriteHeader(hdr); err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			_, err = io.Copy(tw, f)
			return err
		})
		if err != nil {
			_ = tw.Close()
			return fmt.Errorf("tar %s: %w", dir, err)
		}
	} else if !os.IsNotExist(err) {
		_ = tw.Close()
		return fmt.Errorf("tar %s: %w", dir, err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("tar %s: %w", dir, err)
	}

	return nil
}

// extractTar unpacks an archive into dir, rejecting entries that would
// escape it.
func extractTar(r io.Reader, dir string) error {
	tr := tar.NewReader(r)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("untar: %w", err)
		}

		name := filepath.Clean(filepath.FromSlash(hdr.Name))
		if strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			return fmt.Errorf("untar: entry %q escapes target directory", hdr.Name)
		}
		target := filepath.Join(dir, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o750); err != nil {
				return fmt.Errorf("untar: %w", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
				return fmt.Errorf("untar: %w", err)
			}
			f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
			if err != nil {
				return fmt.Errorf("untar: %w", err)
			}
			//nolint:gosec // G110: restoring a backup this service produced
			if _, err = io.Copy(f, tr); err != nil {
				_ = f.Close()
				return fmt.Errorf("untar: %w", err)
			}
			if err = f.Close(); err != nil {
				return fmt.Errorf("untar: %w", err)
			}
		default:
			// Symlinks and devices are not produced by writeTar; skip.
		}
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
