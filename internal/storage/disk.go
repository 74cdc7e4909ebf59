package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	metaSuffix = ".meta"
	tempSuffix = ".tmp"
)

type diskMeta struct {
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DiskBackend stores blobs as files under a sharded directory tree with a
// JSON sidecar holding each blob's content type.
type DiskBackend struct {
	paths PathConfig

	NowFunc func() time.Time
}

// NewDiskBackend prepares dir for blob storage.
func NewDiskBackend(dir string) (*DiskBackend, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("disk storage: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("disk storage: create %s: %w", dir, err)
	}
	return &DiskBackend{paths: DefaultPathConfig(dir)}, nil
}

func (d *DiskBackend) now() time.Time {
	if d.NowFunc != nil {
		return d.NowFunc()
	}
	return time.Now().UTC()
}

// Put writes r to a temporary file and renames it into place once complete.
func (d *DiskBackend) Put(ctx context.Context, id, contentType string, r io.Reader) (int64, error) {
	if err := ValidateID(id); err != nil {
		return 0, err
	}

	dir := ShardDir(d.paths, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("disk storage: create shard: %w", err)
	}

	tmp, err := os.CreateTemp(dir, id+".*"+tempSuffix)
	if err != nil {
		return 0, fmt.Errorf("disk storage: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	size, err := io.Copy(tmp, &contextReader{ctx: ctx, r: r})
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("disk storage: write %s: %w", id, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("disk storage: sync %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("disk storage: close %s: %w", id, err)
	}

	path := ComputePath(d.paths, id)
	meta, err := json.Marshal(diskMeta{ContentType: contentType, Size: size, CreatedAt: d.now()})
	if err != nil {
		return 0, fmt.Errorf("disk storage: encode metadata: %w", err)
	}
	if err := os.WriteFile(path+metaSuffix, meta, 0o644); err != nil {
		return 0, fmt.Errorf("disk storage: write metadata %s: %w", id, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(path + metaSuffix)
		return 0, fmt.Errorf("disk storage: commit %s: %w", id, err)
	}
	committed = true

	return size, nil
}

// Get opens the blob file and reads its sidecar.
func (d *DiskBackend) Get(_ context.Context, id string) (Object, error) {
	if err := ValidateID(id); err != nil {
		return Object{}, ErrBlobNotFound
	}

	path := ComputePath(d.paths, id)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Object{}, ErrBlobNotFound
		}
		return Object{}, fmt.Errorf("disk storage: open %s: %w", id, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return Object{}, fmt.Errorf("disk storage: stat %s: %w", id, err)
	}

	contentType := "application/octet-stream"
	if raw, err := os.ReadFile(path + metaSuffix); err == nil {
		var meta diskMeta
		if json.Unmarshal(raw, &meta) == nil && meta.ContentType != "" {
			contentType = meta.ContentType
		}
	}

	return Object{Body: f, ContentType: contentType, Size: info.Size()}, nil
}

// Delete removes the blob and its sidecar.
func (d *DiskBackend) Delete(_ context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return ErrBlobNotFound
	}

	path := ComputePath(d.paths, id)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("disk storage: delete %s: %w", id, err)
	}
	if err := os.Remove(path + metaSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("disk storage: delete metadata %s: %w", id, err)
	}
	return nil
}

// List walks the tree and reports every committed blob.
func (d *DiskBackend) List(ctx context.Context) ([]BlobInfo, error) {
	var blobs []BlobInfo
	err := filepath.WalkDir(d.paths.BasePath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		name := entry.Name()
		if entry.IsDir() || strings.HasSuffix(name, metaSuffix) || strings.HasSuffix(name, tempSuffix) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		created := info.ModTime().UTC()
		if raw, err := os.ReadFile(path + metaSuffix); err == nil {
			var meta diskMeta
			if json.Unmarshal(raw, &meta) == nil && !meta.CreatedAt.IsZero() {
				created = meta.CreatedAt
			}
		}
		blobs = append(blobs, BlobInfo{ID: name, CreatedAt: created})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("disk storage: list: %w", err)
	}
	return blobs, nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var _ Backend = (*DiskBackend)(nil)
