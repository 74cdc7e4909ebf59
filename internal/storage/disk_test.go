package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend, err := NewDiskBackend(t.TempDir())
	require.NoError(t, err)

	id := uuid.NewString()
	size, err := backend.Put(ctx, id, "video/mp4", strings.NewReader("frames"))
	require.NoError(t, err)
	assert.Equal(t, int64(6), size)

	obj, err := backend.Get(ctx, id)
	require.NoError(t, err)
	defer obj.Body.Close()

	body, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, "frames", string(body))
	assert.Equal(t, "video/mp4", obj.ContentType)
	assert.Equal(t, int64(6), obj.Size)

	blobs, err := backend.List(ctx)
	require.NoError(t, err)
	require.Len(t, blobs, 1)
	assert.Equal(t, id, blobs[0].ID)

	require.NoError(t, backend.Delete(ctx, id))
	assert.ErrorIs(t, backend.Delete(ctx, id), ErrBlobNotFound)

	_, err = backend.Get(ctx, id)
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

type failingReader struct{ after int }

func (f *failingReader) Read(p []byte) (int, error) {
	if f.after <= 0 {
		return 0, errors.New("client went away")
	}
	n := copy(p, bytes.Repeat([]byte("x"), f.after))
	f.after -= n
	return n, nil
}

func TestDiskBackendFailedPutLeavesNothing(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	backend, err := NewDiskBackend(dir)
	require.NoError(t, err)

	id := uuid.NewString()
	_, err = backend.Put(ctx, id, "image/png", &failingReader{after: 128})
	require.Error(t, err)

	_, err = backend.Get(ctx, id)
	assert.ErrorIs(t, err, ErrBlobNotFound)

	var files []string
	require.NoError(t, filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			files = append(files, path)
		}
		return err
	}))
	assert.Empty(t, files, "temporary files must be cleaned up")
}

func TestDiskBackendRejectsUnsafeIDs(t *testing.T) {
	backend, err := NewDiskBackend(t.TempDir())
	require.NoError(t, err)

	_, err = backend.Put(context.Background(), "../escape-attempt", "image/png", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = backend.Get(context.Background(), "../escape-attempt")
	assert.ErrorIs(t, err, ErrBlobNotFound)
}
