// Package storage persists uploaded media blobs behind a small Backend interface.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"
)

// ErrBlobNotFound indicates no blob is stored under the requested id.
var ErrBlobNotFound = errors.New("blob not found")

// ErrInvalidID indicates a blob id that is not safe to use as a storage key.
var ErrInvalidID = errors.New("invalid blob id")

var idPattern = regexp.MustCompile(`^[A-Za-z0-9-]{8,64}$`)

// Object is an opened blob. Callers must close Body.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// BlobInfo describes a stored blob for housekeeping.
type BlobInfo struct {
	ID        string
	CreatedAt time.Time
}

// Backend stores blobs by caller-chosen id.
type Backend interface {
	// Put streams r into a new blob and returns the number of bytes stored.
	// A failed Put leaves no readable blob behind.
	Put(ctx context.Context, id, contentType string, r io.Reader) (int64, error)
	// Get opens the blob. Missing blobs yield ErrBlobNotFound.
	Get(ctx context.Context, id string) (Object, error)
	// Delete removes the blob. Missing blobs yield ErrBlobNotFound.
	Delete(ctx context.Context, id string) error
	// List enumerates every stored blob.
	List(ctx context.Context) ([]BlobInfo, error)
}

// ValidateID rejects ids that could escape a key namespace.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// countingReader tracks how many bytes were read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
