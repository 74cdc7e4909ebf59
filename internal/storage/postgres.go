package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/otogram/backend/internal/db"
)

// blobChunkSize bounds the bytes held in memory per blob transfer.
const blobChunkSize = 1 << 20

// PostgresBackend keeps blobs in the record store, split into media_blob_chunks
// rows under a media_blobs header.
type PostgresBackend struct {
	pool db.Pool
}

// NewPostgresBackend constructs a blob backend on the record store's pool.
func NewPostgresBackend(pool db.Pool) *PostgresBackend {
	return &PostgresBackend{pool: pool}
}

// Put streams r into chunk rows inside one transaction.
func (b *PostgresBackend) Put(ctx context.Context, id, contentType string, r io.Reader) (int64, error) {
	if err := ValidateID(id); err != nil {
		return 0, err
	}

	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("database storage: begin %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
        INSERT INTO media_blobs (id, content_type, size, created_at)
        VALUES ($1, $2, 0, $3)
    `, id, contentType, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("database storage: insert %s: %w", id, err)
	}

	size, err := writeChunks(r, blobChunkSize, func(seq int, data []byte) error {
		_, err := tx.Exec(ctx, `INSERT INTO media_blob_chunks (blob_id, seq, data) VALUES ($1, $2, $3)`, id, seq, data)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("database storage: write %s: %w", id, err)
	}

	if _, err := tx.Exec(ctx, `UPDATE media_blobs SET size = $2 WHERE id = $1`, id, size); err != nil {
		return 0, fmt.Errorf("database storage: finalize %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("database storage: commit %s: %w", id, err)
	}
	return size, nil
}

// Get opens the blob; chunks are fetched as the body is read.
func (b *PostgresBackend) Get(ctx context.Context, id string) (Object, error) {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return Object{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var (
		contentType string
		size        int64
	)
	err = conn.QueryRow(ctx, `SELECT content_type, size FROM media_blobs WHERE id = $1`, id).Scan(&contentType, &size)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Object{}, ErrBlobNotFound
		}
		return Object{}, fmt.Errorf("database storage: select %s: %w", id, err)
	}

	return Object{
		Body: &chunkReader{
			size: size,
			fetch: func(seq int) ([]byte, error) {
				return b.fetchChunk(ctx, id, seq)
			},
		},
		ContentType: contentType,
		Size:        size,
	}, nil
}

func (b *PostgresBackend) fetchChunk(ctx context.Context, id string, seq int) ([]byte, error) {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var data []byte
	err = conn.QueryRow(ctx, `SELECT data FROM media_blob_chunks WHERE blob_id = $1 AND seq = $2`, id, seq).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("database storage: %s chunk %d missing: %w", id, seq, io.ErrUnexpectedEOF)
		}
		return nil, fmt.Errorf("database storage: read %s chunk %d: %w", id, seq, err)
	}
	return data, nil
}

// writeChunks splits r into pieces of at most chunkSize bytes, numbered from 0.
func writeChunks(r io.Reader, chunkSize int, write func(seq int, data []byte) error) (int64, error) {
	buf := make([]byte, chunkSize)
	var size int64
	for seq := 0; ; seq++ {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			if err := write(seq, buf[:n]); err != nil {
				return size, err
			}
			size += int64(n)
		}
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			return size, nil
		}
		if readErr != nil {
			return size, readErr
		}
	}
}

// chunkReader serves a blob of known size one chunk at a time.
type chunkReader struct {
	size  int64
	fetch func(seq int) ([]byte, error)

	read int64
	seq  int
	buf  []byte
}

func (c *chunkReader) Read(p []byte) (int, error) {
	for len(c.buf) == 0 {
		if c.read >= c.size {
			return 0, io.EOF
		}
		chunk, err := c.fetch(c.seq)
		if err != nil {
			return 0, err
		}
		c.seq++
		c.buf = chunk
	}

	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	c.read += int64(n)
	return n, nil
}

func (c *chunkReader) Close() error {
	c.buf = nil
	return nil
}

// Delete removes the blob header; its chunks cascade.
func (b *PostgresBackend) Delete(ctx context.Context, id string) error {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM media_blobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("database storage: delete %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBlobNotFound
	}
	return nil
}

// List returns the id and age of every stored blob.
func (b *PostgresBackend) List(ctx context.Context) ([]BlobInfo, error) {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `SELECT id, created_at FROM media_blobs`)
	if err != nil {
		return nil, fmt.Errorf("database storage: list: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (BlobInfo, error) {
		var info BlobInfo
		err := row.Scan(&info.ID, &info.CreatedAt)
		return info, err
	})
}

var _ Backend = (*PostgresBackend)(nil)
