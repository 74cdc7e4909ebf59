package media

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/otogram/backend/internal/lock"
	"github.com/otogram/backend/internal/logging"
	"github.com/otogram/backend/internal/metrics"
	"github.com/otogram/backend/internal/storage"
)

// ReferenceSource lists blob ids that records still point at.
type ReferenceSource interface {
	ReferencedFileIDs(ctx context.Context) ([]string, error)
}

// Sweeper removes blobs that no record references once they are older than
// the grace period. Uploads that are still being attached to a record fall
// inside the grace period and are left alone.
type Sweeper struct {
	store   storage.Backend
	sources []ReferenceSource
	locker  lock.Locker

	GracePeriod time.Duration
	LockTTL     time.Duration
	NowFunc     func() time.Time
}

// NewSweeper constructs a Sweeper. locker may be nil when only one process runs.
func NewSweeper(store storage.Backend, locker lock.Locker, gracePeriod time.Duration, sources ...ReferenceSource) *Sweeper {
	return &Sweeper{
		store:       store,
		sources:     sources,
		locker:      locker,
		GracePeriod: gracePeriod,
		LockTTL:     10 * time.Minute,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	logger := logging.FromContext(ctx).With(slog.String("component", "sweeper"))
	ctx = logging.WithLogger(ctx, logger)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				logger.Error("sweep failed", slog.Any("error", err))
			}
		}
	}
}

// SweepOnce performs a single pass and returns how many blobs were removed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	ctx, span := logging.StartSpan(ctx, "media.sweep")
	defer span.End()
	logger := logging.FromContext(ctx)

	if s.locker != nil {
		acquired, err := s.locker.Acquire(ctx, lock.SweepKey, s.LockTTL)
		if err != nil {
			return 0, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !acquired {
			logger.Info("sweep skipped, another node holds the lock")
			return 0, nil
		}
		defer func() {
			if _, err := s.locker.Release(context.WithoutCancel(ctx), lock.SweepKey); err != nil {
				logger.Warn("release sweep lock", slog.Any("error", err))
			}
		}()
	}

	start := time.Now()

	// Blobs are listed before references so an upload attached in between
	// is still seen as referenced.
	blobs, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list blobs: %w", err)
	}

	referenced := make(map[string]struct{})
	for _, source := range s.sources {
		ids, err := source.ReferencedFileIDs(ctx)
		if err != nil {
			return 0, fmt.Errorf("load referenced files: %w", err)
		}
		for _, id := range ids {
			referenced[id] = struct{}{}
		}
	}

	cutoff := s.now().Add(-s.GracePeriod)
	removed := 0
	for _, blob := range blobs {
		if _, ok := referenced[blob.ID]; ok {
			continue
		}
		if blob.CreatedAt.After(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, blob.ID); err != nil {
			logger.Warn("delete orphaned blob", slog.String("file_id", blob.ID), slog.Any("error", err))
			continue
		}
		removed++
	}

	metrics.RecordSweep(removed, time.Since(start))
	logger.Info("sweep finished", slog.Int("scanned", len(blobs)), slog.Int("removed", removed))
	return removed, nil
}

func (s *Sweeper) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc()
	}
	return time.Now().UTC()
}
