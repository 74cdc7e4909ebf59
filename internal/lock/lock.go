// Package lock provides the mutual exclusion used by background jobs that
// must run on at most one node at a time.
package lock

import (
	"context"
	"time"
)

// Locker acquires and releases named, expiring locks.
type Locker interface {
	// Acquire takes the lock for ttl. It reports false when another holder has it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release gives up a lock taken by this Locker. It reports false when the
	// lock had already expired or was taken over.
	Release(ctx context.Context, key string) (bool, error)
}

// SweepKey guards the orphan blob sweeper.
const SweepKey = "otogram:lock:sweep"
