package shared

import (
	"context"
	"time"
)

// Mutex provides mutual exclusion keyed by an arbitrary string. The
// reconciliation engine keys it by source-order number so that invoices
// touching the same order never interleave their writes.
//
// Implementations may back this with a database advisory lock or a
// distributed lock service; callers must not depend on either.
type Mutex interface {
	// Acquire blocks until the lock for key is held or the timeout
	// elapses. On success it returns a release function that must be
	// called exactly once. On timeout it returns ErrLockTimeout.
	Acquire(ctx context.Context, key string, timeout time.Duration) (release func() error, err error)
}

// IdempotencyStore stores processed keys to prevent duplicate processing
type IdempotencyStore interface {
	// MarkProcessed marks a key as processed with a TTL.
	// Returns true if the key was newly marked, false if it was already processed.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a key has already been processed
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Close closes the store and releases resources
	Close() error
}
