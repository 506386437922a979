package persistence

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/freightops/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// AdvisoryLockMutex implements shared.Mutex on Postgres session advisory
// locks. Each Acquire pins one connection from the pool; the lock is held
// by that connection until release is called.
type AdvisoryLockMutex struct {
	db *gorm.DB
}

// NewAdvisoryLockMutex creates a new AdvisoryLockMutex
func NewAdvisoryLockMutex(db *gorm.DB) *AdvisoryLockMutex {
	return &AdvisoryLockMutex{db: db}
}

// Acquire blocks until the advisory lock for key is held or the timeout
// elapses. The string key is hashed to the bigint key space Postgres
// advisory locks use.
func (m *AdvisoryLockMutex) Acquire(ctx context.Context, key string, timeout time.Duration) (func() error, error) {
	sqlDB, err := m.db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := sqlDB.Conn(lockCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, shared.ErrLockTimeout
		}
		return nil, fmt.Errorf("failed to obtain connection for advisory lock: %w", err)
	}

	lockID := hashLockKey(key)
	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
		_ = conn.Close()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(lockCtx.Err(), context.DeadlineExceeded) {
			return nil, shared.ErrLockTimeout
		}
		return nil, fmt.Errorf("failed to acquire advisory lock %q: %w", key, err)
	}

	release := func() error {
		// Unlock on a fresh context so a cancelled request still releases.
		unlockCtx, unlockCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer unlockCancel()

		_, unlockErr := conn.ExecContext(unlockCtx, "SELECT pg_advisory_unlock($1)", lockID)
		closeErr := conn.Close()
		if unlockErr != nil {
			return fmt.Errorf("failed to release advisory lock %q: %w", key, unlockErr)
		}
		return closeErr
	}
	return release, nil
}

// hashLockKey maps a lock key onto the bigint advisory-lock key space
func hashLockKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

// Ensure AdvisoryLockMutex implements shared.Mutex
var _ shared.Mutex = (*AdvisoryLockMutex)(nil)
