package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/freightops/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvisoryLockMutex_Acquire(t *testing.T) {
	t.Run("acquires and releases the lock", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		lockID := hashLockKey("order:PED-1")
		mock.ExpectExec(`SELECT pg_advisory_lock\(\$1\)`).
			WithArgs(lockID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`SELECT pg_advisory_unlock\(\$1\)`).
			WithArgs(lockID).
			WillReturnResult(sqlmock.NewResult(0, 0))

		mutex := NewAdvisoryLockMutex(db.DB)
		release, err := mutex.Acquire(context.Background(), "order:PED-1", time.Second)
		require.NoError(t, err)
		require.NotNil(t, release)

		require.NoError(t, release())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns ErrLockTimeout when the lock is not granted in time", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		lockID := hashLockKey("order:PED-2")
		mock.ExpectExec(`SELECT pg_advisory_lock\(\$1\)`).
			WithArgs(lockID).
			WillDelayFor(200 * time.Millisecond).
			WillReturnResult(sqlmock.NewResult(0, 0))

		mutex := NewAdvisoryLockMutex(db.DB)
		_, err := mutex.Acquire(context.Background(), "order:PED-2", 20*time.Millisecond)
		assert.ErrorIs(t, err, shared.ErrLockTimeout)
	})
}

func TestHashLockKey(t *testing.T) {
	t.Run("is deterministic", func(t *testing.T) {
		assert.Equal(t, hashLockKey("order:PED-1"), hashLockKey("order:PED-1"))
	})

	t.Run("distinguishes different orders", func(t *testing.T) {
		assert.NotEqual(t, hashLockKey("order:PED-1"), hashLockKey("order:PED-2"))
	})
}
