package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/freightops/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only when the stored token matches,
// so one holder can never release another holder's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

const lockRetryInterval = 50 * time.Millisecond

// RedisMutex implements shared.Mutex on Redis SET NX with a per-holder
// token. Suitable for multi-instance deployments where the database
// advisory lock would pin connections on a single pool.
type RedisMutex struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisMutex creates a RedisMutex. The TTL bounds how long a crashed
// holder can block other workers.
func NewRedisMutex(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisMutex {
	if keyPrefix == "" {
		keyPrefix = "reconciliation:lock:"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisMutex{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

// Acquire blocks until the lock for key is held or the timeout elapses.
func (m *RedisMutex) Acquire(ctx context.Context, key string, timeout time.Duration) (func() error, error) {
	storageKey := m.keyPrefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(timeout)

	for {
		ok, err := m.client.SetNX(ctx, storageKey, token, m.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %q: %w", key, err)
		}
		if ok {
			return m.releaseFunc(storageKey, token), nil
		}

		if time.Now().After(deadline) {
			return nil, shared.ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

func (m *RedisMutex) releaseFunc(storageKey, token string) func() error {
	return func() error {
		// Release on a fresh context so a cancelled request still unlocks.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := releaseScript.Run(ctx, m.client, []string{storageKey}, token).Err(); err != nil {
			return fmt.Errorf("failed to release lock %q: %w", storageKey, err)
		}
		return nil
	}
}

// Ensure RedisMutex implements shared.Mutex
var _ shared.Mutex = (*RedisMutex)(nil)
