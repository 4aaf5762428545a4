package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redisv9 "github.com/redis/go-redis/v9"
)

const defaultLockTTL = 10 * time.Minute

// releaseLock deletes the key only while it still holds the caller's token, so an expired and
// re-acquired lock is never released by the previous holder.
var releaseLock = redisv9.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendLock resets the TTL only while the key still holds the caller's token.
var extendLock = redisv9.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// DocumentLock is a per-document mutual exclusion token kept in Redis.
type DocumentLock struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewDocumentLock(client *redisv9.Client, ttl time.Duration) *DocumentLock {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &DocumentLock{client: client, ttl: ttl}
}

// Acquire returns a token and true when the lock was free.
func (l *DocumentLock) Acquire(ctx context.Context, documentID string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.lockKey(documentID), token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis acquire document lock failed: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Extend renews the lease for another TTL. It reports false when the lock expired or another
// holder took it.
func (l *DocumentLock) Extend(ctx context.Context, documentID, token string) (bool, error) {
	n, err := extendLock.Run(ctx, l.client, []string{l.lockKey(documentID)}, token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("redis extend document lock failed: %w", err)
	}
	return n == 1, nil
}

func (l *DocumentLock) Release(ctx context.Context, documentID, token string) error {
	if err := releaseLock.Run(ctx, l.client, []string{l.lockKey(documentID)}, token).Err(); err != nil {
		return fmt.Errorf("redis release document lock failed: %w", err)
	}
	return nil
}

func (l *DocumentLock) lockKey(documentID string) string {
	return fmt.Sprintf("docproc:lock:document:%s", documentID)
}
