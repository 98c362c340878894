package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// acquireScript takes the lock, or extends it when owner already holds it.
var acquireScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
	return 1
end
if redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ARGV[2]) then
	return 1
end
return 0
`)

// releaseScript deletes the lock only if it is still held by the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockStore handles distributed locking in Redis.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

// AcquireLock attempts to take key for owner until ttl expires. An owner
// that already holds the lock gets it again with a fresh ttl.
// Returns true if the lock was acquired, false if held by another owner.
func (s *LockStore) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ms := ttl.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	n, err := acquireScript.Run(ctx, s.client, []string{key}, owner, ms).Int()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

// ReleaseLock releases key if owner still holds it.
func (s *LockStore) ReleaseLock(ctx context.Context, key, owner string) error {
	return releaseScript.Run(ctx, s.client, []string{key}, owner).Err()
}
