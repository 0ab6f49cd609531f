package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash that holds the lock when no key is configured
const DefaultRedisKey = "changeplane:lock"

// acquireScript sets the holder only when no one holds the lock
var acquireScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'lockedby', ARGV[1], 'lockgranted', ARGV[2])
return 1
`)

// releaseScript deletes the lock only for its holder. It returns 1 on
// release, 0 when another owner holds it and -1 when it is not held.
var releaseScript = redis.NewScript(`
local holder = redis.call('HGET', KEYS[1], 'lockedby')
if not holder then
	return -1
end
if holder ~= ARGV[1] then
	return 0
end
redis.call('DEL', KEYS[1])
return 1
`)

// RedisLock keeps the lock in a Redis hash. The key has no expiry, so a
// crashed holder's lock stays until it is force released.
type RedisLock struct {
	client  redis.UniversalClient
	key     string
	polling Polling
}

var _ Locker = (*RedisLock)(nil)

// NewRedisLock creates a lock stored under key ("" selects DefaultRedisKey)
func NewRedisLock(client redis.UniversalClient, key string, polling Polling) *RedisLock {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisLock{client: client, key: key, polling: polling}
}

func (l *RedisLock) TryAcquire(ctx context.Context, owner string, timeout time.Duration) (bool, error) {
	return poll(ctx, l, owner, timeout, l.polling)
}

func (l *RedisLock) attempt(ctx context.Context, owner string) (bool, error) {
	n, err := acquireScript.Run(ctx, l.client, []string{l.key}, owner, time.Now().UTC().Format(time.RFC3339Nano)).Int()
	if err != nil {
		return false, fmt.Errorf("acquire redis lock %s: %w", l.key, err)
	}
	return n == 1, nil
}

func (l *RedisLock) Release(ctx context.Context, owner string) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, owner).Int()
	if err != nil {
		return &StateError{Op: "release", Owner: owner, Err: err}
	}
	switch n {
	case 1:
		return nil
	case -1:
		return &StateError{Op: "release", Owner: owner}
	}
	holder, err := l.current(ctx)
	if err != nil {
		return &StateError{Op: "release", Owner: owner, Err: err}
	}
	return &StateError{Op: "release", Owner: owner, Holder: holder.LockedBy}
}

func (l *RedisLock) ForceRelease(ctx context.Context) error {
	if err := l.client.Del(ctx, l.key).Err(); err != nil {
		return &StateError{Op: "force release", Err: err}
	}
	return nil
}

func (l *RedisLock) ListHolders(ctx context.Context) ([]Info, error) {
	info, err := l.current(ctx)
	if err != nil {
		return nil, &StateError{Op: "list", Err: err}
	}
	if !info.Locked {
		return nil, nil
	}
	return []Info{info}, nil
}

func (l *RedisLock) current(ctx context.Context) (Info, error) {
	fields, err := l.client.HGetAll(ctx, l.key).Result()
	if err != nil {
		return Info{}, fmt.Errorf("read redis lock %s: %w", l.key, err)
	}
	info := Info{ID: lockRowID}
	holder, ok := fields["lockedby"]
	if !ok {
		return info, nil
	}
	info.Locked = true
	info.LockedBy = holder
	if granted := fields["lockgranted"]; granted != "" {
		if info.Granted, err = time.Parse(time.RFC3339Nano, granted); err != nil {
			return Info{}, fmt.Errorf("read redis lock %s: %w", l.key, err)
		}
	}
	return info, nil
}
