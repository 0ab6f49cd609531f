package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/lockplane/changeplane/database/sqlite"
)

var fastPolling = Polling{Interval: 10 * time.Millisecond, MaxInterval: 40 * time.Millisecond}

func newTableLock(t *testing.T, polling Polling) *TableLock {
	t.Helper()
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	l, err := NewTableLock(db, sqlite.NewDialect(), "", polling)
	require.NoError(t, err)
	require.NoError(t, l.Init(context.Background()))
	require.NoError(t, l.Init(context.Background()), "init is idempotent")
	return l
}

func newRedisLock(t *testing.T, polling Polling) *RedisLock {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLock(client, "", polling)
}

// lockers runs a test against every backend
func lockers(t *testing.T, fn func(t *testing.T, l Locker)) {
	lockersWith(t, fastPolling, fn)
}

func lockersWith(t *testing.T, polling Polling, fn func(t *testing.T, l Locker)) {
	t.Run("table", func(t *testing.T) { fn(t, newTableLock(t, polling)) })
	t.Run("redis", func(t *testing.T) { fn(t, newRedisLock(t, polling)) })
}

func TestAcquireAndRelease(t *testing.T) {
	lockers(t, func(t *testing.T, l Locker) {
		ctx := context.Background()

		holders, err := l.ListHolders(ctx)
		require.NoError(t, err)
		assert.Empty(t, holders)

		held, err := l.TryAcquire(ctx, "hostA", 0)
		require.NoError(t, err)
		require.True(t, held)

		holders, err = l.ListHolders(ctx)
		require.NoError(t, err)
		require.Len(t, holders, 1)
		assert.Equal(t, "hostA", holders[0].LockedBy)
		assert.True(t, holders[0].Locked)
		assert.WithinDuration(t, time.Now(), holders[0].Granted, time.Minute)

		held, err = l.TryAcquire(ctx, "hostB", 0)
		require.NoError(t, err)
		assert.False(t, held, "a single attempt reports the lock as taken")

		require.NoError(t, l.Release(ctx, "hostA"))
		holders, err = l.ListHolders(ctx)
		require.NoError(t, err)
		assert.Empty(t, holders)
	})
}

func TestReleaseByNonHolderFails(t *testing.T) {
	lockers(t, func(t *testing.T, l Locker) {
		ctx := context.Background()

		var stateErr *StateError
		err := l.Release(ctx, "hostA")
		require.True(t, errors.As(err, &stateErr), "releasing an unheld lock is an error")
		assert.Equal(t, CodeState, stateErr.Code())

		held, err := l.TryAcquire(ctx, "hostA", 0)
		require.NoError(t, err)
		require.True(t, held)

		err = l.Release(ctx, "hostB")
		require.True(t, errors.As(err, &stateErr))
		assert.Equal(t, "hostA", stateErr.Holder)

		holders, err := l.ListHolders(ctx)
		require.NoError(t, err)
		require.Len(t, holders, 1, "the holder keeps the lock")
	})
}

func TestTimeoutNamesHolder(t *testing.T) {
	lockers(t, func(t *testing.T, l Locker) {
		ctx := context.Background()
		held, err := l.TryAcquire(ctx, "hostA", 0)
		require.NoError(t, err)
		require.True(t, held)

		held, err = l.TryAcquire(ctx, "hostB", 200*time.Millisecond)
		assert.False(t, held)
		var timeout *TimeoutError
		require.True(t, errors.As(err, &timeout), "got %v", err)
		assert.Equal(t, "hostB", timeout.Owner)
		assert.Equal(t, "hostA", timeout.Holder.LockedBy)
		assert.False(t, timeout.Holder.Granted.IsZero())
		assert.Contains(t, err.Error(), "held by hostA")
		assert.Equal(t, CodeTimeout, timeout.Code())
	})
}

func TestTimeoutWaitsFullDuration(t *testing.T) {
	slow := Polling{Interval: 100 * time.Millisecond, MaxInterval: time.Second}
	lockersWith(t, slow, func(t *testing.T, l Locker) {
		ctx := context.Background()
		held, err := l.TryAcquire(ctx, "hostA", 0)
		require.NoError(t, err)
		require.True(t, held)

		timeout := 350 * time.Millisecond
		start := time.Now()
		held, err = l.TryAcquire(ctx, "hostB", timeout)
		elapsed := time.Since(start)

		assert.False(t, held)
		var timeoutErr *TimeoutError
		require.True(t, errors.As(err, &timeoutErr), "got %v", err)
		assert.GreaterOrEqual(t, elapsed, timeout)
		assert.GreaterOrEqual(t, timeoutErr.Waited, timeout)
	})
}

func TestReleaseBeforeDeadlineIsSeen(t *testing.T) {
	// the backoff interval outgrows the time left, so only the attempt at
	// the deadline can observe the release
	slow := Polling{Interval: 200 * time.Millisecond, MaxInterval: 2 * time.Second}
	lockersWith(t, slow, func(t *testing.T, l Locker) {
		ctx := context.Background()
		held, err := l.TryAcquire(ctx, "hostA", 0)
		require.NoError(t, err)
		require.True(t, held)

		go func() {
			time.Sleep(450 * time.Millisecond)
			_ = l.Release(ctx, "hostA")
		}()

		held, err = l.TryAcquire(ctx, "hostB", 600*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, held)
	})
}

func TestMutualExclusion(t *testing.T) {
	lockers(t, func(t *testing.T, l Locker) {
		ctx := context.Background()
		held, err := l.TryAcquire(ctx, "hostA", time.Second)
		require.NoError(t, err)
		require.True(t, held)

		done := make(chan error, 1)
		go func() {
			held, err := l.TryAcquire(ctx, "hostB", 5*time.Second)
			if err == nil && !held {
				err = errors.New("not acquired")
			}
			done <- err
		}()

		select {
		case err := <-done:
			t.Fatalf("second owner acquired a held lock: %v", err)
		case <-time.After(100 * time.Millisecond):
		}

		require.NoError(t, l.Release(ctx, "hostA"))
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Fatal("second owner never acquired the released lock")
		}

		holders, err := l.ListHolders(ctx)
		require.NoError(t, err)
		require.Len(t, holders, 1)
		assert.Equal(t, "hostB", holders[0].LockedBy)
	})
}

func TestForceRelease(t *testing.T) {
	lockers(t, func(t *testing.T, l Locker) {
		ctx := context.Background()
		held, err := l.TryAcquire(ctx, "crashed-host", 0)
		require.NoError(t, err)
		require.True(t, held)

		require.NoError(t, l.ForceRelease(ctx))
		held, err = l.TryAcquire(ctx, "hostB", 0)
		require.NoError(t, err)
		assert.True(t, held)
	})
}

func TestAcquireReleasesAfterCancellation(t *testing.T) {
	lockers(t, func(t *testing.T, l Locker) {
		ctx, cancel := context.WithCancel(context.Background())
		release, err := Acquire(ctx, l, "hostA", time.Second)
		require.NoError(t, err)

		cancel()
		require.NoError(t, release())

		holders, err := l.ListHolders(context.Background())
		require.NoError(t, err)
		assert.Empty(t, holders)
	})
}

func TestAcquireWithoutWaitingReportsHolder(t *testing.T) {
	lockers(t, func(t *testing.T, l Locker) {
		ctx := context.Background()
		_, err := Acquire(ctx, l, "hostA", 0)
		require.NoError(t, err)

		_, err = Acquire(ctx, l, "hostB", 0)
		var timeout *TimeoutError
		require.True(t, errors.As(err, &timeout))
		assert.Equal(t, "hostA", timeout.Holder.LockedBy)
	})
}

func TestTableLock_MissingTableIsStateError(t *testing.T) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	l, err := NewTableLock(db, sqlite.NewDialect(), "", fastPolling)
	require.NoError(t, err)

	_, err = l.TryAcquire(context.Background(), "hostA", time.Second)
	var stateErr *StateError
	require.True(t, errors.As(err, &stateErr), "got %v", err)
	assert.NotNil(t, stateErr.Unwrap())
}

func TestNewTableLock_RejectsBadTableName(t *testing.T) {
	_, err := NewTableLock(nil, sqlite.NewDialect(), "lock table", Polling{})
	assert.Error(t, err)
}

func TestNewOwner(t *testing.T) {
	a, b := NewOwner(), NewOwner()
	assert.NotEqual(t, a, b)
	assert.Len(t, strings.Split(a, ":"), 3)
}

func TestPollingDefaults(t *testing.T) {
	p := Polling{}.withDefaults()
	assert.Equal(t, DefaultPollInterval, p.Interval)
	assert.Equal(t, DefaultMaxPollInterval, p.MaxInterval)

	p = Polling{Interval: time.Minute}.withDefaults()
	assert.Equal(t, time.Minute, p.MaxInterval)
}
