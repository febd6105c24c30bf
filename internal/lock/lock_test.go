package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dthul/swissrpg-discord-bot-sub001/internal/test_utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLocker_Acquire(t *testing.T) {
	t.Run("should acquire free lock with lease", func(t *testing.T) {
		// given
		ctx := context.Background()
		server, client := test_utils.TestWithRedis(t)
		locker := NewRedisLocker(client)

		// when
		handle, err := locker.Acquire(ctx, "lock:test", 100*time.Millisecond, 20*time.Second)

		// then
		require.NoError(t, err)
		require.NotNil(t, handle)
		assert.Equal(t, "lock:test", handle.Name)
		assert.Equal(t, 20*time.Second, server.TTL("lock:test"))
	})

	t.Run("should return nil handle when lock is held", func(t *testing.T) {
		// given
		ctx := context.Background()
		_, client := test_utils.TestWithRedis(t)
		locker := NewRedisLocker(client)
		first, err := locker.Acquire(ctx, "lock:test", 100*time.Millisecond, 20*time.Second)
		require.NoError(t, err)
		require.NotNil(t, first)

		// when
		second, err := locker.Acquire(ctx, "lock:test", 50*time.Millisecond, 20*time.Second)

		// then
		require.NoError(t, err)
		assert.Nil(t, second)
	})

	t.Run("should grant lock to exactly one of concurrent callers", func(t *testing.T) {
		// given
		ctx := context.Background()
		_, client := test_utils.TestWithRedis(t)
		locker := NewRedisLocker(client)
		callers := 5
		handles := make([]*Handle, callers)

		// when
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				handle, err := locker.Acquire(ctx, "lock:shared", 50*time.Millisecond, 20*time.Second)
				assert.NoError(t, err)
				handles[i] = handle
			}(i)
		}
		wg.Wait()

		// then
		acquired := 0
		for _, handle := range handles {
			if handle != nil {
				acquired++
			}
		}
		assert.Equal(t, 1, acquired)
	})

	t.Run("should reacquire lock after lease expired", func(t *testing.T) {
		// given
		ctx := context.Background()
		server, client := test_utils.TestWithRedis(t)
		locker := NewRedisLocker(client)
		crashed, err := locker.Acquire(ctx, "lock:test", 100*time.Millisecond, time.Second)
		require.NoError(t, err)
		require.NotNil(t, crashed)
		server.FastForward(2 * time.Second)

		// when
		handle, err := locker.Acquire(ctx, "lock:test", 100*time.Millisecond, time.Second)

		// then
		require.NoError(t, err)
		assert.NotNil(t, handle)
	})

	t.Run("should set missing expiry on a lock without lease", func(t *testing.T) {
		// given
		ctx := context.Background()
		server, client := test_utils.TestWithRedis(t)
		locker := NewRedisLocker(client)
		require.NoError(t, server.Set("lock:legacy", "someone"))

		// when
		handle, err := locker.Acquire(ctx, "lock:legacy", 30*time.Millisecond, 20*time.Second)

		// then
		require.NoError(t, err)
		assert.Nil(t, handle)
		assert.Equal(t, 20*time.Second, server.TTL("lock:legacy"))
	})
}

func TestRedisLocker_Release(t *testing.T) {
	t.Run("should release owned lock", func(t *testing.T) {
		// given
		ctx := context.Background()
		server, client := test_utils.TestWithRedis(t)
		locker := NewRedisLocker(client)
		handle, err := locker.Acquire(ctx, "lock:test", 100*time.Millisecond, 20*time.Second)
		require.NoError(t, err)

		// when
		err = locker.Release(ctx, handle)

		// then
		require.NoError(t, err)
		assert.False(t, server.Exists("lock:test"))
	})

	t.Run("should not release lock taken over by another owner", func(t *testing.T) {
		// given
		ctx := context.Background()
		server, client := test_utils.TestWithRedis(t)
		locker := NewRedisLocker(client)
		stale, err := locker.Acquire(ctx, "lock:test", 100*time.Millisecond, time.Second)
		require.NoError(t, err)
		server.FastForward(2 * time.Second)
		current, err := locker.Acquire(ctx, "lock:test", 100*time.Millisecond, 20*time.Second)
		require.NoError(t, err)
		require.NotNil(t, current)

		// when
		err = locker.Release(ctx, stale)

		// then
		require.NoError(t, err)
		assert.True(t, server.Exists("lock:test"))
		assert.Equal(t, current.token, mustGet(t, server.Get, "lock:test"))
	})

	t.Run("should ignore nil handle", func(t *testing.T) {
		// given
		_, client := test_utils.TestWithRedis(t)
		locker := NewRedisLocker(client)

		// when
		err := locker.Release(context.Background(), nil)

		// then
		require.NoError(t, err)
	})
}

func TestWithLock(t *testing.T) {
	t.Run("should run function and release lock", func(t *testing.T) {
		// given
		ctx := context.Background()
		server, client := test_utils.TestWithRedis(t)
		locker := NewRedisLocker(client)
		called := false

		// when
		err := WithLock(ctx, locker, "lock:test", 100*time.Millisecond, 20*time.Second, func(ctx context.Context) error {
			called = true
			assert.True(t, server.Exists("lock:test"))
			return nil
		})

		// then
		require.NoError(t, err)
		assert.True(t, called)
		assert.False(t, server.Exists("lock:test"))
	})

	t.Run("should release lock when function fails", func(t *testing.T) {
		// given
		ctx := context.Background()
		server, client := test_utils.TestWithRedis(t)
		locker := NewRedisLocker(client)
		expectedErr := errors.New("exchange failed")

		// when
		err := WithLock(ctx, locker, "lock:test", 100*time.Millisecond, 20*time.Second, func(ctx context.Context) error {
			return expectedErr
		})

		// then
		require.ErrorIs(t, err, expectedErr)
		assert.False(t, server.Exists("lock:test"))
	})

	t.Run("should return lock unavailable when lock is held", func(t *testing.T) {
		// given
		ctx := context.Background()
		_, client := test_utils.TestWithRedis(t)
		locker := NewRedisLocker(client)
		_, err := locker.Acquire(ctx, "lock:test", 100*time.Millisecond, 20*time.Second)
		require.NoError(t, err)
		called := false

		// when
		err = WithLock(ctx, locker, "lock:test", 30*time.Millisecond, 20*time.Second, func(ctx context.Context) error {
			called = true
			return nil
		})

		// then
		require.ErrorIs(t, err, ErrLockUnavailable)
		assert.False(t, called)
	})
}

func mustGet(t *testing.T, get func(string) (string, error), key string) string {
	t.Helper()
	value, err := get(key)
	require.NoError(t, err)
	return value
}
