package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dthul/swissrpg-discord-bot-sub001/internal/store"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// ErrLockUnavailable means somebody else holds the lock. Callers should skip the current attempt.
var ErrLockUnavailable = errors.New("could not acquire lock")

const defaultRetryDelay = 10 * time.Millisecond

// Handle identifies one successful acquisition of a named lock.
type Handle struct {
	Name  string
	token string
}

type Locker interface {
	// Acquire returns a nil handle without error when the lock could not be taken within wait.
	Acquire(ctx context.Context, name string, wait time.Duration, lease time.Duration) (*Handle, error)
	Release(ctx context.Context, handle *Handle) error
}

type RedisLocker struct {
	client     redis.UniversalClient
	retryDelay time.Duration
}

func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client, retryDelay: defaultRetryDelay}
}

func (l *RedisLocker) Acquire(ctx context.Context, name string, wait time.Duration, lease time.Duration) (*Handle, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(wait)
	for {
		acquired, err := l.client.SetNX(ctx, name, token, lease).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to set lock %s: %w", name, store.Unavailable(err))
		}
		if acquired {
			log.Tracef("acquired lock %s", name)
			return &Handle{Name: name, token: token}, nil
		}

		// a holder that crashed before setting an expiry would keep the lock forever
		ttl, err := l.client.TTL(ctx, name).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read ttl of lock %s: %w", name, store.Unavailable(err))
		}
		if ttl == -1 {
			log.Warnf("lock %s has no expiry, setting it to %s", name, lease)
			if err := l.client.Expire(ctx, name, lease).Err(); err != nil {
				return nil, fmt.Errorf("failed to set expiry of lock %s: %w", name, store.Unavailable(err))
			}
		}

		if !time.Now().Add(l.retryDelay).Before(deadline) {
			log.Debugf("gave up acquiring lock %s after %s", name, wait)
			return nil, nil
		}
		timer := time.NewTimer(l.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Release deletes the lock only if it is still owned by handle. A lock that expired and was
// taken over by another owner is left alone.
func (l *RedisLocker) Release(ctx context.Context, handle *Handle) error {
	if handle == nil {
		return nil
	}
	released, err := store.WithTransaction(ctx, l.client, []string{handle.Name},
		func(ctx context.Context, tx *redis.Tx, pipe redis.Pipeliner) (bool, error) {
			current, err := tx.Get(ctx, handle.Name).Result()
			if errors.Is(err, redis.Nil) {
				return false, nil
			}
			if err != nil {
				return false, store.Unavailable(err)
			}
			if current != handle.token {
				return false, nil
			}
			pipe.Del(ctx, handle.Name)
			return true, nil
		})
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", handle.Name, err)
	}
	if !released {
		log.Warnf("lock %s was no longer owned when releasing it", handle.Name)
	}
	return nil
}

// WithLock runs fn while holding the named lock and releases it on every exit path.
func WithLock(ctx context.Context, locker Locker, name string, wait time.Duration, lease time.Duration,
	fn func(ctx context.Context) error) error {
	handle, err := locker.Acquire(ctx, name, wait, lease)
	if err != nil {
		return err
	}
	if handle == nil {
		return fmt.Errorf("%w: %s", ErrLockUnavailable, name)
	}
	defer func() {
		// release even if the caller's context is already done
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := locker.Release(releaseCtx, handle); err != nil {
			log.Errorf("%v", err)
		}
	}()
	return fn(ctx)
}
