package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dthul/swissrpg-discord-bot-sub001/internal/config"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// ErrStoreUnavailable is returned when Redis cannot be reached.
var ErrStoreUnavailable = errors.New("store unavailable")

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, cfg config.Redis) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: failed to ping redis at %s: %w", ErrStoreUnavailable, cfg.Addr, err)
	}
	return client, nil
}

// TxFunc builds one attempt of an optimistic transaction. Reads go through tx, writes are
// queued on pipe and only applied if none of the watched keys changed in the meantime.
type TxFunc[T any] func(ctx context.Context, tx *redis.Tx, pipe redis.Pipeliner) (T, error)

// WithTransaction runs fn inside WATCH/MULTI/EXEC on the given keys and retries the whole
// attempt whenever a watched key was modified concurrently. There is no retry limit, use
// the context to bound it.
func WithTransaction[T any](ctx context.Context, client redis.UniversalClient, keys []string, fn TxFunc[T]) (T, error) {
	var zero T
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		attempt++

		var result T
		var fnErr error
		err := client.Watch(ctx, func(tx *redis.Tx) error {
			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				result, fnErr = fn(ctx, tx, pipe)
				return fnErr
			})
			return err
		}, keys...)

		switch {
		case err == nil:
			return result, nil
		case fnErr != nil:
			return zero, fnErr
		case errors.Is(err, redis.TxFailedErr):
			log.Tracef("transaction on %v conflicted (attempt %d), retrying", keys, attempt)
			continue
		case ctx.Err() != nil:
			return zero, ctx.Err()
		default:
			return zero, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
	}
}

// Unavailable wraps a Redis error as ErrStoreUnavailable. redis.Nil is passed through untouched.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
