// Package lock implements shared.DistributedLock.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/shared"
)

// DefaultPollInterval is how often a waiting acquirer retries SET NX
const DefaultPollInterval = 25 * time.Millisecond

// releaseScript deletes the key only if it still holds our token, so an
// expired lease taken over by another holder is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a single-instance Redis lease lock (SET NX PX + guarded DEL)
type RedisLock struct {
	client       redis.Cmdable
	keyPrefix    string
	pollInterval time.Duration
}

// RedisLockOption configures a RedisLock
type RedisLockOption func(*RedisLock)

// WithKeyPrefix namespaces every key, e.g. per environment
func WithKeyPrefix(prefix string) RedisLockOption {
	return func(l *RedisLock) {
		l.keyPrefix = prefix
	}
}

// WithPollInterval overrides DefaultPollInterval
func WithPollInterval(d time.Duration) RedisLockOption {
	return func(l *RedisLock) {
		if d > 0 {
			l.pollInterval = d
		}
	}
}

// NewRedisLock creates a lock backed by client
func NewRedisLock(client redis.Cmdable, opts ...RedisLockOption) *RedisLock {
	l := &RedisLock{
		client:       client,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryAcquire polls SET NX PX until it wins, wait elapses or ctx ends
func (l *RedisLock) TryAcquire(ctx context.Context, key shared.LockKey, wait, lease time.Duration) (shared.LockToken, error) {
	token := shared.LockToken{Key: key, Value: uuid.NewString()}
	redisKey := l.keyPrefix + key.String()
	deadline := time.Now().Add(wait)

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token.Value, lease).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return shared.LockToken{}, ctxErr
			}
			return shared.LockToken{}, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return token, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return shared.LockToken{}, shared.ErrLockAcquisitionFailed.WithMessage(
				fmt.Sprintf("lock %s not acquired within %s", key, wait))
		}

		timer := time.NewTimer(min(l.pollInterval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return shared.LockToken{}, ctx.Err()
		case <-timer.C:
		}
	}
}

// Release deletes the key if the token still owns it
func (l *RedisLock) Release(ctx context.Context, token shared.LockToken) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.keyPrefix + token.Key.String()}, token.Value).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release %s: %w", token.Key, err)
	}
	if n == 0 {
		return shared.ErrLockNotHeld
	}
	return nil
}

var _ shared.DistributedLock = (*RedisLock)(nil)
