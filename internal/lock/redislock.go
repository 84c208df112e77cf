package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotConfigured is returned when the locker has no Redis client.
var ErrNotConfigured = errors.New("lock: redis client not configured")

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

var release = redis.NewScript(releaseScript)

// Locker serialises configuration writes across API replicas with a Redis
// SET NX lock. The holder token is checked on release so an expired holder
// never frees someone else's lock.
type Locker struct {
	R            redis.UniversalClient
	RetryBackoff time.Duration
	TTL          time.Duration
}

// ItemKey is the lock key guarding the configuration of itemID.
func ItemKey(itemID string) string { return "lock:itemconfig:" + itemID }

// WithLock runs fn while holding key. It waits for the lock until ctx is done.
func (l Locker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if l.R == nil {
		return ErrNotConfigured
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	ttl := l.TTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	token := uuid.NewString()

	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			defer func() { _ = release.Run(context.WithoutCancel(ctx), l.R, []string{key}, token).Err() }()
			return fn(ctx)
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
