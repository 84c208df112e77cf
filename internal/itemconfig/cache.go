package itemconfig

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-metrature/internal/pricing"
	"github.com/noah-isme/backend-metrature/internal/resilience"
)

const keyPrefix = "itemconfig:v1:"

// CacheKey returns the Redis key holding the configuration of itemID.
func CacheKey(itemID string) string { return keyPrefix + itemID }

// GenerationKey returns the counter bumped on every invalidation of itemID.
func GenerationKey(itemID string) string { return keyPrefix + itemID + ":gen" }

// setIfGeneration writes KEYS[1] only while KEYS[2] still holds ARGV[1].
const setIfGeneration = `
local current = redis.call("GET", KEYS[2]) or "0"
if current ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1`

// Cache keeps item configurations as JSON in Redis. Every item has exactly one
// key, so invalidation never scans.
type Cache struct {
	client  redis.UniversalClient
	ttl     time.Duration
	breaker *resilience.Breaker
}

// NewCache constructs a cache. A nil client disables caching.
func NewCache(client redis.UniversalClient, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// WithBreaker guards reads and writes with b. While b is open they return
// resilience.ErrOpenCircuit without touching Redis; Invalidate always runs.
func (c *Cache) WithBreaker(b *resilience.Breaker) *Cache {
	c.breaker = b
	return c
}

// Get loads the cached configuration. It reports whether the key existed.
func (c *Cache) Get(ctx context.Context, itemID string) (pricing.ItemConfig, bool, error) {
	var cfg pricing.ItemConfig
	if c == nil || c.client == nil {
		return cfg, false, nil
	}
	var data []byte
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		data, err = c.client.Get(ctx, CacheKey(itemID)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	})
	if err != nil || data == nil {
		return cfg, false, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, false, err
	}
	return cfg, true, nil
}

// Generation returns the invalidation counter of itemID. Read it before
// loading from the store and pass it to Set.
func (c *Cache) Generation(ctx context.Context, itemID string) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	var gen int64
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		v, err := c.client.Get(ctx, GenerationKey(itemID)).Int64()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		gen = v
		return err
	})
	return gen, err
}

// Set stores cfg with the configured TTL unless the item was invalidated
// after gen was read. It reports whether the entry was written.
func (c *Cache) Set(ctx context.Context, cfg pricing.ItemConfig, gen int64) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return false, err
	}
	var stored bool
	err = c.breaker.Do(ctx, func(ctx context.Context) error {
		n, err := c.client.Eval(ctx, setIfGeneration,
			[]string{CacheKey(cfg.ItemID), GenerationKey(cfg.ItemID)},
			strconv.FormatInt(gen, 10), data, c.ttl.Milliseconds()).Int64()
		stored = n == 1
		return err
	})
	return stored, err
}

// Invalidate bumps the generation of itemID and drops its cached
// configuration in one transaction.
func (c *Cache) Invalidate(ctx context.Context, itemID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, GenerationKey(itemID))
		pipe.Del(ctx, CacheKey(itemID))
		return nil
	})
	c.breaker.Report(ctx, err)
	return err
}
