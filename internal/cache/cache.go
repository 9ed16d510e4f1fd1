package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"workshop-service/internal/config"
)

// Key prefixes invalidated after mutating operations. The cache is an
// optimization only; nothing reads it as a source of truth.
const (
	PrefixQuotes    = "quotes:"
	PrefixOrders    = "orders:"
	PrefixDashboard = "dashboard:"
)

type Cache struct {
	rdb *redis.Client
	log zerolog.Logger
}

func New(cfg config.RedisConfig, log zerolog.Logger) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Cache{rdb: rdb, log: log}
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// GetJSON loads a cached value into dest. The second return is false on a
// miss.
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, raw, ttl).Err()
}

// InvalidatePrefix removes every key under the given prefix. Failures are
// logged and swallowed; a stale cache entry expires on its own TTL.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) {
	iter := c.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.Warn().Err(err).Str("prefix", prefix).Msg("cache scan failed")
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn().Err(err).Str("prefix", prefix).Msg("cache invalidation failed")
	}
}

// Allow implements a fixed-window rate limit counter. The first hit in a
// window creates the key with the window as TTL; hits beyond limit are
// rejected until the key expires.
func (c *Cache) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	count, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := c.rdb.Expire(ctx, key, window).Err(); err != nil {
			return false, err
		}
	}
	return count <= limit, nil
}
