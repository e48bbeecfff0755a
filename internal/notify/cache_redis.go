package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCacheConfig holds connection parameters for the shared response cache.
type RedisCacheConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisCache implements ResponseCache on a redis instance shared across
// redundant executors.
type RedisCache struct {
	rdb          *redis.Client
	pollInterval time.Duration
	pollBudget   time.Duration
}

// NewRedisCache connects to redis, pings it to verify connectivity, and
// returns the cache.
func NewRedisCache(ctx context.Context, cfg RedisCacheConfig) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &RedisCache{
		rdb:          rdb,
		pollInterval: 250 * time.Millisecond,
		pollBudget:   10 * time.Second,
	}, nil
}

// Close releases the redis connection.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

func cacheKey(key string) string {
	return "notify:resp:" + key
}

// Claim attempts SETNX on the key with the dedupe window as TTL.
func (c *RedisCache) Claim(ctx context.Context, key string, window time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, cacheKey(key), claimToken(), window).Result()
	if err != nil {
		return false, fmt.Errorf("redis: claim %s: %w", key, err)
	}
	return ok, nil
}

// StoreOutcome overwrites the claim token with the terminal outcome,
// refreshing the window so late executors can still read it.
func (c *RedisCache) StoreOutcome(ctx context.Context, key, outcome string, window time.Duration) error {
	if err := c.rdb.Set(ctx, cacheKey(key), outcome, window).Err(); err != nil {
		return fmt.Errorf("redis: store outcome %s: %w", key, err)
	}
	return nil
}

// AwaitOutcome polls until the claimant publishes a terminal outcome or the
// poll budget is exhausted.
func (c *RedisCache) AwaitOutcome(ctx context.Context, key string) (string, error) {
	deadline := time.Now().Add(c.pollBudget)
	for {
		value, err := c.rdb.Get(ctx, cacheKey(key)).Result()
		switch {
		case errors.Is(err, redis.Nil):
			// Entry expired between claim and read.
			return "", ErrOutcomeUnavailable
		case err != nil:
			return "", fmt.Errorf("redis: read outcome %s: %w", key, err)
		case !strings.HasPrefix(value, inflightPrefix):
			return value, nil
		}

		if time.Now().After(deadline) {
			return "", ErrOutcomeUnavailable
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

var _ ResponseCache = (*RedisCache)(nil)
