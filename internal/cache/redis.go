package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trial-progress-dashboard/internal/domain"
)

// RedisCache stores snapshots as JSON in Redis so several dashboard
// processes can share the last good export.
type RedisCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewRedisCache connects to the configured Redis URL.
func NewRedisCache(config domain.CacheConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCacheFromClient(client, config.DefaultTTL), nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, defaultTTL time.Duration) *RedisCache {
	return &RedisCache{redis: client, defaultTTL: defaultTTL}
}

// Get returns the cached snapshot for key. A corrupted entry is removed and
// reported as a miss.
func (c *RedisCache) Get(ctx context.Context, key string) (*domain.Snapshot, bool, error) {
	val, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get snapshot cache: %w", err)
	}

	var cached cachedSnapshot
	if err := json.Unmarshal(val, &cached); err != nil {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}
	if cached.expired(time.Now()) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}
	return cached.Data, true, nil
}

// Set stores snap under key. A zero ttl uses the cache default; a negative
// ttl stores without expiry.
func (c *RedisCache) Set(ctx context.Context, key string, snap *domain.Snapshot, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	now := time.Now()
	cached := cachedSnapshot{Data: snap, CachedAt: now}
	if ttl > 0 {
		cached.ExpiresAt = now.Add(ttl)
	} else {
		ttl = 0
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot cache data: %w", err)
	}
	return c.redis.Set(ctx, key, data, ttl).Err()
}

// Invalidate removes key.
func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	return c.redis.Del(ctx, key).Err()
}

// Ping checks if the Redis connection is alive.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.redis.Close()
}

var _ domain.SnapshotCache = (*RedisCache)(nil)
