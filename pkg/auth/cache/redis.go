package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default timeouts for Redis operations.
const (
	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second
)

// keyPrefix namespaces gateway verdict keys in a shared Redis instance.
const keyPrefix = "meshai:authcache:"

// RedisCache is a verdict cache backed by Redis, for deployments running
// multiple gateway replicas. Redis handles TTL expiry and memory bounding;
// a cache that cannot be reached behaves as a miss rather than an error
// surface for callers, since the authenticator falls back to the auth
// service anyway.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a Redis-backed verdict cache.
func NewRedisCache(address string) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:         address,
		DialTimeout:  defaultDialTimeout,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	})
	return &RedisCache{client: client}
}

// Get retrieves a cached verdict, or nil on miss.
func (c *RedisCache) Get(ctx context.Context, key string) (*Verdict, error) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get verdict from redis: %w", err)
	}

	var verdict Verdict
	if err := json.Unmarshal(data, &verdict); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached verdict: %w", err)
	}
	if verdict.IsExpired() {
		return nil, nil
	}
	return &verdict, nil
}

// Set stores a verdict with the given TTL.
func (c *RedisCache) Set(ctx context.Context, key string, verdict *Verdict, ttl time.Duration) error {
	stored := *verdict
	stored.ExpiresAt = time.Now().Add(ttl)

	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal verdict: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store verdict in redis: %w", err)
	}
	return nil
}

// Delete removes a verdict from the cache.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete verdict from redis: %w", err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
