package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"impact-cost-lab/internal/domain"
)

// DefaultNamespace prefixes ADV keys in Redis.
const DefaultNamespace = "adv"

// RedisCache is a Redis-backed implementation of ADVCache.
type RedisCache struct {
	client    *redis.Client
	namespace string
}

// NewRedisCache creates a RedisCache from a redis URL
// (redis://host:port/db) and verifies the connection.
func NewRedisCache(ctx context.Context, url, namespace string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &RedisCache{client: client, namespace: namespace}, nil
}

// Compile-time interface check.
var _ ADVCache = (*RedisCache)(nil)

// GetADV retrieves a cached ADV payload.
func (c *RedisCache) GetADV(ctx context.Context, ticker string, date time.Time) (*domain.CachedADV, error) {
	raw, err := c.client.Get(ctx, Key(c.namespace, ticker, date)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var payload domain.CachedADV
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		// A corrupt entry behaves like a miss; the durable store wins.
		return nil, ErrCacheMiss
	}
	return &payload, nil
}

// SetADV stores a payload with a bounded TTL.
func (c *RedisCache) SetADV(ctx context.Context, payload *domain.CachedADV, ttl time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal cached adv: %w", err)
	}

	date, err := time.Parse(domain.DateLayout, payload.Date)
	if err != nil {
		return fmt.Errorf("parse cached adv date: %w", err)
	}

	if err := c.client.Set(ctx, Key(c.namespace, payload.Ticker, date), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
