package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/santiscally/grafica-los-rumbos/internal/platform/config"
)

const (
	defaultPrefix = "rumbos:catalog:"
	defaultTTL    = 5 * time.Minute
	generationKey = "generation"
)

// NewRedisClient returns a connected client for cfg. The caller owns Close.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("cache: redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: ping redis: %w", err)
	}
	return client, nil
}

// CatalogCache keeps JSON-encoded catalog listings in Redis. Entries are namespaced by a generation
// number; Invalidate bumps the generation so every older entry becomes unreachable and expires on
// its own TTL.
type CatalogCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewCatalogCache wraps client. A non-positive ttl uses five minutes.
func NewCatalogCache(client redis.UniversalClient, prefix string, ttl time.Duration) *CatalogCache {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &CatalogCache{client: client, prefix: prefix, ttl: ttl}
}

// Load decodes the cached value for key into dst and reports whether it was present.
func (c *CatalogCache) Load(ctx context.Context, key string, dst any) (bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return false, err
	}
	raw, err := c.client.Get(ctx, c.entryKey(gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return true, nil
}

// Store saves value under key for the configured TTL.
func (c *CatalogCache) Store(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	gen, err := c.generation(ctx)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.entryKey(gen, key), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Invalidate drops every cached listing.
func (c *CatalogCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.prefix+generationKey).Err(); err != nil {
		return fmt.Errorf("redis incr generation: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (c *CatalogCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *CatalogCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.prefix+generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation: %w", err)
	}
	return gen, nil
}

func (c *CatalogCache) entryKey(gen int64, key string) string {
	return fmt.Sprintf("%s%d:%s", c.prefix, gen, key)
}
