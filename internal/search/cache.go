package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"reticle/internal/detection"
	"reticle/internal/logging"
)

// CachingBackend decorates a Backend with a Redis cache keyed by the entity's
// lookup key. Cache failures never fail a lookup.
type CachingBackend struct {
	inner     Backend
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
}

// NewCachingBackend wraps inner. If ttl is 0 it defaults to 10 minutes; an
// empty namespace becomes "reticle:lookup".
func NewCachingBackend(rdb *redis.Client, ttl time.Duration, inner Backend, namespace string) *CachingBackend {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if namespace == "" {
		namespace = "reticle:lookup"
	}
	return &CachingBackend{inner: inner, rdb: rdb, ttl: ttl, namespace: namespace}
}

// Lookup checks the cache first, then falls back to the inner backend.
func (c *CachingBackend) Lookup(ctx context.Context, entity detection.Candidate) ([]Product, error) {
	lookupKey := entity.LookupKey()
	if c.rdb == nil || lookupKey == "" {
		return c.inner.Lookup(ctx, entity)
	}
	key := c.cacheKey(lookupKey)

	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out []Product
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
		_ = c.rdb.Del(ctx, key).Err()
	}

	out, err := c.inner.Lookup(ctx, entity)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}
	if b, err := json.Marshal(out); err == nil {
		_ = c.rdb.Set(ctx, key, b, c.ttl).Err()
	}
	return out, nil
}

// Purge deletes every cached lookup in the namespace and returns the count.
func (c *CachingBackend) Purge(ctx context.Context) (int, error) {
	if c.rdb == nil {
		return 0, nil
	}
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, c.namespace+":*", 200).Result()
		if err != nil {
			return removed, err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return removed, err
			}
			removed += len(keys)
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (c *CachingBackend) cacheKey(lookupKey string) string {
	return fmt.Sprintf("%s:%s", c.namespace, safe(lookupKey))
}

// safe escapes characters that are problematic for Redis keys.
func safe(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	return strings.ReplaceAll(s, ":", "_")
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int, logger *slog.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	if logger != nil {
		logger.Info("redis connection established", logging.String("address", addr))
	}
	return rdb, nil
}
