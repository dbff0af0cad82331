// Package cache implements the optional Redis read-through tier for the
// pricing catalog and OpenRouter snapshot (SPEC_FULL.md §11), so a
// refresh in one gateway replica is visible to its siblings without each
// one re-hitting the OpenRouter API on its own schedule.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "llmgate"

// Cache is a thin read-through wrapper over a Redis client. A nil *Cache
// is valid and behaves as an always-miss cache (internal/config: "empty
// Addr disables the cache tier entirely"), so callers never need a
// separate no-op implementation.
type Cache struct {
	client redis.UniversalClient
}

// New dials addr and verifies connectivity with a short-timeout ping. An
// empty addr returns (nil, nil): callers get a valid always-miss Cache
// rather than an error, since Redis is optional per SPEC_FULL.md §10.1.
func New(addr, password string, db int) (*Cache, error) {
	if addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: connecting to redis at %q: %w", addr, err)
	}

	return &Cache{client: client}, nil
}

// NewWithClient wraps an already-constructed client, used by tests to
// wire in a miniredis-backed client directly.
func NewWithClient(client redis.UniversalClient) *Cache {
	return &Cache{client: client}
}

func (c *Cache) key(name string) string {
	return fmt.Sprintf("%s:%s", keyPrefix, name)
}

// Get returns the raw bytes stored under name, or ok=false on a miss (or
// when the cache tier is disabled).
func (c *Cache) Get(ctx context.Context, name string) ([]byte, bool, error) {
	if c == nil {
		return nil, false, nil
	}

	val, err := c.client.Get(ctx, c.key(name)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %q: %w", name, err)
	}
	return val, true, nil
}

// Set stores raw bytes under name with ttl. A nil receiver is a no-op,
// matching Get's always-miss behavior when the cache tier is disabled.
func (c *Cache) Set(ctx context.Context, name string, value []byte, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	if err := c.client.Set(ctx, c.key(name), value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %q: %w", name, err)
	}
	return nil
}

// Close releases the underlying client. A nil receiver is a no-op.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// Enabled reports whether this Cache actually talks to Redis, as opposed
// to being the nil always-miss stand-in.
func (c *Cache) Enabled() bool { return c != nil }
