package peersync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// FailureCache remembers the last peer failure for a short time so repeated
// sync attempts do not hammer a broken peer.
type FailureCache interface {
	Get(ctx context.Context) (*PeerError, error)
	Set(ctx context.Context, perr *PeerError, ttl time.Duration) error
}

// FailureCacheKey is the Redis key holding the cached failure.
const FailureCacheKey = "linksync:peer:last_failure"

// RedisFailureCache stores the failure as JSON with a TTL.
type RedisFailureCache struct {
	client *redis.Client
}

// NewRedisFailureCache creates a Redis-backed failure cache.
func NewRedisFailureCache(client *redis.Client) *RedisFailureCache {
	return &RedisFailureCache{client: client}
}

func (c *RedisFailureCache) Get(ctx context.Context) (*PeerError, error) {
	raw, err := c.client.Get(ctx, FailureCacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var perr PeerError
	if err = json.Unmarshal(raw, &perr); err != nil {
		return nil, err
	}
	perr.Cached = true
	return &perr, nil
}

func (c *RedisFailureCache) Set(ctx context.Context, perr *PeerError, ttl time.Duration) error {
	raw, err := json.Marshal(perr)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, FailureCacheKey, raw, ttl).Err()
}

// MemoryFailureCache is the process-local cache used when Redis is disabled.
type MemoryFailureCache struct {
	mu      sync.Mutex
	perr    *PeerError
	expires time.Time
	now     func() time.Time
}

// NewMemoryFailureCache creates an in-process failure cache.
func NewMemoryFailureCache() *MemoryFailureCache {
	return &MemoryFailureCache{now: time.Now}
}

func (c *MemoryFailureCache) Get(_ context.Context) (*PeerError, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.perr == nil || !c.now().Before(c.expires) {
		return nil, nil
	}
	cached := *c.perr
	cached.Cached = true
	return &cached, nil
}

func (c *MemoryFailureCache) Set(_ context.Context, perr *PeerError, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.perr = perr
	c.expires = c.now().Add(ttl)
	return nil
}
