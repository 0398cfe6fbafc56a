package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// HeadCache remembers the most recently persisted block hash per stream so
// an append does not need a store read on the hot path. It is only an
// accelerator: on a miss callers fall back to the store, and the cache is
// updated strictly after a durable write succeeds.
type HeadCache interface {
	Get(ctx context.Context, streamID string) (string, bool)
	Set(ctx context.Context, streamID, hash string)
}

// MemoryHeadCache is the default process-local cache. It is constructed at
// service start and discarded at shutdown; there is no package-level
// singleton.
type MemoryHeadCache struct {
	mu    sync.RWMutex
	heads map[string]string
}

func NewMemoryHeadCache() *MemoryHeadCache {
	return &MemoryHeadCache{heads: make(map[string]string)}
}

func (c *MemoryHeadCache) Get(_ context.Context, streamID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hash, ok := c.heads[streamID]
	return hash, ok
}

func (c *MemoryHeadCache) Set(_ context.Context, streamID, hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.heads[streamID] = hash
}

// RedisHeadCache shares head hashes between processes. Errors fail open to
// a store read; the cache never becomes a source of truth.
type RedisHeadCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisHeadCache(addr, password string, db int) *RedisHeadCache {
	return &RedisHeadCache{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		ttl:    24 * time.Hour,
		logger: slog.Default().With("component", "head-cache"),
	}
}

// NewRedisHeadCacheFromURL builds a cache from a redis:// URL.
func NewRedisHeadCacheFromURL(url string) (*RedisHeadCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisHeadCache{
		client: redis.NewClient(opts),
		ttl:    24 * time.Hour,
		logger: slog.Default().With("component", "head-cache"),
	}, nil
}

func headKey(streamID string) string {
	return "ledger:head:" + streamID
}

func (c *RedisHeadCache) Get(ctx context.Context, streamID string) (string, bool) {
	val, err := c.client.Get(ctx, headKey(streamID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug("head cache read failed", "stream", streamID, "error", err)
		}
		return "", false
	}
	return val, true
}

func (c *RedisHeadCache) Set(ctx context.Context, streamID, hash string) {
	if err := c.client.Set(ctx, headKey(streamID), hash, c.ttl).Err(); err != nil {
		c.logger.Warn("head cache write failed", "stream", streamID, "error", err)
	}
}
