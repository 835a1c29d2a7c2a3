package inference

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ResponseStore holds raw model responses keyed by request hash.
type ResponseStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Invalidator drops a cached reply so the next identical request reaches
// the model again.
type Invalidator interface {
	Invalidate(ctx context.Context, req Request) error
}

// MemoryStore is an in-process store with LRU eviction and a fixed TTL.
type MemoryStore struct {
	lru *expirable.LRU[string, string]
}

// NewMemoryStore creates a memory store holding up to size entries.
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryStore{lru: expirable.NewLRU[string, string](size, nil, ttl)}
}

// Get implements ResponseStore.
func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.lru.Get(key)
	return v, ok, nil
}

// Set implements ResponseStore. The per-entry ttl is ignored; the store TTL applies.
func (m *MemoryStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.lru.Add(key, value)
	return nil
}

// Delete implements ResponseStore.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.lru.Remove(key)
	return nil
}

// Len returns the number of live entries.
func (m *MemoryStore) Len() int {
	return m.lru.Len()
}

// RedisStore shares cached responses between processes.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps a redis client. Keys are namespaced with prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "taskharvester:inference:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Get implements ResponseStore.
func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return v, true, nil
}

// Set implements ResponseStore.
func (r *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete implements ResponseStore.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// OpenResponseStore builds the store named by cfg. When redis is configured
// but unreachable, it falls back to memory and logs a warning.
func OpenResponseStore(ctx context.Context, cfg CacheConfig, logger *zap.Logger) (ResponseStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Backend != "redis" {
		return NewMemoryStore(cfg.MaxEntries, cfg.TTL), nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		logger.Warn("redis unavailable, using memory cache", zap.String("addr", opts.Addr), zap.Error(err))
		return NewMemoryStore(cfg.MaxEntries, cfg.TTL), nil
	}
	logger.Info("redis cache connected", zap.String("addr", opts.Addr))
	return NewRedisStore(client, ""), nil
}

// CachingClient returns stored responses for prompts it has already seen.
// Only successful responses are stored; store errors never fail a call.
type CachingClient struct {
	next   Client
	store  ResponseStore
	ttl    time.Duration
	logger *zap.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCachingClient wraps next with a response cache.
func NewCachingClient(next Client, store ResponseStore, ttl time.Duration, logger *zap.Logger) *CachingClient {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingClient{next: next, store: store, ttl: ttl, logger: logger}
}

// CacheKey is the SHA-256 of the model and prompt.
func CacheKey(req Request) string {
	h := sha256.New()
	h.Write([]byte(req.Model))
	h.Write([]byte{0})
	h.Write([]byte(req.Prompt))
	return hex.EncodeToString(h.Sum(nil))
}

// Generate implements Client.
func (c *CachingClient) Generate(ctx context.Context, req Request) (string, error) {
	key := CacheKey(req)
	if v, ok, err := c.store.Get(ctx, key); err != nil {
		c.logger.Warn("response cache read failed", zap.Error(err))
	} else if ok {
		c.hits.Add(1)
		recordCacheLookup(true)
		return v, nil
	}
	c.misses.Add(1)
	recordCacheLookup(false)

	out, err := c.next.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	if err := c.store.Set(ctx, key, out, c.ttl); err != nil {
		c.logger.Warn("response cache write failed", zap.Error(err))
	}
	return out, nil
}

// Invalidate implements Invalidator. Callers use it when a reply turned out
// to be unusable, so resubmitting the same prompt calls the model again.
func (c *CachingClient) Invalidate(ctx context.Context, req Request) error {
	return c.store.Delete(ctx, CacheKey(req))
}

// Status implements Client.
func (c *CachingClient) Status(ctx context.Context) (Status, error) {
	return c.next.Status(ctx)
}

// Stats returns cache hit and miss counts.
func (c *CachingClient) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

var (
	_ Client        = (*CachingClient)(nil)
	_ Invalidator   = (*CachingClient)(nil)
	_ ResponseStore = (*MemoryStore)(nil)
	_ ResponseStore = (*RedisStore)(nil)
)
