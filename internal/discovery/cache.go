package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kozaktomas/photo-sentry/internal/logging"
)

// Cache keeps per-engine discovery results in Redis so repeated scans of the
// same asset do not burn backend quota. A nil *Cache behaves as an always-miss
// cache, so callers never have to branch on whether caching is enabled.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logging.Logger
}

// NewCache wraps a Redis client as a discovery cache. A nil client yields a
// nil cache, which is safe to use.
func NewCache(client *redis.Client, ttl time.Duration, log *logging.Logger) *Cache {
	if client == nil {
		return nil
	}
	return &Cache{
		client: client,
		ttl:    ttl,
		log:    log,
	}
}

// cacheKey builds the Redis key for one engine, probe and candidate budget.
// The budget is part of the key because it changes what the engine returns.
func cacheKey(engine, assetID string, maxCandidates int) string {
	return fmt.Sprintf("discovery:%s:%s:%d", engine, assetID, maxCandidates)
}

// Get returns the cached result for one engine and probe, or nil on a miss.
// Redis failures are logged and degrade to a miss.
func (c *Cache) Get(ctx context.Context, engine, assetID string, maxCandidates int) *Result {
	if c == nil || c.client == nil {
		return nil
	}

	payload, err := c.client.Get(ctx, cacheKey(engine, assetID, maxCandidates)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("failed to read discovery cache", "engine", engine, "error", err)
		}
		return nil
	}

	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		c.log.Warn("failed to decode cached discovery result", "engine", engine, "error", err)
		return nil
	}

	result.CacheHit = true
	return &result
}

// Put stores a fresh engine result with the configured TTL.
func (c *Cache) Put(ctx context.Context, engine, assetID string, maxCandidates int, result *Result) {
	if c == nil || c.client == nil || result == nil {
		return
	}

	stored := *result
	stored.CacheHit = false
	stored.DurationMs = 0

	payload, err := json.Marshal(stored)
	if err != nil {
		c.log.Warn("failed to encode discovery result for cache", "engine", engine, "error", err)
		return
	}

	if err := c.client.Set(ctx, cacheKey(engine, assetID, maxCandidates), payload, c.ttl).Err(); err != nil {
		c.log.Warn("failed to write discovery cache", "engine", engine, "error", err)
	}
}
