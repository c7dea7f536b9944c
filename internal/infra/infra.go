// Package infra holds the small shared plumbing the fetch paths lean
// on: an expiring in-memory cache (generation responses, robots rules,
// the CIK map), a token-bucket pacer for upstream APIs with per-second
// etiquette (SEC EDGAR), and the HTTP GET helpers.
package infra

import (
	"context"
	"sync"
	"time"
)

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// Cache is a TTL map safe for concurrent use. Expired entries are
// overwritten on the next Set for the same key; there is no background
// sweeper, which is fine at the key cardinality seen here (hosts,
// prompts, one registry blob).
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

// NewCache creates a cache whose entries live for ttl.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{entries: make(map[string]cacheEntry), ttl: ttl}
}

// Get returns the live value for key, or false when absent or expired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

// Set stores value under key for the cache's TTL.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{value: value, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// RateLimiter paces calls at maxTokens per refill window using a token
// bucket. A full bucket at start lets short bursts through; sustained
// load settles at the configured rate.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     int
	maxTokens  int
	window     time.Duration
	lastRefill time.Time
}

// NewRateLimiter allows maxTokens calls per window.
func NewRateLimiter(maxTokens int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		window:     window,
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available or ctx ends.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		rl.refill()
		if rl.tokens > 0 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}
		rl.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rl.window / 4):
		}
	}
}

// refill credits whole elapsed windows. Caller holds mu.
func (rl *RateLimiter) refill() {
	elapsed := time.Since(rl.lastRefill)
	if elapsed < rl.window {
		return
	}
	periods := int(elapsed / rl.window)
	rl.tokens += periods
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefill = rl.lastRefill.Add(time.Duration(periods) * rl.window)
}
