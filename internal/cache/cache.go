package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultTTL = time.Hour

// Cache is a small in-process TTL cache for rendered response payloads.
// Expired entries are dropped lazily on read.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	clock   func() time.Time
}

type entry struct {
	value     any
	expiresAt time.Time
}

// Config tunes the cache; zero values fall back to defaults.
type Config struct {
	TTL   time.Duration
	Clock func() time.Time
}

// New constructs a cache.
func New(cfg Config) *Cache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		clock:   clock,
	}
}

// Get returns the cached value when present and unexpired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	cached, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.clock().After(cached.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return cached.value, true
}

// Set stores the value under key for the configured TTL.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: c.clock().Add(c.ttl)}
	c.mu.Unlock()
}

// Delete removes one key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// DeletePrefix removes every key sharing the prefix. Mutation handlers use
// this to invalidate all pages of a listing at once.
func (c *Cache) DeletePrefix(prefix string) {
	c.mu.Lock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

// Clear drops everything.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// TodosKey builds the cache key for one page of a user's todo listing.
func TodosKey(userID string, page, limit int, status string) string {
	if status == "" {
		status = "all"
	}
	return fmt.Sprintf("todos:%s:%d:%d:%s", userID, page, limit, status)
}

// TodosPrefix covers every cached todo page of the user.
func TodosPrefix(userID string) string {
	return "todos:" + userID + ":"
}

// UserKey builds the cache key for a user profile.
func UserKey(userID string) string {
	return "user:" + userID + ":profile"
}

// ContentKey is the cache key for the site-wide CMS content map.
const ContentKey = "content:all"

// PagesAllKey and PagesPublishedKey cache the two page listings.
const (
	PagesAllKey       = "pages:all"
	PagesPublishedKey = "pages:published"
)

// PageContentKey builds the cache key for one page's section map.
func PageContentKey(pageID string) string {
	return "content:page:" + pageID
}
