package cache

import (
	"context"
	"fmt"
	"path"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/vmihailenco/msgpack/v5"
)

type lruEntry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

// LRUCache is a bounded in-process Gateway.
// Values are stored encoded so callers never share mutable state.
type LRUCache struct {
	entries *lru.Cache
	now     func() time.Time
}

// NewLRUCache creates an in-process cache holding at most size entries.
func NewLRUCache(size int) (*LRUCache, error) {
	return NewLRUCacheWithClock(size, time.Now)
}

// NewLRUCacheWithClock creates an LRUCache that reads time from now.
func NewLRUCacheWithClock(size int, now func() time.Time) (*LRUCache, error) {
	entries, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &LRUCache{entries: entries, now: now}, nil
}

func (c *LRUCache) Get(_ context.Context, key string, target any) error {
	v, ok := c.entries.Get(key)
	if !ok {
		return ErrCacheMiss
	}

	entry := v.(lruEntry)
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.entries.Remove(key)
		return ErrCacheMiss
	}
	return msgpack.Unmarshal(entry.data, target)
}

func (c *LRUCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value %s: %w", key, err)
	}

	entry := lruEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries.Add(key, entry)
	return nil
}

func (c *LRUCache) Invalidate(_ context.Context, pattern string) error {
	for _, k := range c.entries.Keys() {
		key, ok := k.(string)
		if !ok {
			continue
		}
		matched, err := path.Match(pattern, key)
		if err != nil {
			return fmt.Errorf("invalid cache pattern %q: %w", pattern, err)
		}
		if matched {
			c.entries.Remove(key)
		}
	}
	return nil
}

// Len returns the number of cached entries, expired ones included.
func (c *LRUCache) Len() int {
	return c.entries.Len()
}
