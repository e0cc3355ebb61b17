package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryProvider is an in-process Provider with per-entry TTL.
type MemoryProvider struct {
	mu    sync.Mutex
	data  map[string]entry
	clock func() time.Time
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryProvider creates an empty in-memory cache. clock may be nil.
func NewMemoryProvider(clock func() time.Time) *MemoryProvider {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryProvider{data: make(map[string]entry), clock: clock}
}

// Get returns a copy of the value stored under key, or ErrCacheMiss when the
// key is absent or expired.
func (c *MemoryProvider) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !it.expiresAt.IsZero() && !c.clock().Before(it.expiresAt) {
		delete(c.data, key)
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), it.value...), nil
}

// Set stores a copy of value; a non-positive ttl never expires.
func (c *MemoryProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var expires time.Time
	if ttl > 0 {
		expires = c.clock().Add(ttl)
	}
	c.data[key] = entry{value: append([]byte(nil), value...), expiresAt: expires}
	return nil
}

// Del removes key. A key ending in '*' removes every key with that prefix.
func (c *MemoryProvider) Del(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prefix, ok := strings.CutSuffix(key, "*"); ok {
		for k := range c.data {
			if strings.HasPrefix(k, prefix) {
				delete(c.data, k)
			}
		}
		return nil
	}
	delete(c.data, key)
	return nil
}

// Close drops every entry.
func (c *MemoryProvider) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]entry)
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryProvider) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
