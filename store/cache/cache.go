package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Config configures the in-memory cache.
type Config struct {
	DefaultTTL      time.Duration // Default TTL for entries (default: 5 minutes)
	CleanupInterval time.Duration // Interval for expired entry cleanup (default: 1 minute)
	MaxItems        int           // Maximum number of entries (default: 1000)
}

type item struct {
	value     any
	expiresAt time.Time
}

func (i item) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && now.After(i.expiresAt)
}

// Cache is an in-memory cache with per-entry TTL and a background janitor.
type Cache struct {
	data       sync.Map
	size       atomic.Int64
	defaultTTL time.Duration
	maxItems   int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an in-memory cache and starts its cleanup loop.
func New(config Config) *Cache {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 5 * time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}
	if config.MaxItems <= 0 {
		config.MaxItems = 1000
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		defaultTTL: config.DefaultTTL,
		maxItems:   config.MaxItems,
		cancel:     cancel,
	}

	c.wg.Add(1)
	go c.cleanupLoop(ctx, config.CleanupInterval)

	return c
}

func (c *Cache) Set(ctx context.Context, key string, value any) {
	c.SetWithTTL(ctx, key, value, c.defaultTTL)
}

func (c *Cache) SetWithTTL(_ context.Context, key string, value any, ttl time.Duration) {
	if c.size.Load() >= int64(c.maxItems) {
		c.evictExpired()
		if c.size.Load() >= int64(c.maxItems) {
			// Still full after eviction; drop one arbitrary entry.
			c.data.Range(func(k, _ any) bool {
				c.data.Delete(k)
				c.size.Add(-1)
				return false
			})
		}
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	if _, loaded := c.data.Swap(key, item{value: value, expiresAt: expiresAt}); !loaded {
		c.size.Add(1)
	}
}

func (c *Cache) Get(_ context.Context, key string) (any, bool) {
	v, ok := c.data.Load(key)
	if !ok {
		return nil, false
	}
	entry := v.(item)
	if entry.expired(time.Now()) {
		c.data.Delete(key)
		c.size.Add(-1)
		return nil, false
	}
	return entry.value, true
}

func (c *Cache) Delete(_ context.Context, key string) {
	if _, loaded := c.data.LoadAndDelete(key); loaded {
		c.size.Add(-1)
	}
}

// DeletePrefix removes every entry whose key starts with prefix.
func (c *Cache) DeletePrefix(_ context.Context, prefix string) {
	c.data.Range(func(k, _ any) bool {
		if strings.HasPrefix(k.(string), prefix) {
			if _, loaded := c.data.LoadAndDelete(k); loaded {
				c.size.Add(-1)
			}
		}
		return true
	})
}

func (c *Cache) Clear(_ context.Context) {
	c.data.Range(func(k, _ any) bool {
		c.data.Delete(k)
		return true
	})
	c.size.Store(0)
}

func (c *Cache) Size() int64 {
	return c.size.Load()
}

// Close stops the cleanup loop.
func (c *Cache) Close() error {
	c.cancel()
	c.wg.Wait()
	return nil
}

func (c *Cache) cleanupLoop(ctx context.Context, interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *Cache) evictExpired() {
	now := time.Now()
	c.data.Range(func(k, v any) bool {
		if v.(item).expired(now) {
			if _, loaded := c.data.LoadAndDelete(k); loaded {
				c.size.Add(-1)
			}
		}
		return true
	})
}
