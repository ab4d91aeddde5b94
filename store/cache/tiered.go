package cache

import (
	"context"
	"time"
)

// TieredCache layers the in-memory cache (L1) over an optional shared
// Redis cache (L2). L1 keeps hot entries local to the process; L2 lets
// several processes share one feedback window.
type TieredCache struct {
	l1 *Cache
	l2 *RedisCache
}

// TieredConfig holds the configuration for the tiered cache.
type TieredConfig struct {
	L1MaxItems int
	L1TTL      time.Duration
	Redis      *RedisConfig // nil disables the L2 tier
}

// DefaultTieredConfig returns a single-process configuration: L1 only.
func DefaultTieredConfig() *TieredConfig {
	return &TieredConfig{
		L1MaxItems: 1000,
		L1TTL:      30 * time.Minute,
	}
}

// NewTieredCache creates the tiered cache, connecting to Redis when
// configured.
func NewTieredCache(config *TieredConfig) (*TieredCache, error) {
	if config == nil {
		config = DefaultTieredConfig()
	}

	tc := &TieredCache{
		l1: New(Config{
			DefaultTTL:      config.L1TTL,
			CleanupInterval: time.Minute,
			MaxItems:        config.L1MaxItems,
		}),
	}

	if config.Redis != nil {
		l2, err := NewRedisCache(config.Redis)
		if err != nil {
			return nil, err
		}
		tc.l2 = l2
	}

	return tc, nil
}

// Decoder turns an L2 JSON payload back into the caller's value so a
// shared-tier hit can be promoted to L1 with its concrete type.
type Decoder func(data []byte) (any, error)

// Get checks L1, then L2. L2 hits are decoded and promoted to L1.
func (t *TieredCache) Get(ctx context.Context, key string, decode Decoder) (any, bool) {
	if value, found := t.l1.Get(ctx, key); found {
		return value, true
	}

	if t.l2 != nil {
		if data, found := t.l2.GetBytes(ctx, key); found && decode != nil {
			value, err := decode(data)
			if err != nil {
				t.l2.Delete(ctx, key)
				return nil, false
			}
			t.l1.Set(ctx, key, value)
			return value, true
		}
	}

	return nil, false
}

// SetWithTTL stores a value in both tiers with the given TTL.
func (t *TieredCache) SetWithTTL(ctx context.Context, key string, value any, ttl time.Duration) {
	t.l1.SetWithTTL(ctx, key, value, ttl)
	if t.l2 != nil {
		t.l2.SetWithTTL(ctx, key, value, ttl)
	}
}

// Delete removes a key from both tiers.
func (t *TieredCache) Delete(ctx context.Context, key string) {
	t.l1.Delete(ctx, key)
	if t.l2 != nil {
		t.l2.Delete(ctx, key)
	}
}

// DeletePrefix removes every key under prefix from both tiers.
func (t *TieredCache) DeletePrefix(ctx context.Context, prefix string) {
	t.l1.DeletePrefix(ctx, prefix)
	if t.l2 != nil {
		t.l2.DeletePrefix(ctx, prefix)
	}
}

// Size reports the number of L1 entries.
func (t *TieredCache) Size() int64 {
	return t.l1.Size()
}

// Close releases both tiers.
func (t *TieredCache) Close() error {
	if t.l2 != nil {
		if err := t.l2.Close(); err != nil {
			_ = t.l1.Close()
			return err
		}
	}
	return t.l1.Close()
}
