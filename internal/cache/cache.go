package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const counterPrefix = "counter:"

// scopedKey places key in the tenant's namespace.
func scopedKey(tenantID, key string) (string, error) {
	if tenantID == "" {
		return "", domain.ErrTenantRequired
	}
	return tenantID + ":" + key, nil
}

// New builds the cache selected by cfg.Type. Redis is fronted by an
// in-process tier when cfg.EnableTwoPhase is set.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil
	case "redis":
		far, err := NewRedisCache(cfg)
		if err != nil {
			return nil, err
		}
		if !cfg.EnableTwoPhase {
			return far, nil
		}
		return NewTieredCache(NewLRUCache(cfg.LocalMaxSize), far, cfg.LocalTTL), nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %q", cfg.Type)
	}
}

// TieredCache reads through a per-replica near tier to a shared far tier.
// Writes, claims and counters are decided by the far tier.
type TieredCache struct {
	near    *LRUCache
	far     domain.Cache
	nearTTL time.Duration
}

// NewTieredCache keeps near copies for at most nearTTL, one minute when unset.
func NewTieredCache(near *LRUCache, far domain.Cache, nearTTL time.Duration) *TieredCache {
	if nearTTL <= 0 {
		nearTTL = time.Minute
	}
	return &TieredCache{near: near, far: far, nearTTL: nearTTL}
}

func (c *TieredCache) nearFor(ttl time.Duration) time.Duration {
	return min(ttl, c.nearTTL)
}

func (c *TieredCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if val, err := c.near.Get(ctx, tenantID, key); err != nil || val != nil {
		return val, err
	}
	val, err := c.far.Get(ctx, tenantID, key)
	if err != nil || val == nil {
		return val, err
	}
	_ = c.near.Set(ctx, tenantID, key, val, c.nearTTL)
	return val, nil
}

func (c *TieredCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if err := c.far.Set(ctx, tenantID, key, value, ttl); err != nil {
		return err
	}
	return c.near.Set(ctx, tenantID, key, value, c.nearFor(ttl))
}

func (c *TieredCache) SetIfAbsent(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := c.far.SetIfAbsent(ctx, tenantID, key, value, ttl)
	if err != nil || !ok {
		return ok, err
	}
	return true, c.near.Set(ctx, tenantID, key, value, c.nearFor(ttl))
}

func (c *TieredCache) Delete(ctx context.Context, tenantID string, key string) error {
	return errors.Join(
		c.near.Delete(ctx, tenantID, key),
		c.far.Delete(ctx, tenantID, key),
	)
}

func (c *TieredCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	return c.far.IncrementCounter(ctx, tenantID, key, window)
}

func (c *TieredCache) Ping(ctx context.Context) error {
	return c.far.Ping(ctx)
}

func (c *TieredCache) Close() error {
	return errors.Join(c.near.Close(), c.far.Close())
}

// Stats reports the near tier.
func (c *TieredCache) Stats() Stats {
	return c.near.Stats()
}

var _ domain.Cache = (*TieredCache)(nil)
