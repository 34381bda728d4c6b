package domain

import (
	"context"
	"errors"
	"time"
)

// ErrTenantRequired is returned by stores that were handed an empty tenant ID.
var ErrTenantRequired = errors.New("tenantID is required")

// Cache is the tenant-scoped key/value store behind idempotent replays and
// per-tenant rate limits. Keys written under one tenant are never visible to another.
type Cache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// SetIfAbsent writes value only when key is unset and reports whether it did.
	SetIfAbsent(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) (bool, error)

	Delete(ctx context.Context, tenantID string, key string) error

	// IncrementCounter bumps a fixed-window counter and returns its new value.
	// The window opens on the first increment.
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig selects and tunes the cache backend.
type CacheConfig struct {
	// Type is "memory" (in-process LRU) or "redis".
	Type string `json:"type"`

	// In-process tier. With Redis it fronts reads when EnableTwoPhase is set.
	LocalMaxSize int           `json:"localMaxSize"`
	LocalTTL     time.Duration `json:"localTtl"`

	RedisAddr        string        `json:"redisAddr"`
	RedisPassword    string        `json:"-"`
	RedisDB          int           `json:"redisDb"`
	RedisPoolSize    int           `json:"redisPoolSize"`
	RedisDialTimeout time.Duration `json:"redisDialTimeout"`

	EnableTwoPhase bool `json:"enableTwoPhase"`
}
