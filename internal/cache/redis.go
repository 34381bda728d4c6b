package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisAddr        = "localhost:6379"
	defaultRedisDialTimeout = 5 * time.Second
)

// hitWindow counts one hit and arms the window expiry on the first.
var hitWindow = redis.NewScript(`
	local hits = redis.call('INCR', KEYS[1])
	if hits == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return hits
`)

// RedisCache is the shared store for multi-replica deployments. Keys live
// under the kestrel: namespace, one sub-namespace per tenant.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects using the redis fields of cfg and pings the server once.
func NewRedisCache(cfg domain.CacheConfig) (*RedisCache, error) {
	opts := &redis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		PoolSize:    cfg.RedisPoolSize,
		DialTimeout: cfg.RedisDialTimeout,
	}
	if opts.Addr == "" {
		opts.Addr = defaultRedisAddr
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultRedisDialTimeout
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", opts.Addr, err)
	}
	return &RedisCache{client: client}, nil
}

func redisKey(tenantID, key string) (string, error) {
	k, err := scopedKey(tenantID, key)
	if err != nil {
		return "", err
	}
	return "kestrel:" + k, nil
}

func (c *RedisCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	k, err := redisKey(tenantID, key)
	if err != nil {
		return nil, err
	}
	val, err := c.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

func (c *RedisCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	k, err := redisKey(tenantID, key)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, k, value, ttl).Err()
}

func (c *RedisCache) SetIfAbsent(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) (bool, error) {
	k, err := redisKey(tenantID, key)
	if err != nil {
		return false, err
	}
	return c.client.SetNX(ctx, k, value, ttl).Result()
}

func (c *RedisCache) Delete(ctx context.Context, tenantID string, key string) error {
	k, err := redisKey(tenantID, key)
	if err != nil {
		return err
	}
	return c.client.Del(ctx, k).Err()
}

// IncrementCounter runs as one script so every replica shares the same window.
func (c *RedisCache) IncrementCounter(ctx context.Context, tenantID string, key string, span time.Duration) (int64, error) {
	k, err := redisKey(tenantID, counterPrefix+key)
	if err != nil {
		return 0, err
	}
	hits, err := hitWindow.Run(ctx, c.client, []string{k}, span.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("count window %s: %w", key, err)
	}
	return hits, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ domain.Cache = (*RedisCache)(nil)
