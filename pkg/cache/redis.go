package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harunnryd/voxa/pkg/errorsx"
	"github.com/redis/go-redis/v9"
)

type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisCache is the shared Cache used when several gateway replicas serve
// the same calls.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCache(ctx context.Context, opts RedisOptions) (*RedisCache, error) {
	if opts.Addr == "" {
		return nil, errorsx.NotConfigured("cache.redis")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return NewRedisCacheFromClient(client, opts.KeyPrefix), nil
}

func NewRedisCacheFromClient(client redis.UniversalClient, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (r *RedisCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, errorsx.Wrap(err, errorsx.ReasonCache)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, errorsx.Wrap(err, errorsx.ReasonCache)
	}
	return true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonCache)
	}
	return errorsx.Wrap(r.client.Set(ctx, r.prefix+key, data, ttl).Err(), errorsx.ReasonCache)
}

func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.prefix + k
	}
	return errorsx.Wrap(r.client.Del(ctx, full...).Err(), errorsx.ReasonCache)
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

var _ Cache = (*RedisCache)(nil)
