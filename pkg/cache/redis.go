// Package cache wraps the Redis client used for wallet snapshot caching.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(url, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     url,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisCache{client: client}, nil
}

// NewWithClient wraps an existing client. Useful in tests.
func NewWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// HGet returns the value of a hash field, or ("", redis.Nil) when unset.
func (c *RedisCache) HGet(ctx context.Context, key, field string) (string, error) {
	return c.client.HGet(ctx, key, field).Result()
}

func (c *RedisCache) HSet(ctx context.Context, key, field, value string) error {
	return c.client.HSet(ctx, key, field, value).Err()
}

// HSetAll writes several hash fields in one pipelined round trip.
func (c *RedisCache) HSetAll(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for field, value := range fields {
		pipe.HSet(ctx, key, field, value)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisCache) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.client.HGetAll(ctx, key).Result()
}

// HGetAllMulti fetches several hashes in one pipelined round trip, keyed by
// the requested key.
func (c *RedisCache) HGetAllMulti(ctx context.Context, keys []string) (map[string]map[string]string, error) {
	pipe := c.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.HGetAll(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	result := make(map[string]map[string]string, len(keys))
	for i, key := range keys {
		fields, err := cmds[i].Result()
		if err != nil {
			return nil, err
		}
		result[key] = fields
	}
	return result, nil
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	result, err := c.client.Exists(ctx, key).Result()
	return result > 0, err
}

func (c *RedisCache) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return c.client.Expire(ctx, key, expiration).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// IsMiss reports whether an error from HGet means "field not cached".
func IsMiss(err error) bool {
	return err == redis.Nil
}
