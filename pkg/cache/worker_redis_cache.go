package cache

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// compareAndDelete removes KEYS[1] only while it still holds ARGV[1].
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// compareAndExpire resets the TTL of KEYS[1] to ARGV[2] ms only while it
// still holds ARGV[1].
var compareAndExpire = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisCache is a thin JSON-aware wrapper over a redis client.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns the raw value at key, or redis.Nil.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// SetNX stores value only if key is absent and reports whether it did.
func (c *RedisCache) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, value, ttl).Result()
}

// DeleteIfEquals deletes key when its current value equals value.
func (c *RedisCache) DeleteIfEquals(ctx context.Context, key, value string) (bool, error) {
	n, err := compareAndDelete.Run(ctx, c.client, []string{key}, value).Int()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ExpireIfEquals extends key to ttl when its current value equals value and
// reports whether it did.
func (c *RedisCache) ExpireIfEquals(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	n, err := compareAndExpire.Run(ctx, c.client, []string{key}, value, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetJSON decodes the JSON value at key into dest. It returns false when
// the key does not exist.
func (c *RedisCache) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}

	return true, nil
}

// SetJSON stores value encoded as JSON.
func (c *RedisCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}
