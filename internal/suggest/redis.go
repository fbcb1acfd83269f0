package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"tripplanner/internal/model"
)

// RedisCache shares suggestion sets between planner instances.
type RedisCache struct {
	rdb    redis.Cmdable
	prefix string
}

// NewRedisCache connects to the Redis server at url (redis://...).
func NewRedisCache(url string) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisCache{rdb: redis.NewClient(opt), prefix: "tripplanner:"}, nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(rdb redis.Cmdable) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: "tripplanner:"}
}

func (c *RedisCache) Get(ctx context.Context, key string) (model.DaySuggestions, bool, error) {
	raw, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.DaySuggestions{}, false, nil
	}
	if err != nil {
		return model.DaySuggestions{}, false, err
	}
	var v model.DaySuggestions
	if err := json.Unmarshal(raw, &v); err != nil {
		// treat a corrupt entry as a miss; the next Set overwrites it
		return model.DaySuggestions{}, false, nil
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, v model.DaySuggestions, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	return c.rdb.Set(ctx, c.prefix+key, data, ttl).Err()
}

func (c *RedisCache) Evict(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, c.prefix+key).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
