package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"stockledger/backend/internal/domain"
)

type RedisReorderPlanCache struct {
	client *redis.Client
}

func NewRedisReorderPlanCache(addr string, password string, db int) *RedisReorderPlanCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisReorderPlanCache{client: client}
}

func (c *RedisReorderPlanCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReorderPlanCache) Close() error {
	return c.client.Close()
}

func (c *RedisReorderPlanCache) Get(ctx context.Context, key string) (*domain.ReorderPlan, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var plan domain.ReorderPlan
	if err := json.Unmarshal([]byte(val), &plan); err != nil {
		return nil, false, err
	}
	return &plan, true, nil
}

func (c *RedisReorderPlanCache) Set(ctx context.Context, key string, value *domain.ReorderPlan, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisReorderPlanCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
