package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"rfq-realtime/config"
)

// redisCache delegates every operation to a shared Redis instance. Entries
// survive process restarts and are visible to every gateway instance, which
// is what makes cross-process membership snapshots possible.
type redisCache struct {
	client *redis.Client
}

// NewCache connects to Redis and verifies reachability with a single ping.
// A failed ping is returned to the caller so selection can fall back to a
// local backing; there is no retry loop here beyond the client's own policy.
func NewCache(cfg config.Redis) (*redisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       cfg.Addr(),
		Password:   cfg.Password,
		DB:         cfg.DB,
		MaxRetries: 3,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &redisCache{client: client}, nil
}

func (c *redisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Failed to encode cache value")
		return
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Redis set failed")
	}
}

func (c *redisCache) Get(ctx context.Context, key string, dest any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logrus.WithError(err).WithField("key", key).Warn("Redis get failed")
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Failed to decode cache value")
		return false
	}
	return true
}

func (c *redisCache) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Redis delete failed")
	}
}

func (c *redisCache) Keys(ctx context.Context, prefix string) []string {
	keys := make([]string, 0)
	iter := c.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		logrus.WithError(err).WithField("prefix", prefix).Warn("Redis scan failed")
	}
	return keys
}

func (c *redisCache) Size() int {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := c.client.DBSize(ctx).Result()
	if err != nil {
		logrus.WithError(err).Warn("Redis dbsize failed")
		return 0
	}
	return int(n)
}

func (c *redisCache) Close() error {
	return c.client.Close()
}
