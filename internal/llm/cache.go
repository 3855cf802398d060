package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"dolphinpod/internal/metrics"
)

// ReportCache stores generated daily reports so repeated requests for the
// same user and day do not hit the provider again.
type ReportCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// RedisReportCache keeps entries under "dolphinpod:report:<key>" with a TTL.
type RedisReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisReportCache(client *redis.Client, ttl time.Duration) *RedisReportCache {
	return &RedisReportCache{client: client, ttl: ttl}
}

// NewRedisClient connects and pings so a bad address fails at startup.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func reportKey(key string) string {
	return "dolphinpod:report:" + key
}

func (c *RedisReportCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, reportKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.ReportCache.WithLabelValues("miss").Inc()
		return nil, false, nil
	}
	if err != nil {
		metrics.ReportCache.WithLabelValues("error").Inc()
		return nil, false, err
	}
	metrics.ReportCache.WithLabelValues("hit").Inc()
	return val, true, nil
}

func (c *RedisReportCache) Set(ctx context.Context, key string, value []byte) error {
	return c.client.Set(ctx, reportKey(key), value, c.ttl).Err()
}
