package services

import (
	"context"
	"fmt"
	"time"

	"github.com/MegaGrindStone/chatbot-widget/internal/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Redis implements the rate limiter window store on a Redis server, so every server instance sharing the
// server sees the same counters.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to the Redis server at redisURL and verifies the connection.
func NewRedis(ctx context.Context, redisURL string) (Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return Redis{}, errors.Wrap(err, "invalid redis url")
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return Redis{}, errors.Wrap(err, "failed to ping redis")
	}

	return Redis{client: client}, nil
}

// Hit records one request for key in the fixed window containing now and returns how many requests were
// recorded in that window before this one.
func (r Redis) Hit(ctx context.Context, key string, window time.Duration, now time.Time) (int64, error) {
	windowKey := fmt.Sprintf("ratelimit:%s:%d", key, middleware.WindowIndex(now, window))
	windowStart := now.Add(-window)

	pipe := r.client.Pipeline()

	pipe.ZRemRangeByScore(ctx, windowKey, "-inf", fmt.Sprintf("%d", windowStart.UnixMilli()))
	countCmd := pipe.ZCard(ctx, windowKey)
	pipe.ZAdd(ctx, windowKey, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: ulid.Make().String(),
	})
	pipe.Expire(ctx, windowKey, window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, errors.Wrap(err, "failed to record hit")
	}

	return countCmd.Val(), nil
}

// Ping checks the Redis connection.
func (r Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r Redis) Close() error {
	return r.client.Close()
}
