// Package redis implements the profile cache and the job queue transport on Redis.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/batalovmv/stream-alerts-sub001/internal/adapter/metrics"
	"github.com/batalovmv/stream-alerts-sub001/internal/platform/retry"
)

var connectPolicy = retry.Policy{
	MaxAttempts:      5,
	InitialBackoff:   500 * time.Millisecond,
	RateLimitBackoff: 2 * time.Second,
	OnRetry: func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Redis not reachable yet, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	},
}

// NewClient parses redisURL, installs the metrics and circuit breaker hooks and
// waits until the server answers PING. m may be nil.
func NewClient(ctx context.Context, redisURL string, m *metrics.RedisMetrics) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := goredis.NewClient(opts)
	client.AddHook(NewMetricsHook(m))
	client.AddHook(NewCircuitBreakerHook(m))

	err = retry.DoVoid(ctx, connectPolicy, retry.ClassifyError, func() error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}
