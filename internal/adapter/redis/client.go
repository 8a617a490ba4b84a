// Package redis holds the Redis-backed parts of the service: the binding cache
// in front of PostgreSQL and the publish relay that fans admin changes out to
// every instance.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pscheid92/activate/internal/platform/retry"
	goredis "github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

var errInvalidURL = errors.New("invalid redis URL")

// ClassifyDialError tells the startup retry loop which NewClient failures
// waiting cannot fix: a malformed URL or rejected credentials.
func ClassifyDialError(err error) retry.Action {
	if errors.Is(err, errInvalidURL) ||
		goredis.HasErrorPrefix(err, "WRONGPASS") ||
		goredis.HasErrorPrefix(err, "NOAUTH") {
		return retry.Stop
	}
	return retry.Retry
}

// NewClient parses redisURL, installs the circuit breaker hook followed by
// any extra hooks and verifies the connection.
func NewClient(ctx context.Context, redisURL string, hooks ...goredis.Hook) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidURL, err)
	}

	rdb := goredis.NewClient(opts)
	rdb.AddHook(NewCircuitBreakerHook())
	for _, hook := range hooks {
		rdb.AddHook(hook)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}
