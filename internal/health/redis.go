// Package health provides health check implementations for the external
// dependencies behind the /ready probe.
package health

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisChecker reports whether the rate-limit store's Redis is reachable.
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker creates a new Redis health checker.
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

// HealthCheck sends a PING command.
func (r *RedisChecker) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
