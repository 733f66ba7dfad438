package health

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestRedisChecker_Creation(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})

	checker := NewRedisChecker(client)
	if checker == nil {
		t.Fatal("expected checker to be non-nil")
	}
	if checker.client != client {
		t.Error("expected checker client to match provided client")
	}
}

func TestRedisChecker_CancelledContext(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	checker := NewRedisChecker(client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := checker.HealthCheck(ctx); err == nil {
		t.Error("expected error with cancelled context and no server")
	}
}
