package db

import (
	"context"
	"testing"
	"time"
)

func TestOpen_BadURL(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := Open(ctx, "postgres://nobody@127.0.0.1:1/void?sslmode=disable&connect_timeout=1"); err == nil {
		t.Error("expected error for unreachable database")
	}
}
