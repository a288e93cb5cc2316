package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// RedisTest returns a client for an empty Redis database. REDIS_URL selects
// an existing server; otherwise TESTCONTAINERS=1 starts a container. With
// neither the test is skipped. The database is flushed on cleanup.
func RedisTest(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		if os.Getenv("TESTCONTAINERS") != "1" {
			t.Skip("REDIS_URL not set and TESTCONTAINERS!=1, skipping integration test")
		}
		container, err := tcredis.Run(ctx, "redis:7-alpine")
		if err != nil {
			t.Fatalf("redistest: start redis container: %v", err)
		}
		t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

		url, err = container.ConnectionString(ctx)
		if err != nil {
			t.Fatalf("redistest: redis connection string: %v", err)
		}
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("redistest: parse redis URL: %v", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Fatalf("redistest: ping redis: %v", err)
	}
	t.Cleanup(func() {
		_ = client.FlushDB(ctx).Err()
		_ = client.Close()
	})
	return client
}
