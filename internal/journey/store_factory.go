package journey

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// StoreType selects an attempt store backend.
type StoreType string

const (
	StoreMemory   StoreType = "memory"
	StorePostgres StoreType = "postgres"
	StoreRedis    StoreType = "redis"
)

// StoreConfig selects and configures the attempt store.
type StoreConfig struct {
	Type     StoreType
	DB       *sql.DB // required for postgres
	RedisURL string  // required for redis
}

// ErrStoreConfig marks store errors that retrying cannot fix.
var ErrStoreConfig = errors.New("journey: invalid attempt store configuration")

// OpenedStore is a store plus the hooks the server needs around it.
type OpenedStore struct {
	Store Store
	// Ping is nil for the memory store.
	Ping  func(ctx context.Context) error
	Close func() error
}

// OpenStore builds the configured store. A Redis store is pinged before it
// is returned.
func OpenStore(ctx context.Context, cfg StoreConfig) (*OpenedStore, error) {
	noop := func() error { return nil }

	switch cfg.Type {
	case StoreMemory, "":
		return &OpenedStore{Store: NewMemoryStore(), Close: noop}, nil

	case StorePostgres:
		if cfg.DB == nil {
			return nil, errors.Wrap(ErrStoreConfig, "postgres attempt store requires DATABASE_URL")
		}
		s := NewPostgresStore(cfg.DB)
		return &OpenedStore{Store: s, Ping: s.Ping, Close: noop}, nil

	case StoreRedis:
		if cfg.RedisURL == "" {
			return nil, errors.Wrap(ErrStoreConfig, "redis attempt store requires REDIS_URL")
		}
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, errors.Wrapf(ErrStoreConfig, "parse REDIS_URL: %v", err)
		}
		client := redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, errors.Wrap(err, "journey: redis connection failed")
		}
		s := NewRedisStore(client, "")
		return &OpenedStore{Store: s, Ping: s.Ping, Close: client.Close}, nil

	default:
		return nil, errors.Wrapf(ErrStoreConfig, "unknown attempt store %q", cfg.Type)
	}
}
