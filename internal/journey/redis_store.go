package journey

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

const defaultRedisKeyPrefix = "tmxauth:attempt:"

// RedisStore keeps attempts in Redis, one JSON value per attempt. The key
// expires with the attempt.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStore creates a Redis-backed attempt store. An empty keyPrefix
// uses "tmxauth:attempt:".
func NewRedisStore(client redis.UniversalClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = defaultRedisKeyPrefix
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) key(id string) string {
	return s.keyPrefix + id
}

func (s *RedisStore) Create(ctx context.Context, a *Attempt) error {
	data, err := encodeAttempt(a)
	if err != nil {
		return err
	}
	var ttl time.Duration
	if !a.ExpiresAt.IsZero() {
		remaining := time.Until(a.ExpiresAt)
		if remaining <= 0 {
			return errors.Newf("journey: attempt %s already expired", a.ID)
		}
		ttl = remaining + ExpiredRetention
	}

	ok, err := s.client.SetNX(ctx, s.key(a.ID), data, ttl).Result()
	if err != nil {
		return errors.Wrap(err, "journey: redis create attempt")
	}
	if !ok {
		return errors.Newf("journey: attempt %s already exists", a.ID)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Attempt, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "journey: redis get attempt")
	}
	return decodeAttempt(data)
}

// Update overwrites an existing attempt and keeps its remaining TTL.
func (s *RedisStore) Update(ctx context.Context, a *Attempt) error {
	data, err := encodeAttempt(a)
	if err != nil {
		return err
	}
	err = s.client.SetArgs(ctx, s.key(a.ID), data, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if errors.Is(err, redis.Nil) {
		return ErrAttemptNotFound
	}
	if err != nil {
		return errors.Wrap(err, "journey: redis update attempt")
	}
	return nil
}

// Ping checks Redis connectivity for readiness probes.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
