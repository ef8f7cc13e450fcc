package history

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"peterbot/internal/types"
)

// redisStore implements Store using Redis string keys with native expiry.
type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func newRedisStore(client *redis.Client, cfg *storeConfig) *redisStore {
	return &redisStore{
		client: client,
		ttl:    cfg.ttl,
		prefix: cfg.keyPrefix,
	}
}

// Get implements Store.
func (s *redisStore) Get(ctx context.Context, anchor types.Anchor) ([]types.Turn, error) {
	val, err := s.client.Get(ctx, s.key(anchor)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeTurns(val)
}

// Set implements Store.
func (s *redisStore) Set(ctx context.Context, anchor types.Anchor, turns []types.Turn, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	val, err := encodeTurns(turns)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(anchor), val, ttl).Err()
}

// Delete implements Store.
func (s *redisStore) Delete(ctx context.Context, anchor types.Anchor) error {
	return s.client.Del(ctx, s.key(anchor)).Err()
}

// Close implements Store.
func (s *redisStore) Close() error {
	return s.client.Close()
}

// key constructs the Redis key for an anchor.
func (s *redisStore) key(anchor types.Anchor) string {
	return s.prefix + string(anchor)
}
