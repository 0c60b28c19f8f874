package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// KVStore implements repository.KVStore using Redis.
type KVStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewKVStore creates a Redis-backed store. A zero ttl keeps keys forever.
func NewKVStore(client *redis.Client, ttl time.Duration) *KVStore {
	return &KVStore{client: client, ttl: ttl}
}

// Get returns the value stored under key.
func (s *KVStore) Get(ctx context.Context, key string) (_ []byte, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemRedis, "kv.get", "GET "+key)
	defer func() { end(err) }()

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

// Set stores value under key, overwriting any previous value.
func (s *KVStore) Set(ctx context.Context, key string, value []byte) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemRedis, "kv.set", "SET "+key)
	defer func() { end(err) }()

	if err := s.client.Set(ctx, key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Remove deletes key.
func (s *KVStore) Remove(ctx context.Context, key string) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemRedis, "kv.remove", "DEL "+key)
	defer func() { end(err) }()

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
