package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCacheStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCacheStore(client redis.UniversalClient, prefix string) *RedisCacheStore {
	if prefix == "" {
		prefix = "cache"
	}
	return &RedisCacheStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisCacheStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.client == nil {
		return nil, false, nil
	}
	raw, err := s.client.Get(ctx, s.dataKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// Set writes value with ttl; a non-positive ttl stores without expiry.
func (s *RedisCacheStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.client == nil {
		return nil
	}
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, s.dataKey(key), value, ttl).Err()
}

func (s *RedisCacheStore) Delete(ctx context.Context, keys ...string) error {
	if s.client == nil || len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, s.dataKey(k))
	}
	return s.client.Del(ctx, full...).Err()
}

func (s *RedisCacheStore) dataKey(key string) string {
	return s.prefix + ":" + key
}
