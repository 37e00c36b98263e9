package service

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CacheStore is a byte-oriented key/value store with per-entry TTL. Absent keys
// are reported as misses, never as errors.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type NoopCacheStore struct{}

func NewNoopCacheStore() *NoopCacheStore {
	return &NoopCacheStore{}
}

func (s *NoopCacheStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (s *NoopCacheStore) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (s *NoopCacheStore) Delete(context.Context, ...string) error {
	return nil
}

type InMemoryCacheStore struct {
	c *gocache.Cache
}

func NewInMemoryCacheStore(cleanupInterval time.Duration) *InMemoryCacheStore {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &InMemoryCacheStore{c: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (s *InMemoryCacheStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

// Set stores a copy of value. A non-positive ttl keeps the entry until deleted.
func (s *InMemoryCacheStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	s.c.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

func (s *InMemoryCacheStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		s.c.Delete(k)
	}
	return nil
}
