package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shopfront/catalog-backend/internal/observability"
)

const defaultLocalTTL = 60 * time.Second

type invalidationMessage struct {
	Origin string   `json:"origin"`
	Keys   []string `json:"keys"`
}

// TieredCacheStore reads through a process-local tier into a shared tier.
// Deletes are broadcast so peer processes evict their local copies.
type TieredCacheStore struct {
	local    *InMemoryCacheStore
	shared   CacheStore
	localTTL time.Duration

	client  redis.UniversalClient
	channel string
	origin  string
	logger  *slog.Logger

	// evictMu orders local backfills against evictions. evictions counts
	// every local eviction; a backfill whose shared read started before an
	// eviction is dropped.
	evictMu   sync.Mutex
	evictions uint64
}

func NewTieredCacheStore(local *InMemoryCacheStore, shared CacheStore, localTTL time.Duration, client redis.UniversalClient, channel string, logger *slog.Logger) *TieredCacheStore {
	if localTTL <= 0 {
		localTTL = defaultLocalTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TieredCacheStore{
		local:    local,
		shared:   shared,
		localTTL: localTTL,
		client:   client,
		channel:  channel,
		origin:   uuid.NewString(),
		logger:   logger,
	}
}

func (s *TieredCacheStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok, _ := s.local.Get(ctx, key); ok {
		observability.RecordCacheEvent(ctx, "local", "hit")
		return v, true, nil
	}
	seen := s.evictionCount()
	v, ok, err := s.shared.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	s.backfill(ctx, key, v, seen)
	return v, true, nil
}

func (s *TieredCacheStore) evictionCount() uint64 {
	s.evictMu.Lock()
	defer s.evictMu.Unlock()
	return s.evictions
}

func (s *TieredCacheStore) backfill(ctx context.Context, key string, value []byte, seen uint64) {
	s.evictMu.Lock()
	defer s.evictMu.Unlock()
	if s.evictions != seen {
		observability.RecordCacheEvent(ctx, "local", "backfill_skipped")
		return
	}
	observability.RecordCacheEvent(ctx, "local", "backfill")
	_ = s.local.Set(ctx, key, value, s.localTTL)
}

func (s *TieredCacheStore) evictLocal(ctx context.Context, keys ...string) {
	s.evictMu.Lock()
	defer s.evictMu.Unlock()
	s.evictions++
	_ = s.local.Delete(ctx, keys...)
}

func (s *TieredCacheStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.shared.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return s.local.Set(ctx, key, value, s.capLocal(ttl))
}

func (s *TieredCacheStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	s.evictLocal(ctx, keys...)
	if err := s.shared.Delete(ctx, keys...); err != nil {
		return err
	}
	// A read that fetched the old shared value before this point may have
	// backfilled it between the two evictions.
	s.evictLocal(ctx, keys...)
	return s.publish(ctx, keys)
}

func (s *TieredCacheStore) capLocal(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > s.localTTL {
		return s.localTTL
	}
	return ttl
}

func (s *TieredCacheStore) publish(ctx context.Context, keys []string) error {
	if s.client == nil || s.channel == "" {
		return nil
	}
	payload, err := json.Marshal(invalidationMessage{Origin: s.origin, Keys: keys})
	if err != nil {
		return err
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

// Listen evicts local entries named by peer invalidations until ctx is done.
// ready, if non-nil, is closed once the subscription is established.
func (s *TieredCacheStore) Listen(ctx context.Context, ready chan<- struct{}) error {
	if s.client == nil || s.channel == "" {
		if ready != nil {
			close(ready)
		}
		<-ctx.Done()
		return nil
	}
	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var inv invalidationMessage
			if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
				s.logger.Warn("drop malformed cache invalidation", "error", err)
				continue
			}
			if inv.Origin == s.origin {
				continue
			}
			s.evictLocal(ctx, inv.Keys...)
			observability.RecordCacheEvent(ctx, "local", "peer_evict")
		}
	}
}
