package service

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"
)

const registrySuffix = ":allKeys"

// CacheKeyRegistry records which cache keys belong to a pattern so that the
// whole group can be invalidated together. Lists are ordered, deduplicated and
// append-only until removed; an entry's TTL never shrinks on append.
type CacheKeyRegistry interface {
	Add(ctx context.Context, pattern, key string, ttl time.Duration) error
	Members(ctx context.Context, pattern string) ([]string, error)
	Remove(ctx context.Context, pattern string) error
}

func registryKey(pattern string) string {
	return pattern + registrySuffix
}

type registryEntry struct {
	Keys      []string  `json:"keys"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// StoreCacheKeyRegistry keeps registry lists as JSON documents in a CacheStore.
// Appends are serialized within the process only.
type StoreCacheKeyRegistry struct {
	mu    sync.Mutex
	store CacheStore
	now   func() time.Time
}

func NewStoreCacheKeyRegistry(store CacheStore) *StoreCacheKeyRegistry {
	return &StoreCacheKeyRegistry{store: store, now: time.Now}
}

func (r *StoreCacheKeyRegistry) Add(ctx context.Context, pattern, key string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, found, err := r.load(ctx, pattern)
	if err != nil {
		return err
	}
	if !slices.Contains(entry.Keys, key) {
		entry.Keys = append(entry.Keys, key)
	}

	now := r.now()
	switch {
	case ttl <= 0 && !found:
		entry.ExpiresAt = time.Time{}
	case ttl > 0 && (!found || !entry.ExpiresAt.IsZero()):
		if want := now.Add(ttl); want.After(entry.ExpiresAt) {
			entry.ExpiresAt = want
		}
	}

	var storeTTL time.Duration
	if !entry.ExpiresAt.IsZero() {
		storeTTL = entry.ExpiresAt.Sub(now)
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, registryKey(pattern), payload, storeTTL)
}

func (r *StoreCacheKeyRegistry) Members(ctx context.Context, pattern string) ([]string, error) {
	entry, _, err := r.load(ctx, pattern)
	if err != nil {
		return nil, err
	}
	return entry.Keys, nil
}

func (r *StoreCacheKeyRegistry) Remove(ctx context.Context, pattern string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Delete(ctx, registryKey(pattern))
}

func (r *StoreCacheKeyRegistry) load(ctx context.Context, pattern string) (registryEntry, bool, error) {
	raw, ok, err := r.store.Get(ctx, registryKey(pattern))
	if err != nil {
		return registryEntry{}, false, err
	}
	if !ok {
		return registryEntry{}, false, nil
	}
	var entry registryEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return registryEntry{}, false, fmt.Errorf("decode registry %s: %w", pattern, err)
	}
	return entry, true, nil
}
