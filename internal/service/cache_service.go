package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/shopfront/catalog-backend/internal/observability"
)

// RegistryTTLMargin is added to a value's TTL when registering its key so the
// registry entry always outlives the values it names.
const RegistryTTLMargin = 60 * time.Second

type CacheService struct {
	store    CacheStore
	registry CacheKeyRegistry
	logger   *slog.Logger
	group    singleflight.Group
}

func NewCacheService(store CacheStore, registry CacheKeyRegistry, logger *slog.Logger) *CacheService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CacheService{store: store, registry: registry, logger: logger}
}

// GetCache returns the decoded value under key. Store and decode failures are
// logged and reported as a miss.
func GetCache[T any](ctx context.Context, c *CacheService, key string) (T, bool) {
	var zero T
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		observability.RecordCacheEvent(ctx, "service", "error")
		c.logger.WarnContext(ctx, "cache get failed; treating as miss", "key", key, "error", err)
		return zero, false
	}
	if !ok {
		observability.RecordCacheEvent(ctx, "service", "miss")
		return zero, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		observability.RecordCacheEvent(ctx, "service", "error")
		c.logger.WarnContext(ctx, "cache decode failed; treating as miss", "key", key, "error", err)
		return zero, false
	}
	observability.RecordCacheEvent(ctx, "service", "hit")
	return v, true
}

func SetCache[T any](ctx context.Context, c *CacheService, key string, value T, ttl time.Duration) (T, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return value, fmt.Errorf("encode cache value %s: %w", key, err)
	}
	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		return value, err
	}
	observability.RecordCacheEvent(ctx, "service", "populate")
	return value, nil
}

func (c *CacheService) DeleteCache(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

func (c *CacheService) AddToKeyList(ctx context.Context, pattern, key string, ttl time.Duration) error {
	return c.registry.Add(ctx, pattern, key, ttl)
}

// DeleteCacheByPattern removes every key registered under pattern and then the
// registry entry itself. Any failure is reported as ErrCacheUnavailable.
func (c *CacheService) DeleteCacheByPattern(ctx context.Context, pattern string) error {
	keys, err := c.registry.Members(ctx, pattern)
	if err != nil {
		return c.invalidationFailed(ctx, pattern, "read registry", err)
	}
	if len(keys) > 0 {
		if err := c.store.Delete(ctx, keys...); err != nil {
			return c.invalidationFailed(ctx, pattern, "delete keys", err)
		}
	}
	if err := c.registry.Remove(ctx, pattern); err != nil {
		return c.invalidationFailed(ctx, pattern, "remove registry", err)
	}
	observability.RecordCacheInvalidation(ctx, "success", len(keys))
	return nil
}

func (c *CacheService) invalidationFailed(ctx context.Context, pattern, step string, err error) error {
	observability.RecordCacheInvalidation(ctx, "error", 0)
	c.logger.ErrorContext(ctx, "cache invalidation failed; entries may be stale", "pattern", pattern, "step", step, "error", err)
	return fmt.Errorf("%w: invalidate %s: %s: %v", ErrCacheUnavailable, pattern, step, err)
}

// InvalidateListings drops the acting principal's cached views of resource and
// every view registered under the resource-wide pattern.
func (c *CacheService) InvalidateListings(ctx context.Context, resource, principal string) error {
	var errs []error
	if principal != "" {
		if err := c.DeleteCacheByPattern(ctx, PrincipalPattern(resource, principal)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.DeleteCacheByPattern(ctx, resource); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Remember serves key from cache or loads it. Concurrent misses on one key
// share a single load. The key is registered under every pattern before the
// value is stored; if registration fails the value is not cached at all.
func Remember[T any](ctx context.Context, c *CacheService, key string, ttl time.Duration, patterns []string, load func(context.Context) (T, error)) (T, error) {
	if v, ok := GetCache[T](ctx, c, key); ok {
		return v, nil
	}

	// Every waiter on key shares this load; it ignores the first caller's cancellation.
	shared := context.WithoutCancel(ctx)
	res, err, _ := c.group.Do(key, func() (any, error) {
		v, err := load(shared)
		if err != nil {
			return v, err
		}
		for _, pattern := range patterns {
			if err := c.AddToKeyList(shared, pattern, key, ttl+RegistryTTLMargin); err != nil {
				c.logger.WarnContext(ctx, "cache registration failed; skipping populate", "key", key, "pattern", pattern, "error", err)
				return v, nil
			}
		}
		if _, err := SetCache(shared, c, key, v, ttl); err != nil {
			c.logger.WarnContext(ctx, "cache populate failed", "key", key, "error", err)
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	v, ok := res.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache load %s: unexpected result type %T", key, res)
	}
	return v, nil
}
