package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type cacheProduct struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRedisCacheServiceForTest(t *testing.T) (*CacheService, func()) {
	t.Helper()
	server, client := newRedisClientForTest(t)
	svc := NewCacheService(
		NewRedisCacheStore(client, "test"),
		NewRedisCacheKeyRegistry(client, "test"),
		quietLogger(),
	)
	return svc, server.Close
}

func TestCacheServicePatternInvalidationRemovesKeysAndEntry(t *testing.T) {
	ctx := context.Background()
	for name, svc := range map[string]*CacheService{
		"redis":  func() *CacheService { s, _ := newRedisCacheServiceForTest(t); return s }(),
		"memory": newMemoryCacheService(),
	} {
		t.Run(name, func(t *testing.T) {
			key := "products:all:user-u1:page-1:limit-20:q-"
			_, err := SetCache(ctx, svc, key, cacheProduct{ID: "p1"}, 180*time.Second)
			require.NoError(t, err)
			require.NoError(t, svc.AddToKeyList(ctx, "products:u1", key, 180*time.Second))

			require.NoError(t, svc.DeleteCacheByPattern(ctx, "products:u1"))

			_, ok := GetCache[cacheProduct](ctx, svc, key)
			require.False(t, ok, "value must be gone after pattern invalidation")
			members, err := svc.registry.Members(ctx, "products:u1")
			require.NoError(t, err)
			require.Empty(t, members, "registry entry must be absent")
		})
	}
}

func newMemoryCacheService() *CacheService {
	store := NewInMemoryCacheStore(time.Minute)
	return NewCacheService(store, NewStoreCacheKeyRegistry(store), quietLogger())
}

func TestCacheServiceDeleteAbsentKeyAndPattern(t *testing.T) {
	ctx := context.Background()
	svc, _ := newRedisCacheServiceForTest(t)
	require.NoError(t, svc.DeleteCache(ctx, "missing"))
	require.NoError(t, svc.DeleteCacheByPattern(ctx, "never-registered"))
}

func TestCacheServiceRememberRegistersUnderEveryPattern(t *testing.T) {
	ctx := context.Background()
	svc, _ := newRedisCacheServiceForTest(t)
	key := ListCacheKey{Resource: "products", Principal: "u1", Page: 1, Limit: 20}.String()

	var loads atomic.Int32
	load := func(context.Context) (cacheProduct, error) {
		loads.Add(1)
		return cacheProduct{ID: "p1", Name: "shirt"}, nil
	}
	patterns := []string{PrincipalPattern("products", "u1"), "products"}

	v, err := Remember(ctx, svc, key, 180*time.Second, patterns, load)
	require.NoError(t, err)
	require.Equal(t, "shirt", v.Name)

	v, err = Remember(ctx, svc, key, 180*time.Second, patterns, load)
	require.NoError(t, err)
	require.Equal(t, "p1", v.ID)
	require.EqualValues(t, 1, loads.Load(), "second read must be served from cache")

	for _, p := range patterns {
		members, err := svc.registry.Members(ctx, p)
		require.NoError(t, err)
		require.Equal(t, []string{key}, members)
	}

	// a write by another principal invalidates the resource-wide pattern
	require.NoError(t, svc.InvalidateListings(ctx, "products", "u2"))
	_, ok := GetCache[cacheProduct](ctx, svc, key)
	require.False(t, ok)
}

func TestCacheServiceRememberCollapsesConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	svc := newMemoryCacheService()

	var loads atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (cacheProduct, error) {
		loads.Add(1)
		<-release
		return cacheProduct{ID: "p1"}, nil
	}

	var wg sync.WaitGroup
	results := make([]cacheProduct, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = Remember(ctx, svc, "products:one:p1", time.Minute, []string{"products"}, load)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	for i := range results {
		require.NoError(t, errs[i])
		require.Equal(t, "p1", results[i].ID)
	}
	require.GreaterOrEqual(t, loads.Load(), int32(1))
	require.Less(t, loads.Load(), int32(8), "concurrent misses should share loads")
}

func TestCacheServiceRememberPropagatesLoadError(t *testing.T) {
	svc := newMemoryCacheService()
	boom := errors.New("boom")
	_, err := Remember(context.Background(), svc, "k", time.Minute, []string{"p"}, func(context.Context) (cacheProduct, error) {
		return cacheProduct{}, boom
	})
	require.ErrorIs(t, err, boom)
	_, ok := GetCache[cacheProduct](context.Background(), svc, "k")
	require.False(t, ok)
}

type failingRegistry struct{ CacheKeyRegistry }

func (failingRegistry) Add(context.Context, string, string, time.Duration) error {
	return errors.New("registry down")
}

func TestCacheServiceRememberSkipsPopulateWhenRegistrationFails(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryCacheStore(time.Minute)
	svc := NewCacheService(store, failingRegistry{NewStoreCacheKeyRegistry(store)}, quietLogger())

	v, err := Remember(ctx, svc, "products:one:p1", time.Minute, []string{"products"}, func(context.Context) (cacheProduct, error) {
		return cacheProduct{ID: "p1"}, nil
	})
	require.NoError(t, err, "the read itself must still succeed")
	require.Equal(t, "p1", v.ID)
	_, ok := GetCache[cacheProduct](ctx, svc, "products:one:p1")
	require.False(t, ok, "an unregistered key must never be materialized")
}

func TestCacheServiceRegistryTTLDominatesMemberTTL(t *testing.T) {
	ctx := context.Background()
	server, client := newRedisClientForTest(t)
	svc := NewCacheService(NewRedisCacheStore(client, "test"), NewRedisCacheKeyRegistry(client, "test"), quietLogger())

	_, err := Remember(ctx, svc, "products:one:p1", 180*time.Second, []string{"products"}, func(context.Context) (cacheProduct, error) {
		return cacheProduct{ID: "p1"}, nil
	})
	require.NoError(t, err)
	valueTTL := server.TTL("test:products:one:p1")
	entryTTL := server.TTL("test:products:allKeys")
	require.Equal(t, 180*time.Second, valueTTL)
	require.Equal(t, 240*time.Second, entryTTL)

	// a shorter registration never shrinks the entry
	require.NoError(t, svc.AddToKeyList(ctx, "products", "products:one:p2", 10*time.Second))
	require.Equal(t, 240*time.Second, server.TTL("test:products:allKeys"))

	members, err := svc.registry.Members(ctx, "products")
	require.NoError(t, err)
	require.Equal(t, []string{"products:one:p1", "products:one:p2"}, members)

	// duplicate append keeps the list deduplicated
	require.NoError(t, svc.AddToKeyList(ctx, "products", "products:one:p1", time.Hour))
	members, err = svc.registry.Members(ctx, "products")
	require.NoError(t, err)
	require.Len(t, members, 2)
	require.Equal(t, time.Hour, server.TTL("test:products:allKeys"))
}

func TestStoreRegistryTTLNeverShrinks(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryCacheStore(time.Minute)
	reg := NewStoreCacheKeyRegistry(store)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return now }

	require.NoError(t, reg.Add(ctx, "users", "k1", time.Hour))
	require.NoError(t, reg.Add(ctx, "users", "k2", time.Minute))
	require.NoError(t, reg.Add(ctx, "users", "k1", time.Minute))

	entry, found, err := reg.load(ctx, "users")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []string{"k1", "k2"}, entry.Keys)
	require.Equal(t, now.Add(time.Hour), entry.ExpiresAt)
}

func TestCacheServiceGetFailureIsAMiss(t *testing.T) {
	ctx := context.Background()
	svc, closeServer := newRedisCacheServiceForTest(t)
	_, err := SetCache(ctx, svc, "users:one:u1", cacheProduct{ID: "u1"}, time.Minute)
	require.NoError(t, err)

	closeServer()
	_, ok := GetCache[cacheProduct](ctx, svc, "users:one:u1")
	require.False(t, ok)
}

func TestCacheServiceInvalidationOutageIsCacheUnavailable(t *testing.T) {
	ctx := context.Background()
	svc, closeServer := newRedisCacheServiceForTest(t)
	require.NoError(t, svc.AddToKeyList(ctx, "products:u1", "k", time.Minute))

	closeServer()
	err := svc.DeleteCacheByPattern(ctx, "products:u1")
	require.ErrorIs(t, err, ErrCacheUnavailable)

	err = svc.InvalidateListings(ctx, "products", "u1")
	require.ErrorIs(t, err, ErrCacheUnavailable)
}

func TestCacheServiceDecodeFailureIsAMiss(t *testing.T) {
	ctx := context.Background()
	svc := newMemoryCacheService()
	require.NoError(t, svc.store.Set(ctx, "k", []byte("{not json"), time.Minute))
	_, ok := GetCache[cacheProduct](ctx, svc, "k")
	require.False(t, ok)
}

// heldReadStore parks the first armed Get after it has read from the
// wrapped store, until release is closed.
type heldReadStore struct {
	CacheStore
	armed   atomic.Bool
	read    chan struct{}
	release chan struct{}
}

func (s *heldReadStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok, err := s.CacheStore.Get(ctx, key)
	if s.armed.CompareAndSwap(true, false) {
		close(s.read)
		<-s.release
	}
	return v, ok, err
}

func TestTieredBackfillCannotOutliveConcurrentPatternInvalidation(t *testing.T) {
	ctx := context.Background()
	local := NewInMemoryCacheStore(time.Minute)
	shared := &heldReadStore{
		CacheStore: NewInMemoryCacheStore(time.Minute),
		read:       make(chan struct{}),
		release:    make(chan struct{}),
	}
	store := NewTieredCacheStore(local, shared, time.Minute, nil, "", quietLogger())
	svc := NewCacheService(store, NewStoreCacheKeyRegistry(store), quietLogger())

	key := DetailCacheKey("products", "p1", "")
	_, err := SetCache(ctx, svc, key, cacheProduct{ID: "p1", Name: "old"}, time.Hour)
	require.NoError(t, err)
	require.NoError(t, svc.AddToKeyList(ctx, "products:u1", key, time.Hour+RegistryTTLMargin))
	require.NoError(t, local.Delete(ctx, key))

	shared.armed.Store(true)
	done := make(chan struct{})
	go func() {
		defer close(done)
		GetCache[cacheProduct](ctx, svc, key)
	}()
	select {
	case <-shared.read:
	case <-time.After(2 * time.Second):
		t.Fatal("reader never reached the shared tier")
	}

	require.NoError(t, svc.DeleteCacheByPattern(ctx, "products:u1"))
	close(shared.release)
	<-done

	_, ok := GetCache[cacheProduct](ctx, svc, key)
	require.False(t, ok, "value read before invalidation must not be backfilled after it")
}

func TestRememberSharedLoadSurvivesCallerCancellation(t *testing.T) {
	svc := newMemoryCacheService()
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	proceed := make(chan struct{})
	var loaderErr error
	load := func(loadCtx context.Context) (cacheProduct, error) {
		close(started)
		<-proceed
		loaderErr = loadCtx.Err()
		return cacheProduct{ID: "p1"}, loadCtx.Err()
	}

	type result struct {
		v   cacheProduct
		err error
	}
	first := make(chan result, 1)
	go func() {
		v, err := Remember(ctx, svc, "products:one:p1", time.Minute, []string{"products"}, load)
		first <- result{v, err}
	}()
	<-started
	cancel()
	close(proceed)

	got := <-first
	require.NoError(t, loaderErr)
	require.NoError(t, got.err)
	require.Equal(t, "p1", got.v.ID)
}
