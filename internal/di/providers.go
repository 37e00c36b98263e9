package di

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gorm.io/gorm"

	"github.com/shopfront/catalog-backend/internal/app"
	"github.com/shopfront/catalog-backend/internal/config"
	"github.com/shopfront/catalog-backend/internal/database"
	"github.com/shopfront/catalog-backend/internal/http/handler"
	"github.com/shopfront/catalog-backend/internal/http/middleware"
	"github.com/shopfront/catalog-backend/internal/http/router"
	"github.com/shopfront/catalog-backend/internal/observability"
	"github.com/shopfront/catalog-backend/internal/repository"
	"github.com/shopfront/catalog-backend/internal/security"
	"github.com/shopfront/catalog-backend/internal/service"
)

var RepositorySet = wire.NewSet(
	repository.NewUserRepository,
	repository.NewProductRepository,
	repository.NewCategoryRepository,
	repository.NewSessionTokenRepository,
)

var ServiceSet = wire.NewSet(
	provideJWTManager,
	provideTokenService,
	provideUserService,
	service.NewAuthService,
	service.NewProductService,
	service.NewCategoryService,
)

var BindSet = wire.NewSet(
	wire.Bind(new(service.AuthServiceInterface), new(*service.AuthService)),
	wire.Bind(new(service.UserServiceInterface), new(*service.UserService)),
	wire.Bind(new(service.ProductServiceInterface), new(*service.ProductService)),
	wire.Bind(new(service.CategoryServiceInterface), new(*service.CategoryService)),
)

var InfraSet = wire.NewSet(
	provideRuntime,
	provideDatabase,
	provideRedis,
	provideCache,
	provideCacheService,
)

var HTTPSet = wire.NewSet(
	provideCookieOptions,
	handler.NewAuthHandler,
	handler.NewUserHandler,
	handler.NewProductHandler,
	handler.NewCategoryHandler,
	provideRouter,
	provideHTTPServer,
)

// Cache bundles the cache service with the background work its store needs.
type Cache struct {
	Service    *service.CacheService
	Background []app.BackgroundTask
}

func provideRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*observability.Runtime, error) {
	return observability.InitRuntime(ctx, cfg, logger, lp)
}

func provideDatabase(cfg *config.Config, logger *slog.Logger) (*gorm.DB, func(), error) {
	db, err := database.Open(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, nil, err
	}
	return db, func() { _ = database.Close(db) }, nil
}

// provideRedis returns nil when no configured component needs Redis.
func provideRedis(ctx context.Context, cfg *config.Config) (redis.UniversalClient, func(), error) {
	if cfg.CacheMode != config.CacheModeTiered && cfg.CacheMode != config.CacheModeRedis {
		return nil, func() {}, nil
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.RedisAddr},
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

func provideCache(cfg *config.Config, client redis.UniversalClient, logger *slog.Logger) *Cache {
	switch cfg.CacheMode {
	case config.CacheModeNone:
		store := service.NewNoopCacheStore()
		return &Cache{Service: service.NewCacheService(store, service.NewStoreCacheKeyRegistry(store), logger)}
	case config.CacheModeMemory:
		store := service.NewInMemoryCacheStore(time.Minute)
		return &Cache{Service: service.NewCacheService(store, service.NewStoreCacheKeyRegistry(store), logger)}
	case config.CacheModeRedis:
		store := service.NewRedisCacheStore(client, cfg.CachePrefix)
		return &Cache{Service: service.NewCacheService(store, service.NewRedisCacheKeyRegistry(client, cfg.CachePrefix), logger)}
	default:
		tiered := service.NewTieredCacheStore(
			service.NewInMemoryCacheStore(time.Minute),
			service.NewRedisCacheStore(client, cfg.CachePrefix),
			cfg.CacheLocalTTL,
			client,
			cfg.CacheInvalidationChannel,
			logger,
		)
		return &Cache{
			Service: service.NewCacheService(tiered, service.NewRedisCacheKeyRegistry(client, cfg.CachePrefix), logger),
			Background: []app.BackgroundTask{
				func(ctx context.Context) error { return tiered.Listen(ctx, nil) },
			},
		}
	}
}

func provideCacheService(c *Cache) *service.CacheService { return c.Service }

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret, cfg.JWTRefreshSecret)
}

func provideTokenService(cfg *config.Config, jwtMgr *security.JWTManager, repo repository.SessionTokenRepository) *service.TokenService {
	return service.NewTokenService(jwtMgr, repo, cfg.TokenPepper, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
}

func provideUserService(cfg *config.Config, repo repository.UserRepository, cache *service.CacheService, logger *slog.Logger) *service.UserService {
	return service.NewUserService(repo, cache, cfg.BcryptCost, logger)
}

func provideCookieOptions(cfg *config.Config) security.CookieOptions {
	return security.CookieOptions{Secure: cfg.CookieSecure, Domain: cfg.CookieDomain}
}

func provideAuthRateLimiter(cfg *config.Config, client redis.UniversalClient) func(http.Handler) http.Handler {
	if cfg.AuthRateLimitPerMin == 0 {
		return nil
	}
	var limiter middleware.Limiter = middleware.NewLocalFixedWindowLimiter()
	if client != nil {
		limiter = middleware.NewRedisFixedWindowLimiter(client, cfg.CachePrefix)
	}
	return middleware.NewRateLimiter(limiter, cfg.AuthRateLimitPerMin, time.Minute, middleware.FailOpen, "auth").Middleware()
}

func provideRouter(
	cfg *config.Config,
	logger *slog.Logger,
	db *gorm.DB,
	client redis.UniversalClient,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	productHandler *handler.ProductHandler,
	categoryHandler *handler.CategoryHandler,
	tokens *service.TokenService,
	users *service.UserService,
) http.Handler {
	checks := []router.ReadinessCheck{
		{Name: "database", Check: func(ctx context.Context) error { return database.Ping(ctx, db) }},
	}
	if client != nil {
		checks = append(checks, router.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error { return client.Ping(ctx).Err() }})
	}
	return router.NewRouter(router.Dependencies{
		AuthHandler:     authHandler,
		UserHandler:     userHandler,
		ProductHandler:  productHandler,
		CategoryHandler: categoryHandler,
		Verifier:        tokens,
		Admins:          users,
		AuthRateLimiter: provideAuthRateLimiter(cfg, client),
		Readiness:       checks,
		Logger:          logger,
		EnableOTelHTTP:  cfg.OTELTracingEnabled || cfg.OTELMetricsEnabled,
	})
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func provideAdminSeed(cfg *config.Config) service.AdminSeed {
	return service.AdminSeed{FullName: cfg.RootFullName, Email: cfg.RootEmail, Password: cfg.RootPassword}
}

// provideApp seeds the admin account before the server starts accepting traffic.
func provideApp(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	cache *Cache,
	users *service.UserService,
) (*app.App, error) {
	if _, err := users.EnsureAdmin(ctx, provideAdminSeed(cfg)); err != nil {
		return nil, err
	}
	return app.New(cfg, logger, server, runtime, cache.Background, nil), nil
}
