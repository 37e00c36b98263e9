//go:build wireinject
// +build wireinject

package di

import (
	"context"
	"log/slog"

	"github.com/google/wire"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/shopfront/catalog-backend/internal/app"
	"github.com/shopfront/catalog-backend/internal/config"
	"github.com/shopfront/catalog-backend/internal/service"
)

func InitializeApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*app.App, func(), error) {
	wire.Build(InfraSet, RepositorySet, ServiceSet, BindSet, HTTPSet, provideApp)
	return nil, nil, nil
}

func InitializeUserService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*service.UserService, func(), error) {
	wire.Build(provideDatabase, provideRedis, provideCache, provideCacheService, RepositorySet, provideUserService)
	return nil, nil, nil
}
