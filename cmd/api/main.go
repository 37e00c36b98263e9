package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/shopfront/catalog-backend/internal/config"
	"github.com/shopfront/catalog-backend/internal/database"
	"github.com/shopfront/catalog-backend/internal/di"
	"github.com/shopfront/catalog-backend/internal/observability"
	"github.com/shopfront/catalog-backend/internal/service"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "api",
		Short:         "Catalog backend API server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newMigrateCommand(), newSeedAdminCommand())
	return root
}

func bootstrap(ctx context.Context) (*config.Config, *slog.Logger, *sdklog.LoggerProvider, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, lp, err := observability.NewLogger(ctx, cfg, os.Stdout)
	if err != nil {
		return nil, nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, lp, nil
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, logger, lp, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			a, cleanup, err := di.InitializeApp(ctx, cfg, logger, lp)
			if err != nil {
				return fmt.Errorf("initialize app: %w", err)
			}
			defer cleanup()
			return a.Run(ctx)
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, _, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			db, err := database.Open(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = database.Close(db) }()
			if err := database.Migrate(db); err != nil {
				return err
			}
			logger.Info("migration complete")
			return nil
		},
	}
}

func newSeedAdminCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the root admin account if it does not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, logger, _, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			users, cleanup, err := di.InitializeUserService(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()
			created, err := users.EnsureAdmin(ctx, service.AdminSeed{
				FullName: cfg.RootFullName,
				Email:    cfg.RootEmail,
				Password: cfg.RootPassword,
			})
			if err != nil {
				return err
			}
			logger.Info("admin seed finished", "created", created)
			return nil
		},
	}
}
