// Command connecthub runs the OAuth connection and token lifecycle service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/marketopshq/connecthub/internal/config"
	"github.com/marketopshq/connecthub/internal/handler"
	"github.com/marketopshq/connecthub/internal/pkg/logger"
	"github.com/marketopshq/connecthub/internal/provider"
	"github.com/marketopshq/connecthub/internal/repository"
	"github.com/marketopshq/connecthub/internal/server"
	"github.com/marketopshq/connecthub/internal/service"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.OpenPostgres(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repository.Migrate(ctx, db); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	sealingKey, err := repository.EnsureVaultSealingKey(ctx, db, cfg.Security.VaultSealingKey)
	if err != nil {
		return err
	}
	jwtSecret, err := repository.EnsureJWTSecret(ctx, db, cfg.Security.JWTSecret)
	if err != nil {
		return err
	}

	vault, err := repository.NewRedisSecretVault(rdb, sealingKey)
	if err != nil {
		return err
	}

	connectionRepo := repository.NewConnectionRepository(db)
	agencyRepo := repository.NewAgencyRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	listCache := repository.NewTieredConnectionListCache(
		repository.NewMemoryConnectionListCache(),
		repository.NewRedisConnectionListCache(rdb),
	)

	registry, err := provider.NewRegistry()
	if err != nil {
		return err
	}
	credentials := make(map[string]provider.ClientCredentials, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		credentials[name] = provider.ClientCredentials{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
		}
	}
	connectors := provider.NewConnectorSet(registry, credentials)

	quota := service.NewQuotaService(agencyRepo, connectionRepo)
	connections := service.NewConnectionService(
		registry,
		connectors,
		connectionRepo,
		agencyRepo,
		vault,
		auditRepo,
		quota,
		listCache,
		log,
	)

	if cfg.Sweeper.Enabled {
		sweeper := service.NewRefreshSweeper(connections, connectionRepo, cfg.Sweeper.Schedule, cfg.Sweeper.Lookahead, log)
		if err := sweeper.Start(); err != nil {
			return err
		}
		defer sweeper.Stop()
	}

	connectionHandler := handler.NewConnectionHandler(connections, auditRepo)
	srv := server.New(cfg, connectionHandler, jwtSecret, rdb, log)

	log.Info("connecthub starting",
		zap.String("addr", cfg.Server.Addr()),
		zap.Int("providers", len(registry.List())),
		zap.Bool("sweeper", cfg.Sweeper.Enabled),
	)
	return srv.Run(ctx)
}
