package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"config-codex/internal/config"
	"config-codex/internal/repository"
	"config-codex/internal/repository/sqlite"
)

// OpenUserStore abre el almacén de usuarios según STORE_DRIVER. El cierre queda en manos del llamador.
func OpenUserStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.UserRepository, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		sqlDB, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		repo := sqlite.NewUserRepository(sqlDB)
		if err := repo.Init(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		logger.Info("using sqlite store", zap.String("path", cfg.SQLitePath))
		return repo, func() { _ = sqlDB.Close() }, nil

	case config.DriverPostgres:
		pool, err := NewPool(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("db connect: %w", err)
		}
		if err := Ping(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("db ping: %w", err)
		}
		if cfg.RunMigrations {
			if err := RunMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, err
			}
			logger.Info("migrations applied")
		}
		return repository.NewPgUserRepository(pool), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}
