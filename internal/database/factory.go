package database

import (
	"context"
	"fmt"
	"time"

	"qmsgov/internal/config"
	"qmsgov/internal/database/migration"
	"qmsgov/internal/types"

	"go.uber.org/zap"
)

// New creates new database instance based on configuration
func New(cfg *config.DatabaseConfig, logger *zap.Logger) (Interface, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := newInstance(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Run migrations
	if cfg.AutoMigrate {
		if err := Migrate(context.Background(), cfg, logger); err != nil {
			logger.Error("Failed to run migrations", zap.Error(err))
			_ = db.Close()
			return nil, err
		}
	}

	return db, nil
}

// newInstance creates new database instance based on configuration
func newInstance(cfg *config.DatabaseConfig, logger *zap.Logger) (Interface, error) {
	opts := Options{
		MaxOpenConns:        cfg.MaxConnections,
		MaxIdleConns:        cfg.MaxIdleConns,
		ConnMaxLifetime:     cfg.ConnMaxLifetime,
		ConnMaxIdleTime:     cfg.ConnMaxLifetime,
		QueryTimeout:        cfg.QueryTimeout,
		SlowQueryThreshold:  cfg.SlowQueryTime,
		HealthCheckInterval: 30 * time.Second,
	}

	switch cfg.Driver {
	case "sqlite":
		return NewSQLiteDatabase(cfg.DSN, opts, logger)
	case "mysql":
		return NewMySQLDatabase(cfg.DSN, opts, logger)
	case "postgres":
		return NewPostgresDatabase(cfg.DSN, opts, logger)
	case "pgx":
		return NewPgxDatabase(cfg.DSN, opts, logger)
	default:
		return nil, fmt.Errorf("%w: %s", types.ErrInvalidDriver, cfg.Driver)
	}
}

// Migrate runs migrations to the latest version, or rolls back steps when
// steps is negative. It uses its own connection, which the migrator closes.
func Migrate(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger, steps ...int) error {
	db, err := newInstance(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection for migrations: %w", err)
	}

	migrator, err := migration.NewMigrator(db.Unwrap(), db.Driver(), cfg.MigrationsPath, logger)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	defer func() {
		if err := migrator.Close(); err != nil {
			logger.Warn("Failed to close migrator", zap.Error(err))
		}
		_ = db.Close()
	}()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if len(steps) > 0 && steps[0] < 0 {
		logger.Info("Rolling back migrations", zap.Int("steps", -steps[0]))
		if err := migrator.RollbackMigrations(ctx, -steps[0]); err != nil {
			return fmt.Errorf("failed to rollback migrations: %w", err)
		}
		return nil
	}

	logger.Info("Running migrations to latest version")
	if err := migrator.RunMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
