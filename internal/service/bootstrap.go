package service

import (
	"context"
	"fmt"
	"slices"

	"qmsgov/internal/audit"
	"qmsgov/internal/broker"
	"qmsgov/internal/config"
	"qmsgov/internal/database"
	"qmsgov/internal/metrics"
	"qmsgov/internal/notify"
	"qmsgov/internal/repository"

	"go.uber.org/zap"
)

// Open builds a Service and its storage, broker and notification sinks
// from configuration
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Service, error) {
	deps := Dependencies{Metrics: metrics.New()}

	var cleanup []func() error
	fail := func(err error) (*Service, error) {
		for _, fn := range slices.Backward(cleanup) {
			_ = fn()
		}
		return nil, err
	}

	// Initialize storage
	if cfg.Database.IsMemory() {
		logger.Warn("Using in-memory store, data is lost on exit")
		deps.Store = repository.NewMemoryStore()
	} else {
		db, err := database.New(&cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		cleanup = append(cleanup, db.Close)
		deps.DB = db
		deps.Store = repository.NewSQLStore(db, logger)
	}

	if cfg.Audit.Driver == "mongo" {
		repo, err := audit.NewMongoRepository(ctx, &cfg.Audit.Mongo, logger)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize audit log: %w", err))
		}
		cleanup = append(cleanup, func() error { return repo.Close(context.Background()) })
		deps.Store.Audit = repo
	}

	// Initialize broker
	publisher, err := broker.New(&cfg.Broker, logger)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize broker: %w", err))
	}
	cleanup = append(cleanup, publisher.Close)
	deps.Publisher = publisher

	// Initialize notification sinks
	var sinks notify.MultiSink
	if cfg.Notify.Enabled {
		mgr, err := notify.NewManager(&cfg.Notify, notify.NewUserDirectory(deps.Store.Users), logger)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize notifier: %w", err))
		}
		deps.Notifier = mgr
		sinks = append(sinks, mgr)
	}
	if cfg.Notify.Broker {
		sinks = append(sinks, notify.NewBrokerSink(publisher, cfg.Notify.Topic))
	}
	switch len(sinks) {
	case 0:
		deps.Sink = notify.NewLogSink(logger)
	case 1:
		deps.Sink = sinks[0]
	default:
		deps.Sink = sinks
	}

	// Close in reverse order of creation
	slices.Reverse(cleanup)
	deps.Cleanup = cleanup

	svc, err := NewService(cfg, deps, logger)
	if err != nil {
		if deps.Notifier != nil {
			_ = deps.Notifier.Stop()
		}
		for _, fn := range cleanup {
			_ = fn()
		}
		return nil, err
	}
	return svc, nil
}
