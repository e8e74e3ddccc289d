package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"qmsgov/internal/broker"
	"qmsgov/internal/config"
	"qmsgov/internal/database"
	"qmsgov/internal/governance/propagation"
	"qmsgov/internal/governance/sweeper"
	"qmsgov/internal/governance/workflow"
	"qmsgov/internal/metrics"
	"qmsgov/internal/notify"
	"qmsgov/internal/repository"
	"qmsgov/internal/validator"

	"go.uber.org/zap"
)

// ErrStopped is returned for work submitted after Stop
var ErrStopped = errors.New("service is stopped")

// Dependencies are the collaborators a Service is built from.
// Only Store is required.
type Dependencies struct {
	Store *repository.Store
	// DB is pinged by the health check when the store is SQL backed
	DB        database.Interface
	Publisher broker.Publisher
	Sink      notify.Sink
	Notifier  *notify.Manager
	// Executor defaults to publishing commands on the broker
	Executor propagation.Executor
	Metrics  *metrics.Metrics
	// Cleanup runs on Stop after the workers have drained
	Cleanup []func() error
	Clock   func() time.Time
}

// Service is the change governance service
type Service struct {
	config      *config.Config
	store       *repository.Store
	db          database.Interface
	publisher   broker.Publisher
	sink        notify.Sink
	notifier    *notify.Manager
	workflows   *workflow.Engine
	propagation *propagation.Engine
	sweeper     *sweeper.Sweeper
	metrics     *metrics.Metrics
	validator   *validator.Validator
	logger      *zap.Logger
	cleanup     []func() error
	now         func() time.Time

	pool      *pool
	startTime time.Time
	stopOnce  sync.Once
}

// NewService creates new service instance and starts its propagation workers
func NewService(cfg *config.Config, deps Dependencies, logger *zap.Logger) (*Service, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Publisher == nil {
		deps.Publisher = broker.NewNop()
	}
	if deps.Sink == nil {
		deps.Sink = notify.NewLogSink(logger)
	}
	if deps.Executor == nil {
		deps.Executor = propagation.NewBrokerExecutor(deps.Publisher,
			cfg.Governance.PropagationTopic, cfg.Governance.PropagationRetry, logger)
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	svc := &Service{
		config:      cfg,
		store:       deps.Store,
		db:          deps.DB,
		publisher:   deps.Publisher,
		sink:        deps.Sink,
		notifier:    deps.Notifier,
		propagation: propagation.NewEngine(deps.Store.Rules, deps.Executor, logger),
		metrics:     deps.Metrics,
		validator:   validator.New(),
		logger:      logger,
		cleanup:     deps.Cleanup,
		now:         deps.Clock,
		startTime:   deps.Clock(),
	}

	svc.workflows = workflow.NewEngine(deps.Store, deps.Sink, &cfg.Governance, logger,
		workflow.WithMetrics(deps.Metrics),
		workflow.WithApprovedHook(svc.onApproved),
		workflow.WithClock(deps.Clock))
	svc.sweeper = sweeper.New(svc.workflows, cfg.Governance.SweepInterval, logger)
	svc.pool = newPool(cfg.Governance.PropagationWorkers, cfg.Governance.PropagationQueueSize,
		svc.propagate, deps.Metrics, logger)

	return svc, nil
}

// Start starts the overdue approval sweep when enabled
func (s *Service) Start(ctx context.Context) error {
	if !s.config.Governance.SweepOn() {
		s.logger.Info("Overdue approval sweep disabled")
		return nil
	}
	if err := s.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sweeper: %w", err)
	}
	return nil
}

// Stop stops the sweeper, drains queued propagation and releases resources
func (s *Service) Stop() error {
	var errs []error
	s.stopOnce.Do(func() {
		s.sweeper.Stop()
		s.pool.stop()

		if s.notifier != nil {
			if err := s.notifier.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("failed to stop notifier: %w", err))
			}
		}
		for _, fn := range s.cleanup {
			if err := fn(); err != nil {
				errs = append(errs, err)
			}
		}
		s.logger.Info("Service stopped")
	})
	return errors.Join(errs...)
}

// Workflows returns the approval workflow engine
func (s *Service) Workflows() *workflow.Engine {
	return s.workflows
}

// Sweeper returns the overdue approval sweeper
func (s *Service) Sweeper() *sweeper.Sweeper {
	return s.sweeper
}

// Metrics returns the metrics registry, which may be nil
func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}
