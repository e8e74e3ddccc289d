package sweeper

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"qmsgov/internal/governance/workflow"

	"go.uber.org/zap"
)

// Processor escalates overdue approvals
type Processor interface {
	ProcessOverdueApprovals(ctx context.Context) (*workflow.SweepResult, error)
}

// Stats reports sweeper activity
type Stats struct {
	Runs      int64     `json:"runs"`
	Escalated int64     `json:"escalated"`
	Failures  int64     `json:"failures"`
	LastRun   time.Time `json:"last_run"`
	LastError string    `json:"last_error,omitempty"`
}

// Sweeper periodically runs the overdue approval sweep
type Sweeper struct {
	processor Processor
	interval  time.Duration
	logger    *zap.Logger

	runs      atomic.Int64
	escalated atomic.Int64
	failures  atomic.Int64

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	lastRun   time.Time
	lastError string
}

// New creates new sweeper
func New(processor Processor, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		processor: processor,
		interval:  interval,
		logger:    logger,
	}
}

// Start begins sweeping in the background. The first sweep runs immediately.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("sweeper already running")
	}
	if s.interval <= 0 {
		return fmt.Errorf("invalid sweep interval %s", s.interval)
	}

	subCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(subCtx, s.done)

	s.logger.Info("Overdue approval sweeper started", zap.Duration("interval", s.interval))
	return nil
}

// Stop stops the sweeper and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info("Overdue approval sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one sweep
func (s *Sweeper) RunOnce(ctx context.Context) (*workflow.SweepResult, error) {
	s.runs.Add(1)
	res, err := s.processor.ProcessOverdueApprovals(ctx)
	if res != nil {
		s.escalated.Add(int64(res.Escalated))
	}

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastError = ""
	if err != nil {
		s.lastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.failures.Add(1)
		s.logger.Error("Overdue approval sweep failed", zap.Error(err))
	}
	return res, err
}

// Stats returns sweeper counters
func (s *Sweeper) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Runs:      s.runs.Load(),
		Escalated: s.escalated.Load(),
		Failures:  s.failures.Load(),
		LastRun:   s.lastRun,
		LastError: s.lastError,
	}
}

// Running reports whether the background loop is active
func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
