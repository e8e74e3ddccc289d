package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Func defines the function signature for a retryable operation.
type Func func(ctx context.Context) error

// ErrExhausted is returned when every stage failed
var ErrExhausted = errors.New("retry attempts exhausted")

// Execute performs an operation with a staged retry mechanism.
func Execute(ctx context.Context, cfg *Config, logger *zap.Logger, op Func) error {
	// If no retry configuration is provided, just execute the operation
	if cfg == nil || !cfg.Enable {
		return op(ctx)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid retry configuration: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var lastErr error
	attemptRetry := func(attempts int, interval time.Duration) (bool, error) {
		for i := 1; i <= attempts; i++ {
			err := op(ctx)
			if err == nil {
				return true, nil
			}
			lastErr = err
			logger.Debug("Retry attempt failed",
				zap.Int("attempt", i),
				zap.Int("of", attempts),
				zap.Duration("wait", interval),
				zap.Error(err))

			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(interval):
			}
		}
		return false, nil
	}

	// Sequential retry levels
	stages := []struct {
		attempts int
		interval time.Duration
	}{
		{cfg.InitialAttempts, cfg.InitialInterval},
		{cfg.MinuteAttempts, cfg.MinuteInterval},
		{cfg.HourlyAttempts, cfg.HourlyInterval},
	}
	for _, stage := range stages {
		ok, err := attemptRetry(stage.attempts, stage.interval)
		if ok {
			return nil
		}
		if err != nil {
			return fmt.Errorf("retry interrupted: %w", err)
		}
	}

	// Final retry with timeout
	if cfg.FinalRetryTimeout > 0 {
		finalCtx, cancel := context.WithTimeout(ctx, cfg.FinalRetryTimeout)
		defer cancel()
		err := op(finalCtx)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	logger.Warn("Operation failed after all retries", zap.Error(lastErr))
	return fmt.Errorf("%w: %w", ErrExhausted, lastErr)
}
