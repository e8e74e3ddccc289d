package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func fastConfig() *Config {
	return &Config{
		Enable:          true,
		InitialAttempts: 3,
		InitialInterval: time.Millisecond,
		MinuteAttempts:  1,
		MinuteInterval:  time.Millisecond,
	}
}

func TestExecuteSucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Execute(context.Background(), fastConfig(), zaptest.NewLogger(t), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecuteExhausted(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := Execute(context.Background(), fastConfig(), zaptest.NewLogger(t), func(ctx context.Context) error {
		calls++
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 4, calls)
}

func TestExecuteDisabled(t *testing.T) {
	calls := 0
	err := Execute(context.Background(), nil, nil, func(ctx context.Context) error {
		calls++
		return errors.New("once")
	})
	assert.EqualError(t, err, "once")
	assert.Equal(t, 1, calls)
}

func TestExecuteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig()
	cfg.InitialInterval = time.Hour

	done := make(chan error, 1)
	go func() {
		done <- Execute(ctx, cfg, zaptest.NewLogger(t), func(ctx context.Context) error {
			return errors.New("fail")
		})
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not stop on cancellation")
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultRetryConfig().Validate())
	assert.Error(t, (&Config{Enable: true}).Validate())
	assert.Error(t, (&Config{Enable: true, InitialAttempts: 1, InitialInterval: -time.Second}).Validate())
	assert.NoError(t, (&Config{Enable: false}).Validate())
}
