package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"qmsgov/internal/governance/workflow"
)

type fakeProcessor struct {
	calls atomic.Int32
	err   error
}

func (p *fakeProcessor) ProcessOverdueApprovals(context.Context) (*workflow.SweepResult, error) {
	p.calls.Add(1)
	return &workflow.SweepResult{Overdue: 2, Escalated: 2}, p.err
}

func TestSweeperRunsImmediatelyAndPeriodically(t *testing.T) {
	p := &fakeProcessor{}
	s := New(p, 10*time.Millisecond, zaptest.NewLogger(t))

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))
	assert.True(t, s.Running())

	assert.Eventually(t, func() bool { return p.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	s.Stop()
	assert.False(t, s.Running())

	calls := p.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, p.calls.Load())

	stats := s.Stats()
	assert.Equal(t, int64(calls), stats.Runs)
	assert.Equal(t, int64(calls)*2, stats.Escalated)
	assert.False(t, stats.LastRun.IsZero())

	// Stop is idempotent
	s.Stop()
}

func TestSweeperRecordsFailures(t *testing.T) {
	p := &fakeProcessor{err: errors.New("database locked")}
	s := New(p, time.Hour, zaptest.NewLogger(t))

	_, err := s.RunOnce(context.Background())
	assert.Error(t, err)

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.Failures)
	assert.Equal(t, "database locked", stats.LastError)

	p.err = nil
	_, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, s.Stats().LastError)
}

func TestSweeperRejectsBadInterval(t *testing.T) {
	s := New(&fakeProcessor{}, 0, zaptest.NewLogger(t))
	assert.Error(t, s.Start(context.Background()))
}
