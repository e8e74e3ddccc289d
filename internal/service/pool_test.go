package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPoolKeepsOrderPerChangeEvent(t *testing.T) {
	var mu sync.Mutex
	seen := map[string][]bool{}

	p := newPool(4, 400, func(_ context.Context, job propagationJob) {
		mu.Lock()
		defer mu.Unlock()
		seen[job.changeEventID] = append(seen[job.changeEventID], job.deferred)
	}, nil, zaptest.NewLogger(t))

	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("ce-%d", i)
		require.NoError(t, p.submit(propagationJob{changeEventID: id}))
		require.NoError(t, p.submit(propagationJob{changeEventID: id, deferred: true}))
	}
	p.stop()

	require.Len(t, seen, 20)
	for id, order := range seen {
		assert.Equal(t, []bool{false, true}, order, id)
	}
}

func TestPoolRejects(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	p := newPool(1, 1, func(context.Context, propagationJob) {
		started <- struct{}{}
		<-release
	}, nil, zaptest.NewLogger(t))

	require.NoError(t, p.submit(propagationJob{changeEventID: "a"}))
	<-started
	require.NoError(t, p.submit(propagationJob{changeEventID: "b"}))
	assert.ErrorIs(t, p.submit(propagationJob{changeEventID: "c"}), errQueueFull)

	close(release)
	p.stop()
	assert.ErrorIs(t, p.submit(propagationJob{changeEventID: "d"}), ErrStopped)
	p.stop()
}

func TestPoolRecoversPanic(t *testing.T) {
	var ran []string
	p := newPool(1, 4, func(_ context.Context, job propagationJob) {
		if job.changeEventID == "bad" {
			panic("nil rule")
		}
		ran = append(ran, job.changeEventID)
	}, nil, zaptest.NewLogger(t))

	require.NoError(t, p.submit(propagationJob{changeEventID: "bad"}))
	require.NoError(t, p.submit(propagationJob{changeEventID: "good"}))
	p.stop()
	assert.Equal(t, []string{"good"}, ran)
}
