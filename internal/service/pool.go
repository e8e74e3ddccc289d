package service

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"qmsgov/internal/metrics"

	"go.uber.org/zap"
)

var errQueueFull = errors.New("propagation queue is full")

type propagationJob struct {
	changeEventID string
	// deferred runs only the rules that waited for approval
	deferred bool
}

// pool runs propagation jobs on a fixed set of workers. Jobs for one
// change event always land on the same worker, so they run in the order
// they were submitted.
type pool struct {
	queues  []chan propagationJob
	handle  func(context.Context, propagationJob)
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func newPool(workers, queueSize int, handle func(context.Context, propagationJob), m *metrics.Metrics, logger *zap.Logger) *pool {
	if workers <= 0 {
		workers = 1
	}
	perWorker := max(queueSize/workers, 1)

	ctx, cancel := context.WithCancel(context.Background())
	p := &pool{
		queues:  make([]chan propagationJob, workers),
		handle:  handle,
		metrics: m,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := range p.queues {
		p.queues[i] = make(chan propagationJob, perWorker)
		p.wg.Add(1)
		go p.work(p.queues[i])
	}
	return p
}

func (p *pool) submit(job propagationJob) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrStopped
	}

	select {
	case p.queue(job.changeEventID) <- job:
		p.metrics.PropagationQueue(p.length())
		return nil
	default:
		return errQueueFull
	}
}

func (p *pool) queue(key string) chan propagationJob {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return p.queues[h.Sum32()%uint32(len(p.queues))]
}

func (p *pool) length() int {
	n := 0
	for _, q := range p.queues {
		n += len(q)
	}
	return n
}

func (p *pool) work(queue chan propagationJob) {
	defer p.wg.Done()
	for job := range queue {
		p.run(job)
		p.metrics.PropagationQueue(p.length())
	}
}

func (p *pool) run(job propagationJob) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Propagation job panicked",
				zap.String("change_event_id", job.changeEventID),
				zap.Any("panic", r))
		}
	}()
	p.handle(p.ctx, job)
}

// stop rejects new jobs and waits for queued ones to finish
func (p *pool) stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
}
