// Package worker runs side effects after the write that caused them has
// committed: websocket fan-out, notification records and pushes.
//
// A job that fails or is dropped never affects the operation that
// submitted it.
package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Job is one unit of deferred work. The context is the dispatcher's, not
// the submitting request's, so it outlives the request.
type Job func(ctx context.Context)

type task struct {
	name string
	fn   Job
}

// Dispatcher is a bounded queue drained by a fixed pool of goroutines.
type Dispatcher struct {
	queue   chan task
	workers int
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(workers, queueSize int, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   make(chan task, queueSize),
		workers: workers,
		logger:  logger,
	}
}

// Submit enqueues fn without blocking. It returns false when the queue is
// full or the dispatcher stopped; the job is dropped with a warning.
func (d *Dispatcher) Submit(name string, fn Job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("dispatcher closed, dropping job", zap.String("job", name))
		return false
	}
	select {
	case d.queue <- task{name: name, fn: fn}:
		return true
	default:
		d.logger.Warn("dispatcher queue full, dropping job", zap.String("job", name))
		return false
	}
}

// Run starts the workers and blocks until ctx is cancelled. Jobs already
// queued are drained before Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range d.queue {
				d.execute(ctx, t)
			}
		}()
	}

	<-ctx.Done()

	d.mu.Lock()
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	wg.Wait()
	return nil
}

func (d *Dispatcher) execute(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("job panicked", zap.String("job", t.name), zap.Any("panic", r))
		}
	}()
	// Queued jobs still run during shutdown drain.
	t.fn(context.WithoutCancel(ctx))
}
