package job

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

var (
	ErrQueueFull  = errors.New("job queue is full")
	ErrPoolClosed = errors.New("worker pool is closed")
)

// Processor handles execution of a dispatched task. Reject is called instead
// of Run for tasks the pool will never execute.
type Processor interface {
	Run(ctx context.Context, t Task)
	Reject(ctx context.Context, t Task, reason string)
}

const shutdownReason = "server shutting down"

// WorkerPool runs a fixed number of goroutines that take dispatched tasks
// off a bounded queue.
type WorkerPool struct {
	processor Processor
	workers   int
	queue     chan Task

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool creates a pool with the given number of workers and queue
// capacity.
func NewWorkerPool(processor Processor, workers, queueSize int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &WorkerPool{
		processor: processor,
		workers:   workers,
		queue:     make(chan Task, queueSize),
	}
}

// Dispatch queues t without blocking.
func (wp *WorkerPool) Dispatch(t Task) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return ErrPoolClosed
	}
	select {
	case wp.queue <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run starts worker goroutines and blocks until ctx is cancelled and all
// workers have drained. Tasks still queued at that point are failed.
func (wp *WorkerPool) Run(ctx context.Context) {
	var g errgroup.Group
	for i := range wp.workers {
		g.Go(func() error {
			wp.loop(ctx, i)
			return nil
		})
	}
	_ = g.Wait()

	wp.mu.Lock()
	wp.closed = true
	wp.mu.Unlock()

	wp.failQueued(context.WithoutCancel(ctx))
}

func (wp *WorkerPool) loop(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-wp.queue:
			// select picks randomly among ready cases; a cancelled pool
			// must not start new work.
			if ctx.Err() != nil {
				wp.reject(context.WithoutCancel(ctx), t)
				return
			}
			slog.Info("worker: processing job", "worker", id, "job", t.ID, "bytes", len(t.Image))
			wp.processor.Run(ctx, t)
		}
	}
}

func (wp *WorkerPool) failQueued(ctx context.Context) {
	for {
		select {
		case t := <-wp.queue:
			wp.reject(ctx, t)
		default:
			return
		}
	}
}

func (wp *WorkerPool) reject(ctx context.Context, t Task) {
	slog.Warn("worker: dropping queued job on shutdown", "job", t.ID)
	wp.processor.Reject(ctx, t, shutdownReason)
}
