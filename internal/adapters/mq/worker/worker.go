// Package worker drains the refresh queue with a fixed pool of goroutines.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/draftboard/internal/adapters/mq/queue"
	"github.com/okian/draftboard/pkg/logger"
	"github.com/okian/draftboard/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount  = 2
	defaultJobTimeout   = 2 * time.Minute
	poolShutdownTimeout = 30 * time.Second
)

// Handler refreshes the pair named by a job.
type Handler func(ctx context.Context, j queue.Job) error

// Source defines how workers receive and release jobs.
type Source interface {
	Dequeue(ctx context.Context) <-chan queue.Job
	Done(j queue.Job)
}

// Worker processes jobs from a Source.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	source     Source
	handle     Handler
	name       string
	jobTimeout time.Duration

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}

	// Logging
	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(source Source, handle Handler, opts ...Option) *InMemoryWorker {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &InMemoryWorker{
		source:     source,
		handle:     handle,
		name:       o.name,
		jobTimeout: o.jobTimeout,
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		logger:     o.logger.Named(o.name),
	}
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.source.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				// Channel closed, worker should stop
				return
			}
			if err := w.process(ctx, job); err != nil {
				w.logger.Warn(ctx, "refresh job failed", logger.String("key", job.Key()), logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process runs one job and always releases its pair.
func (w *InMemoryWorker) process(ctx context.Context, job queue.Job) (err error) {
	start := time.Now()
	defer func() {
		w.source.Done(job)
		metrics.RecordRefreshJob(err == nil, float64(time.Since(start).Milliseconds()))
		if err != nil {
			metrics.RecordErrorByComponent("refresh_worker", "job_failed")
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh %s panicked: %v", job.Key(), r)
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()
	return w.handle(jobCtx, job)
}

// Pool manages multiple workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	source  Source

	// Logging
	logger logger.Logger
}

// NewPool creates a worker pool. A count below one uses the default.
func NewPool(workerCount int, source Source, handle Handler, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		source:  source,
		logger:  o.logger,
	}
	for i := 0; i < workerCount; i++ {
		wopts := append(append([]Option(nil), opts...), WithName(o.name+"-"+strconv.Itoa(i)))
		pool.workers[i] = NewInMemoryWorker(source, handle, wopts...)
	}
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}
}

// Shutdown closes the source when it can be closed and waits for every worker
// to return. Jobs still queued are dropped.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.source.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var firstErr error
	for i, worker := range p.workers {
		if err := worker.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
