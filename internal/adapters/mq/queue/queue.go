// Package queue holds background refresh jobs until a worker picks them up.
//
// The in-memory implementation is bounded and keeps at most one job per
// (group, format) pair pending at a time.
package queue

import (
	"context"
	"sync"

	"github.com/okian/draftboard/internal/domain/model"
	"github.com/okian/draftboard/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 64
)

// Job asks for one pair to be refreshed from the provider.
type Job struct {
	Group  model.Group
	Format model.Format
}

// Key identifies the pair a job refreshes.
func (j Job) Key() string {
	return string(j.Group) + "_" + string(j.Format)
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job without blocking. It fails with ErrPending when the
	// same pair is already queued or running, ErrFull when at capacity and
	// ErrClosed after Close.
	Enqueue(ctx context.Context, j Job) error

	// Dequeue returns a channel that will receive jobs as they become available.
	// The channel will be closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan Job

	// Done releases the pair of a job taken from Dequeue so it can be queued again.
	Done(j Job)

	// Len returns the current number of queued jobs.
	Len(ctx context.Context) int

	// Close gracefully shuts down the queue.
	// After closing, no new jobs can be enqueued and the dequeue channel will be closed.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int

	mu      sync.Mutex
	pending map[string]struct{}
	closed  bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
		pending:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan Job, q.capacity)
	metrics.UpdateRefreshQueueSize(0)
	return q
}

// Enqueue implements Queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		metrics.RecordErrorByComponent("refresh_queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	key := j.Key()
	if _, ok := q.pending[key]; ok {
		return ErrPending
	}

	select {
	case q.jobs <- j:
		q.pending[key] = struct{}{}
		metrics.UpdateRefreshQueueSize(len(q.jobs))
		return nil
	default:
		metrics.RecordErrorByComponent("refresh_queue", "queue_full")
		return ErrFull
	}
}

// Dequeue implements Queue.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Job {
	return q.jobs
}

// Done implements Queue.
func (q *InMemoryQueue) Done(j Job) {
	q.mu.Lock()
	delete(q.pending, j.Key())
	q.mu.Unlock()
	metrics.UpdateRefreshQueueSize(len(q.jobs))
}

// Pending returns how many pairs are queued or being refreshed.
func (q *InMemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Len implements Queue.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return len(q.jobs)
}

// Close implements Queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil // already closed
	}

	// Close the jobs channel to signal consumers to stop
	close(q.jobs)
	q.closed = true
	q.pending = make(map[string]struct{})
	return nil
}

// IsClosed implements Queue.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
