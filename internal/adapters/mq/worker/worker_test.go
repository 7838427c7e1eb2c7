package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/draftboard/internal/adapters/mq/queue"
	"github.com/okian/draftboard/internal/adapters/mq/worker"
	"github.com/okian/draftboard/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

// recorder is a Handler that remembers every job it saw.
type recorder struct {
	mu   sync.Mutex
	seen []queue.Job
	fail map[model.Group]error
	hold chan struct{}
}

func newRecorder() *recorder {
	return &recorder{fail: map[model.Group]error{}}
}

func (r *recorder) handle(ctx context.Context, j queue.Job) error {
	if r.hold != nil {
		select {
		case <-r.hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, j)
	if j.Group == model.GroupK {
		panic("kicker feed exploded")
	}
	return r.fail[j.Group]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool draining a refresh queue", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := queue.NewInMemoryQueue()
		rec := newRecorder()
		pool := worker.NewPool(3, q, rec.handle, worker.WithName("refresh"))
		pool.Start(ctx)

		convey.So(pool.Size(), convey.ShouldEqual, 3)

		convey.Convey("When jobs are enqueued", func() {
			for _, g := range []model.Group{model.GroupQB, model.GroupRB, model.GroupWR} {
				convey.So(q.Enqueue(ctx, queue.Job{Group: g, Format: model.FormatPPR}), convey.ShouldBeNil)
			}

			convey.Convey("Then every job is handled and released", func() {
				convey.So(waitFor(func() bool { return rec.count() == 3 && q.Pending() == 0 }), convey.ShouldBeTrue)
				convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})

		convey.Convey("When a job fails", func() {
			rec.fail[model.GroupTE] = errors.New("upstream down")
			convey.So(q.Enqueue(ctx, queue.Job{Group: model.GroupTE, Format: model.FormatStandard}), convey.ShouldBeNil)

			convey.Convey("Then the pair is released so it can be retried", func() {
				convey.So(waitFor(func() bool { return q.Pending() == 0 }), convey.ShouldBeTrue)
				convey.So(q.Enqueue(ctx, queue.Job{Group: model.GroupTE, Format: model.FormatStandard}), convey.ShouldBeNil)
				convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})

		convey.Convey("When a handler panics", func() {
			convey.So(q.Enqueue(ctx, queue.Job{Group: model.GroupK, Format: model.FormatPPR}), convey.ShouldBeNil)
			convey.So(q.Enqueue(ctx, queue.Job{Group: model.GroupDST, Format: model.FormatPPR}), convey.ShouldBeNil)

			convey.Convey("Then the pool keeps working", func() {
				convey.So(waitFor(func() bool { return rec.count() == 2 && q.Pending() == 0 }), convey.ShouldBeTrue)
				convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the pool shuts down", func() {
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)

			convey.Convey("Then the queue is closed", func() {
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
				convey.So(errors.Is(q.Enqueue(ctx, queue.Job{Group: model.GroupQB, Format: model.FormatPPR}), queue.ErrClosed), convey.ShouldBeTrue)
			})
		})
	})
}

func TestWorker_JobTimeout(t *testing.T) {
	convey.Convey("Given a worker with a short job timeout", t, func() {
		q := queue.NewInMemoryQueue()
		rec := newRecorder()
		rec.hold = make(chan struct{}) // never released

		var calls atomic.Int32
		handle := func(ctx context.Context, j queue.Job) error {
			calls.Add(1)
			return rec.handle(ctx, j)
		}
		w := worker.NewInMemoryWorker(q, handle, worker.WithJobTimeout(20*time.Millisecond))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.So(q.Enqueue(ctx, queue.Job{Group: model.GroupQB, Format: model.FormatPPR}), convey.ShouldBeNil)

		convey.Convey("Then a stuck job is abandoned and its pair released", func() {
			convey.So(waitFor(func() bool { return calls.Load() == 1 && q.Pending() == 0 }), convey.ShouldBeTrue)
			convey.So(rec.count(), convey.ShouldEqual, 0)
			convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
		})
	})
}
