package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Queue delivers events to handlers on a single worker goroutine, in push
// order. Push blocks while the queue is full.
type Queue struct {
	size    int
	timeout time.Duration
	onPanic PanicHandler

	mu      sync.RWMutex // held for reading by Push, for writing by Start and Stop
	jobs    chan job
	stopped chan struct{}

	delivered atomic.Uint64
	failed    atomic.Uint64
	panicked  atomic.Uint64
	dropped   atomic.Uint64
}

type job struct {
	ctx     context.Context
	event   any
	handler Handler
}

// Counts are running totals of a Queue.
type Counts struct {
	Delivered uint64
	Failed    uint64
	Panicked  uint64
	Dropped   uint64
	Pending   int
}

// NewQueue creates a stopped queue holding up to size jobs. Each handler
// call is bounded by timeout when it is positive; handlers must watch
// their context for the bound to apply.
func NewQueue(size int, timeout time.Duration, onPanic PanicHandler) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{size: size, timeout: timeout, onPanic: onPanic}
}

// Start launches the worker.
func (q *Queue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.jobs != nil {
		return ErrQueueStarted
	}
	q.jobs = make(chan job, q.size)
	q.stopped = make(chan struct{})
	go q.work(q.jobs, q.stopped)
	return nil
}

// Stop refuses new jobs and waits until the queued ones have run or ctx
// is done.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.jobs == nil {
		q.mu.Unlock()
		return ErrQueueStopped
	}
	close(q.jobs)
	stopped := q.stopped
	q.jobs = nil
	q.mu.Unlock()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Push queues a call of h with event. It waits for room until ctx is
// done, in which case the job is dropped.
func (q *Queue) Push(ctx context.Context, event any, h Handler) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.jobs == nil {
		return ErrQueueStopped
	}
	select {
	case q.jobs <- job{ctx: ctx, event: event, handler: h}:
		return nil
	case <-ctx.Done():
		q.dropped.Add(1)
		return ctx.Err()
	}
}

// Counts returns the running totals.
func (q *Queue) Counts() Counts {
	q.mu.RLock()
	pending := len(q.jobs)
	q.mu.RUnlock()

	return Counts{
		Delivered: q.delivered.Load(),
		Failed:    q.failed.Load(),
		Panicked:  q.panicked.Load(),
		Dropped:   q.dropped.Load(),
		Pending:   pending,
	}
}

func (q *Queue) work(jobs <-chan job, stopped chan<- struct{}) {
	defer close(stopped)

	for j := range jobs {
		// The publisher's context may end once Publish returns; only its
		// values carry over.
		ctx := context.WithoutCancel(j.ctx)
		var cancel context.CancelFunc = func() {}
		if q.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, q.timeout)
		}

		out, _ := Call(ctx, j.event, j.handler, q.onPanic)
		cancel()

		switch out {
		case Delivered:
			q.delivered.Add(1)
		case Panicked:
			q.panicked.Add(1)
		default:
			q.failed.Add(1)
		}
	}
}
