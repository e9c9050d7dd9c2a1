package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is a channel-backed implementation of Queue for tests and
// single-process deployments.
type MemoryQueue struct {
	jobs   chan *Job
	mu     sync.Mutex
	closed bool
	timers []*time.Timer
}

// NewMemoryQueue creates an in-memory queue with the given buffer size.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 128
	}
	return &MemoryQueue{jobs: make(chan *Job, size)}
}

// Compile-time interface check.
var _ Queue = (*MemoryQueue)(nil)

// Enqueue makes a job available to workers immediately.
func (q *MemoryQueue) Enqueue(_ context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	cp := *job
	if cp.EnqueuedAt.IsZero() {
		cp.EnqueuedAt = time.Now().UTC()
	}
	select {
	case q.jobs <- &cp:
		return nil
	default:
		return ErrDispatchFailure
	}
}

// EnqueueDelayed makes a job available after the given delay.
func (q *MemoryQueue) EnqueueDelayed(ctx context.Context, job *Job, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, job)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	cp := *job
	if cp.EnqueuedAt.IsZero() {
		cp.EnqueuedAt = time.Now().UTC()
	}
	timer := time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if q.closed {
			return
		}
		select {
		case q.jobs <- &cp:
		default:
			// Buffer full after the delay; the job is lost here but the
			// request is eventually marked failed by the queue timeout.
		}
	})
	q.timers = append(q.timers, timer)
	return nil
}

// Dequeue blocks until a job is available or ctx is done.
func (q *MemoryQueue) Dequeue(ctx context.Context) (*Job, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case job, ok := <-q.jobs:
		if !ok {
			return nil, ErrQueueClosed
		}
		return job, nil
	}
}

// Close stops delayed deliveries and rejects further enqueues.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for _, timer := range q.timers {
		timer.Stop()
	}
	close(q.jobs)
}
