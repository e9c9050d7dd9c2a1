// Package queue provides the job queue port connecting submission to the
// background compute workers, with Redis and in-memory adapters.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Queue errors
var (
	// ErrQueueClosed is returned once a queue has been shut down.
	ErrQueueClosed = errors.New("queue closed")

	// ErrDispatchFailure is returned when a job cannot be handed to the
	// queue backend. Transient: callers retry per the backoff policy.
	ErrDispatchFailure = errors.New("queue dispatch failure")
)

// Job is a compute task for one estimate request. State lives in the
// request store; the job carries only the id plus retry bookkeeping.
type Job struct {
	RequestID  uuid.UUID `json:"request_id"`
	Attempt    int       `json:"attempt"` // 0-based compute attempt
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue dispatches jobs to workers. Implementations must deliver each
// job to exactly one consumer.
type Queue interface {
	// Enqueue makes a job available to workers immediately.
	Enqueue(ctx context.Context, job *Job) error

	// EnqueueDelayed makes a job available after the given delay,
	// used for backoff between compute attempts.
	EnqueueDelayed(ctx context.Context, job *Job, delay time.Duration) error

	// Dequeue blocks until a job is available or ctx is done.
	Dequeue(ctx context.Context) (*Job, error)
}
