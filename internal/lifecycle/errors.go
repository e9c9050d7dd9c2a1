package lifecycle

import "errors"

// Lifecycle errors
var (
	// ErrRequestNotFound is returned by Fetch for an unknown request id.
	ErrRequestNotFound = errors.New("request not found")

	// ErrQueueDispatch is returned when a job could not be handed to the
	// queue within the bounded retry policy. The request is left in a
	// terminal failed state with the last dispatch error recorded.
	ErrQueueDispatch = errors.New("queue dispatch failed after retries")

	// ErrInvalidInput is returned for a malformed submission before
	// anything is persisted.
	ErrInvalidInput = errors.New("invalid submission")
)

// Taxonomy codes recorded on failed requests and surfaced to callers.
const (
	CodeRequestNotFound = "RequestNotFound"
	CodeQueueDispatch   = "QueueDispatchFailure"
	CodeInvalidInput    = "InvalidInput"
)
