package dispatch

import "errors"

var (
	// ErrQueueStarted is returned by Start on a running queue.
	ErrQueueStarted = errors.New("dispatch queue already started")

	// ErrQueueStopped is returned when the queue is not running.
	ErrQueueStopped = errors.New("dispatch queue not running")
)
