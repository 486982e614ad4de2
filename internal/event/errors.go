package event

import (
	"errors"
	"fmt"
)

var (
	// ErrBusNotRunning is returned by Publish and Stop on a stopped bus.
	ErrBusNotRunning = errors.New("event bus is not running")

	// ErrBusAlreadyRunning is returned by Start on a running bus.
	ErrBusAlreadyRunning = errors.New("event bus is already running")

	// ErrInvalidEvent is returned by Publish for a value that is not
	// Topical or whose topic is malformed or a pattern.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrInvalidTopic is returned by Subscribe for a malformed pattern.
	ErrInvalidTopic = errors.New("invalid topic")

	// ErrNilHandler is returned by Subscribe for a nil handler.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrSubscriptionNotFound is returned when unsubscribing twice.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrSubscriberClosed is returned by a closed Subscriber.
	ErrSubscriberClosed = errors.New("subscriber is closed")
)

// HandlerError reports a sync handler that returned an error.
type HandlerError struct {
	SubscriptionID string
	Topic          string
	Err            error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s handler %s: %v", e.Topic, e.SubscriptionID, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
