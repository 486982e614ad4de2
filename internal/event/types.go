package event

import "context"

// Priority orders sync handlers of one event. Lower runs first.
type Priority int

const (
	// PriorityCritical observes an event before anyone else.
	PriorityCritical Priority = 0

	// PriorityHigh is for the application's own controllers and the CLI.
	PriorityHigh Priority = 100

	// PriorityNormal is the default, used by language capabilities.
	PriorityNormal Priority = 200

	// PriorityLow is for metrics and logging.
	PriorityLow Priority = 300
)

func (p Priority) String() string {
	switch {
	case p <= PriorityCritical:
		return "critical"
	case p <= PriorityHigh:
		return "high"
	case p <= PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}

// DeliveryMode selects where a handler runs.
type DeliveryMode int

const (
	// DeliverySync runs the handler inside Publish.
	DeliverySync DeliveryMode = iota

	// DeliveryAsync queues the handler call for the bus worker.
	DeliveryAsync
)

func (m DeliveryMode) String() string {
	if m == DeliveryAsync {
		return "async"
	}
	return "sync"
}

// Handler receives events. The event is an Event[T] for some payload T.
type Handler interface {
	Handle(ctx context.Context, event any) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event any) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, event any) error {
	return f(ctx, event)
}

// TypedHandlerFunc handles events of a single payload type.
type TypedHandlerFunc[T any] func(ctx context.Context, event Event[T]) error

// AsHandlerFunc adapts fn to Handler. Events with another payload type are
// ignored, so fn may sit behind a wildcard pattern.
func AsHandlerFunc[T any](fn TypedHandlerFunc[T]) Handler {
	return HandlerFunc(func(ctx context.Context, event any) error {
		if e, ok := event.(Event[T]); ok {
			return fn(ctx, e)
		}
		return nil
	})
}

// FilterFunc decides, before any queuing, whether a subscription sees an
// event.
type FilterFunc func(event any) bool

// FilterPayload passes Event[T] values whose payload satisfies keep.
func FilterPayload[T any](keep func(payload T) bool) FilterFunc {
	return func(event any) bool {
		e, ok := event.(Event[T])
		return ok && keep(e.Payload)
	}
}

// Stats are running totals of a bus.
type Stats struct {
	Published uint64 // events accepted by Publish
	Delivered uint64 // handler calls that returned nil
	Failed    uint64 // handler calls that returned an error or timed out
	Panicked  uint64
	Dropped   uint64 // async calls abandoned because the publisher gave up

	Subscriptions int
	Pending       int // async calls waiting in the queue
}

// PanicHandler receives a recovered handler panic.
type PanicHandler func(event any, recovered any, stack []byte)

// ErrorHandler receives the error of a sync handler.
type ErrorHandler func(event any, err *HandlerError)
