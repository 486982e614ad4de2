package dispatch

import (
	"context"
	"runtime/debug"
)

// Handler mirrors event.Handler so this package does not import event.
type Handler interface {
	Handle(ctx context.Context, event any) error
}

// PanicHandler receives a recovered handler panic.
type PanicHandler func(event any, recovered any, stack []byte)

// Outcome is how one handler call ended.
type Outcome int

// Outcomes of Call.
const (
	Delivered Outcome = iota
	Failed
	Panicked
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Failed:
		return "failed"
	case Panicked:
		return "panicked"
	case Skipped:
		return "skipped"
	}
	return "unknown"
}

// Call runs h with event. A context that is already done skips the call.
// A panic is recovered and passed to onPanic, which may be nil.
func Call(ctx context.Context, event any, h Handler, onPanic PanicHandler) (out Outcome, err error) {
	if err := ctx.Err(); err != nil {
		return Skipped, err
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		out, err = Panicked, nil
		if onPanic != nil {
			stack := debug.Stack()
			func() {
				defer func() { _ = recover() }()
				onPanic(event, r, stack)
			}()
		}
	}()

	if err := h.Handle(ctx, event); err != nil {
		return Failed, err
	}
	return Delivered, nil
}
