package event

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dshills/snippetide/internal/event/dispatch"
	"github.com/dshills/snippetide/internal/event/topic"
)

// Bus routes events from publishers to subscribed handlers.
type Bus interface {
	// Publish delivers event to every subscription whose topic or pattern
	// matches. Sync handlers have run when Publish returns; async handler
	// calls are queued, and Publish waits for queue room until ctx is done.
	Publish(ctx context.Context, event any) error

	// Subscribe registers handler for a topic or a pattern such as "run.*".
	Subscribe(pattern topic.Topic, handler Handler, opts ...SubscriptionOption) (Subscription, error)
	Unsubscribe(sub Subscription) error

	Start() error

	// Stop refuses further events and waits for queued async calls until
	// ctx is done.
	Stop(ctx context.Context) error

	Stats() Stats
	IsRunning() bool
}

type bus struct {
	subs    *registry
	queue   *dispatch.Queue
	onPanic dispatch.PanicHandler
	onError ErrorHandler
	running atomic.Bool

	published atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
	panicked  atomic.Uint64
}

// NewBus creates a stopped bus.
func NewBus(opts ...BusOption) Bus {
	cfg := defaultBusConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	var onPanic dispatch.PanicHandler
	if cfg.panicHandler != nil {
		onPanic = dispatch.PanicHandler(cfg.panicHandler)
	}
	return &bus{
		subs:    newRegistry(),
		queue:   dispatch.NewQueue(cfg.queueSize, cfg.handlerTimeout, onPanic),
		onPanic: onPanic,
		onError: cfg.errorHandler,
	}
}

func (b *bus) Start() error {
	if b.running.Load() {
		return ErrBusAlreadyRunning
	}
	if err := b.queue.Start(); err != nil {
		return err
	}
	b.running.Store(true)
	return nil
}

func (b *bus) Stop(ctx context.Context) error {
	if !b.running.Swap(false) {
		return ErrBusNotRunning
	}
	return b.queue.Stop(ctx)
}

func (b *bus) IsRunning() bool {
	return b.running.Load()
}

func (b *bus) Publish(ctx context.Context, event any) error {
	if !b.running.Load() {
		return ErrBusNotRunning
	}
	tp, ok := event.(Topical)
	if !ok {
		return ErrInvalidEvent
	}
	t := tp.EventTopic()
	if !t.Valid() || t.IsPattern() {
		return ErrInvalidEvent
	}
	b.published.Add(1)

	for _, sub := range b.subs.match(t) {
		if !sub.accepts(event) {
			continue
		}
		if sub.mode == DeliveryAsync {
			// A full queue that outlasts ctx counts as dropped in the queue.
			_ = b.queue.Push(ctx, event, sub.handler)
			continue
		}

		out, err := dispatch.Call(ctx, event, sub.handler, b.onPanic)
		switch out {
		case dispatch.Delivered:
			b.delivered.Add(1)
		case dispatch.Panicked:
			b.panicked.Add(1)
		case dispatch.Failed:
			b.failed.Add(1)
			if b.onError != nil {
				b.onError(event, &HandlerError{SubscriptionID: sub.id, Topic: t.String(), Err: err})
			}
		}
	}
	return nil
}

func (b *bus) Subscribe(pattern topic.Topic, handler Handler, opts ...SubscriptionOption) (Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if !pattern.Valid() {
		return nil, ErrInvalidTopic
	}

	sub := &subscription{
		id:                 uuid.NewString(),
		pattern:            pattern,
		handler:            handler,
		subscriptionConfig: subscriptionConfig{priority: PriorityNormal},
	}
	for _, opt := range opts {
		opt(&sub.subscriptionConfig)
	}
	b.subs.add(sub)
	return sub, nil
}

// Unsubscribe stops delivery to sub. Async calls already queued still run.
func (b *bus) Unsubscribe(sub Subscription) error {
	s, ok := sub.(*subscription)
	if !ok {
		return ErrSubscriptionNotFound
	}
	s.cancelled.Store(true)
	if !b.subs.remove(s.id) {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (b *bus) Stats() Stats {
	q := b.queue.Counts()
	return Stats{
		Published:     b.published.Load(),
		Delivered:     b.delivered.Load() + q.Delivered,
		Failed:        b.failed.Load() + q.Failed,
		Panicked:      b.panicked.Load() + q.Panicked,
		Dropped:       q.Dropped,
		Subscriptions: b.subs.count(),
		Pending:       q.Pending,
	}
}
