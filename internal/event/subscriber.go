package event

import (
	"context"
	"sync"

	"github.com/dshills/snippetide/internal/event/topic"
)

// Subscriber groups the subscriptions of one component so they can be
// dropped together, e.g. when a plugin is unloaded.
type Subscriber struct {
	bus Bus

	mu     sync.Mutex
	subs   []Subscription
	closed bool
}

// NewSubscriber returns an empty Subscriber on bus.
func NewSubscriber(bus Bus) *Subscriber {
	return &Subscriber{bus: bus}
}

// Subscribe registers handler on the bus and tracks the subscription.
func (s *Subscriber) Subscribe(pattern topic.Topic, handler Handler, opts ...SubscriptionOption) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSubscriberClosed
	}
	sub, err := s.bus.Subscribe(pattern, handler, opts...)
	if err != nil {
		return nil, err
	}
	s.subs = append(s.subs, sub)
	return sub, nil
}

// SubscribePayload subscribes handler to the payloads of the Event[T]
// values published on pattern.
func SubscribePayload[T any](s *Subscriber, pattern topic.Topic, handler func(ctx context.Context, payload T) error, opts ...SubscriptionOption) (Subscription, error) {
	return s.Subscribe(pattern, AsHandlerFunc(func(ctx context.Context, e Event[T]) error {
		return handler(ctx, e.Payload)
	}), opts...)
}

// Close unsubscribes everything and refuses new subscriptions.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	for _, sub := range s.subs {
		_ = s.bus.Unsubscribe(sub)
	}
	s.subs = nil
	return nil
}
