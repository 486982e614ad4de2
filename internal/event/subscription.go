package event

import (
	"sync/atomic"

	"github.com/dshills/snippetide/internal/event/topic"
)

// Subscription is a handler registered for a topic or pattern.
type Subscription interface {
	ID() string
	Topic() topic.Topic

	// Active reports whether the subscription still receives events.
	Active() bool
}

// SubscriptionOption configures Subscribe.
type SubscriptionOption func(*subscriptionConfig)

type subscriptionConfig struct {
	priority Priority
	mode     DeliveryMode
	filter   FilterFunc
}

// WithPriority orders the handler among the sync handlers of an event.
func WithPriority(p Priority) SubscriptionOption {
	return func(c *subscriptionConfig) {
		c.priority = p
	}
}

// WithDeliveryMode picks sync or async delivery. The default is sync.
func WithDeliveryMode(m DeliveryMode) SubscriptionOption {
	return func(c *subscriptionConfig) {
		c.mode = m
	}
}

// WithFilter skips events for which f returns false. The filter runs in
// Publish, even for async subscriptions.
func WithFilter(f FilterFunc) SubscriptionOption {
	return func(c *subscriptionConfig) {
		c.filter = f
	}
}

type subscription struct {
	id      string
	pattern topic.Topic
	handler Handler
	subscriptionConfig
	seq       uint64
	cancelled atomic.Bool
}

func (s *subscription) ID() string         { return s.id }
func (s *subscription) Topic() topic.Topic { return s.pattern }
func (s *subscription) Active() bool       { return !s.cancelled.Load() }

func (s *subscription) accepts(event any) bool {
	return s.Active() && (s.filter == nil || s.filter(event))
}
