package event

import (
	"context"

	"github.com/dshills/snippetide/internal/event/topic"
)

// Publisher stamps the events of one component with its source name.
type Publisher struct {
	bus    Bus
	source string
}

// NewPublisher returns a Publisher for source on bus.
func NewPublisher(bus Bus, source string) *Publisher {
	return &Publisher{bus: bus, source: source}
}

// Post publishes payload on t as an Event[T].
func Post[T any](ctx context.Context, p *Publisher, t topic.Topic, payload T) error {
	return p.bus.Publish(ctx, NewEvent(t, payload, p.source))
}
