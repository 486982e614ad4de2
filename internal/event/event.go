package event

import (
	"time"

	"github.com/dshills/snippetide/internal/event/topic"
)

// Event is one typed message on the bus.
type Event[T any] struct {
	// Topic is the concrete topic the event was published on.
	Topic topic.Topic

	// Payload is the message itself, e.g. an events.OutputMessage.
	Payload T

	// Source names the publishing component: "runner", "plugin", "cli".
	Source string

	// Time is when the event was built.
	Time time.Time
}

// NewEvent builds an event for payload on t.
func NewEvent[T any](t topic.Topic, payload T, source string) Event[T] {
	return Event[T]{
		Topic:   t,
		Payload: payload,
		Source:  source,
		Time:    time.Now(),
	}
}

// EventTopic implements Topical.
func (e Event[T]) EventTopic() topic.Topic {
	return e.Topic
}

// Topical is what Publish needs from an event.
type Topical interface {
	EventTopic() topic.Topic
}
