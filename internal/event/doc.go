// Package event is the in-process channel between the front-end, the
// plugin manager, the runner and the metrics collector.
//
// Events are Event[T] values published on a concrete topic such as
// "run.output". Subscriptions name a topic or a pattern ("run.*",
// "plugin.**"); see package topic for the matching rules.
//
// Sync handlers run inside Publish, ordered by priority and then by
// registration, so a publisher that emits messages one after another has
// them observed in that order. Async handlers are queued for one worker
// goroutine and also see events in publish order. A filter set with
// WithFilter is checked in Publish before anything is queued.
//
// Handler panics are recovered and reported to the bus PanicHandler; the
// remaining handlers still run.
//
//	sub := event.NewSubscriber(bus)
//	defer sub.Close()
//	event.SubscribePayload(sub, events.TopicRunOutput,
//	    func(ctx context.Context, msg events.OutputMessage) error {
//	        fmt.Println(msg.Text)
//	        return nil
//	    })
//
//	event.Post(ctx, event.NewPublisher(bus, "cli"), events.TopicRunStart, start)
package event
