// Package events defines the typed event payloads exchanged over the
// snippetide event bus.
//
// Each payload has a topic constant. Events are grouped by the component
// that publishes them:
//
//   - Run events: a run being asked for, a launch command being resolved,
//     and the output of the supervised process
//   - Plugin events: plugins loaded, unloaded or rejected by the scanner
//
// # Usage
//
//	evt := event.NewEvent(events.TopicRunStart,
//	    events.RunStart{SourceFile: "/tmp/snippet.py"},
//	    "cli",
//	)
//	bus.Publish(ctx, evt)
//
// # Topic Naming Convention
//
// Topics follow a hierarchical dot-notation:
//
//	run.start          front-end asks for a run
//	run.requested      a language capability resolved the launch command
//	run.output         one message from the runner
//	plugin.loaded      the scanner registered a plugin
//	plugin.failed      the scanner skipped a file
//
// Subscribers can use "run.*" or "plugin.**" to observe a whole family.
package events
