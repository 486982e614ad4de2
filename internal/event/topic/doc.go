// Package topic names bus events.
//
// A topic is a dot-separated name such as "run.output". A subscription may
// use a pattern instead: "*" stands for one segment and a trailing "**"
// for any number of remaining segments, including none.
//
//	run.*        run.start, run.requested, run.output
//	plugin.**    plugin, plugin.loaded, plugin.load.failed
package topic
