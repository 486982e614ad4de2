// Package metrics exposes snippetide activity as Prometheus metrics.
//
// A Collector subscribes to every run.* and plugin.* event with asynchronous
// delivery, so recording never slows a runner or the plugin scan. It also
// reports the totals of the bus it is attached to. Server serves the
// collector's registry on /metrics along with /health checks.
package metrics
