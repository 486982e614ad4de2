package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/snippetide/internal/event"
)

// busStats exports event.Stats of the attached bus. Nothing is reported
// until a bus is watched.
type busStats struct {
	published *prometheus.Desc
	delivered *prometheus.Desc
	failed    *prometheus.Desc
	panicked  *prometheus.Desc
	dropped   *prometheus.Desc
	pending   *prometheus.Desc
	subs      *prometheus.Desc

	mu  sync.Mutex
	bus event.Bus
}

func newBusStats() *busStats {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "bus", name), help, nil, nil)
	}
	return &busStats{
		published: desc("events_published_total", "Events accepted by the bus"),
		delivered: desc("handler_calls_total", "Handler calls that succeeded"),
		failed:    desc("handler_errors_total", "Handler calls that returned an error or timed out"),
		panicked:  desc("handler_panics_total", "Handler calls that panicked"),
		dropped:   desc("events_dropped_total", "Async handler calls abandoned on a full queue"),
		pending:   desc("queue_depth", "Async handler calls waiting to run"),
		subs:      desc("subscriptions", "Registered subscriptions"),
	}
}

func (b *busStats) watch(bus event.Bus) {
	b.mu.Lock()
	b.bus = bus
	b.mu.Unlock()
}

// Describe implements prometheus.Collector.
func (b *busStats) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{b.published, b.delivered, b.failed, b.panicked, b.dropped, b.pending, b.subs} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (b *busStats) Collect(ch chan<- prometheus.Metric) {
	b.mu.Lock()
	bus := b.bus
	b.mu.Unlock()
	if bus == nil {
		return
	}

	s := bus.Stats()
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge := func(d *prometheus.Desc, v int) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v))
	}
	counter(b.published, s.Published)
	counter(b.delivered, s.Delivered)
	counter(b.failed, s.Failed)
	counter(b.panicked, s.Panicked)
	counter(b.dropped, s.Dropped)
	gauge(b.pending, s.Pending)
	gauge(b.subs, s.Subscriptions)
}
