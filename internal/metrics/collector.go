package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/dshills/snippetide/internal/event"
	"github.com/dshills/snippetide/internal/event/events"
	"github.com/dshills/snippetide/internal/event/topic"
)

const namespace = "snippetide"

// Collector records run and plugin activity.
type Collector struct {
	registry *prometheus.Registry

	runsRequested prometheus.Counter
	runsStarted   prometheus.Counter
	runsFinished  *prometheus.CounterVec
	activeRuns    prometheus.Gauge
	outputLines   prometheus.Counter
	runDuration   prometheus.Histogram

	pluginsLoaded prometheus.Counter
	pluginsFailed prometheus.Counter
	pluginsActive prometheus.Gauge

	bus *busStats

	mu   sync.Mutex
	runs map[string]time.Time // run ID -> first message seen
}

// NewCollector creates a Collector registered on a fresh registry.
func NewCollector() *Collector {
	return NewCollectorWithRegistry(prometheus.NewRegistry())
}

// NewCollectorWithRegistry creates a Collector registered on registry.
func NewCollectorWithRegistry(registry *prometheus.Registry) *Collector {
	c := &Collector{
		registry: registry,
		runsRequested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_requested_total",
			Help:      "Launch commands resolved by a language",
		}),
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Runs that produced at least one message",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_finished_total",
			Help:      "Finished runs by outcome (exit, diagnostic)",
		}, []string{"outcome"}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Runs that have not produced their final message",
		}),
		outputLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_lines_total",
			Help:      "Lines of process output forwarded",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Time from a run's first message to its final message",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		pluginsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plugins_loaded_total",
			Help:      "Plugin files loaded",
		}),
		pluginsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plugins_failed_total",
			Help:      "Plugin files that failed to load",
		}),
		pluginsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "plugins_active",
			Help:      "Currently loaded plugins",
		}),
		bus:  newBusStats(),
		runs: make(map[string]time.Time),
	}

	registry.MustRegister(
		c.runsRequested,
		c.runsStarted,
		c.runsFinished,
		c.activeRuns,
		c.outputLines,
		c.runDuration,
		c.pluginsLoaded,
		c.pluginsFailed,
		c.pluginsActive,
		c.bus,
	)
	return c
}

// Registry returns the registry the collector is registered on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Attach subscribes the collector to every run and plugin event on bus and
// exports the bus's own totals. Close the returned subscriber to detach.
func (c *Collector) Attach(bus event.Bus) (*event.Subscriber, error) {
	sub := event.NewSubscriber(bus)
	opts := []event.SubscriptionOption{
		event.WithDeliveryMode(event.DeliveryAsync),
		event.WithPriority(event.PriorityLow),
	}
	for _, pattern := range []topic.Topic{runTopics, pluginTopics} {
		if _, err := sub.Subscribe(pattern, event.HandlerFunc(c.observe), opts...); err != nil {
			_ = sub.Close()
			return nil, fmt.Errorf("subscribe %s: %w", pattern, err)
		}
	}
	c.bus.watch(bus)
	return sub, nil
}

const (
	runTopics    topic.Topic = "run.*"
	pluginTopics topic.Topic = "plugin.*"
)

func (c *Collector) observe(_ context.Context, e any) error {
	switch e := e.(type) {
	case event.Event[events.OutputMessage]:
		c.observeOutput(e.Payload)
	case event.Event[events.RunRequested]:
		c.runsRequested.Inc()
	case event.Event[events.PluginLoaded]:
		c.pluginsLoaded.Inc()
		c.pluginsActive.Inc()
	case event.Event[events.PluginUnloaded]:
		c.pluginsActive.Dec()
	case event.Event[events.PluginFailed]:
		c.pluginsFailed.Inc()
	}
	return nil
}

// observeOutput records one OutputMessage.
func (c *Collector) observeOutput(msg events.OutputMessage) {
	c.mu.Lock()
	started, seen := c.runs[msg.RunID]
	if !seen {
		started = time.Now()
		c.runs[msg.RunID] = started
		c.runsStarted.Inc()
		c.activeRuns.Inc()
	}

	switch msg.Kind {
	case events.OutputLine:
		c.mu.Unlock()
		c.outputLines.Inc()
		return
	case events.OutputExit, events.OutputDiagnostic:
		delete(c.runs, msg.RunID)
	}
	c.mu.Unlock()

	c.activeRuns.Dec()
	c.runsFinished.WithLabelValues(string(msg.Kind)).Inc()
	c.runDuration.Observe(time.Since(started).Seconds())
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	RunsRequested float64
	RunsStarted   float64
	RunsExited    float64
	RunsFailed    float64
	ActiveRuns    float64
	OutputLines   float64
	PluginsLoaded float64
	PluginsFailed float64
	PluginsActive float64

	EventsPublished float64
	EventsDropped   float64
	HandlerPanics   float64
}

// Snapshot gathers the registry and returns the collector's values.
func (c *Collector) Snapshot() (Snapshot, error) {
	families, err := c.registry.Gather()
	if err != nil {
		return Snapshot{}, fmt.Errorf("gather metrics: %w", err)
	}

	var s Snapshot
	for _, mf := range families {
		switch mf.GetName() {
		case namespace + "_runs_requested_total":
			s.RunsRequested = sum(mf, nil)
		case namespace + "_runs_started_total":
			s.RunsStarted = sum(mf, nil)
		case namespace + "_runs_finished_total":
			s.RunsExited = sum(mf, map[string]string{"outcome": string(events.OutputExit)})
			s.RunsFailed = sum(mf, map[string]string{"outcome": string(events.OutputDiagnostic)})
		case namespace + "_active_runs":
			s.ActiveRuns = sum(mf, nil)
		case namespace + "_output_lines_total":
			s.OutputLines = sum(mf, nil)
		case namespace + "_plugins_loaded_total":
			s.PluginsLoaded = sum(mf, nil)
		case namespace + "_plugins_failed_total":
			s.PluginsFailed = sum(mf, nil)
		case namespace + "_plugins_active":
			s.PluginsActive = sum(mf, nil)
		case namespace + "_bus_events_published_total":
			s.EventsPublished = sum(mf, nil)
		case namespace + "_bus_events_dropped_total":
			s.EventsDropped = sum(mf, nil)
		case namespace + "_bus_handler_panics_total":
			s.HandlerPanics = sum(mf, nil)
		}
	}
	return s, nil
}

// sum adds the counter or gauge values of the metrics in mf whose labels
// include every pair in match.
func sum(mf *dto.MetricFamily, match map[string]string) float64 {
	var total float64
	for _, m := range mf.GetMetric() {
		if !hasLabels(m, match) {
			continue
		}
		switch {
		case m.GetCounter() != nil:
			total += m.GetCounter().GetValue()
		case m.GetGauge() != nil:
			total += m.GetGauge().GetValue()
		}
	}
	return total
}

func hasLabels(m *dto.Metric, match map[string]string) bool {
	for name, value := range match {
		found := false
		for _, lp := range m.GetLabel() {
			if lp.GetName() == name && lp.GetValue() == value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
