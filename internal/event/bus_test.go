package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dshills/snippetide/internal/event/events"
	"github.com/dshills/snippetide/internal/event/topic"
)

func newStartedBus(t *testing.T, opts ...BusOption) Bus {
	t.Helper()
	b := NewBus(opts...)
	if err := b.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = b.Stop(ctx)
	})
	return b
}

func line(runID, text string) Event[events.OutputMessage] {
	return NewEvent(events.TopicRunOutput, events.OutputMessage{RunID: runID, Kind: events.OutputLine, Text: text}, "runner")
}

func record(got *[]string, name string) Handler {
	return HandlerFunc(func(context.Context, any) error {
		*got = append(*got, name)
		return nil
	})
}

func TestBus_StartStop(t *testing.T) {
	b := NewBus()

	if err := b.Publish(context.Background(), line("r1", "x")); !errors.Is(err, ErrBusNotRunning) {
		t.Errorf("Publish before Start = %v, want ErrBusNotRunning", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := b.Start(); !errors.Is(err, ErrBusAlreadyRunning) {
		t.Errorf("second Start() = %v, want ErrBusAlreadyRunning", err)
	}
	if !b.IsRunning() {
		t.Error("expected bus to be running")
	}
	if err := b.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if err := b.Stop(context.Background()); !errors.Is(err, ErrBusNotRunning) {
		t.Errorf("second Stop() = %v, want ErrBusNotRunning", err)
	}
}

func TestBus_SubscribeValidation(t *testing.T) {
	b := NewBus()
	noop := HandlerFunc(func(context.Context, any) error { return nil })

	tests := []struct {
		name    string
		pattern topic.Topic
		handler Handler
		want    error
	}{
		{"nil handler", "run.output", nil, ErrNilHandler},
		{"empty topic", "", noop, ErrInvalidTopic},
		{"empty segment", "run..output", noop, ErrInvalidTopic},
		{"rest wildcard not last", "**.output", noop, ErrInvalidTopic},
		{"exact", "run.output", noop, nil},
		{"pattern", "run.*", noop, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Subscribe(tt.pattern, tt.handler)
			if !errors.Is(err, tt.want) {
				t.Errorf("Subscribe(%q) = %v, want %v", tt.pattern, err, tt.want)
			}
		})
	}

	if err := b.Unsubscribe(nil); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Errorf("Unsubscribe(nil) = %v, want ErrSubscriptionNotFound", err)
	}
}

func TestBus_PublishRejectsInvalidEvents(t *testing.T) {
	b := newStartedBus(t)

	tests := []struct {
		name  string
		event any
	}{
		{"not an event", "run.output"},
		{"empty topic", NewEvent("", events.RunStart{}, "cli")},
		{"pattern topic", NewEvent("run.*", events.RunStart{}, "cli")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := b.Publish(context.Background(), tt.event); !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("Publish() = %v, want ErrInvalidEvent", err)
			}
		})
	}
	if n := b.Stats().Published; n != 0 {
		t.Errorf("Published = %d, want 0", n)
	}
}

func TestBus_SyncDeliveryIsInline(t *testing.T) {
	b := newStartedBus(t)

	var got []string
	_, err := b.Subscribe(events.TopicRunOutput, AsHandlerFunc(func(_ context.Context, e Event[events.OutputMessage]) error {
		got = append(got, e.Payload.Text)
		return nil
	}))
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"a", "b", "c", "d"}
	for _, text := range want {
		if err := b.Publish(context.Background(), line("r1", text)); err != nil {
			t.Fatal(err)
		}
	}

	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestBus_AsyncDeliveryPreservesOrder(t *testing.T) {
	b := NewBus(WithAsyncQueueSize(8))
	if err := b.Start(); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var got []int
	_, err := b.Subscribe(events.TopicRunOutput, AsHandlerFunc(func(_ context.Context, e Event[events.OutputMessage]) error {
		mu.Lock()
		got = append(got, e.Payload.ExitCode)
		mu.Unlock()
		return nil
	}), WithDeliveryMode(DeliveryAsync))
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 200; i++ {
		msg := events.OutputMessage{RunID: "r1", Kind: events.OutputLine, ExitCode: i}
		if err := b.Publish(context.Background(), NewEvent(events.TopicRunOutput, msg, "runner")); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.Stop(ctx); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}

	if len(got) != 200 {
		t.Fatalf("received %d events, want 200", len(got))
	}
	for i, n := range got {
		if n != i {
			t.Fatalf("event %d delivered out of order: %d", i, n)
		}
	}
	if s := b.Stats(); s.Delivered != 200 || s.Pending != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestBus_WildcardsAndPriority(t *testing.T) {
	b := newStartedBus(t)

	var got []string
	_, _ = b.Subscribe(events.TopicRunOutput, record(&got, "low"), WithPriority(PriorityLow))
	_, _ = b.Subscribe("run.*", record(&got, "normal-1"))
	_, _ = b.Subscribe(events.TopicRunOutput, record(&got, "critical"), WithPriority(PriorityCritical))
	_, _ = b.Subscribe("**", record(&got, "normal-2"))
	_, _ = b.Subscribe("plugin.*", record(&got, "plugin"))
	_, _ = b.Subscribe("run.output.*", record(&got, "too-deep"))

	_ = b.Publish(context.Background(), line("r1", "x"))

	want := []string{"critical", "normal-1", "normal-2", "low"}
	if len(got) != len(want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestBus_FanOutIsolatesPanics(t *testing.T) {
	var panics int
	b := newStartedBus(t, WithBusPanicHandler(func(any, any, []byte) { panics++ }))

	var got []string
	_, _ = b.Subscribe(events.TopicRunOutput, HandlerFunc(func(context.Context, any) error {
		panic("bad listener")
	}), WithPriority(PriorityCritical))
	_, _ = b.Subscribe(events.TopicRunOutput, record(&got, "healthy"))

	if err := b.Publish(context.Background(), line("r1", "x")); err != nil {
		t.Fatal(err)
	}

	if len(got) != 1 {
		t.Errorf("healthy listener ran %d times, want 1", len(got))
	}
	if panics != 1 {
		t.Errorf("panic handler ran %d times, want 1", panics)
	}
	if s := b.Stats(); s.Panicked != 1 || s.Delivered != 1 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestBus_ErrorHandler(t *testing.T) {
	var got *HandlerError
	b := newStartedBus(t, WithErrorHandler(func(_ any, err *HandlerError) { got = err }))

	failure := errors.New("listener failed")
	sub, _ := b.Subscribe("run.*", HandlerFunc(func(context.Context, any) error { return failure }))

	_ = b.Publish(context.Background(), line("r1", "x"))

	if got == nil {
		t.Fatal("error handler not called")
	}
	if !errors.Is(got, failure) || got.Topic != "run.output" || got.SubscriptionID != sub.ID() {
		t.Errorf("unexpected HandlerError %v", got)
	}
	if n := b.Stats().Failed; n != 1 {
		t.Errorf("Failed = %d, want 1", n)
	}
}

func TestBus_FilterPayload(t *testing.T) {
	b := newStartedBus(t)

	var inline, queued []string
	var mu sync.Mutex
	onlyR2 := WithFilter(FilterPayload(func(m events.OutputMessage) bool { return m.RunID == "r2" }))
	_, _ = b.Subscribe("run.*", AsHandlerFunc(func(_ context.Context, e Event[events.OutputMessage]) error {
		inline = append(inline, e.Payload.Text)
		return nil
	}), onlyR2)
	_, _ = b.Subscribe("run.*", AsHandlerFunc(func(_ context.Context, e Event[events.OutputMessage]) error {
		mu.Lock()
		queued = append(queued, e.Payload.Text)
		mu.Unlock()
		return nil
	}), onlyR2, WithDeliveryMode(DeliveryAsync))

	ctx := context.Background()
	_ = b.Publish(ctx, line("r1", "one"))
	_ = b.Publish(ctx, line("r2", "two"))
	_ = b.Publish(ctx, NewEvent(events.TopicRunStart, events.RunStart{SourceFile: "/s.py"}, "cli"))
	_ = b.Publish(ctx, line("r2", "three"))

	if len(inline) != 2 || inline[0] != "two" || inline[1] != "three" {
		t.Errorf("sync listener got %v, want [two three]", inline)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_ = b.Stop(stopCtx)
	if len(queued) != 2 {
		t.Errorf("async listener got %v, want [two three]", queued)
	}
	// Filtered events never reach the queue.
	if s := b.Stats(); s.Delivered != 4 {
		t.Errorf("Delivered = %d, want 4", s.Delivered)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := newStartedBus(t)

	var got []string
	sub, _ := b.Subscribe("run.*", record(&got, "x"))

	if err := b.Unsubscribe(sub); err != nil {
		t.Fatal(err)
	}
	if err := b.Unsubscribe(sub); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Errorf("second Unsubscribe = %v, want ErrSubscriptionNotFound", err)
	}
	if sub.Active() {
		t.Error("subscription still active")
	}

	_ = b.Publish(context.Background(), line("r1", "x"))
	if len(got) != 0 {
		t.Errorf("cancelled listener ran %d times", len(got))
	}
	if n := b.Stats().Subscriptions; n != 0 {
		t.Errorf("Subscriptions = %d, want 0", n)
	}
}

func TestBus_ConcurrentSubscribe(t *testing.T) {
	b := newStartedBus(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pattern := events.TopicRunOutput
			if i%2 == 0 {
				pattern = "run.*"
			}
			sub, err := b.Subscribe(pattern, HandlerFunc(func(context.Context, any) error { return nil }))
			if err != nil {
				t.Error(err)
				return
			}
			_ = b.Publish(context.Background(), line("r1", "x"))
			_ = b.Unsubscribe(sub)
		}(i)
	}
	wg.Wait()

	if n := b.Stats().Subscriptions; n != 0 {
		t.Errorf("Subscriptions = %d, want 0", n)
	}
}
