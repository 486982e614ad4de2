package plugin

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dshills/snippetide/internal/event"
	"github.com/dshills/snippetide/internal/event/topic"
)

var testHost = MustParseVersion("1.0.0")

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func newStartedBus(t *testing.T) event.Bus {
	t.Helper()
	b := event.NewBus()
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

func newTestManager(t *testing.T, bus event.Bus) *Manager {
	t.Helper()
	m := NewManager(bus, testHost, WithManagerLogger(quietLogger()))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func languagePlugin(name, ext, command string) string {
	return `
plugin { name = "` + name + `", version = "1.0.0" }
language {
	name = "` + name + `",
	extensions = { "` + ext + `" },
	template = "hello",
	command = "` + command + `",
}
`
}

// collector records payloads published on one topic.
type collector[T any] struct {
	mu    sync.Mutex
	items []T
}

func collect[T any](t *testing.T, bus event.Bus, tp topic.Topic) *collector[T] {
	t.Helper()
	c := &collector[T]{}
	_, err := bus.Subscribe(tp, event.AsHandlerFunc(func(_ context.Context, e event.Event[T]) error {
		c.mu.Lock()
		c.items = append(c.items, e.Payload)
		c.mu.Unlock()
		return nil
	}))
	if err != nil {
		t.Fatalf("Subscribe(%s) failed: %v", tp, err)
	}
	return c
}

func (c *collector[T]) all() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.items...)
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
