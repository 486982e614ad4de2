package app

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dshills/snippetide/internal/config"
	"github.com/dshills/snippetide/internal/event"
	"github.com/dshills/snippetide/internal/event/events"
)

const shellPlugin = `
plugin { name = "shell", version = "1.0.0", min_host_version = "0.1.0" }
language {
	name = "Shell",
	extensions = { ".sh" },
	template = "echo hello\necho world\n",
	command = "sh $SOURCE_FILE",
}
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.App.Root = filepath.Join(t.TempDir(), "root")
	cfg.Runner.DrainTimeout = config.Duration(500 * time.Millisecond)
	return cfg
}

func quietOptions(cfg *config.Config) BootOptions {
	return BootOptions{Config: cfg, Logger: log.New(io.Discard)}
}

func writePlugin(t *testing.T, cfg *config.Config, name, content string) string {
	t.Helper()
	dir, err := cfg.PluginsDir()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func bootForTest(t *testing.T, cfg *config.Config) (*Booter, *Application) {
	t.Helper()
	b := NewBooter()
	a, err := b.Boot(quietOptions(cfg))
	if err != nil {
		t.Fatalf("Boot() error = %v", err)
	}
	t.Cleanup(func() {
		if b.IsBooted() {
			_ = b.Unboot()
		}
	})
	return b, a
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestBootCreatesDirectories(t *testing.T) {
	cfg := testConfig(t)
	_, a := bootForTest(t, cfg)

	for _, dir := range []string{a.RootDir(), a.PluginsDir(), a.TempDir()} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("directory %s not created: %v", dir, err)
		}
	}
	if a.PluginsDir() != filepath.Join(a.RootDir(), "plugins") {
		t.Errorf("PluginsDir() = %q", a.PluginsDir())
	}
	if a.TempDir() != filepath.Join(a.RootDir(), "temp") {
		t.Errorf("TempDir() = %q", a.TempDir())
	}
	if !a.Bus().IsRunning() {
		t.Error("bus not running after boot")
	}
}

func TestBootTwiceFails(t *testing.T) {
	cfg := testConfig(t)
	writePlugin(t, cfg, "shell.lua", shellPlugin)
	b, a := bootForTest(t, cfg)

	if _, err := b.Boot(quietOptions(testConfig(t))); !errors.Is(err, ErrAlreadyBooted) {
		t.Fatalf("second Boot() error = %v, want ErrAlreadyBooted", err)
	}
	if b.Application() != a {
		t.Error("second Boot() replaced the application")
	}
	if a.Plugins().Count() != 1 || !a.Bus().IsRunning() {
		t.Errorf("first boot state changed: plugins=%d running=%v", a.Plugins().Count(), a.Bus().IsRunning())
	}
}

func TestBootAfterReset(t *testing.T) {
	cfg := testConfig(t)
	b, first := bootForTest(t, cfg)

	b.Reset()
	if b.IsBooted() {
		t.Fatal("IsBooted() = true after Reset")
	}

	// Reset does not shut the first application down.
	t.Cleanup(first.shutdown)

	second, err := b.Boot(quietOptions(testConfig(t)))
	if err != nil {
		t.Fatalf("Boot() after Reset error = %v", err)
	}
	if second == first {
		t.Error("Boot() after Reset returned the old application")
	}
}

func TestBootDirectoryFailure(t *testing.T) {
	cfg := testConfig(t)
	// A file where the root directory should be.
	if err := os.WriteFile(cfg.App.Root, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	b := NewBooter()
	_, err := b.Boot(quietOptions(cfg))

	var bootErr *BootError
	if !errors.As(err, &bootErr) {
		t.Fatalf("Boot() error = %v, want *BootError", err)
	}
	root, _ := cfg.RootDir()
	if bootErr.Path != root {
		t.Errorf("BootError.Path = %q, want %q", bootErr.Path, root)
	}
	if b.IsBooted() {
		t.Error("IsBooted() = true after failed boot")
	}
	if err := b.Unboot(); !errors.Is(err, ErrNotBooted) {
		t.Errorf("Unboot() after failed boot = %v, want ErrNotBooted", err)
	}
}

func TestBootBadLogLevel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Log.Level = "shout"

	if _, err := NewBooter().Boot(BootOptions{Config: cfg, LogWriter: io.Discard}); err == nil {
		t.Fatal("Boot() with a bad log level should fail")
	}
}

func TestBootContinuesPastBadPlugins(t *testing.T) {
	cfg := testConfig(t)
	writePlugin(t, cfg, "shell.lua", shellPlugin)
	bad := writePlugin(t, cfg, "broken.lua", `language {`)

	_, a := bootForTest(t, cfg)

	report := a.ScanReport()
	if report.Loaded != 1 || a.Plugins().Count() != 1 {
		t.Errorf("Loaded = %d, Count() = %d, want 1", report.Loaded, a.Plugins().Count())
	}
	if len(report.Diagnostics) != 1 || report.Diagnostics[0].Path != bad {
		t.Errorf("Diagnostics = %v", report.Diagnostics)
	}
	s, err := a.Metrics().Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for s.PluginsFailed != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		s, _ = a.Metrics().Snapshot()
	}
	if s.PluginsFailed != 1 || s.PluginsLoaded != 1 {
		t.Errorf("metrics = %+v", s)
	}
}

func TestBootWithInjectedBus(t *testing.T) {
	bus := event.NewBus()
	if err := bus.Start(); err != nil {
		t.Fatal(err)
	}
	defer bus.Stop(context.Background())

	b := NewBooter()
	opts := quietOptions(testConfig(t))
	opts.Bus = bus
	a, err := b.Boot(opts)
	if err != nil {
		t.Fatalf("Boot() error = %v", err)
	}
	if a.Bus() != bus {
		t.Error("injected bus not used")
	}
	if err := b.Unboot(); err != nil {
		t.Fatal(err)
	}
	if !bus.IsRunning() {
		t.Error("Unboot() stopped a bus it did not start")
	}
}

func TestUnbootRemovesTemp(t *testing.T) {
	cfg := testConfig(t)
	b, a := bootForTest(t, cfg)

	nested := filepath.Join(a.TempDir(), "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{
		filepath.Join(a.TempDir(), "top.txt"),
		filepath.Join(a.TempDir(), "a", "mid.txt"),
		filepath.Join(nested, "deep.txt"),
	} {
		if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := b.Unboot(); err != nil {
		t.Fatalf("Unboot() error = %v", err)
	}
	if _, err := os.Stat(a.TempDir()); !os.IsNotExist(err) {
		t.Errorf("temp dir still exists: %v", err)
	}
	if _, err := os.Stat(a.PluginsDir()); err != nil {
		t.Errorf("plugins dir removed: %v", err)
	}
	if a.Bus().IsRunning() {
		t.Error("bus still running after Unboot")
	}
	if err := b.Unboot(); !errors.Is(err, ErrNotBooted) {
		t.Errorf("second Unboot() = %v, want ErrNotBooted", err)
	}
}

// outputs records run.output messages.
type outputs struct {
	mu   sync.Mutex
	msgs []events.OutputMessage
}

func watchOutput(t *testing.T, a *Application) *outputs {
	t.Helper()
	o := &outputs{}
	_, err := a.Bus().Subscribe(events.TopicRunOutput, event.AsHandlerFunc(func(_ context.Context, e event.Event[events.OutputMessage]) error {
		o.mu.Lock()
		o.msgs = append(o.msgs, e.Payload)
		o.mu.Unlock()
		return nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	return o
}

func (o *outputs) texts() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.msgs))
	for i, m := range o.msgs {
		out[i] = m.Text
	}
	return out
}

func TestRunThroughPlugin(t *testing.T) {
	requireShell(t)
	cfg := testConfig(t)
	writePlugin(t, cfg, "shell.lua", shellPlugin)
	_, a := bootForTest(t, cfg)
	out := watchOutput(t, a)

	src, err := a.NewSnippet("shell")
	if err != nil {
		t.Fatalf("NewSnippet() error = %v", err)
	}
	if filepath.Dir(src) != a.TempDir() || filepath.Ext(src) != ".sh" {
		t.Errorf("snippet path = %q", src)
	}

	if err := a.Run(context.Background(), src, "", ""); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Runner().Wait(ctx); err != nil {
		t.Fatal(err)
	}

	want := []string{"hello", "world", "Process finished with exit code 0"}
	if got := out.texts(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestRunErrors(t *testing.T) {
	cfg := testConfig(t)
	writePlugin(t, cfg, "shell.lua", shellPlugin)
	writePlugin(t, cfg, "failing.lua", `
plugin { name = "failing" }
language { name = "Failing", extensions = ".fail", command = function() error("no toolchain") end }
`)
	_, a := bootForTest(t, cfg)

	if _, err := a.NewSnippet("cobol"); !errors.Is(err, ErrNoLanguage) {
		t.Errorf("NewSnippet(cobol) error = %v, want ErrNoLanguage", err)
	}
	if err := a.Run(context.Background(), "/x/prog.cob", "", ""); !errors.Is(err, ErrNoLanguage) {
		t.Errorf("Run(.cob) error = %v, want ErrNoLanguage", err)
	}
	if err := a.Run(context.Background(), "/x/prog.sh", "cobol", ""); !errors.Is(err, ErrNoLanguage) {
		t.Errorf("Run(language cobol) error = %v, want ErrNoLanguage", err)
	}
	if err := a.Run(context.Background(), "/x/prog.fail", "", ""); !errors.Is(err, ErrRunNotStarted) {
		t.Errorf("Run(.fail) error = %v, want ErrRunNotStarted", err)
	}
}

func TestRunCommandWithoutLanguage(t *testing.T) {
	requireShell(t)
	cfg := testConfig(t)
	_, a := bootForTest(t, cfg)
	out := watchOutput(t, a)

	src := filepath.Join(a.TempDir(), "data.txt")
	if err := os.WriteFile(src, []byte("line\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := a.Run(context.Background(), src, "", "cat $SOURCE_FILE"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Runner().Wait(ctx); err != nil {
		t.Fatal(err)
	}

	got := out.texts()
	if len(got) != 2 || got[0] != "line" || got[1] != "Process finished with exit code 0" {
		t.Errorf("output = %q", got)
	}
}

func TestBootUnresolvableRoot(t *testing.T) {
	t.Setenv("HOME", "")
	cfg := testConfig(t)
	cfg.App.Root = "~/snippets"

	_, err := NewBooter().Boot(quietOptions(cfg))
	var bootErr *BootError
	if !errors.As(err, &bootErr) {
		t.Fatalf("Boot() error = %v, want *BootError", err)
	}
	if bootErr.Path != "~/snippets" {
		t.Errorf("BootError.Path = %q, want the configured root", bootErr.Path)
	}
	if !errors.Is(err, config.ErrNoHomeDir) {
		t.Errorf("Boot() error = %v, want ErrNoHomeDir", err)
	}
}

func TestDirectoriesNameConfiguredPaths(t *testing.T) {
	tests := []struct {
		name    string
		plugins string
		want    []string
	}{
		{"default plugins dir", "", []string{"~/snip", filepath.Join("~/snip", "plugins"), filepath.Join("~/snip", "temp")}},
		{"custom plugins dir", "/opt/plugins", []string{"~/snip", "/opt/plugins", filepath.Join("~/snip", "temp")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.App.Root = "~/snip"
			cfg.Plugins.Dir = tt.plugins

			dirs := (&Application{config: cfg}).directories()
			if len(dirs) != len(tt.want) {
				t.Fatalf("got %d directories, want %d", len(dirs), len(tt.want))
			}
			for i, d := range dirs {
				if d.Path != tt.want[i] {
					t.Errorf("directory %d Path = %q, want %q", i, d.Path, tt.want[i])
				}
			}
		})
	}
}

func TestBootMetricsAddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen: %v", err)
	}
	defer ln.Close()

	cfg := testConfig(t)
	cfg.Metrics.Addr = ln.Addr().String()

	b := NewBooter()
	a, err := b.Boot(quietOptions(cfg))
	if err != nil {
		t.Fatalf("Boot() with a busy metrics address = %v, want success", err)
	}
	defer func() { _ = b.Unboot() }()

	if a.metricsServer != nil {
		t.Error("metrics server should be disabled")
	}
	if a.Metrics() == nil {
		t.Error("collector should still be attached")
	}
}
