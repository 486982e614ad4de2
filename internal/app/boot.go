package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dshills/snippetide/internal/config"
	"github.com/dshills/snippetide/internal/event"
	"github.com/dshills/snippetide/internal/metrics"
	"github.com/dshills/snippetide/internal/plugin"
	"github.com/dshills/snippetide/internal/runner"
)

const (
	// shutdownTimeout bounds waiting for the active run and the bus on unboot.
	shutdownTimeout = 5 * time.Second

	// Only the metrics collector subscribes asynchronously.
	eventQueueSize      = 256
	eventHandlerTimeout = 2 * time.Second
)

// BootOptions supplies the configuration and, optionally, collaborators.
// Nil collaborators are built from Config.
type BootOptions struct {
	// Config is the configuration. Nil loads config.Default().
	Config *config.Config

	// Bus is the event bus. A bus that is not running is started.
	Bus event.Bus

	// Plugins is the plugin manager. It must publish on Bus.
	Plugins *plugin.Manager

	// Logger is the application logger.
	Logger *log.Logger

	// LogWriter receives log output when Logger is nil. Nil is stderr.
	LogWriter io.Writer

	// RunnerStderr receives process stderr when merge_stderr is off.
	RunnerStderr io.Writer
}

// Booter boots the application at most once until Reset.
type Booter struct {
	mu     sync.Mutex
	booted bool
	app    *Application
}

// NewBooter creates a Booter.
func NewBooter() *Booter {
	return &Booter{}
}

// Boot builds and starts the application. It fails with ErrAlreadyBooted
// if called again before Unboot or Reset, leaving the first application
// untouched. A directory that cannot be created aborts boot with a
// *BootError; plugin failures never do.
func (b *Booter) Boot(opts BootOptions) (*Application, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.booted {
		return nil, ErrAlreadyBooted
	}

	app, err := newBootstrapper(opts).bootstrap()
	if err != nil {
		return nil, err
	}

	b.app = app
	b.booted = true
	return app, nil
}

// Application returns the booted application, or nil.
func (b *Booter) Application() *Application {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.app
}

// IsBooted reports whether Boot succeeded and Unboot has not run.
func (b *Booter) IsBooted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.booted
}

// Unboot stops the application and deletes the temporary directory.
// Cleanup failures are logged and never returned; shutdown always
// completes.
func (b *Booter) Unboot() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.booted {
		return ErrNotBooted
	}

	b.app.shutdown()
	b.app = nil
	b.booted = false
	return nil
}

// Reset forgets the booted application without shutting it down.
func (b *Booter) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.app = nil
	b.booted = false
}

// bootstrapper handles component initialization with proper cleanup on failure.
type bootstrapper struct {
	app       *Application
	opts      BootOptions
	initOrder []string
}

func newBootstrapper(opts BootOptions) *bootstrapper {
	return &bootstrapper{
		app:       &Application{},
		opts:      opts,
		initOrder: make([]string, 0, 8),
	}
}

// bootstrap initializes all components in dependency order.
// On failure, it cleans up already-initialized components.
func (b *bootstrapper) bootstrap() (*Application, error) {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"logger", b.initLogger},
		{"eventBus", b.initEventBus},
		{"plugins", b.initPluginManager},
		{"directories", b.initDirectories},
		{"metrics", b.initMetrics},
		{"runner", b.initRunner},
		{"scan", b.initScan},
		{"watcher", b.initWatcher},
	}

	for _, step := range steps {
		if err := step.fn(); err != nil {
			if b.app.logger != nil {
				b.app.logger.Error("Boot failed", "step", step.name, "err", err)
			}
			b.cleanup()
			return nil, err
		}
		b.initOrder = append(b.initOrder, step.name)
	}

	b.app.logger.Info("Boot completed", "root", b.app.rootDir, "plugins", b.app.plugins.Count())
	return b.app, nil
}

func (b *bootstrapper) initLogger() error {
	if b.opts.Config == nil {
		b.opts.Config = config.Default()
	}
	b.app.config = b.opts.Config

	if b.opts.Logger != nil {
		b.app.logger = b.opts.Logger
		return nil
	}
	logger, err := NewLogger(b.app.config.Log, b.opts.LogWriter)
	if err != nil {
		return &InitError{Component: "logger", Err: err}
	}
	b.app.logger = logger
	b.app.logger.Info("Boot phase started")
	return nil
}

func (b *bootstrapper) initEventBus() error {
	bus := b.opts.Bus
	if bus == nil {
		logger := b.app.logger.WithPrefix("event")
		bus = event.NewBus(
			event.WithAsyncQueueSize(eventQueueSize),
			event.WithDefaultTimeout(eventHandlerTimeout),
			event.WithBusPanicHandler(func(ev any, panicValue any, _ []byte) {
				logger.Error("Event handler panicked", "event", fmt.Sprintf("%T", ev), "panic", panicValue)
			}),
			event.WithErrorHandler(func(ev any, err *event.HandlerError) {
				logger.Warn("Event handler failed", "topic", err.Topic, "err", err.Err)
			}),
		)
	}
	if !bus.IsRunning() {
		if err := bus.Start(); err != nil {
			return &InitError{Component: "event bus", Err: err}
		}
		b.app.ownsBus = true
	}
	b.app.bus = bus
	b.app.publisher = event.NewPublisher(bus, "app")
	return nil
}

func (b *bootstrapper) initPluginManager() error {
	if b.opts.Plugins != nil {
		b.app.plugins = b.opts.Plugins
	} else {
		factory := plugin.NewLuaFactory()
		factory.Timeout = b.app.config.Plugins.LoadTimeout.Std()
		b.app.plugins = plugin.NewManager(b.app.bus, HostVersion(),
			plugin.WithFactories(factory),
			plugin.WithManagerLogger(b.app.logger))
	}
	b.app.scanner = plugin.NewScanner(b.app.plugins, b.app.logger)
	return nil
}

// directory is one of the directories boot creates. Path is the configured
// form, used in errors when the directory cannot be resolved.
type directory struct {
	Path    string
	resolve func() (string, error)
	dst     *string
}

func (a *Application) directories() []directory {
	cfg := a.config
	plugins := cfg.Plugins.Dir
	if plugins == "" {
		plugins = filepath.Join(cfg.App.Root, "plugins")
	}
	return []directory{
		{Path: cfg.App.Root, resolve: cfg.RootDir, dst: &a.rootDir},
		{Path: plugins, resolve: cfg.PluginsDir, dst: &a.pluginsDir},
		{Path: filepath.Join(cfg.App.Root, "temp"), resolve: cfg.TempDir, dst: &a.tempDir},
	}
}

// initDirectories creates the root, plugins and temporary directories.
// Any failure is fatal.
func (b *bootstrapper) initDirectories() error {
	dirs := b.app.directories()
	for _, d := range dirs {
		dir, err := d.resolve()
		if err != nil {
			return &BootError{Path: d.Path, Err: err}
		}
		*d.dst = dir
	}

	for _, d := range dirs {
		if err := os.MkdirAll(*d.dst, 0o755); err != nil {
			return &BootError{Path: *d.dst, Err: err}
		}
	}
	return nil
}

func (b *bootstrapper) initMetrics() error {
	b.app.collector = metrics.NewCollector()
	sub, err := b.app.collector.Attach(b.app.bus)
	if err != nil {
		return &InitError{Component: "metrics", Err: err}
	}
	b.app.collectorSub = sub

	if addr := b.app.config.Metrics.Addr; addr != "" {
		srv := metrics.NewServer(addr, b.app.collector.Registry(), b.app.logger)
		if err := srv.Start(); err != nil {
			b.app.logger.Warn("Metrics server disabled", "addr", addr, "err", err)
			return nil
		}
		b.app.metricsServer = srv
	}
	return nil
}

func (b *bootstrapper) initRunner() error {
	rc := b.app.config.Runner
	b.app.runner = runner.New(b.app.bus,
		runner.WithLogger(b.app.logger),
		runner.WithDrainTimeout(rc.DrainTimeout.Std()),
		runner.WithKillTimeout(rc.KillTimeout.Std()),
		runner.WithMergeStderr(rc.MergeStderr),
		runner.WithShellEnv(rc.ShellEnv),
		runner.WithStderr(b.opts.RunnerStderr),
		runner.WithTempDir(b.app.tempDir),
	)
	if err := b.app.startController(); err != nil {
		return &InitError{Component: "run controller", Err: err}
	}
	return nil
}

// initScan loads the plugins directory. Failures are recorded in the
// report and never abort boot.
func (b *bootstrapper) initScan() error {
	b.app.report = b.app.scanner.Scan(context.Background(), b.app.pluginsDir)
	return nil
}

func (b *bootstrapper) initWatcher() error {
	pc := b.app.config.Plugins
	if !pc.Watch {
		return nil
	}
	w, err := plugin.NewWatcher(b.app.scanner, b.app.pluginsDir, pc.Debounce.Std())
	if err != nil {
		// Hot loading is optional; the scan already ran.
		b.app.logger.Warn("Plugin watcher disabled", "dir", b.app.pluginsDir, "err", err)
		return nil
	}
	b.app.watcher = w
	return nil
}

// cleanup releases components initialized before a failed step.
func (b *bootstrapper) cleanup() {
	if b.app.logger != nil {
		b.app.logger.Debug("Releasing partially booted components", "initialized", b.initOrder)
	}
	b.app.release()
}

// shutdown stops every component and wipes the temporary directory.
func (a *Application) shutdown() {
	a.logger.Info("Shutdown started")
	a.release()

	if a.tempDir != "" {
		if err := CleanTemp(a.tempDir, a.logger); err != nil {
			a.logger.Warn("Temporary directory not fully cleaned", "dir", a.tempDir, "err", err)
		}
	}
}

// release stops the components that were created, in reverse order.
func (a *Application) release() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil && !errors.Is(err, plugin.ErrWatcherClosed) {
			a.logger.Warn("Closing plugin watcher", "err", err)
		}
	}
	if a.controller != nil {
		_ = a.controller.Close()
	}
	if a.runner != nil {
		a.runner.Stop()
		if err := a.runner.Wait(ctx); err != nil {
			a.logger.Warn("Run did not finish before shutdown", "err", err)
		}
	}
	if a.plugins != nil {
		if err := a.plugins.Close(); err != nil {
			a.logger.Warn("Closing plugins", "err", err)
		}
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.logger.Warn("Stopping metrics server", "err", err)
		}
	}
	if a.collectorSub != nil {
		_ = a.collectorSub.Close()
	}
	if a.bus != nil && a.ownsBus {
		if err := a.bus.Stop(ctx); err != nil {
			a.logger.Warn("Stopping event bus", "err", err)
		}
	}
}
