package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/dshills/snippetide/internal/config"
	"github.com/dshills/snippetide/internal/event"
	"github.com/dshills/snippetide/internal/event/events"
	"github.com/dshills/snippetide/internal/metrics"
	"github.com/dshills/snippetide/internal/plugin"
	"github.com/dshills/snippetide/internal/runner"
)

// Application is the booted snippetide context. It is created by a Booter
// and passed explicitly to whatever needs it.
type Application struct {
	config *config.Config
	logger *log.Logger

	rootDir    string
	pluginsDir string
	tempDir    string

	bus       event.Bus
	ownsBus   bool
	publisher *event.Publisher

	plugins *plugin.Manager
	scanner *plugin.Scanner
	watcher *plugin.Watcher
	report  plugin.Report

	runner     *runner.Runner
	controller *event.Subscriber
	runs       atomic.Int64 // runs started by the controller

	collector     *metrics.Collector
	collectorSub  *event.Subscriber
	metricsServer *metrics.Server
}

// Config returns the configuration the application was booted with.
func (a *Application) Config() *config.Config { return a.config }

// Logger returns the application logger.
func (a *Application) Logger() *log.Logger { return a.logger }

// RootDir returns the application directory.
func (a *Application) RootDir() string { return a.rootDir }

// PluginsDir returns the directory scanned for plugins.
func (a *Application) PluginsDir() string { return a.pluginsDir }

// TempDir returns the temporary directory wiped on unboot.
func (a *Application) TempDir() string { return a.tempDir }

// Bus returns the event bus.
func (a *Application) Bus() event.Bus { return a.bus }

// Plugins returns the plugin manager.
func (a *Application) Plugins() *plugin.Manager { return a.plugins }

// ScanReport returns the result of the boot-time plugin scan.
func (a *Application) ScanReport() plugin.Report { return a.report }

// Runner returns the application's runner.
func (a *Application) Runner() *runner.Runner { return a.runner }

// Metrics returns the metrics collector.
func (a *Application) Metrics() *metrics.Collector { return a.collector }

// NewSnippet writes the template of the named language to a new file in
// the temporary directory and returns its path.
func (a *Application) NewSnippet(language string) (string, error) {
	lang, ok := a.plugins.Language(language)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoLanguage, language)
	}

	f, err := os.CreateTemp(a.tempDir, "snippet-*"+plugin.DefaultExtension(lang))
	if err != nil {
		return "", fmt.Errorf("create snippet: %w", err)
	}
	if _, err := f.WriteString(lang.Template()); err != nil {
		f.Close()
		return "", fmt.Errorf("write snippet %s: %w", f.Name(), err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write snippet %s: %w", f.Name(), err)
	}

	a.logger.Debug("Created snippet", "language", lang.Name(), "path", f.Name())
	return f.Name(), nil
}

// Run asks for sourceFile to be run. It publishes run.start; the language
// that matches answers with the launch command and the run controller
// starts the runner. language and command are optional overrides. A
// command without a matching language is run as is.
//
// Delivery is synchronous, so when Run returns nil the runner has started.
func (a *Application) Run(ctx context.Context, sourceFile, language, command string) error {
	before := a.runs.Load()
	if err := a.publishRun(ctx, sourceFile, language, command); err != nil {
		return err
	}
	if a.runs.Load() == before {
		return fmt.Errorf("%w: %s", ErrRunNotStarted, sourceFile)
	}
	return nil
}

func (a *Application) publishRun(ctx context.Context, sourceFile, language, command string) error {
	var resolved bool
	if language != "" {
		_, resolved = a.plugins.Language(language)
	} else {
		_, resolved = a.plugins.LanguageFor(sourceFile)
	}

	if !resolved {
		if strings.TrimSpace(command) == "" {
			name := language
			if name == "" {
				name = sourceFile
			}
			return fmt.Errorf("%w: %s", ErrNoLanguage, name)
		}
		return event.Post(ctx, a.publisher, events.TopicRunRequested, events.RunRequested{
			SourceFile: sourceFile,
			Command:    command,
		})
	}

	return event.Post(ctx, a.publisher, events.TopicRunStart, events.RunStart{
		SourceFile: sourceFile,
		Language:   language,
		Command:    command,
	})
}

// Stop cancels the active run.
func (a *Application) Stop() {
	a.runner.Stop()
}
