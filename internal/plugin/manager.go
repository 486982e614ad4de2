package plugin

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dshills/snippetide/internal/event"
	"github.com/dshills/snippetide/internal/event/events"
	"github.com/dshills/snippetide/internal/event/topic"
)

// Factory creates plugins from files.
type Factory interface {
	// Name identifies the factory in load errors.
	Name() string

	// Accepts reports whether the factory can load path.
	Accepts(path string) bool

	// Load loads the plugin in path. Failures are *UnableToLoadError.
	Load(path string, hostVersion Version) (Plugin, error)
}

// Manager owns the loaded plugins and registers their languages on the bus.
type Manager struct {
	mu sync.RWMutex

	bus         event.Bus
	publisher   *event.Publisher
	logger      *log.Logger
	factories   []Factory
	hostVersion Version

	// Loaded plugins by path
	plugins map[string]*entry

	// Plugin load order (for deterministic iteration)
	loadOrder []string

	// First language registered for each extension
	byExtension map[string]Language

	closed bool
}

// entry is a loaded plugin and the subscriptions made for it.
type entry struct {
	plugin     Plugin
	subscriber *event.Subscriber
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithFactories replaces the default factories.
func WithFactories(factories ...Factory) ManagerOption {
	return func(m *Manager) {
		m.factories = factories
	}
}

// WithManagerLogger sets the logger.
func WithManagerLogger(logger *log.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger.WithPrefix("plugin")
		}
	}
}

// NewManager creates a Manager for a host at hostVersion. The default
// factory is a LuaFactory.
func NewManager(bus event.Bus, hostVersion Version, opts ...ManagerOption) *Manager {
	m := &Manager{
		bus:         bus,
		publisher:   event.NewPublisher(bus, "plugin"),
		logger:      log.Default().WithPrefix("plugin"),
		factories:   []Factory{NewLuaFactory()},
		hostVersion: hostVersion,
		plugins:     make(map[string]*entry),
		byExtension: make(map[string]Language),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// HostVersion returns the version plugins are checked against.
func (m *Manager) HostVersion() Version {
	return m.hostVersion
}

// Accepts reports whether any factory can load path.
func (m *Manager) Accepts(path string) bool {
	return m.factory(path) != nil
}

func (m *Manager) factory(path string) Factory {
	for _, f := range m.factories {
		if f.Accepts(path) {
			return f
		}
	}
	return nil
}

// Load loads the plugin in path and registers each of its languages as a
// run.start listener.
func (m *Manager) Load(ctx context.Context, path string) (Plugin, error) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	m.mu.RLock()
	closed := m.closed
	_, exists := m.plugins[path]
	m.mu.RUnlock()
	if closed {
		return nil, ErrManagerClosed
	}
	if exists {
		return nil, fmt.Errorf("plugin %s: %w", path, ErrAlreadyLoaded)
	}

	f := m.factory(path)
	if f == nil {
		return nil, &UnableToLoadError{Path: path, Loader: "none", Err: ErrUnsupportedFile}
	}

	// Load outside the lock; factories run plugin code.
	p, err := f.Load(path, m.hostVersion)
	if err != nil {
		return nil, err
	}

	sub := event.NewSubscriber(m.bus)
	for _, lang := range p.Languages() {
		owned := event.WithFilter(event.FilterPayload(func(start events.RunStart) bool {
			return m.resolves(lang, start)
		}))
		if _, err := event.SubscribePayload(sub, events.TopicRunStart, m.runStartHandler(lang), owned); err != nil {
			_ = sub.Close()
			_ = p.Close()
			return nil, fmt.Errorf("register language %s: %w", lang.Name(), err)
		}
	}

	m.mu.Lock()
	if m.closed || m.plugins[path] != nil {
		err := ErrManagerClosed
		if !m.closed {
			err = fmt.Errorf("plugin %s: %w", path, ErrAlreadyLoaded)
		}
		m.mu.Unlock()
		_ = sub.Close()
		_ = p.Close()
		return nil, err
	}
	m.plugins[path] = &entry{plugin: p, subscriber: sub}
	m.loadOrder = append(m.loadOrder, path)
	m.rebuildExtensionsLocked()
	m.mu.Unlock()

	names := make([]string, 0, len(p.Languages()))
	for _, lang := range p.Languages() {
		names = append(names, lang.Name())
	}
	m.logger.Info("Loaded plugin", "name", p.Name(), "version", p.Version(), "path", path, "languages", strings.Join(names, ","))
	publish(ctx, m, events.TopicPluginLoaded, events.PluginLoaded{
		Name:         p.Name(),
		Version:      p.Version().String(),
		Path:         path,
		Capabilities: names,
	})
	return p, nil
}

// Unload drops the plugin loaded from path.
func (m *Manager) Unload(ctx context.Context, path string) error {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	m.mu.Lock()
	e, ok := m.plugins[path]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("plugin %s: %w", path, ErrNotLoaded)
	}
	delete(m.plugins, path)
	for i, p := range m.loadOrder {
		if p == path {
			m.loadOrder = append(m.loadOrder[:i], m.loadOrder[i+1:]...)
			break
		}
	}
	m.rebuildExtensionsLocked()
	m.mu.Unlock()

	err := m.release(e)
	m.logger.Info("Unloaded plugin", "name", e.plugin.Name(), "path", path)
	publish(ctx, m, events.TopicPluginUnloaded, events.PluginUnloaded{Name: e.plugin.Name(), Path: path})
	return err
}

// Reload unloads path if it is loaded and loads it again.
func (m *Manager) Reload(ctx context.Context, path string) (Plugin, error) {
	if m.IsLoaded(path) {
		if err := m.Unload(ctx, path); err != nil {
			m.logger.Warn("Unload before reload failed", "path", path, "err", err)
		}
	}
	return m.Load(ctx, path)
}

// IsLoaded reports whether a plugin is loaded from path.
func (m *Manager) IsLoaded(path string) bool {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.plugins[path]
	return ok
}

// Count returns the number of loaded plugins.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.plugins)
}

// Plugins returns the loaded plugins in load order.
func (m *Manager) Plugins() []Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Plugin, 0, len(m.loadOrder))
	for _, path := range m.loadOrder {
		out = append(out, m.plugins[path].plugin)
	}
	return out
}

// Languages returns every loaded language in load order.
func (m *Manager) Languages() []Language {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Language
	for _, path := range m.loadOrder {
		out = append(out, m.plugins[path].plugin.Languages()...)
	}
	return out
}

// Language returns the language named name, compared case-insensitively.
func (m *Manager) Language(name string) (Language, bool) {
	for _, lang := range m.Languages() {
		if strings.EqualFold(lang.Name(), name) {
			return lang, true
		}
	}
	return nil, false
}

// LanguageFor returns the language that runs path.
func (m *Manager) LanguageFor(path string) (Language, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lang, ok := m.byExtension[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// Close unloads every plugin. The manager cannot be used afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	order := m.loadOrder
	plugins := m.plugins
	m.loadOrder = nil
	m.plugins = make(map[string]*entry)
	m.byExtension = make(map[string]Language)
	m.mu.Unlock()

	var firstErr error
	for i := len(order) - 1; i >= 0; i-- {
		if err := m.release(plugins[order[i]]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Manager) release(e *entry) error {
	_ = e.subscriber.Close()
	return e.plugin.Close()
}

// rebuildExtensionsLocked maps each extension to the first loaded language
// that declares it. Caller must hold m.mu.
func (m *Manager) rebuildExtensionsLocked() {
	m.byExtension = make(map[string]Language)
	for _, path := range m.loadOrder {
		for _, lang := range m.plugins[path].plugin.Languages() {
			for _, ext := range lang.Extensions() {
				ext = strings.ToLower(ext)
				if _, taken := m.byExtension[ext]; !taken {
					m.byExtension[ext] = lang
				}
			}
		}
	}
}

// resolves reports whether lang should answer start. An explicit language
// name wins; otherwise the first language registered for the source
// file's extension answers.
func (m *Manager) resolves(lang Language, start events.RunStart) bool {
	if start.Language != "" {
		if !strings.EqualFold(lang.Name(), start.Language) {
			return false
		}
		// Several plugins may declare the same name; the first one answers.
		first, ok := m.Language(start.Language)
		return ok && first == lang
	}
	owner, ok := m.LanguageFor(start.SourceFile)
	return ok && owner == lang
}

// runStartHandler is the run.start listener registered for lang. Its
// subscription only passes the starts that lang resolves.
func (m *Manager) runStartHandler(lang Language) func(context.Context, events.RunStart) error {
	return func(ctx context.Context, start events.RunStart) error {
		command := start.Command
		if command == "" {
			var err error
			command, err = lang.Command(start.SourceFile)
			if err != nil {
				m.logger.Error("Unable to build launch command", "language", lang.Name(), "source", start.SourceFile, "err", err)
				return err
			}
		}

		return event.Post(ctx, m.publisher, events.TopicRunRequested, events.RunRequested{
			SourceFile: start.SourceFile,
			Command:    command,
			Language:   lang.Name(),
		})
	}
}

// publish posts payload on t. The bus may be stopped during shutdown, so
// failures are only logged.
func publish[T any](ctx context.Context, m *Manager, t topic.Topic, payload T) {
	if err := event.Post(ctx, m.publisher, t, payload); err != nil {
		m.logger.Debug("Plugin event not published", "topic", t, "err", err)
	}
}
