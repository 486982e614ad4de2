package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileName is the configuration file looked up in the application root.
const FileName = "snippetide.toml"

// Config is the complete snippetide configuration.
type Config struct {
	App     AppConfig     `toml:"app"`
	Runner  RunnerConfig  `toml:"runner"`
	Plugins PluginsConfig `toml:"plugins"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`
}

// AppConfig locates the application directories.
type AppConfig struct {
	// Root is the application directory. It holds plugins/ and temp/.
	Root string `toml:"root"`
}

// RunnerConfig configures the process supervisor.
type RunnerConfig struct {
	// DrainTimeout bounds reading buffered output after the process exits.
	DrainTimeout Duration `toml:"drain_timeout"`

	// KillTimeout bounds waiting for a killed process to be reaped.
	KillTimeout Duration `toml:"kill_timeout"`

	// MergeStderr sends stderr through the output stream.
	MergeStderr bool `toml:"merge_stderr"`

	// ShellEnv exports SOURCE_FILE and friends into the process environment.
	ShellEnv bool `toml:"shell_env"`
}

// PluginsConfig configures plugin discovery.
type PluginsConfig struct {
	// Dir overrides the plugins directory. Relative paths are resolved
	// against the application root.
	Dir string `toml:"dir"`

	// Watch loads plugin files added after startup.
	Watch bool `toml:"watch"`

	// Debounce is how long a changed file must be quiet before loading.
	Debounce Duration `toml:"debounce"`

	// LoadTimeout bounds running one plugin file.
	LoadTimeout Duration `toml:"load_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level"`

	// Format is one of text, json, logfmt.
	Format string `toml:"format"`

	// Timestamps prefixes every line with the time.
	Timestamps bool `toml:"timestamps"`
}

// MetricsConfig configures the metrics endpoint.
type MetricsConfig struct {
	// Addr is the listen address of the /metrics server. Empty disables it.
	Addr string `toml:"addr"`
}

// Duration is a time.Duration written as a string such as "2s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the built-in configuration. The root is ~/.snippetide.
func Default() *Config {
	root := ".snippetide"
	if home, err := os.UserHomeDir(); err == nil {
		root = filepath.Join(home, ".snippetide")
	}

	return &Config{
		App: AppConfig{Root: root},
		Runner: RunnerConfig{
			DrainTimeout: Duration(2 * time.Second),
			KillTimeout:  Duration(5 * time.Second),
			MergeStderr:  true,
		},
		Plugins: PluginsConfig{
			Debounce:    Duration(150 * time.Millisecond),
			LoadTimeout: Duration(5 * time.Second),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// RootDir returns the absolute application root with ~ expanded.
func (c *Config) RootDir() (string, error) {
	root, err := expandHome(c.App.Root)
	if err != nil {
		return "", err
	}
	return filepath.Abs(root)
}

// PluginsDir returns the absolute plugins directory.
func (c *Config) PluginsDir() (string, error) {
	root, err := c.RootDir()
	if err != nil {
		return "", err
	}
	if c.Plugins.Dir == "" {
		return filepath.Join(root, "plugins"), nil
	}
	dir, err := expandHome(c.Plugins.Dir)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return filepath.Clean(dir), nil
}

// TempDir returns the absolute temporary directory. It is always temp/
// under the root since unboot deletes it.
func (c *Config) TempDir() (string, error) {
	root, err := c.RootDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "temp"), nil
}

// Validate checks every setting.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.App.Root) == "" {
		errs = append(errs, &ValidationError{Path: "app.root", Value: c.App.Root, Message: "must not be empty"})
	}
	for _, d := range []struct {
		path  string
		value Duration
	}{
		{"runner.drain_timeout", c.Runner.DrainTimeout},
		{"runner.kill_timeout", c.Runner.KillTimeout},
		{"plugins.load_timeout", c.Plugins.LoadTimeout},
	} {
		if d.value <= 0 {
			errs = append(errs, &ValidationError{Path: d.path, Value: d.value.Std(), Message: "must be positive"})
		}
	}
	if c.Plugins.Debounce < 0 {
		errs = append(errs, &ValidationError{Path: "plugins.debounce", Value: c.Plugins.Debounce.Std(), Message: "must not be negative"})
	}
	if !oneOf(c.Log.Level, "debug", "info", "warn", "error") {
		errs = append(errs, &ValidationError{Path: "log.level", Value: c.Log.Level, Message: "must be debug, info, warn or error"})
	}
	if !oneOf(c.Log.Format, "text", "json", "logfmt") {
		errs = append(errs, &ValidationError{Path: "log.format", Value: c.Log.Format, Message: "must be text, json or logfmt"})
	}
	if c.Metrics.Addr != "" && !strings.Contains(c.Metrics.Addr, ":") {
		errs = append(errs, &ValidationError{Path: "metrics.addr", Value: c.Metrics.Addr, Message: "must be host:port"})
	}

	return errors.Join(errs...)
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}
	return false
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoHomeDir, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
