package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment variables read by ApplyEnv.
const (
	EnvRoot         = "SNIPPETIDE_ROOT"
	EnvLogLevel     = "SNIPPETIDE_LOG_LEVEL"
	EnvLogFormat    = "SNIPPETIDE_LOG_FORMAT"
	EnvMetricsAddr  = "SNIPPETIDE_METRICS_ADDR"
	EnvPluginsWatch = "SNIPPETIDE_PLUGINS_WATCH"
	EnvDrainTimeout = "SNIPPETIDE_DRAIN_TIMEOUT"
	EnvMergeStderr  = "SNIPPETIDE_MERGE_STDERR"
	EnvPluginsDir   = "SNIPPETIDE_PLUGINS_DIR"
)

// envMapping maps each variable to the setting it overrides.
var envMapping = []struct {
	env   string
	path  string
	apply func(c *Config, v string) error
}{
	{EnvRoot, "app.root", func(c *Config, v string) error { c.App.Root = v; return nil }},
	{EnvLogLevel, "log.level", func(c *Config, v string) error { c.Log.Level = v; return nil }},
	{EnvLogFormat, "log.format", func(c *Config, v string) error { c.Log.Format = v; return nil }},
	{EnvMetricsAddr, "metrics.addr", func(c *Config, v string) error { c.Metrics.Addr = v; return nil }},
	{EnvPluginsDir, "plugins.dir", func(c *Config, v string) error { c.Plugins.Dir = v; return nil }},
	{EnvPluginsWatch, "plugins.watch", func(c *Config, v string) error { return parseBool(v, &c.Plugins.Watch) }},
	{EnvMergeStderr, "runner.merge_stderr", func(c *Config, v string) error { return parseBool(v, &c.Runner.MergeStderr) }},
	{EnvDrainTimeout, "runner.drain_timeout", func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		c.Runner.DrainTimeout = Duration(d)
		return nil
	}},
}

// ApplyEnv overrides settings from the environment.
// Note: Empty string values are treated as valid values, not as unset.
func ApplyEnv(c *Config) error {
	for _, m := range envMapping {
		v, ok := os.LookupEnv(m.env)
		if !ok {
			continue
		}
		if err := m.apply(c, v); err != nil {
			return fmt.Errorf("%s (%s): %w", m.env, m.path, err)
		}
	}
	return nil
}

func parseBool(v string, dst *bool) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}
