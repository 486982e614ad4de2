package events

import "github.com/dshills/snippetide/internal/event/topic"

// Plugin event topics.
const (
	// TopicPluginLoaded is published when a plugin is loaded from disk.
	TopicPluginLoaded topic.Topic = "plugin.loaded"

	// TopicPluginUnloaded is published when a plugin is unloaded.
	TopicPluginUnloaded topic.Topic = "plugin.unloaded"

	// TopicPluginFailed is published when a file could not be loaded.
	TopicPluginFailed topic.Topic = "plugin.failed"
)

// PluginLoaded is published when a plugin is loaded from disk.
type PluginLoaded struct {
	Name         string
	Version      string
	Path         string
	Capabilities []string
}

// PluginUnloaded is published when a plugin is unloaded.
type PluginUnloaded struct {
	Name string
	Path string
}

// PluginFailed is published when the scanner skips a file.
type PluginFailed struct {
	Path  string
	Error string
}
