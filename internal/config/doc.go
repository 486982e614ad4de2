// Package config loads snippetide configuration.
//
// Configuration comes from three places, later ones winning:
//
//  1. built-in defaults (Default)
//  2. the TOML file, snippetide.toml in the application root by default
//  3. environment variables (SNIPPETIDE_ROOT, SNIPPETIDE_LOG_LEVEL, ...)
//
// A missing file is not an error. A file that fails to parse, or that
// names an unknown setting, is a *ParseError naming the file.
//
// Example file:
//
//	[app]
//	root = "~/.snippetide"
//
//	[runner]
//	drain_timeout = "2s"
//	kill_timeout = "5s"
//	merge_stderr = true
//
//	[plugins]
//	watch = true
//
//	[log]
//	level = "debug"
//	format = "text"
//
//	[metrics]
//	addr = "127.0.0.1:9464"
package config
