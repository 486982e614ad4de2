package app

import "github.com/dshills/snippetide/internal/plugin"

// Version is the host version plugins are checked against. Release builds
// set it with -ldflags "-X github.com/dshills/snippetide/internal/app.Version=...".
var Version = "0.1.0"

// HostVersion parses Version. An unparsable build version checks plugins
// against 0.0.0.
func HostVersion() plugin.Version {
	v, err := plugin.ParseVersion(Version)
	if err != nil {
		return plugin.Version{}
	}
	return v
}
