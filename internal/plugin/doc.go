// Package plugin discovers and loads snippetide plugins.
//
// A plugin is a file under the plugins directory that contributes
// capabilities to the running application. The only capability today is a
// Language: a name, the file extensions it handles, a template for new
// snippets and the command that runs a snippet.
//
// # Loading
//
// A Factory turns one file into a Plugin:
//
//	p, err := factory.Load(path, hostVersion)
//
// Every failure is an *UnableToLoadError naming the file and the factory,
// so callers can tell a bad plugin file apart from anything else.
//
// The Manager owns the loaded plugins. Loading a plugin registers each of
// its languages as a listener for run.start events on the bus; the
// matching language answers with a run.requested event carrying the
// resolved launch command.
//
// # Scanning
//
// Scanner walks a directory tree and loads every file a factory accepts.
// A file that fails to load is logged, published as plugin.failed and
// skipped; the scan itself never fails because of one file. Watcher keeps
// loading files that appear after the scan.
//
// # Lua plugins
//
// LuaFactory loads .lua files run inside a sandboxed state:
//
//	plugin {
//	    name = "python",
//	    version = "1.0.0",
//	    min_host_version = "0.1.0",
//	}
//
//	language {
//	    name = "Python",
//	    extensions = { ".py" },
//	    template = "print('Hello, World!')\n",
//	    command = "python3 $SOURCE_FILE",
//	}
//
// command may also be a function receiving the source file path and
// returning the command string.
package plugin
