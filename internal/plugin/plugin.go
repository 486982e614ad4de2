package plugin

import (
	"path/filepath"
	"strings"
)

// Plugin is a loaded plugin file.
type Plugin interface {
	// Name returns the declared plugin name.
	Name() string

	// Version returns the declared plugin version.
	Version() Version

	// Path returns the file the plugin was loaded from.
	Path() string

	// Languages returns the languages the plugin contributes, in
	// declaration order.
	Languages() []Language

	// Close releases the plugin's resources. Languages must not be used
	// afterwards.
	Close() error
}

// Language runs snippets written in one programming language.
type Language interface {
	// Name returns the display name, e.g. "Python".
	Name() string

	// Extensions returns the file extensions handled, each with its
	// leading dot.
	Extensions() []string

	// Template returns the initial source of a new snippet.
	Template() string

	// Command returns the launch command for sourceFile. The command may
	// reference $SOURCE_FILE, $SOURCE_DIR, $SOURCE_NAME and $TEMP_DIR.
	Command(sourceFile string) (string, error)
}

// HandlesFile reports whether lang handles path by extension.
func HandlesFile(lang Language, path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	for _, e := range lang.Extensions() {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// DefaultExtension returns the first extension of lang, or "" when it has
// none.
func DefaultExtension(lang Language) string {
	if exts := lang.Extensions(); len(exts) > 0 {
		return exts[0]
	}
	return ""
}
