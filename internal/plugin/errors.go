package plugin

import (
	"errors"
	"fmt"
)

// Plugin system errors.
var (
	// ErrUnsupportedFile is returned when no factory accepts a file.
	ErrUnsupportedFile = errors.New("unsupported plugin file")

	// ErrMissingDeclaration is returned when a plugin file never declares
	// the plugin.
	ErrMissingDeclaration = errors.New("plugin declaration missing")

	// ErrInvalidPlugin is returned when a declaration fails validation.
	ErrInvalidPlugin = errors.New("invalid plugin")

	// ErrInvalidVersion is returned for a malformed version string.
	ErrInvalidVersion = errors.New("version must be valid semver")

	// ErrIncompatibleVersion is returned when a plugin requires a newer host.
	ErrIncompatibleVersion = errors.New("plugin requires a newer host version")

	// ErrAlreadyLoaded is returned when a file is loaded twice.
	ErrAlreadyLoaded = errors.New("plugin is already loaded")

	// ErrNotLoaded is returned when unloading a file that is not loaded.
	ErrNotLoaded = errors.New("plugin is not loaded")

	// ErrManagerClosed is returned after the manager has been closed.
	ErrManagerClosed = errors.New("plugin manager is closed")
)

// UnableToLoadError reports that a factory could not load a file.
type UnableToLoadError struct {
	// Path is the offending plugin file.
	Path string

	// Loader names the factory that tried to load it.
	Loader string

	// Err is the underlying cause.
	Err error
}

func (e *UnableToLoadError) Error() string {
	return fmt.Sprintf("unable to load plugin %s with %s loader: %v", e.Path, e.Loader, e.Err)
}

func (e *UnableToLoadError) Unwrap() error {
	return e.Err
}
