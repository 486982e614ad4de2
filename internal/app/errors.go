package app

import (
	"errors"
	"fmt"
)

// Application errors.
var (
	// ErrAlreadyBooted is returned by Boot when the booter has already
	// booted and has not been reset.
	ErrAlreadyBooted = errors.New("application already started")

	// ErrNotBooted is returned by Unboot before a successful Boot.
	ErrNotBooted = errors.New("application not started")

	// ErrNoLanguage is returned when no loaded language can run a file.
	ErrNoLanguage = errors.New("no language for file")

	// ErrRunNotStarted is returned when a run request was published but no
	// run was started, e.g. because the language could not build its
	// command.
	ErrRunNotStarted = errors.New("run not started")
)

// BootError reports a directory that could not be created. It aborts boot.
type BootError struct {
	Path string
	Err  error
}

func (e *BootError) Error() string {
	return fmt.Sprintf("unable to create application directory %s: %v", e.Path, e.Err)
}

func (e *BootError) Unwrap() error {
	return e.Err
}

// InitError represents an initialization error.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return "init " + e.Component + ": " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}
