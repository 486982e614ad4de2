package runner

import (
	"errors"
	"fmt"
)

// Sentinel errors for the runner.
var (
	// ErrExitForced reports a run that was cancelled before it finished.
	ErrExitForced = errors.New("exit forced by stop request")

	// ErrEmptySourceFile is returned for a RunRequest without a source file.
	ErrEmptySourceFile = errors.New("run request has no source file")

	// ErrEmptyCommand is returned for a RunRequest without a launch command.
	ErrEmptyCommand = errors.New("run request has no launch command")
)

// LaunchError reports a process that could not be started.
type LaunchError struct {
	Command string
	Err     error
}

// Error implements the error interface.
func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %q: %v", e.Command, e.Err)
}

// Unwrap returns the underlying error.
func (e *LaunchError) Unwrap() error {
	return e.Err
}

// ReadError reports a failure while reading process output.
type ReadError struct {
	Err error
}

// Error implements the error interface.
func (e *ReadError) Error() string {
	return "read process output: " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ReadError) Unwrap() error {
	return e.Err
}
