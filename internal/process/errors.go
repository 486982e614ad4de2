package process

import "errors"

// Sentinel errors for process package.
var (
	// ErrEmptyCommand is returned when Start is given no argv.
	ErrEmptyCommand = errors.New("empty command")

	// ErrProcessNotStarted is returned when operations require a started process.
	ErrProcessNotStarted = errors.New("process not started")

	// ErrProcessExited is returned when signalling a process that has exited.
	ErrProcessExited = errors.New("process already exited")

	// ErrWaitTimeout is returned when a process does not exit in time.
	ErrWaitTimeout = errors.New("timed out waiting for process exit")
)
