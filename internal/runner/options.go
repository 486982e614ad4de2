package runner

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. The runner logs under its own prefix.
func WithLogger(logger *log.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger.WithPrefix("runner")
		}
	}
}

// WithDrainTimeout bounds how long lines still in the pipe are read after
// the process has exited.
func WithDrainTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.drainTimeout = d
	}
}

// WithKillTimeout bounds how long a forced termination waits for the OS
// to report the exit.
func WithKillTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.killTimeout = d
	}
}

// WithMergeStderr sends the process's stderr through the output stream.
func WithMergeStderr(merge bool) Option {
	return func(r *Runner) {
		r.mergeStderr = merge
	}
}

// WithStderr sets where unmerged stderr goes. Nil discards it.
func WithStderr(w io.Writer) Option {
	return func(r *Runner) {
		r.stderr = w
	}
}

// WithShellEnv exports the launch command variables into the process
// environment.
func WithShellEnv(export bool) Option {
	return func(r *Runner) {
		r.shellEnv = export
	}
}

// WithTempDir sets the directory exposed to launch commands as $TEMP_DIR.
func WithTempDir(dir string) Option {
	return func(r *Runner) {
		r.tempDir = dir
	}
}
