package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// State represents the state of a process.
type State int

const (
	// StateRunning indicates the process is currently running.
	StateRunning State = iota
	// StateExited indicates the process has exited on its own.
	StateExited
	// StateKilled indicates the process was terminated by a signal.
	StateKilled
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Options configures how a process is launched.
type Options struct {
	// Dir is the working directory. Empty means the caller's directory.
	Dir string

	// Env is the process environment. Nil inherits the caller's environment.
	Env []string

	// MergeStderr sends stderr to the same pipe as stdout.
	MergeStderr bool

	// Stderr receives stderr when MergeStderr is false. Nil discards it.
	Stderr io.Writer
}

// Handle is one running child process. It is safe for concurrent use.
type Handle struct {
	// ID identifies the handle, usually the run ID.
	ID string

	// Started is the time the process was started.
	Started time.Time

	cmd    *exec.Cmd
	stdout *os.File

	done     chan struct{}
	state    atomic.Int32
	exitCode atomic.Int32
	killed   atomic.Bool

	mu      sync.RWMutex
	exitErr error
}

// Start launches argv[0] with the remaining arguments and returns a handle
// for it. The read end of the output pipe is owned by the handle; the
// write end is closed in the parent once the child holds it.
func Start(id string, argv []string, opts Options) (*Handle, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, ErrEmptyCommand
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	cmd.Stdout = w
	switch {
	case opts.MergeStderr:
		cmd.Stderr = w
	case opts.Stderr != nil:
		cmd.Stderr = opts.Stderr
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, fmt.Errorf("start %s: %w", argv[0], err)
	}
	// The child has its own copy; keeping ours open would block EOF.
	w.Close()

	h := &Handle{
		ID:      id,
		Started: time.Now(),
		cmd:     cmd,
		stdout:  r,
		done:    make(chan struct{}),
	}
	h.state.Store(int32(StateRunning))
	h.exitCode.Store(-1)

	go h.waitLoop()
	return h, nil
}

// Stdout returns the read end of the output pipe.
func (h *Handle) Stdout() io.Reader {
	return h.stdout
}

// PID returns the process ID.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// State returns the current process state.
func (h *Handle) State() State {
	return State(h.state.Load())
}

// Done returns a channel that is closed when the process exits.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// HasExited returns true if the process has exited (normally or killed).
func (h *Handle) HasExited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// ExitCode returns the process exit code, or -1 while it is running.
// A process killed by a signal reports 128 plus the signal number, the
// way a shell would.
func (h *Handle) ExitCode() int {
	return int(h.exitCode.Load())
}

// ExitError returns the error from waiting on the process, if any.
func (h *Handle) ExitError() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.exitErr
}

// Killed reports whether Kill was called on the handle.
func (h *Handle) Killed() bool {
	return h.killed.Load()
}

// Signal sends sig to the whole process group. The group outlives its
// leader, so members left behind by an exited process are still reached.
// ErrProcessExited is returned once nothing in the group is left.
func (h *Handle) Signal(sig syscall.Signal) error {
	// Setpgid makes the group ID equal to the leader's PID.
	err := syscall.Kill(-h.cmd.Process.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		if h.HasExited() {
			return ErrProcessExited
		}
		return h.cmd.Process.Signal(sig)
	}
	return err
}

// Kill forcibly terminates the process group. Killing a group with no
// members left is a no-op.
func (h *Handle) Kill() error {
	h.killed.Store(true)
	return h.killGroup()
}

func (h *Handle) killGroup() error {
	err := h.Signal(syscall.SIGKILL)
	if errors.Is(err, ErrProcessExited) || errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// WaitTimeout blocks until the process exits or timeout elapses.
// A non-positive timeout waits forever.
func (h *Handle) WaitTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		<-h.done
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
		return nil
	case <-timer.C:
		return ErrWaitTimeout
	}
}

// Close kills whatever is left of the process group and closes the read end
// of the output pipe.
func (h *Handle) Close() error {
	var errs []error
	if err := h.killGroup(); err != nil {
		errs = append(errs, fmt.Errorf("kill: %w", err))
	}
	if err := h.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		errs = append(errs, fmt.Errorf("close stdout: %w", err))
	}
	return errors.Join(errs...)
}

// Runtime returns how long the process has been running.
func (h *Handle) Runtime() time.Duration {
	return time.Since(h.Started)
}

func (h *Handle) waitLoop() {
	err := h.cmd.Wait()

	h.mu.Lock()
	h.exitErr = err
	h.mu.Unlock()

	exitCode := 0
	state := StateExited

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				state = StateKilled
				exitCode = 128 + int(status.Signal())
			}
		} else {
			exitCode = -1
		}
	}

	h.exitCode.Store(int32(exitCode))
	h.state.Store(int32(state))
	close(h.done)
}
