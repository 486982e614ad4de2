package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dshills/snippetide/internal/event"
	"github.com/dshills/snippetide/internal/event/events"
	"github.com/dshills/snippetide/internal/process"
)

// ExitMessagePrefix starts the final message of a run that exited.
const ExitMessagePrefix = "Process finished with exit code "

// Runner supervises one external process at a time.
type Runner struct {
	publisher *event.Publisher
	logger    *log.Logger

	drainTimeout time.Duration
	killTimeout  time.Duration
	mergeStderr  bool
	stderr       io.Writer
	shellEnv     bool
	tempDir      string

	// output returns the stream the run loop reads lines from.
	output func(h *process.Handle) io.Reader

	mu      sync.Mutex
	current *task // the task Stop would cancel
	last    *task // the most recently started task
	running atomic.Bool
}

// task is one supervising goroutine and the run it owns.
type task struct {
	id     string
	req    RunRequest
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// emitMu makes the cancellation check and the publish of a message
	// atomic with respect to Stop.
	emitMu sync.Mutex
}

// New creates an idle Runner that publishes on bus.
func New(bus event.Bus, opts ...Option) *Runner {
	r := &Runner{
		publisher:    event.NewPublisher(bus, "runner"),
		logger:       log.Default().WithPrefix("runner"),
		drainTimeout: 2 * time.Second,
		killTimeout:  5 * time.Second,
		mergeStderr:  true,
		tempDir:      os.TempDir(),
		output:       func(h *process.Handle) io.Reader { return h.Stdout() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start cancels the active run, if any, and starts req in a new
// supervising goroutine. The new process is not launched before the
// previous run's goroutine has finished, so messages of two runs never
// interleave. Start returns the ID carried by every message of the run.
//
// Start must not be called from a synchronous run.output handler: it
// waits for the message being published, so the call deadlocks. Use an
// async subscription or another goroutine.
func (r *Runner) Start(req RunRequest) string {
	r.mu.Lock()
	prev := r.last
	if r.current != nil {
		r.cancelTask(r.current)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		id:     uuid.NewString(),
		req:    req,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.current = t
	r.last = t
	r.running.Store(true)
	r.mu.Unlock()

	r.logger.Debug("run requested", "run", t.id, "source", req.SourceFile, "command", req.Command)
	go r.supervise(t, prev)
	return t.id
}

// Stop cancels the active run and clears the running state immediately.
// It does not wait for the process to die; at most one more message, the
// forced-exit diagnostic, is published for the run afterwards. A run
// cancelled before its process was launched publishes nothing.
//
// Like Start, Stop deadlocks when called from a synchronous run.output
// handler.
func (r *Runner) Stop() {
	r.mu.Lock()
	t := r.current
	r.current = nil
	r.running.Store(false)
	r.mu.Unlock()

	if t != nil {
		r.cancelTask(t)
	}
}

// IsRunning reports the last known running state. The run may finish
// right after the call returns.
func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// Wait blocks until the most recently started run has finished
// publishing, or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	t := r.last
	r.mu.Unlock()

	if t == nil {
		return nil
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cancelTask cancels t and waits for a message being published to finish.
func (r *Runner) cancelTask(t *task) {
	t.cancel()
	t.emitMu.Lock()
	t.emitMu.Unlock() //nolint:staticcheck // waits out an in-flight publish
}

// supervise is the body of the supervising goroutine.
func (r *Runner) supervise(t *task, prev *task) {
	defer close(t.done)
	defer r.finish(t)

	if prev != nil {
		<-prev.done
	}
	if t.ctx.Err() != nil {
		r.logger.Debug("run cancelled before launch", "run", t.id)
		return
	}

	exitCode, err := r.execute(t)
	switch {
	case err == nil:
		r.logger.Info("process finished", "run", t.id, "exit_code", exitCode)
		r.emitFinal(t, events.OutputMessage{
			Text:     ExitMessagePrefix + fmt.Sprint(exitCode),
			Kind:     events.OutputExit,
			ExitCode: exitCode,
		})
	case errors.Is(err, ErrExitForced):
		r.logger.Info("run stopped", "run", t.id)
		r.emitFinal(t, events.OutputMessage{Text: diagnostic(err), Kind: events.OutputDiagnostic, ExitCode: exitCode})
	default:
		r.logger.Error("run failed", "run", t.id, "err", err)
		r.emitFinal(t, events.OutputMessage{Text: diagnostic(err), Kind: events.OutputDiagnostic, ExitCode: exitCode})
	}
}

// finish clears the running state if t is still the active run.
func (r *Runner) finish(t *task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == t {
		r.current = nil
		r.running.Store(false)
	}
}

// execute launches the process, forwards its output and returns its exit
// code. A non-nil error means the run ended on the failure path and the
// process has been killed.
func (r *Runner) execute(t *task) (int, error) {
	argv, err := t.req.Argv(r.tempDir)
	if err != nil {
		return -1, &LaunchError{Command: t.req.Command, Err: err}
	}

	opts := process.Options{
		Dir:         t.req.WorkingDir(),
		MergeStderr: r.mergeStderr,
		Stderr:      r.stderr,
	}
	if r.shellEnv {
		opts.Env = t.req.Env(r.tempDir)
	}

	h, err := process.Start(t.id, argv, opts)
	if err != nil {
		return -1, &LaunchError{Command: t.req.Command, Err: err}
	}
	defer h.Close()
	r.logger.Debug("process started", "run", t.id, "pid", h.PID(), "dir", opts.Dir)

	lines := process.NewLineReader(r.output(h))
	go lines.Run()
	defer lines.Stop()
	defer func() {
		bytesRead, linesRead := lines.Stats()
		r.logger.Debug("output read", "run", t.id, "lines", linesRead, "bytes", bytesRead)
	}()

	out := lines.Lines()
	for out != nil {
		select {
		case <-t.ctx.Done():
			return r.forceExit(t, h, ErrExitForced)

		case line, ok := <-out:
			if !ok {
				out = nil
				if err := lines.Err(); err != nil {
					return r.forceExit(t, h, &ReadError{Err: err})
				}
				break
			}
			if !r.emitLine(t, line) {
				return r.forceExit(t, h, ErrExitForced)
			}

		case <-h.Done():
			if err := r.drain(t, out); err != nil {
				return r.forceExit(t, h, err)
			}
			out = nil
		}
	}

	// Output is closed; wait for the exit status, still honouring Stop.
	select {
	case <-h.Done():
	case <-t.ctx.Done():
		return r.forceExit(t, h, ErrExitForced)
	}

	// Members of the group that outlived the leader are not kept around.
	_ = h.Close()
	return h.ExitCode(), nil
}

// drain forwards the lines still buffered after the process exited. It
// stops at EOF, at the drain timeout, or on cancellation.
func (r *Runner) drain(t *task, out <-chan string) error {
	timer := time.NewTimer(r.drainTimeout)
	defer timer.Stop()

	for {
		select {
		case line, ok := <-out:
			if !ok {
				return nil
			}
			if !r.emitLine(t, line) {
				return ErrExitForced
			}
		case <-timer.C:
			r.logger.Warn("output still open after exit, dropping the rest", "run", t.id, "timeout", r.drainTimeout)
			return nil
		case <-t.ctx.Done():
			return ErrExitForced
		}
	}
}

// forceExit kills the process group, waits for the exit status and
// returns cause together with the exit code.
func (r *Runner) forceExit(t *task, h *process.Handle, cause error) (int, error) {
	if err := h.Kill(); err != nil {
		r.logger.Warn("kill failed", "run", t.id, "pid", h.PID(), "err", err)
	}
	if err := h.WaitTimeout(r.killTimeout); err != nil {
		r.logger.Error("process did not exit after kill", "run", t.id, "pid", h.PID(), "err", err)
	}
	return h.ExitCode(), cause
}

// emitLine publishes one line unless the run has been cancelled.
func (r *Runner) emitLine(t *task, line string) bool {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	if t.ctx.Err() != nil {
		return false
	}
	r.post(t, events.OutputMessage{Text: line, Kind: events.OutputLine})
	return true
}

// emitFinal publishes the last message of a run. A cancelled run only
// ever ends with the forced-exit diagnostic.
func (r *Runner) emitFinal(t *task, msg events.OutputMessage) {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	if t.ctx.Err() != nil && msg.Kind != events.OutputDiagnostic {
		msg = events.OutputMessage{Text: diagnostic(ErrExitForced), Kind: events.OutputDiagnostic, ExitCode: msg.ExitCode}
	}
	r.post(t, msg)
}

func (r *Runner) post(t *task, msg events.OutputMessage) {
	msg.RunID = t.id
	if err := event.Post(context.Background(), r.publisher, events.TopicRunOutput, msg); err != nil {
		r.logger.Error("publish output", "run", t.id, "err", err)
	}
}

// diagnostic renders err as the text of a diagnostic message.
func diagnostic(err error) string {
	var launch *LaunchError
	if errors.As(err, &launch) {
		return "Unable to run " + launch.Command + ": " + launch.Err.Error()
	}
	return "Run aborted: " + err.Error()
}
