package process

import (
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func collect(t *testing.T, h *Handle) []string {
	t.Helper()
	lr := NewLineReader(h.Stdout())
	go lr.Run()

	var lines []string
	timeout := time.After(5 * time.Second)
	for {
		select {
		case line, ok := <-lr.Lines():
			if !ok {
				if err := lr.Err(); err != nil {
					t.Fatalf("read error: %v", err)
				}
				return lines
			}
			lines = append(lines, line)
		case <-timeout:
			t.Fatal("timed out reading output")
		}
	}
}

func TestStart_EmptyCommand(t *testing.T) {
	if _, err := Start("id", nil, Options{}); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("Start(nil) = %v, want ErrEmptyCommand", err)
	}
	if _, err := Start("id", []string{""}, Options{}); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("Start(\"\") = %v, want ErrEmptyCommand", err)
	}
}

func TestStart_MissingBinary(t *testing.T) {
	_, err := Start("id", []string{filepath.Join(t.TempDir(), "does-not-exist")}, Options{})
	if err == nil {
		t.Fatal("expected launch failure")
	}
}

func TestHandle_OutputAndExitCode(t *testing.T) {
	requireShell(t)

	h, err := Start("run-1", []string{"sh", "-c", "echo one; echo two; echo three; exit 3"}, Options{})
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer h.Close()

	lines := collect(t, h)
	if err := h.WaitTimeout(5 * time.Second); err != nil {
		t.Fatal(err)
	}

	want := []string{"one", "two", "three"}
	if strings.Join(lines, ",") != strings.Join(want, ",") {
		t.Errorf("lines = %v, want %v", lines, want)
	}
	if h.ExitCode() != 3 {
		t.Errorf("ExitCode() = %d, want 3", h.ExitCode())
	}
	if h.State() != StateExited {
		t.Errorf("State() = %v, want exited", h.State())
	}
}

func TestHandle_WorkingDirectory(t *testing.T) {
	requireShell(t)

	dir := t.TempDir()
	h, err := Start("run-1", []string{"sh", "-c", "pwd -P"}, Options{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	lines := collect(t, h)
	want, _ := filepath.EvalSymlinks(dir)
	if len(lines) != 1 || lines[0] != want {
		t.Errorf("pwd = %v, want %s", lines, want)
	}
}

func TestHandle_MergeStderr(t *testing.T) {
	requireShell(t)

	tests := []struct {
		name  string
		merge bool
		want  []string
	}{
		{"merged", true, []string{"out", "err"}},
		{"separate", false, []string{"out"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := Start("run-1", []string{"sh", "-c", "echo out; echo err 1>&2"}, Options{MergeStderr: tt.merge})
			if err != nil {
				t.Fatal(err)
			}
			defer h.Close()

			lines := collect(t, h)
			if strings.Join(lines, ",") != strings.Join(tt.want, ",") {
				t.Errorf("lines = %v, want %v", lines, tt.want)
			}
		})
	}
}

func TestHandle_KillProcessGroup(t *testing.T) {
	requireShell(t)

	// The background sleep inherits the pipe; only a group kill lets EOF arrive.
	h, err := Start("run-1", []string{"sh", "-c", "sleep 30 & echo started; wait"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	lr := NewLineReader(h.Stdout())
	go lr.Run()

	select {
	case line := <-lr.Lines():
		if line != "started" {
			t.Fatalf("first line = %q", line)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no output from child")
	}

	if err := h.Kill(); err != nil {
		t.Fatalf("Kill() failed: %v", err)
	}
	if err := h.WaitTimeout(5 * time.Second); err != nil {
		t.Fatalf("process did not exit after kill: %v", err)
	}
	if h.State() != StateKilled {
		t.Errorf("State() = %v, want killed", h.State())
	}
	if h.ExitCode() != 128+int(syscall.SIGKILL) {
		t.Errorf("ExitCode() = %d, want %d", h.ExitCode(), 128+int(syscall.SIGKILL))
	}
	if !h.Killed() {
		t.Error("Killed() = false after Kill")
	}

	select {
	case _, ok := <-lr.Lines():
		for ok {
			_, ok = <-lr.Lines()
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pipe stayed open after group kill")
	}
}

func TestHandle_KillAfterExit(t *testing.T) {
	requireShell(t)

	h, err := Start("run-1", []string{"sh", "-c", "exit 0"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := h.WaitTimeout(5 * time.Second); err != nil {
		t.Fatal(err)
	}
	if err := h.Kill(); err != nil {
		t.Errorf("Kill() after exit = %v, want nil", err)
	}
	if err := h.Signal(syscall.SIGTERM); !errors.Is(err, ErrProcessExited) {
		t.Errorf("Signal() after exit = %v, want ErrProcessExited", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestHandle_WaitTimeout(t *testing.T) {
	requireShell(t)

	h, err := Start("run-1", []string{"sh", "-c", "sleep 5"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	if err := h.WaitTimeout(20 * time.Millisecond); !errors.Is(err, ErrWaitTimeout) {
		t.Errorf("WaitTimeout() = %v, want ErrWaitTimeout", err)
	}
}

func TestLineReader_StopUnblocksRun(t *testing.T) {
	r := strings.NewReader(strings.Repeat("x\n", 1000))
	lr := NewLineReader(r)

	finished := make(chan struct{})
	go func() {
		lr.Run()
		close(finished)
	}()

	lr.Stop()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestLineReader_LongLine(t *testing.T) {
	long := strings.Repeat("a", 2*1024*1024)
	lr := NewLineReader(strings.NewReader(long + "\nshort\n"))
	go lr.Run()

	var got []string
	for line := range lr.Lines() {
		got = append(got, line)
	}
	if len(got) != 2 || got[0] != long || got[1] != "short" {
		t.Errorf("unexpected lines: %d", len(got))
	}
	if err := lr.Err(); err != nil {
		t.Errorf("Err() = %v", err)
	}
	_, n := lr.Stats()
	if n != 2 {
		t.Errorf("linesRead = %d, want 2", n)
	}
}

func TestLineReader_Terminators(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"lf", "a\nb\n", []string{"a", "b"}},
		{"crlf", "a\r\nb\r\n", []string{"a", "b"}},
		{"unterminated last line", "a\nb", []string{"a", "b"}},
		{"empty lines", "\n\nx\n", []string{"", "", "x"}},
		{"empty input", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lr := NewLineReader(strings.NewReader(tt.input))
			go lr.Run()

			var got []string
			for line := range lr.Lines() {
				got = append(got, line)
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("lines = %q, want %q", got, tt.want)
			}
		})
	}
}

type failingReader struct {
	data string
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.data == "" {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestLineReader_ReadError(t *testing.T) {
	readErr := errors.New("pipe broken")
	lr := NewLineReader(&failingReader{data: "first\npartial", err: readErr})
	go lr.Run()

	var got []string
	for line := range lr.Lines() {
		got = append(got, line)
	}
	if len(got) != 2 || got[0] != "first" || got[1] != "partial" {
		t.Errorf("lines = %q", got)
	}
	if !errors.Is(lr.Err(), readErr) {
		t.Errorf("Err() = %v, want %v", lr.Err(), readErr)
	}
}
