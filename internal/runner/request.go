package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/shell"
)

// Variables available to launch commands.
const (
	VarSourceFile = "SOURCE_FILE"
	VarSourceDir  = "SOURCE_DIR"
	VarSourceName = "SOURCE_NAME"
	VarTempDir    = "TEMP_DIR"
)

// RunRequest describes one run: the source file and the command that
// runs it. It is a value and is never modified after creation.
type RunRequest struct {
	// SourceFile is the path of the file to run. The process runs in its
	// parent directory.
	SourceFile string

	// Command is the launch command. It is split into words with shell
	// quoting rules and may refer to $SOURCE_FILE, $SOURCE_DIR,
	// $SOURCE_NAME and $TEMP_DIR; other variables come from the
	// environment.
	Command string
}

// NewRunRequest builds a RunRequest with an absolute source path.
func NewRunRequest(sourceFile, command string) (RunRequest, error) {
	if sourceFile == "" {
		return RunRequest{}, ErrEmptySourceFile
	}
	if strings.TrimSpace(command) == "" {
		return RunRequest{}, ErrEmptyCommand
	}
	abs, err := filepath.Abs(sourceFile)
	if err != nil {
		return RunRequest{}, fmt.Errorf("resolve %s: %w", sourceFile, err)
	}
	return RunRequest{SourceFile: abs, Command: command}, nil
}

// WorkingDir returns the directory the process runs in.
func (r RunRequest) WorkingDir() string {
	return filepath.Dir(r.SourceFile)
}

// Vars returns the launch command variables for the request.
func (r RunRequest) Vars(tempDir string) map[string]string {
	name := filepath.Base(r.SourceFile)
	return map[string]string{
		VarSourceFile: r.SourceFile,
		VarSourceDir:  r.WorkingDir(),
		VarSourceName: strings.TrimSuffix(name, filepath.Ext(name)),
		VarTempDir:    tempDir,
	}
}

// Argv splits the launch command into the argument vector of the process.
func (r RunRequest) Argv(tempDir string) ([]string, error) {
	vars := r.Vars(tempDir)
	fields, err := shell.Fields(r.Command, func(name string) string {
		if v, ok := vars[name]; ok {
			return v
		}
		return os.Getenv(name)
	})
	if err != nil {
		return nil, fmt.Errorf("parse launch command: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrEmptyCommand
	}
	return fields, nil
}

// Env returns the process environment: the caller's environment plus the
// launch command variables.
func (r RunRequest) Env(tempDir string) []string {
	env := os.Environ()
	for k, v := range r.Vars(tempDir) {
		env = append(env, k+"="+v)
	}
	return env
}
