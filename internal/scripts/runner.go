package scripts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

const defaultTimeout = 60 * time.Second

// ErrorKind classifies a script execution failure. A failing script (clean
// nonzero exit) is not an ExecError; it is a plain false return.
type ErrorKind string

const (
	KindNotFound      ErrorKind = "not-found"
	KindNotExecutable ErrorKind = "not-executable"
	KindTimeout       ErrorKind = "timeout"
	KindExec          ErrorKind = "exec"
)

// ExecError means a script could not be executed to completion.
type ExecError struct {
	Path string
	Kind ErrorKind
	Err  error
}

func (e *ExecError) Error() string {
	if e == nil {
		return "scripts: exec error <nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("scripts: %s: %s: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("scripts: %s: %s", e.Kind, e.Path)
}

func (e *ExecError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Runner executes setup/cleanup/verify scripts with a timeout.
type Runner struct {
	timeout time.Duration
}

// NewRunner creates a Runner. A non-positive timeout uses the default.
func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Runner{timeout: timeout}
}

// Run executes the script at path. It returns true on exit code 0, false on
// a clean nonzero exit, and an *ExecError when the script could not run at
// all (missing, not executable, killed on timeout).
func (r *Runner) Run(ctx context.Context, path string) (bool, error) {
	if r == nil {
		return false, errors.New("scripts: nil runner")
	}
	if ctx == nil {
		return false, errors.New("scripts: nil context")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return false, errors.New("scripts: empty path")
	}

	info, err := os.Stat(path)
	if err != nil {
		return false, &ExecError{Path: path, Kind: KindNotFound, Err: err}
	}
	if info.IsDir() || info.Mode()&0o111 == 0 {
		return false, &ExecError{Path: path, Kind: KindNotExecutable}
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, path)
	cmd.Stderr = &stderr

	err = cmd.Run()
	if err == nil {
		return true, nil
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return false, &ExecError{Path: path, Kind: KindTimeout, Err: runCtx.Err()}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// The script ran and chose to fail.
		return false, nil
	}
	return false, &ExecError{Path: path, Kind: KindExec, Err: err}
}
