package scripts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func writeScript(t *testing.T, name, body string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), mode); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestRun_ExitCodes(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}

	r := NewRunner(0)

	ok, err := r.Run(context.Background(), writeScript(t, "pass.sh", "#!/bin/sh\nexit 0\n", 0o755))
	if err != nil {
		t.Fatalf("Run pass: %v", err)
	}
	if !ok {
		t.Fatalf("Run pass: expected true")
	}

	ok, err = r.Run(context.Background(), writeScript(t, "fail.sh", "#!/bin/sh\nexit 3\n", 0o755))
	if err != nil {
		t.Fatalf("Run fail: %v", err)
	}
	if ok {
		t.Fatalf("Run fail: expected false")
	}
}

func TestRun_NotFound(t *testing.T) {
	t.Parallel()

	r := NewRunner(0)
	_, err := r.Run(context.Background(), filepath.Join(t.TempDir(), "missing.sh"))

	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("Run: got %v, want *ExecError", err)
	}
	if execErr.Kind != KindNotFound {
		t.Fatalf("Kind: got %v", execErr.Kind)
	}
}

func TestRun_NotExecutable(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("file modes")
	}

	r := NewRunner(0)
	path := writeScript(t, "plain.sh", "#!/bin/sh\nexit 0\n", 0o644)
	_, err := r.Run(context.Background(), path)

	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("Run: got %v, want *ExecError", err)
	}
	if execErr.Kind != KindNotExecutable {
		t.Fatalf("Kind: got %v", execErr.Kind)
	}
	if execErr.Path != path {
		t.Fatalf("Path: got %q", execErr.Path)
	}
}

func TestRun_Timeout(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}

	r := NewRunner(50 * time.Millisecond)
	path := writeScript(t, "slow.sh", "#!/bin/sh\nsleep 5\n", 0o755)
	_, err := r.Run(context.Background(), path)

	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("Run: got %v, want *ExecError", err)
	}
	if execErr.Kind != KindTimeout {
		t.Fatalf("Kind: got %v", execErr.Kind)
	}
}

func TestRun_InvalidInputs(t *testing.T) {
	t.Parallel()

	r := NewRunner(0)
	if _, err := r.Run(context.Background(), "   "); err == nil {
		t.Fatalf("expected error for empty path")
	}

	var nilRunner *Runner
	if _, err := nilRunner.Run(context.Background(), "/bin/true"); err == nil {
		t.Fatalf("expected error for nil runner")
	}
}
