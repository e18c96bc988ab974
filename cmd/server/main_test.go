package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunMain_BadConfigPath(t *testing.T) {
	var buf bytes.Buffer
	stderrWriter = &buf
	defer func() { stderrWriter = os.Stderr }()

	code := runMain([]string{"-config", filepath.Join(t.TempDir(), "nope.yaml")})
	if code != 1 {
		t.Fatalf("runMain: got %d want 1", code)
	}
	if !strings.Contains(buf.String(), "config:") {
		t.Fatalf("stderr: got %q", buf.String())
	}
}

func TestRunMain_BadFlag(t *testing.T) {
	var buf bytes.Buffer
	stderrWriter = &buf
	defer func() { stderrWriter = os.Stderr }()

	if code := runMain([]string{"-bogus"}); code != 2 {
		t.Fatalf("runMain: got %d want 2", code)
	}
}

func TestRunMain_Help(t *testing.T) {
	var buf bytes.Buffer
	stderrWriter = &buf
	defer func() { stderrWriter = os.Stderr }()

	if code := runMain([]string{"-h"}); code != 0 {
		t.Fatalf("runMain: got %d want 0", code)
	}
}
