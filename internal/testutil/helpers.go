package testutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"starload/internal/common"
	"starload/internal/observability"
)

// TestHelper provides common test utilities
type TestHelper struct {
	t *testing.T
}

// NewTestHelper creates a new test helper
func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{t: t}
}

// TempDir creates a temporary directory removed when the test ends
func (h *TestHelper) TempDir() string {
	h.t.Helper()
	return h.t.TempDir()
}

// WriteFile writes content to a file in the given directory
func (h *TestHelper) WriteFile(dir, filename, content string) string {
	h.t.Helper()
	path := filepath.Join(dir, filename)

	if err := os.MkdirAll(filepath.Dir(path), common.DirPermissionSecure); err != nil {
		h.t.Fatalf("Failed to create directories: %v", err)
	}

	if err := os.WriteFile(path, []byte(content), common.FilePermissionSecure); err != nil {
		h.t.Fatalf("Failed to write file %s: %v", path, err)
	}

	return path
}

// CaptureOutput captures stdout and stderr during function execution
func (h *TestHelper) CaptureOutput(f func()) (stdout, stderr string) {
	oldStdout := os.Stdout
	rOut, wOut, _ := os.Pipe()
	os.Stdout = wOut

	oldStderr := os.Stderr
	rErr, wErr, _ := os.Pipe()
	os.Stderr = wErr

	outC := make(chan string)
	errC := make(chan string)
	go func() { b, _ := io.ReadAll(rOut); outC <- string(b) }()
	go func() { b, _ := io.ReadAll(rErr); errC <- string(b) }()

	defer func() {
		os.Stdout = oldStdout
		os.Stderr = oldStderr
	}()

	f()

	wOut.Close()
	wErr.Close()
	return <-outC, <-errC
}

// WaitFor waits for a condition to be true within a timeout
func (h *TestHelper) WaitFor(condition func() bool, timeout time.Duration, message string) {
	h.t.Helper()
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return
		}

		<-ticker.C
		if time.Now().After(deadline) {
			h.t.Fatalf("Timeout waiting for: %s", message)
		}
	}
}

// NewTestLogger returns a logger writing through testing.T
func NewTestLogger(t *testing.T) *observability.Logger {
	return observability.FromZap(zaptest.NewLogger(t))
}
