// Package testutil provides shared test helpers.
package testutil

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

// StorePath returns a credential database path inside a temporary
// directory that is removed when the test ends.
func StorePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "ojportal-test.db")
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Eventually polls fn every tick until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}
