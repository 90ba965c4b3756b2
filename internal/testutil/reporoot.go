// Package testutil locates repository-level fixtures from inside package
// tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// RepoRoot walks from this source file up to the directory holding go.mod.
// Tests reach repo-level files (the OpenAPI document, script fixtures)
// through it instead of relying on the working directory go test uses.
func RepoRoot() (string, error) {
	_, self, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("runtime caller unavailable")
	}
	for dir := filepath.Dir(self); ; {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no go.mod above %s", filepath.Dir(self))
		}
		dir = parent
	}
}

// MustRepoRoot is RepoRoot for tests.
func MustRepoRoot(t *testing.T) string {
	t.Helper()
	root, err := RepoRoot()
	if err != nil {
		t.Fatalf("locate repo root: %v", err)
	}
	return root
}

// RepoFile joins elems onto the repo root and fails the test when the
// resulting path does not exist.
func RepoFile(t *testing.T, elems ...string) string {
	t.Helper()
	path := filepath.Join(append([]string{MustRepoRoot(t)}, elems...)...)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("repo file: %v", err)
	}
	return path
}
