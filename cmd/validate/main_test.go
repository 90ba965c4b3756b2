// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// pinEnv keeps ambient XL2WH_* variables from leaking into the resolution
// under test.
func pinEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"XL2WH_DATA", "XL2WH_DB_PATH", "DB_PATH",
		"XL2WH_ARCHIVE_BACKEND", "XL2WH_ETL_WORKERS",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func runForTest(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := runValidate(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunValidate_Valid(t *testing.T) {
	pinEnv(t)
	path := writeConfig(t, "dataDir: "+t.TempDir()+"\netlWorkers: 4\n")

	code, stdout, stderr := runForTest(t, "-f", path)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0\nstderr:\n%s", code, stderr)
	}
	if !strings.Contains(stdout, "is valid") {
		t.Errorf("stdout = %q, want success message", stdout)
	}
}

func TestRunValidate_UnknownKey(t *testing.T) {
	pinEnv(t)
	path := writeConfig(t, "bogusKey: true\n")

	code, _, stderr := runForTest(t, "-f", path)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Configuration error") {
		t.Errorf("stderr = %q, want parse failure", stderr)
	}
}

func TestRunValidate_TypeMismatch(t *testing.T) {
	pinEnv(t)
	path := writeConfig(t, "etlWorkers: not-a-number\n")

	code, _, stderr := runForTest(t, "-f", path)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Configuration error") {
		t.Errorf("stderr = %q, want parse failure", stderr)
	}
}

func TestRunValidate_SemanticFailure(t *testing.T) {
	pinEnv(t)
	path := writeConfig(t, "archiveBackend: tape\n")

	code, _, stderr := runForTest(t, "-f", path)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Validation error") {
		t.Errorf("stderr = %q, want validation failure", stderr)
	}
}

func TestRunValidate_MissingFlag(t *testing.T) {
	code, _, stderr := runForTest(t)
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if !strings.Contains(stderr, "--file is required") {
		t.Errorf("stderr = %q, want usage hint", stderr)
	}
}

func TestRunValidate_MissingFile(t *testing.T) {
	pinEnv(t)
	code, _, stderr := runForTest(t, "-f", filepath.Join(t.TempDir(), "nope.yaml"))
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Configuration error") {
		t.Errorf("stderr = %q, want read failure", stderr)
	}
}

func TestRunValidate_Version(t *testing.T) {
	code, stdout, _ := runForTest(t, "-version")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if strings.TrimSpace(stdout) == "" {
		t.Error("version output is empty")
	}
}
