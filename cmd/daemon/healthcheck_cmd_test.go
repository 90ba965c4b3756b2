// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func healthcheckTestServer(t *testing.T, readyStatus, liveStatus int) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(readyStatus)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(liveStatus)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("parse test server URL: %v", err)
	}
	return u.Port()
}

func TestRunHealthcheckCLI_Ready(t *testing.T) {
	port := healthcheckTestServer(t, http.StatusOK, http.StatusOK)

	if code := runHealthcheckCLI([]string{"-port", port}); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}

func TestRunHealthcheckCLI_LiveMode(t *testing.T) {
	// Liveness passes even while readiness fails.
	port := healthcheckTestServer(t, http.StatusServiceUnavailable, http.StatusOK)

	if code := runHealthcheckCLI([]string{"-mode", "live", "-port", port}); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if code := runHealthcheckCLI([]string{"-mode", "ready", "-port", port}); code != 1 {
		t.Errorf("exit code = %d, want 1 for failing readiness", code)
	}
}

func TestRunHealthcheckCLI_NoServer(t *testing.T) {
	// Grab a free port and close it again so nothing is listening.
	ts := httptest.NewServer(http.NotFoundHandler())
	u, _ := url.Parse(ts.URL)
	port := u.Port()
	ts.Close()

	if code := runHealthcheckCLI([]string{"-port", port, "-timeout", "500ms"}); code != 1 {
		t.Errorf("exit code = %d, want 1 when nothing listens", code)
	}
}
