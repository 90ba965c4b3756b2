// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"net/http"
	"testing"
)

func TestStatusEndpoint(t *testing.T) {
	_, h := newTestServer(t, nil)

	rr := doJSON(t, h, http.MethodGet, "/api/status", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}

	resp := decodeResponse(t, rr)
	if resp["service"] != "xl2wh" {
		t.Errorf("service = %v, want xl2wh", resp["service"])
	}
	if resp["version"] == "" {
		t.Error("version is empty")
	}
	if _, ok := resp["uptime_seconds"].(float64); !ok {
		t.Errorf("uptime_seconds missing: %v", resp)
	}

	staging, ok := resp["staging"].(map[string]any)
	if !ok {
		t.Fatalf("staging section missing: %v", resp)
	}
	if staging["batches"] != float64(0) {
		t.Errorf("batches = %v, want 0 on fresh store", staging["batches"])
	}
	if _, ok := resp["warehouse"].(map[string]any); !ok {
		t.Fatalf("warehouse section missing: %v", resp)
	}
	tables, ok := resp["tables"].(map[string]any)
	if !ok || len(tables) != 4 {
		t.Fatalf("tables = %v, want all four raw tables", resp["tables"])
	}
	if _, present := resp["queue"]; present {
		t.Error("queue section should be omitted without a jobs service")
	}
}

func TestStatusCountsGrowWithUploads(t *testing.T) {
	_, h := newTestServer(t, nil)

	uploadBatch(t, h, [][]any{
		operationsHeader(),
		{"TW-01", "2024/03/01", "E-100", "output", 12.5},
	})

	rr := doJSON(t, h, http.MethodGet, "/api/status", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	staging := resp["staging"].(map[string]any)
	if staging["batches"] != float64(1) {
		t.Errorf("batches = %v, want 1", staging["batches"])
	}
	if staging["staged_operations"] != float64(1) {
		t.Errorf("staged_operations = %v, want 1", staging["staged_operations"])
	}
}

func TestHealthEndpoints(t *testing.T) {
	_, h := newTestServer(t, nil)

	rr := doJSON(t, h, http.MethodGet, "/healthz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rr.Code)
	}
	resp := decodeResponse(t, rr)
	if resp["status"] != "healthy" {
		t.Errorf("health status = %v, want healthy", resp["status"])
	}

	rr = doJSON(t, h, http.MethodGet, "/readyz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz status = %d, body %s", rr.Code, rr.Body.String())
	}
}
