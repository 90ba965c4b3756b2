// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"fmt"
	"net/http"
	"testing"
)

func TestETLRunLoadsBatch(t *testing.T) {
	_, h := newTestServer(t, nil)

	// Distinct factories: operations facts are keyed by factory and period.
	batchID := uploadBatch(t, h, [][]any{
		operationsHeader(),
		{"TW-01", "2024/03/01", "E-100", "output", 12.5},
		{"TW-02", "2024/03/02", "E-101", "quality", 0.9},
	})

	rr := doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/etl/batches/%d/run", batchID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["status"] != "completed" {
		t.Errorf("summary status = %v, want completed", resp["status"])
	}
	if resp["loaded_rows"] != float64(2) {
		t.Errorf("loaded_rows = %v, want 2", resp["loaded_rows"])
	}
}

func TestETLRunAcceptsThresholdOverrides(t *testing.T) {
	_, h := newTestServer(t, nil)

	batchID := uploadBatch(t, h, [][]any{
		operationsHeader(),
		{"TW-01", "2024/03/01", "E-100", "output", 50},
	})

	rr := doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/etl/batches/%d/run", batchID),
		map[string]any{"anomaly_thresholds": map[string]float64{"output": 10}})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["dq_issues"] != float64(1) {
		t.Errorf("dq_issues = %v, want 1 anomaly above threshold", resp["dq_issues"])
	}
}

func TestETLRunUnknownBatch(t *testing.T) {
	_, h := newTestServer(t, nil)

	rr := doJSON(t, h, http.MethodPost, "/api/etl/batches/4711/run", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestETLRunRejectsGarbageBody(t *testing.T) {
	_, h := newTestServer(t, nil)

	batchID := uploadBatch(t, h, [][]any{
		operationsHeader(),
		{"TW-01", "2024/03/01", "E-100", "output", 1},
	})

	rr := doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/etl/batches/%d/run", batchID), "not-an-object")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestBatchIssuesEndpoint(t *testing.T) {
	_, h := newTestServer(t, nil)

	batchID := uploadBatch(t, h, [][]any{
		operationsHeader(),
		{"TW-01", "2024/03/01", "E-100", "output", 5_000_000}, // above default threshold
	})

	rr := doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/etl/batches/%d/run", batchID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("etl status = %d, body %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/etl/batches/%d/issues", batchID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("issues status = %d, body %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["count"] != float64(1) {
		t.Errorf("count = %v, want 1", resp["count"])
	}
	issues, ok := resp["issues"].([]any)
	if !ok || len(issues) != 1 {
		t.Fatalf("issues = %v, want one entry", resp["issues"])
	}
	issue := issues[0].(map[string]any)
	if issue["issue_type"] != "anomaly" {
		t.Errorf("issue_type = %v, want anomaly", issue["issue_type"])
	}
}

func TestBatchIssuesUnknownBatch(t *testing.T) {
	_, h := newTestServer(t, nil)

	rr := doJSON(t, h, http.MethodGet, "/api/etl/batches/4711/issues", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}
