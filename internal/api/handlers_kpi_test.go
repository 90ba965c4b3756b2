// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestKPICalculateRequiresBatchID(t *testing.T) {
	_, h := newTestServer(t, nil)

	rr := doJSON(t, h, http.MethodPost, "/api/kpi/calculate", map[string]any{})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}

	rr = doJSON(t, h, http.MethodPost, "/api/kpi/calculate", map[string]any{"batch_id": 4711})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for unknown batch", rr.Code)
	}
}

func TestKPICalculateRunsInline(t *testing.T) {
	_, h := newTestServer(t, nil)

	batchID := uploadBatch(t, h, [][]any{
		operationsHeader(),
		{"TW-01", "2024/03/01", "E-100", "output", 12.5},
	})
	rr := doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/etl/batches/%d/run", batchID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("etl status = %d, body %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodPost, "/api/kpi/calculate", map[string]any{"batch_id": batchID})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["status"] != "completed" {
		t.Errorf("status = %v, want completed", resp["status"])
	}
	if _, ok := resp["results"].(float64); !ok {
		t.Errorf("results missing from response: %v", resp)
	}
}

func TestKPIResultsFilterParsing(t *testing.T) {
	_, h := newTestServer(t, nil)

	rr := doJSON(t, h, http.MethodGet, "/api/kpi/results?batch_id=abc", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for garbage batch_id", rr.Code)
	}

	rr = doJSON(t, h, http.MethodGet, "/api/kpi/results?period_key=later", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for garbage period_key", rr.Code)
	}

	rr = doJSON(t, h, http.MethodGet, "/api/kpi/results?batch_id=1&scope=factory&metric=output", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["count"] != float64(0) {
		t.Errorf("count = %v, want 0 on empty warehouse", resp["count"])
	}
}

func TestAnalysisGroupsBySalesperson(t *testing.T) {
	_, h := newTestServer(t, nil)

	uploadPartsSales(t, h, [][]any{
		{"日期", "銷售人員", "零件編號", "廠別", "數量", "金額"},
		{"2024-03-01", "Alice", "P-1", "F1", 2, 100},
		{"2024-03-02", "Bob", "P-2", "F1", 1, 50},
		{"2024-03-03", "Alice", "P-3", "F2", 3, 150},
	})

	rr := doJSON(t, h, http.MethodPost, "/api/kpi/analysis", map[string]any{
		"group_by": "salesperson",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["status"] != "success" {
		t.Errorf("status = %v, want success", resp["status"])
	}
	results, ok := resp["results"].([]any)
	if !ok || len(results) != 2 {
		t.Fatalf("results = %v, want two groups", resp["results"])
	}
	first := results[0].(map[string]any)
	if first["group"] != "Alice" {
		t.Errorf("first group = %v, want Alice (sorted)", first["group"])
	}
	if first["quantity"] != float64(5) || first["amount"] != float64(250) {
		t.Errorf("Alice sums = %v/%v, want 5/250", first["quantity"], first["amount"])
	}
	totals := resp["totals"].(map[string]any)
	if totals["row_count"] != float64(3) {
		t.Errorf("total row_count = %v, want 3", totals["row_count"])
	}
}

func TestAnalysisRejectsUnknownGroupBy(t *testing.T) {
	_, h := newTestServer(t, nil)

	rr := doJSON(t, h, http.MethodPost, "/api/kpi/analysis", map[string]any{
		"group_by": "planet",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestAnalysisCacheInvalidatedByTableUpload(t *testing.T) {
	_, h := newTestServer(t, nil)

	uploadPartsSales(t, h, [][]any{
		{"日期", "銷售人員", "零件編號", "廠別", "數量", "金額"},
		{"2024-03-01", "Alice", "P-1", "F1", 2, 100},
	})

	query := map[string]any{"group_by": "salesperson"}
	rr := doJSON(t, h, http.MethodPost, "/api/kpi/analysis", query)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if got := decodeResponse(t, rr)["totals"].(map[string]any)["row_count"]; got != float64(1) {
		t.Fatalf("row_count = %v, want 1", got)
	}

	// New rows through the table upload must show up in the next answer.
	uploadPartsSales(t, h, [][]any{
		{"日期", "銷售人員", "零件編號", "廠別", "數量", "金額"},
		{"2024-03-05", "Carol", "P-9", "F1", 4, 400},
	})

	rr = doJSON(t, h, http.MethodPost, "/api/kpi/analysis", query)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if got := decodeResponse(t, rr)["totals"].(map[string]any)["row_count"]; got != float64(2) {
		t.Errorf("row_count after upload = %v, want 2", got)
	}
}

// uploadPartsSales pushes one workbook into the parts_sales raw table.
func uploadPartsSales(t *testing.T, h http.Handler, rows [][]any) {
	t.Helper()
	body, contentType := multipartBody(t, "file", map[string][]byte{
		"sales.xlsx": buildWorkbook(t, rows),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/tables/parts_sales/upload", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("table upload status = %d, body %s", rr.Code, rr.Body.String())
	}
}
