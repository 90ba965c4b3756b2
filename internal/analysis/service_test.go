// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package analysis

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/xl2wh/internal/cache"
	"github.com/ManuGH/xl2wh/internal/records"
)

func newTestService(t *testing.T) (*Service, *records.SqliteStore) {
	t.Helper()
	store, err := records.NewSqliteStore(filepath.Join(t.TempDir(), "records.db"))
	if err != nil {
		t.Fatalf("NewSqliteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewService(store, cache.NewMemoryCache(0), time.Minute), store
}

func salesRow(date, seller, partNo, factory, category, fnCode string, qty, amount float64) map[string]any {
	return map[string]any{
		"日期":   date,
		"銷售人員": seller,
		"零件編號": partNo,
		"廠別":   factory,
		"零件類別": category,
		"功能碼":  fnCode,
		"數量":   qty,
		"金額":   amount,
	}
}

func seedSales(t *testing.T, store *records.SqliteStore, hash string, rows ...map[string]any) {
	t.Helper()
	inputs := make([]records.RowInput, len(rows))
	for i, data := range rows {
		inputs[i] = records.RowInput{RowNumber: i + 2, Data: data}
	}
	if _, err := store.UpsertRows(context.Background(), records.TablePartsSales, "sales.xlsx", hash, inputs); err != nil {
		t.Fatalf("seed rows: %v", err)
	}
}

// seedBase loads three Chinese-header rows plus one snake_case row whose
// numbers arrive as strings.
func seedBase(t *testing.T, store *records.SqliteStore) {
	t.Helper()
	seedSales(t, store, "h1",
		salesRow("2024-01-15", "Alice", "P-1", "TW-01", "filter", "F1", 2, 100),
		salesRow("2024-01-20", "Alice", "P-2", "TW-02", "brake", "F2", 1, 50),
		salesRow("2024-02-05", "Bob", "P-3", "TW-01", "filter", "F1", 4, 200),
		map[string]any{
			"date":          "2024/02/10",
			"salesperson":   "Bob",
			"part_no":       "P-4",
			"factory":       "TW-02",
			"part_category": "brake",
			"function_code": "F2",
			"quantity":      "3",
			"amount":        "25.5",
		},
	)
}

func TestQueryGroupsAndTotals(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	seedBase(t, store)

	resp, err := svc.Query(ctx, Request{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if resp.Status != "success" || resp.GroupBy != "salesperson" {
		t.Fatalf("status/group_by = %s/%s", resp.Status, resp.GroupBy)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("got %d groups, want 2", len(resp.Results))
	}

	alice, bob := resp.Results[0], resp.Results[1]
	if alice["group"] != "Alice" || alice["row_count"] != 2 {
		t.Errorf("first group = %v", alice)
	}
	if alice["quantity"] != 3.0 || alice["amount"] != 150.0 {
		t.Errorf("Alice sums = %v/%v, want 3/150", alice["quantity"], alice["amount"])
	}
	if bob["group"] != "Bob" || bob["quantity"] != 7.0 || bob["amount"] != 225.5 {
		t.Errorf("Bob sums = %v", bob)
	}

	if resp.Totals["row_count"] != 4 {
		t.Errorf("total rows = %v, want 4", resp.Totals["row_count"])
	}
	if resp.Totals["quantity"] != 10.0 || resp.Totals["amount"] != 375.5 {
		t.Errorf("totals = %v", resp.Totals)
	}
}

func TestQueryFilters(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	seedBase(t, store)

	tests := []struct {
		name     string
		req      Request
		wantRows int
	}{
		{"year and month", Request{Year: intp(2024), Month: intp(1)}, 2},
		{"month parses snake dates", Request{Month: intp(2)}, 2},
		{"single factory", Request{Factory: []string{"TW-01"}}, 2},
		{"list matches any value", Request{PartCategory: []string{"filter", "brake"}}, 4},
		{"filters combine", Request{Salesperson: []string{"Alice"}, FunctionCode: []string{"F2"}}, 1},
		{"no match", Request{Factory: []string{"TW-09"}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.Query(ctx, tt.req)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if resp.Totals["row_count"] != tt.wantRows {
				t.Errorf("row_count = %v, want %d", resp.Totals["row_count"], tt.wantRows)
			}
		})
	}
}

func TestQueryGroupByFactory(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	seedBase(t, store)

	resp, err := svc.Query(ctx, Request{GroupBy: "factory"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("got %d groups, want 2", len(resp.Results))
	}
	tw1, tw2 := resp.Results[0], resp.Results[1]
	if tw1["group"] != "TW-01" || tw1["quantity"] != 6.0 || tw1["amount"] != 300.0 {
		t.Errorf("TW-01 = %v", tw1)
	}
	if tw2["group"] != "TW-02" || tw2["quantity"] != 4.0 || tw2["amount"] != 75.5 {
		t.Errorf("TW-02 = %v", tw2)
	}
}

func TestQueryGroupsMissingValuesUnderEmpty(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	seedSales(t, store, "h-anon", map[string]any{
		"日期": "2024-03-01", "零件編號": "P-9", "廠別": "TW-01", "數量": 1.0, "金額": 10.0,
	})

	resp, err := svc.Query(ctx, Request{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0]["group"] != "" {
		t.Fatalf("results = %v, want one empty-named group", resp.Results)
	}
	if resp.Results[0]["row_count"] != 1 {
		t.Errorf("row_count = %v, want 1", resp.Results[0]["row_count"])
	}
}

func TestQueryEmptyTable(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	resp, err := svc.Query(ctx, Request{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("results = %v, want none", resp.Results)
	}
	if resp.Totals["row_count"] != 0 || resp.Totals["quantity"] != 0.0 {
		t.Errorf("totals = %v", resp.Totals)
	}
}

func TestQueryRejectsInvalidRequest(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	resp, err := svc.Query(ctx, Request{GroupBy: "part_no"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
	if resp != nil {
		t.Error("got a response alongside the error")
	}
}

func TestQueryServesCacheUntilInvalidate(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	seedBase(t, store)

	first, err := svc.Query(ctx, Request{})
	if err != nil {
		t.Fatalf("first query failed: %v", err)
	}
	if len(first.Results) != 2 {
		t.Fatalf("got %d groups, want 2", len(first.Results))
	}

	// New rows land after the query; the cached answer keeps serving.
	seedSales(t, store, "h2",
		salesRow("2024-01-25", "Carol", "P-5", "TW-01", "filter", "F1", 8, 400))

	cached, err := svc.Query(ctx, Request{})
	if err != nil {
		t.Fatalf("cached query failed: %v", err)
	}
	if len(cached.Results) != 2 {
		t.Errorf("cached query saw %d groups, want the 2 cached ones", len(cached.Results))
	}

	svc.Invalidate(ctx)

	fresh, err := svc.Query(ctx, Request{})
	if err != nil {
		t.Fatalf("post-invalidate query failed: %v", err)
	}
	if len(fresh.Results) != 3 {
		t.Fatalf("got %d groups after invalidate, want 3", len(fresh.Results))
	}
	if fresh.Results[2]["group"] != "Carol" {
		t.Errorf("last group = %v, want Carol", fresh.Results[2]["group"])
	}
}
