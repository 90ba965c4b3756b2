// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ManuGH/xl2wh/internal/archive"
	"github.com/ManuGH/xl2wh/internal/dedup"
	"github.com/ManuGH/xl2wh/internal/staging"
	"github.com/ManuGH/xl2wh/internal/validate"
)

func newTestService(t *testing.T, index *dedup.Index, parallel int) (*Service, *staging.SqliteStore) {
	t.Helper()
	store, err := staging.NewSqliteStore(filepath.Join(t.TempDir(), "staging.db"))
	if err != nil {
		t.Fatalf("NewSqliteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	rules := validate.NewRules(nil, []string{"output", "quality"})
	return NewService(store, rules, index, nil, parallel), store
}

// Headers use display casing on purpose: normalization must map them to the
// canonical snake_case names before validation.
func uploadHeader() []any {
	return []any{"Factory Code", "Date", "Employee ID", "Indicator", "Value", "remark"}
}

func TestProcessStagesValidRows(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, nil, 2)

	content := buildWorkbook(t, [][]any{
		uploadHeader(),
		{"TW-01", "2024/03/01", "E-100", "output", 12.5, "ok"},
		{"TW-02", "20240302", "E-101", "quality", "0.97", ""},
	})

	res, err := svc.Process(ctx, staging.DatasetOperations, []FileUpload{
		{Name: "march.xlsx", Content: content},
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if res.Status != "success" {
		t.Errorf("status = %q, want success", res.Status)
	}
	want := staging.Totals{Files: 1, Rows: 2, ValidRows: 2, InvalidRows: 0}
	if res.Totals != want {
		t.Errorf("totals = %+v, want %+v", res.Totals, want)
	}
	if len(res.Errors) != 0 {
		t.Errorf("unexpected errors: %+v", res.Errors)
	}
	if len(res.Files) != 1 {
		t.Fatalf("got %d file reports, want 1", len(res.Files))
	}
	f := res.Files[0]
	if f.FileName != "march.xlsx" || f.Rows != 2 || f.ValidRows != 2 || f.InvalidRows != 0 {
		t.Errorf("file report = %+v", f)
	}
	if len(f.FileHash) != 32 {
		t.Errorf("file hash = %q, want 32 hex chars", f.FileHash)
	}

	b, err := store.GetBatch(ctx, res.BatchID)
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if b.Status != staging.StatusCompleted {
		t.Errorf("batch status = %q, want completed", b.Status)
	}
	if b.TotalRows != 2 || b.ValidRows != 2 {
		t.Errorf("batch totals = %+v", b)
	}

	rows, err := store.StagedRows(ctx, staging.DatasetOperations, res.BatchID)
	if err != nil {
		t.Fatalf("StagedRows failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("staged %d rows, want 2", len(rows))
	}
	if rows[0].RowNumber != 2 || rows[1].RowNumber != 3 {
		t.Errorf("row numbers = %d, %d", rows[0].RowNumber, rows[1].RowNumber)
	}

	var first map[string]any
	if err := json.Unmarshal(rows[0].Data, &first); err != nil {
		t.Fatalf("staged payload is not JSON: %v", err)
	}
	if first["factory_code"] != "TW-01" {
		t.Errorf("factory_code = %v", first["factory_code"])
	}
	if first["date"] != "2024-03-01" {
		t.Errorf("date = %v, want normalized 2024-03-01", first["date"])
	}
	if first["value"] != 12.5 {
		t.Errorf("value = %v (%T), want 12.5", first["value"], first["value"])
	}
	if first["remark"] != "ok" {
		t.Errorf("remark = %v", first["remark"])
	}

	var second map[string]any
	if err := json.Unmarshal(rows[1].Data, &second); err != nil {
		t.Fatalf("staged payload is not JSON: %v", err)
	}
	if second["value"] != 0.97 {
		t.Errorf("string value not coerced: %v (%T)", second["value"], second["value"])
	}
	if v, ok := second["remark"]; !ok || v != nil {
		t.Errorf("blank remark = %v (present=%v), want null", v, ok)
	}
}

func TestProcessPartialSuccess(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, nil, 1)

	content := buildWorkbook(t, [][]any{
		uploadHeader(),
		{"TW-01", "not-a-date", "E-100", "output", 1, ""},
		{"", "2024-03-01", "E-101", "output", 2, ""},
		{"TW-03", "2024-03-03", "E-102", "output", 3, ""},
	})

	res, err := svc.Process(ctx, staging.DatasetOperations, []FileUpload{
		{Name: "mixed.xlsx", Content: content},
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if res.Status != "partial_success" {
		t.Errorf("status = %q, want partial_success", res.Status)
	}
	want := staging.Totals{Files: 1, Rows: 3, ValidRows: 1, InvalidRows: 2}
	if res.Totals != want {
		t.Errorf("totals = %+v, want %+v", res.Totals, want)
	}

	if len(res.Errors) != 2 {
		t.Fatalf("got %d errors, want 2: %+v", len(res.Errors), res.Errors)
	}
	if res.Errors[0].RowNumber != 2 || res.Errors[0].Column != "date" || res.Errors[0].Code != validate.CodeInvalidFormat {
		t.Errorf("first error = %+v", res.Errors[0])
	}
	if res.Errors[1].RowNumber != 3 || res.Errors[1].Column != "factory_code" || res.Errors[1].Code != validate.CodeMissingField {
		t.Errorf("second error = %+v", res.Errors[1])
	}

	b, _ := store.GetBatch(ctx, res.BatchID)
	if b.Status != staging.StatusCompletedWithErrors {
		t.Errorf("batch status = %q, want completed_with_errors", b.Status)
	}

	rows, _ := store.StagedRows(ctx, staging.DatasetOperations, res.BatchID)
	if len(rows) != 1 || rows[0].RowNumber != 4 {
		t.Errorf("staged rows = %+v, want only spreadsheet row 4", rows)
	}
}

func TestProcessMissingColumns(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, nil, 1)

	content := buildWorkbook(t, [][]any{
		{"factory_code", "date"},
		{"TW-01", "2024-03-01"},
		{"TW-02", "2024-03-02"},
	})

	res, err := svc.Process(ctx, staging.DatasetOperations, []FileUpload{
		{Name: "short.xlsx", Content: content},
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if res.Status != "partial_success" {
		t.Errorf("status = %q", res.Status)
	}
	want := staging.Totals{Files: 1, Rows: 2, ValidRows: 0, InvalidRows: 2}
	if res.Totals != want {
		t.Errorf("totals = %+v, want %+v", res.Totals, want)
	}

	if len(res.Errors) != 3 {
		t.Fatalf("got %d errors, want one per missing column: %+v", len(res.Errors), res.Errors)
	}
	for i, col := range []string{"employee_id", "indicator", "value"} {
		e := res.Errors[i]
		if e.Column != col || e.Code != validate.CodeMissingColumn || e.RowNumber != 0 {
			t.Errorf("error[%d] = %+v, want column %s at row 0", i, e, col)
		}
		if e.Message != "required column is missing" {
			t.Errorf("error[%d] message = %q", i, e.Message)
		}
	}

	rows, _ := store.StagedRows(ctx, staging.DatasetOperations, res.BatchID)
	if len(rows) != 0 {
		t.Errorf("nothing should be staged, got %d rows", len(rows))
	}
}

func TestProcessUnreadableFile(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, nil, 1)

	res, err := svc.Process(ctx, staging.DatasetKPI, []FileUpload{
		{Name: "broken.xlsx", Content: []byte("junk bytes")},
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if res.Status != "partial_success" {
		t.Errorf("status = %q", res.Status)
	}
	want := staging.Totals{Files: 1, Rows: 0, ValidRows: 0, InvalidRows: 1}
	if res.Totals != want {
		t.Errorf("totals = %+v, want %+v", res.Totals, want)
	}

	if len(res.Errors) != 1 {
		t.Fatalf("got %d errors, want 1", len(res.Errors))
	}
	e := res.Errors[0]
	if e.Column != validate.FileColumn || e.Code != validate.CodeInvalidFile || e.RowNumber != 0 {
		t.Errorf("file error = %+v", e)
	}
	if !strings.HasPrefix(e.Message, "failed to read excel:") {
		t.Errorf("message = %q", e.Message)
	}

	stored, _ := store.ErrorsForBatch(ctx, res.BatchID)
	if len(stored) != 1 || stored[0].Code != validate.CodeInvalidFile {
		t.Errorf("stored errors = %+v", stored)
	}
}

func TestProcessFlagsDuplicates(t *testing.T) {
	ctx := context.Background()
	index, err := dedup.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	t.Cleanup(func() { _ = index.Close() })
	svc, _ := newTestService(t, index, 1)

	content := buildWorkbook(t, [][]any{
		uploadHeader(),
		{"TW-01", "2024-03-01", "E-100", "output", 1, ""},
	})

	first, err := svc.Process(ctx, staging.DatasetOperations, []FileUpload{
		{Name: "jan.xlsx", Content: content},
	})
	if err != nil {
		t.Fatalf("first Process failed: %v", err)
	}
	if first.Files[0].Duplicate {
		t.Error("first sighting must not be a duplicate")
	}

	second, err := svc.Process(ctx, staging.DatasetOperations, []FileUpload{
		{Name: "jan-copy.xlsx", Content: content},
	})
	if err != nil {
		t.Fatalf("second Process failed: %v", err)
	}
	dup := second.Files[0]
	if !dup.Duplicate {
		t.Fatal("re-uploaded content not flagged as duplicate")
	}
	if dup.FirstSeen == nil || dup.FirstSeen.FileName != "jan.xlsx" {
		t.Errorf("first_seen = %+v, want original jan.xlsx", dup.FirstSeen)
	}
	// Duplicates are informational: the rows still stage.
	if second.Totals.ValidRows != 1 {
		t.Errorf("duplicate file must still stage rows: %+v", second.Totals)
	}
}

func TestProcessKeepsUploadOrder(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, nil, 4)

	var files []FileUpload
	for i := 0; i < 4; i++ {
		content := buildWorkbook(t, [][]any{
			uploadHeader(),
			{"TW-01", "2024-03-01", fmt.Sprintf("E-%d", i), "output", i, ""},
		})
		files = append(files, FileUpload{Name: fmt.Sprintf("file-%d.xlsx", i), Content: content})
	}

	res, err := svc.Process(ctx, staging.DatasetOperations, files)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(res.Files) != 4 {
		t.Fatalf("got %d file reports, want 4", len(res.Files))
	}
	for i, f := range res.Files {
		if want := fmt.Sprintf("file-%d.xlsx", i); f.FileName != want {
			t.Errorf("files[%d] = %q, want %q (upload order)", i, f.FileName, want)
		}
	}

	stored, err := store.FilesForBatch(ctx, res.BatchID)
	if err != nil {
		t.Fatalf("FilesForBatch failed: %v", err)
	}
	for i, f := range stored {
		if want := fmt.Sprintf("file-%d.xlsx", i); f.FileName != want {
			t.Errorf("stored[%d] = %q, want %q", i, f.FileName, want)
		}
	}
}

func TestProcessArchivesWorkbooks(t *testing.T) {
	ctx := context.Background()
	arch, err := archive.New(ctx, archive.Options{Backend: "local", Path: t.TempDir(), Prefix: "xl2wh"})
	if err != nil {
		t.Fatalf("archive.New failed: %v", err)
	}

	store, err := staging.NewSqliteStore(filepath.Join(t.TempDir(), "staging.db"))
	if err != nil {
		t.Fatalf("NewSqliteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	rules := validate.NewRules(nil, []string{"output"})
	svc := NewService(store, rules, nil, arch, 1)

	content := buildWorkbook(t, [][]any{
		uploadHeader(),
		{"TW-01", "2024-03-01", "E-100", "output", 1.0, ""},
	})
	res, err := svc.Process(ctx, staging.DatasetOperations, []FileUpload{
		{Name: "march.xlsx", Content: content},
		{Name: "broken.xlsx", Content: []byte("not a workbook")},
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	// Both files land in the archive, the undecodable one included.
	for _, name := range []string{"march.xlsx", "broken.xlsx"} {
		rc, err := arch.Open(ctx, archive.Key(string(staging.DatasetOperations), res.BatchID, name))
		if err != nil {
			t.Fatalf("archived copy of %s missing: %v", name, err)
		}
		_ = rc.Close()
	}
}
