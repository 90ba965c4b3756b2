// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package staging

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	store, err := NewSqliteStore(filepath.Join(t.TempDir(), "staging.db"))
	if err != nil {
		t.Fatalf("NewSqliteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestParseDataset(t *testing.T) {
	if _, err := ParseDataset("operations"); err != nil {
		t.Errorf("operations should parse: %v", err)
	}
	if _, err := ParseDataset("kpi"); err != nil {
		t.Errorf("kpi should parse: %v", err)
	}
	_, err := ParseDataset("finance")
	if !errors.Is(err, ErrUnsupportedDataset) {
		t.Errorf("expected ErrUnsupportedDataset, got %v", err)
	}
}

func TestBatchLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.CreateBatch(ctx, DatasetOperations)
	if err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero batch id")
	}

	b, err := store.GetBatch(ctx, id)
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if b.Status != StatusProcessing {
		t.Errorf("status = %q, want processing", b.Status)
	}
	if b.Dataset != DatasetOperations {
		t.Errorf("dataset = %q, want operations", b.Dataset)
	}
	if b.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}
	if b.CompletedAt != nil {
		t.Error("completed_at must be nil while processing")
	}

	totals := Totals{Files: 2, Rows: 10, ValidRows: 8, InvalidRows: 2}
	if err := store.FinishBatch(ctx, id, StatusCompletedWithErrors, totals, ""); err != nil {
		t.Fatalf("FinishBatch failed: %v", err)
	}

	b, err = store.GetBatch(ctx, id)
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if b.Status != StatusCompletedWithErrors {
		t.Errorf("status = %q, want completed_with_errors", b.Status)
	}
	if b.TotalFiles != 2 || b.TotalRows != 10 || b.ValidRows != 8 || b.InvalidRows != 2 {
		t.Errorf("totals not persisted: %+v", b)
	}
	if b.CompletedAt == nil {
		t.Error("completed_at not set after finish")
	}
	if b.Message != "" {
		t.Errorf("empty message should stay empty, got %q", b.Message)
	}
}

func TestGetBatchNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetBatch(context.Background(), 9999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFailBatch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.CreateBatch(ctx, DatasetKPI)
	if err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	if err := store.FailBatch(ctx, id, "workbook exploded"); err != nil {
		t.Fatalf("FailBatch failed: %v", err)
	}

	b, _ := store.GetBatch(ctx, id)
	if b.Status != StatusFailed {
		t.Errorf("status = %q, want failed", b.Status)
	}
	if b.Message != "workbook exploded" {
		t.Errorf("message = %q", b.Message)
	}

	if err := store.FailBatch(ctx, 4242, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestStampETLResult(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, _ := store.CreateBatch(ctx, DatasetOperations)
	msg := "Loaded 7 rows with 2 dq issues"
	if err := store.StampETLResult(ctx, id, StatusCompleted, 7, 2, 135, msg); err != nil {
		t.Fatalf("StampETLResult failed: %v", err)
	}

	b, _ := store.GetBatch(ctx, id)
	if b.ProcessedRows != 7 || b.DQErrorCount != 2 || b.ProcessingMS != 135 {
		t.Errorf("etl counters not persisted: %+v", b)
	}
	if b.Message != msg {
		t.Errorf("message = %q, want %q", b.Message, msg)
	}
}

func TestFilesAndErrorsPreserveOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	id, _ := store.CreateBatch(ctx, DatasetOperations)

	for i, name := range []string{"jan.xlsx", "feb.xlsx", "mar.xlsx"} {
		f := FileSummary{BatchID: id, FileName: name, FileHash: "hash", Rows: i + 1, ValidRows: i + 1}
		if err := store.AddFile(ctx, f); err != nil {
			t.Fatalf("AddFile failed: %v", err)
		}
	}

	files, err := store.FilesForBatch(ctx, id)
	if err != nil {
		t.Fatalf("FilesForBatch failed: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("got %d files, want 3", len(files))
	}
	for i, name := range []string{"jan.xlsx", "feb.xlsx", "mar.xlsx"} {
		if files[i].FileName != name {
			t.Errorf("files[%d] = %q, want %q (upload order)", i, files[i].FileName, name)
		}
	}

	errsIn := []ValidationError{
		{BatchID: id, FileName: "jan.xlsx", RowNumber: 2, Column: "date", Code: "invalid_format", Message: "bad date"},
		{BatchID: id, FileName: "jan.xlsx", RowNumber: 5, Column: "value", Code: "invalid_type", Message: "value must be numeric"},
		{BatchID: id, FileName: "feb.xlsx", RowNumber: 0, Column: "indicator", Code: "missing_column", Message: "required column is missing"},
	}
	if err := store.AddValidationErrors(ctx, errsIn); err != nil {
		t.Fatalf("AddValidationErrors failed: %v", err)
	}

	errsOut, err := store.ErrorsForBatch(ctx, id)
	if err != nil {
		t.Fatalf("ErrorsForBatch failed: %v", err)
	}
	if len(errsOut) != 3 {
		t.Fatalf("got %d errors, want 3", len(errsOut))
	}
	if errsOut[0].RowNumber != 2 || errsOut[2].Column != "indicator" {
		t.Errorf("errors out of order: %+v", errsOut)
	}
}

func TestStageAndLoadRows(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	id, _ := store.CreateBatch(ctx, DatasetKPI)

	payload := func(emp string) []byte {
		data, _ := json.Marshal(map[string]any{"employee_id": emp, "indicator": "output", "value": 5.0, "date": "2024-03-01"})
		return data
	}

	in := []StagedRow{
		{BatchID: id, FileName: "kpi.xlsx", RowNumber: 2, Data: payload("E1")},
		{BatchID: id, FileName: "kpi.xlsx", RowNumber: 3, Data: payload("E2")},
	}
	if err := store.StageRows(ctx, DatasetKPI, in); err != nil {
		t.Fatalf("StageRows failed: %v", err)
	}

	out, err := store.StagedRows(ctx, DatasetKPI, id)
	if err != nil {
		t.Fatalf("StagedRows failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d rows, want 2", len(out))
	}
	var decoded map[string]any
	if err := json.Unmarshal(out[0].Data, &decoded); err != nil {
		t.Fatalf("staged data is not JSON: %v", err)
	}
	if decoded["employee_id"] != "E1" {
		t.Errorf("row payload = %v", decoded)
	}

	// Rows must not leak across datasets.
	ops, err := store.StagedRows(ctx, DatasetOperations, id)
	if err != nil {
		t.Fatalf("StagedRows(operations) failed: %v", err)
	}
	if len(ops) != 0 {
		t.Errorf("operations staging should be empty, got %d rows", len(ops))
	}
}

func TestSweepStale(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	stale, _ := store.CreateBatch(ctx, DatasetOperations)
	fresh, _ := store.CreateBatch(ctx, DatasetOperations)

	// Backdate the first batch well past any cutoff.
	old := time.Now().UTC().Add(-2 * time.Hour).Format(time.RFC3339)
	if _, err := store.DB.Exec(`UPDATE upload_batches SET created_at = ? WHERE id = ?`, old, stale); err != nil {
		t.Fatalf("backdate failed: %v", err)
	}

	n, err := store.SweepStale(ctx, 30*time.Minute)
	if err != nil {
		t.Fatalf("SweepStale failed: %v", err)
	}
	if n != 1 {
		t.Errorf("swept %d batches, want 1", n)
	}

	b, _ := store.GetBatch(ctx, stale)
	if b.Status != StatusFailed || b.Message != "batch timed out" {
		t.Errorf("stale batch not failed: %+v", b)
	}
	f, _ := store.GetBatch(ctx, fresh)
	if f.Status != StatusProcessing {
		t.Errorf("fresh batch must stay processing, got %q", f.Status)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, _ := store.CreateBatch(ctx, DatasetOperations)
	_ = store.StageRows(ctx, DatasetOperations, []StagedRow{
		{BatchID: id, FileName: "ops.xlsx", RowNumber: 2, Data: []byte(`{}`)},
	})
	_ = store.AddValidationErrors(ctx, []ValidationError{
		{BatchID: id, FileName: "ops.xlsx", RowNumber: 3, Column: "value", Code: "invalid_type", Message: "value must be numeric"},
	})

	st, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.Batches != 1 || st.ProcessingBatches != 1 || st.StagedOperations != 1 || st.ValidationErrors != 1 {
		t.Errorf("stats = %+v", st)
	}
}

// Reopening the database after an unclean stop must preserve committed batches.
func TestCrashSafeReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "staging.db")

	store, err := NewSqliteStore(dbPath)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	id, err := store.CreateBatch(ctx, DatasetOperations)
	if err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	// Simulated crash: close without checkpointing.
	_ = store.Close()

	reopened, err := NewSqliteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	b, err := reopened.GetBatch(ctx, id)
	if err != nil {
		t.Fatalf("GetBatch after reopen failed: %v", err)
	}
	if b.Status != StatusProcessing {
		t.Errorf("status after reopen = %q", b.Status)
	}

	var journalMode string
	if err := reopened.DB.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		t.Fatalf("journal_mode query failed: %v", err)
	}
	if strings.ToLower(journalMode) != "wal" {
		t.Errorf("journal_mode = %q, want wal", journalMode)
	}
}
