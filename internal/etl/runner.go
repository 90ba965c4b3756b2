// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package etl moves validated staging rows into the warehouse: cleansing,
// duplicate and anomaly checks, dimension upserts and fact loads, with every
// finding recorded as a data-quality issue.
package etl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/xl2wh/internal/log"
	"github.com/ManuGH/xl2wh/internal/metrics"
	"github.com/ManuGH/xl2wh/internal/staging"
	"github.com/ManuGH/xl2wh/internal/warehouse"
)

// Summary is the outcome of one ETL run, returned to API callers and
// mirrored into the batch report file.
type Summary struct {
	BatchID      int64           `json:"batch_id"`
	Dataset      staging.Dataset `json:"dataset"`
	Status       string          `json:"status"`
	LoadedRows   int             `json:"loaded_rows"`
	DQIssues     int             `json:"dq_issues"`
	ProcessingMS int64           `json:"processing_ms"`
}

// Runner executes ETL batches against a staging and a warehouse store.
type Runner struct {
	staging          *staging.SqliteStore
	warehouse        *warehouse.SqliteStore
	defaultThreshold float64
	reportDir        string
}

// NewRunner wires an ETL runner. A zero defaultThreshold falls back to
// DefaultAnomalyThreshold; an empty reportDir disables report files.
func NewRunner(st *staging.SqliteStore, wh *warehouse.SqliteStore, defaultThreshold float64, reportDir string) *Runner {
	if defaultThreshold <= 0 {
		defaultThreshold = DefaultAnomalyThreshold
	}
	return &Runner{staging: st, warehouse: wh, defaultThreshold: defaultThreshold, reportDir: reportDir}
}

// RunBatch loads one staged batch into the warehouse. Re-running a batch
// replaces its fact rows. The per-request thresholds override the default
// anomaly threshold per metric.
//
// Unknown batches and unsupported datasets fail before the batch is touched;
// any later error marks the batch failed with the error text as message.
func (r *Runner) RunBatch(ctx context.Context, batchID int64, thresholds map[string]float64) (*Summary, error) {
	start := time.Now()
	logger := log.WithComponentFromContext(ctx, "etl").With().Int64(log.FieldBatchID, batchID).Logger()

	b, err := r.staging.GetBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, staging.ErrNotFound) {
			return nil, fmt.Errorf("batch %d: %w", batchID, err)
		}
		return nil, err
	}
	if _, err := staging.ParseDataset(string(b.Dataset)); err != nil {
		return nil, err
	}

	rows, err := r.staging.StagedRows(ctx, b.Dataset, batchID)
	if err != nil {
		return nil, err
	}

	fail := func(err error) (*Summary, error) {
		if ferr := r.staging.FailBatch(ctx, batchID, err.Error()); ferr != nil {
			logger.Error().Err(ferr).Str("event", "etl.fail_stamp_failed").Msg("could not mark batch failed")
		}
		logger.Error().Err(err).Str("event", "etl.failed").Str(log.FieldDataset, string(b.Dataset)).Msg("etl run failed")
		metrics.RecordETLBatch(false, 0, 0, time.Since(start).Seconds())
		return nil, err
	}

	aliases, err := r.warehouse.Aliases(ctx)
	if err != nil {
		return fail(err)
	}

	var (
		loaded int
		issues []warehouse.Issue
	)
	switch b.Dataset {
	case staging.DatasetOperations:
		var records []warehouse.OperationsRecord
		records, issues = buildOperations(batchID, rows, aliases, thresholds, r.defaultThreshold)
		if len(records) > 0 {
			if err := r.warehouse.LoadOperations(ctx, batchID, records); err != nil {
				return fail(err)
			}
		}
		loaded = len(records)
	default:
		var records []warehouse.KPIRecord
		records, issues = buildKPI(batchID, rows, aliases, thresholds, r.defaultThreshold)
		if len(records) > 0 {
			if err := r.warehouse.LoadKPI(ctx, batchID, records); err != nil {
				return fail(err)
			}
		}
		loaded = len(records)
	}

	if len(issues) > 0 {
		if err := r.warehouse.RecordIssues(ctx, issues); err != nil {
			return fail(err)
		}
	}

	processingMS := time.Since(start).Milliseconds()
	message := fmt.Sprintf("Loaded %d rows with %d dq issues", loaded, len(issues))
	if err := r.staging.StampETLResult(ctx, batchID, staging.StatusCompleted, loaded, len(issues), processingMS, message); err != nil {
		return fail(err)
	}

	summary := &Summary{
		BatchID:      batchID,
		Dataset:      b.Dataset,
		Status:       staging.StatusCompleted,
		LoadedRows:   loaded,
		DQIssues:     len(issues),
		ProcessingMS: processingMS,
	}
	r.writeReport(ctx, summary)
	observeRun(ctx, string(b.Dataset), loaded, len(issues), time.Since(start))
	metrics.RecordETLBatch(true, loaded, len(issues), time.Since(start).Seconds())

	logger.Info().Str("event", "etl.completed").
		Str(log.FieldDataset, string(b.Dataset)).
		Int("loaded_rows", loaded).
		Int("dq_issues", len(issues)).
		Int64("processing_ms", processingMS).
		Msg("batch loaded")
	return summary, nil
}

// writeReport mirrors the run summary to <reportDir>/batch_<id>.json.
// Reports are best effort: a write failure is logged, never fatal.
func (r *Runner) writeReport(ctx context.Context, s *Summary) {
	if r.reportDir == "" {
		return
	}
	logger := log.WithComponentFromContext(ctx, "etl")
	path := filepath.Join(r.reportDir, fmt.Sprintf("batch_%d.json", s.BatchID))

	if err := os.MkdirAll(r.reportDir, 0o750); err != nil {
		logger.Warn().Err(err).Str("event", "etl.report_write_failed").Str("path", path).Msg("run report not written")
		return
	}

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		logger.Warn().Err(err).Str("event", "etl.report_write_failed").Str("path", path).Msg("run report not written")
		return
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending report file")
		}
	}()

	enc := json.NewEncoder(pending)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		logger.Warn().Err(err).Str("event", "etl.report_write_failed").Str("path", path).Msg("run report not written")
		return
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		logger.Warn().Err(err).Str("event", "etl.report_write_failed").Str("path", path).Msg("run report not written")
	}
}
