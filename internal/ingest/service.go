// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package ingest runs multi-file staging uploads: it decodes workbooks,
// validates rows, stages the clean ones, archives the original bytes, and
// records everything that went wrong along the way.
package ingest

import (
	"bytes"
	"context"
	"crypto/md5" // #nosec G501 -- content fingerprint for duplicate detection, not a credential hash
	"encoding/hex"
	"encoding/json"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/xl2wh/internal/archive"
	"github.com/ManuGH/xl2wh/internal/dedup"
	"github.com/ManuGH/xl2wh/internal/log"
	"github.com/ManuGH/xl2wh/internal/metrics"
	"github.com/ManuGH/xl2wh/internal/staging"
	"github.com/ManuGH/xl2wh/internal/validate"
)

// Service stages uploaded workbooks into a batch.
type Service struct {
	store    *staging.SqliteStore
	rules    *validate.Rules
	index    *dedup.Index   // optional, nil disables duplicate flagging
	archive  *archive.Store // optional, nil disables workbook archiving
	parallel int
}

// NewService wires the upload pipeline. parallel bounds how many workbooks
// decode and validate concurrently.
func NewService(store *staging.SqliteStore, rules *validate.Rules, index *dedup.Index, arch *archive.Store, parallel int) *Service {
	if parallel <= 0 {
		parallel = 1
	}
	return &Service{store: store, rules: rules, index: index, archive: arch, parallel: parallel}
}

// FileUpload is one workbook received from the API layer.
type FileUpload struct {
	Name    string
	Content []byte
}

// FileReport is the per-file entry of an upload response.
type FileReport struct {
	FileName    string       `json:"file_name"`
	FileHash    string       `json:"file_hash"`
	Rows        int          `json:"rows"`
	ValidRows   int          `json:"valid_rows"`
	InvalidRows int          `json:"invalid_rows"`
	Duplicate   bool         `json:"duplicate,omitempty"`
	FirstSeen   *dedup.Entry `json:"first_seen,omitempty"`
}

// Result is the upload response body.
type Result struct {
	BatchID int64                     `json:"batch_id"`
	Status  string                    `json:"status"`
	Totals  staging.Totals            `json:"totals"`
	Files   []FileReport              `json:"files"`
	Errors  []staging.ValidationError `json:"errors"`
}

// fileOutcome is everything one workbook produced. Outcomes are computed in
// parallel but persisted strictly in upload order.
type fileOutcome struct {
	summary staging.FileSummary
	report  FileReport
	errors  []staging.ValidationError
	staged  []staging.StagedRow
}

// Process stages all files into a fresh batch and reports per-file results
// in upload order.
func (s *Service) Process(ctx context.Context, dataset staging.Dataset, files []FileUpload) (*Result, error) {
	batchID, err := s.store.CreateBatch(ctx, dataset)
	if err != nil {
		return nil, err
	}
	logger := log.WithComponentFromContext(ctx, "ingest").With().
		Int64(log.FieldBatchID, batchID).Str(log.FieldDataset, string(dataset)).Logger()

	outcomes := make([]*fileOutcome, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)
	for i, f := range files {
		g.Go(func() error {
			outcomes[i] = s.processFile(gctx, batchID, dataset, f)
			return nil
		})
	}
	_ = g.Wait() // workers only record outcomes, they never fail the group

	var (
		totals  staging.Totals
		reports = make([]FileReport, 0, len(files))
		allErrs = make([]staging.ValidationError, 0)
	)
	totals.Files = len(files)

	persist := func() error {
		for _, o := range outcomes {
			if err := s.store.AddFile(ctx, o.summary); err != nil {
				return err
			}
			if len(o.errors) > 0 {
				if err := s.store.AddValidationErrors(ctx, o.errors); err != nil {
					return err
				}
			}
			if len(o.staged) > 0 {
				if err := s.store.StageRows(ctx, dataset, o.staged); err != nil {
					return err
				}
			}
			totals.Rows += o.summary.Rows
			totals.ValidRows += o.summary.ValidRows
			totals.InvalidRows += o.summary.InvalidRows
			reports = append(reports, o.report)
			allErrs = append(allErrs, o.errors...)
		}
		return nil
	}
	if err := persist(); err != nil {
		_ = s.store.FailBatch(ctx, batchID, err.Error())
		logger.Error().Err(err).Str("event", "upload.failed").Msg("batch persist failed")
		return nil, err
	}

	status := staging.StatusCompleted
	apiStatus := "success"
	if totals.InvalidRows > 0 {
		status = staging.StatusCompletedWithErrors
		apiStatus = "partial_success"
	}
	if err := s.store.FinishBatch(ctx, batchID, status, totals, ""); err != nil {
		_ = s.store.FailBatch(ctx, batchID, err.Error())
		return nil, err
	}

	metrics.RecordUpload(string(dataset), string(status))
	metrics.RecordUploadFiles(string(dataset), totals.Files)
	metrics.RecordUploadRows(string(dataset), totals.ValidRows, totals.InvalidRows)

	logger.Info().Str("event", "upload.completed").
		Int("files", totals.Files).
		Int("rows", totals.Rows).
		Int("valid_rows", totals.ValidRows).
		Int("invalid_rows", totals.InvalidRows).
		Msg("upload batch finished")

	return &Result{
		BatchID: batchID,
		Status:  apiStatus,
		Totals:  totals,
		Files:   reports,
		Errors:  allErrs,
	}, nil
}

func (s *Service) processFile(ctx context.Context, batchID int64, dataset staging.Dataset, f FileUpload) *fileOutcome {
	sum := md5.Sum(f.Content) // #nosec G401 -- duplicate detection only
	hash := hex.EncodeToString(sum[:])

	o := &fileOutcome{
		summary: staging.FileSummary{BatchID: batchID, FileName: f.Name, FileHash: hash},
		report:  FileReport{FileName: f.Name, FileHash: hash},
	}

	if s.index != nil {
		prior, err := s.index.Observe(hash, dedup.Entry{FileName: f.Name, Dataset: string(dataset)})
		if err != nil {
			logger := log.WithComponentFromContext(ctx, "ingest")
			logger.Warn().Err(err).
				Str("event", "dedup.check_failed").
				Str(log.FieldFileName, f.Name).
				Msg("duplicate check skipped")
		} else if prior != nil {
			o.report.Duplicate = true
			o.report.FirstSeen = prior
			metrics.IncDuplicateFile(string(dataset))
		}
	}

	// Every upload is archived as received, decodable or not.
	if s.archive != nil {
		if err := s.archive.Save(ctx, string(dataset), batchID, f.Name, f.Content); err != nil {
			logger := log.WithComponentFromContext(ctx, "ingest")
			logger.Warn().Err(err).
				Str("event", "archive.write_failed").
				Str(log.FieldFileName, f.Name).
				Msg("workbook not archived")
		}
	}

	fileError := func(column, code, message string) {
		o.errors = append(o.errors, staging.ValidationError{
			BatchID: batchID, FileName: f.Name, RowNumber: 0,
			Column: column, Code: code, Message: message,
		})
	}

	sheet, err := ReadWorkbook(bytes.NewReader(f.Content))
	if err != nil {
		fileError(validate.FileColumn, validate.CodeInvalidFile, err.Error())
		o.summary.InvalidRows = 1
		o.report.InvalidRows = 1
		return o
	}

	headers := validate.NormalizeHeaders(sheet.Headers)
	rowCount := len(sheet.Rows)
	o.summary.Rows, o.report.Rows = rowCount, rowCount

	if missing := validate.MissingColumns(headers); len(missing) > 0 {
		for _, col := range missing {
			fileError(col, validate.CodeMissingColumn, "required column is missing")
		}
		// Every data row of the file counts as invalid.
		o.summary.InvalidRows = rowCount
		o.report.InvalidRows = rowCount
		return o
	}

	for _, row := range sheet.Rows {
		cleaned, rowErrs := s.rules.ValidateRow(normalizeCells(sheet.Headers, headers, row.Cells))
		if len(rowErrs) > 0 {
			o.summary.InvalidRows++
			o.report.InvalidRows++
			for _, re := range rowErrs {
				o.errors = append(o.errors, staging.ValidationError{
					BatchID: batchID, FileName: f.Name, RowNumber: row.Number,
					Column: re.Column, Code: re.Code, Message: re.Message,
				})
			}
			continue
		}

		data, err := json.Marshal(cleaned)
		if err != nil {
			o.summary.InvalidRows++
			o.report.InvalidRows++
			o.errors = append(o.errors, staging.ValidationError{
				BatchID: batchID, FileName: f.Name, RowNumber: row.Number,
				Column: validate.FileColumn, Code: validate.CodeInvalidValue, Message: err.Error(),
			})
			continue
		}
		o.staged = append(o.staged, staging.StagedRow{
			BatchID: batchID, FileName: f.Name, RowNumber: row.Number, Data: data,
		})
		o.summary.ValidRows++
		o.report.ValidRows++
	}
	return o
}

// normalizeCells rekeys a raw-header row to normalized column names.
func normalizeCells(raw, normalized []string, cells map[string]any) map[string]any {
	out := make(map[string]any, len(normalized))
	for i, h := range raw {
		if h == "" {
			continue
		}
		out[normalized[i]] = cells[h]
	}
	return out
}
