// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package staging persists upload batches, per-file summaries, validation
// errors and the raw staged rows the ETL consumes.
package staging

import (
	"errors"
	"fmt"
	"time"
)

// Batch lifecycle statuses. The strings are part of the API contract.
const (
	StatusProcessing          = "processing"
	StatusCompleted           = "completed"
	StatusCompletedWithErrors = "completed_with_errors"
	StatusFailed              = "failed"
)

// ErrNotFound is returned when a batch id does not exist.
var ErrNotFound = errors.New("batch not found")

// ErrUnsupportedDataset is returned for dataset names outside the known set.
var ErrUnsupportedDataset = errors.New("unsupported dataset")

// Dataset selects which staging table an upload feeds.
type Dataset string

const (
	DatasetOperations Dataset = "operations"
	DatasetKPI        Dataset = "kpi"
)

// ParseDataset validates a dataset name from the API.
func ParseDataset(s string) (Dataset, error) {
	switch Dataset(s) {
	case DatasetOperations:
		return DatasetOperations, nil
	case DatasetKPI:
		return DatasetKPI, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDataset, s)
	}
}

// StagingTable returns the table raw rows of this dataset land in.
func (d Dataset) StagingTable() string {
	if d == DatasetKPI {
		return "stg_kpi_raw"
	}
	return "stg_operations"
}

// Batch is one upload batch.
type Batch struct {
	ID            int64      `json:"batch_id"`
	Dataset       Dataset    `json:"dataset"`
	Status        string     `json:"status"`
	TotalFiles    int        `json:"total_files"`
	TotalRows     int        `json:"total_rows"`
	ValidRows     int        `json:"valid_rows"`
	InvalidRows   int        `json:"invalid_rows"`
	Message       string     `json:"message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	ProcessedRows int        `json:"processed_rows"`
	DQErrorCount  int        `json:"dq_error_count"`
	ProcessingMS  int64      `json:"processing_ms"`
}

// Totals aggregates upload counters across all files of a batch.
type Totals struct {
	Files       int `json:"files"`
	Rows        int `json:"rows"`
	ValidRows   int `json:"valid_rows"`
	InvalidRows int `json:"invalid_rows"`
}

// FileSummary is one uploaded file inside a batch (a raw_files row).
type FileSummary struct {
	ID          int64  `json:"-"`
	BatchID     int64  `json:"-"`
	FileName    string `json:"file_name"`
	FileHash    string `json:"file_hash"`
	Rows        int    `json:"rows"`
	ValidRows   int    `json:"valid_rows"`
	InvalidRows int    `json:"invalid_rows"`
}

// ValidationError is one recorded rule violation.
type ValidationError struct {
	ID        int64  `json:"-"`
	BatchID   int64  `json:"-"`
	FileName  string `json:"file"`
	RowNumber int    `json:"row"`
	Column    string `json:"column"`
	Code      string `json:"error_code"`
	Message   string `json:"message"`
}

// StagedRow is one validated row awaiting ETL, with its cleaned cells as a
// JSON object.
type StagedRow struct {
	ID        int64
	BatchID   int64
	FileName  string
	RowNumber int
	Data      []byte
}

// Stats summarizes the staging area for the status endpoint.
type Stats struct {
	Batches           int64 `json:"batches"`
	ProcessingBatches int64 `json:"processing_batches"`
	FailedBatches     int64 `json:"failed_batches"`
	StagedOperations  int64 `json:"staged_operations"`
	StagedKPI         int64 `json:"staged_kpi"`
	ValidationErrors  int64 `json:"validation_errors"`
}
