// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"
	FieldJobID         = "job_id"
	FieldBatchID       = "batch_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldDataset   = "dataset"
	FieldStatus    = "status"

	// Import fields
	FieldFileName  = "file_name"
	FieldFileHash  = "file_hash"
	FieldRowNumber = "row_number"
	FieldTable     = "table"
	FieldErrorCode = "error_code"
	FieldIssueType = "issue_type"

	// Warehouse / KPI fields
	FieldMetricCode = "metric_code"
	FieldScope      = "scope"
	FieldPeriodKey  = "period_key"

	// Path / URL fields
	FieldPath    = "path"
	FieldBaseURL = "base_url"
)
