// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"
	HTTPUserAgentKey  = "http.user_agent"

	// Upload attributes
	UploadDatasetKey = "upload.dataset"
	UploadBatchIDKey = "upload.batch_id"
	UploadFilesKey   = "upload.files"
	UploadRowsKey    = "upload.rows"

	// ETL attributes
	ETLBatchIDKey    = "etl.batch_id"
	ETLDatasetKey    = "etl.dataset"
	ETLLoadedRowsKey = "etl.loaded_rows"
	ETLDQIssuesKey   = "etl.dq_issues"

	// KPI attributes
	KPIBatchIDKey = "kpi.batch_id"
	KPIPeriodsKey = "kpi.periods"
	KPIResultsKey = "kpi.results"

	// Analysis attributes
	AnalysisGroupByKey = "analysis.group_by"
	AnalysisGroupsKey  = "analysis.groups"
	AnalysisCachedKey  = "analysis.cached"

	// Job attributes
	JobTypeKey     = "job.type"
	JobStatusKey   = "job.status"
	JobDurationKey = "job.duration_ms"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// UploadAttributes creates upload-related span attributes. The batch id is
// omitted while it is still zero, before the staging row exists.
func UploadAttributes(dataset string, batchID int64, files, rows int) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if dataset != "" {
		attrs = append(attrs, attribute.String(UploadDatasetKey, dataset))
	}
	if batchID > 0 {
		attrs = append(attrs, attribute.Int64(UploadBatchIDKey, batchID))
	}
	attrs = append(attrs,
		attribute.Int(UploadFilesKey, files),
		attribute.Int(UploadRowsKey, rows),
	)
	return attrs
}

// ETLAttributes creates ETL-related span attributes.
func ETLAttributes(batchID int64, dataset string, loadedRows, dqIssues int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64(ETLBatchIDKey, batchID),
		attribute.String(ETLDatasetKey, dataset),
		attribute.Int(ETLLoadedRowsKey, loadedRows),
		attribute.Int(ETLDQIssuesKey, dqIssues),
	}
}

// KPIAttributes creates KPI-calculation span attributes.
func KPIAttributes(batchID int64, periods, results int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64(KPIBatchIDKey, batchID),
		attribute.Int(KPIPeriodsKey, periods),
		attribute.Int(KPIResultsKey, results),
	}
}

// AnalysisAttributes creates analysis-query span attributes.
func AnalysisAttributes(groupBy string, groups int, cached bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AnalysisGroupByKey, groupBy),
		attribute.Int(AnalysisGroupsKey, groups),
		attribute.Bool(AnalysisCachedKey, cached),
	}
}

// JobAttributes creates job-related span attributes.
func JobAttributes(jobType, status string, durationMS int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(JobTypeKey, jobType),
		attribute.String(JobStatusKey, status),
		attribute.Int64(JobDurationKey, durationMS),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
