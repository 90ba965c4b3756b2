// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xl2wh_uploads_total",
		Help: "Upload batches by dataset and outcome",
	}, []string{"dataset", "status"})

	uploadRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xl2wh_upload_rows_total",
		Help: "Uploaded workbook rows by dataset and validation result",
	}, []string{"dataset", "result"}) // result=valid|invalid

	uploadFilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xl2wh_upload_files_total",
		Help: "Uploaded workbook files per dataset",
	}, []string{"dataset"})

	duplicateFilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xl2wh_upload_duplicate_files_total",
		Help: "Uploads whose content hash was seen before",
	}, []string{"dataset"})
)

// RecordUpload counts one finished upload batch.
func RecordUpload(dataset, status string) {
	uploadsTotal.WithLabelValues(dataset, status).Inc()
}

// RecordUploadRows counts the valid and invalid rows of one batch.
func RecordUploadRows(dataset string, valid, invalid int) {
	uploadRowsTotal.WithLabelValues(dataset, "valid").Add(float64(valid))
	uploadRowsTotal.WithLabelValues(dataset, "invalid").Add(float64(invalid))
}

func RecordUploadFiles(dataset string, n int) {
	uploadFilesTotal.WithLabelValues(dataset).Add(float64(n))
}

func IncDuplicateFile(dataset string) {
	duplicateFilesTotal.WithLabelValues(dataset).Inc()
}
