// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	etlBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xl2wh_etl_batches_total",
		Help: "ETL batch runs by outcome",
	}, []string{"status"}) // status=success|failure

	etlLoadedRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xl2wh_etl_loaded_rows_total",
		Help: "Rows loaded into warehouse facts",
	})

	etlIssuesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xl2wh_etl_issues_total",
		Help: "Data-quality issues recorded during ETL",
	})

	etlBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "xl2wh_etl_batch_duration_seconds",
		Help:    "End-to-end ETL batch time",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	kpiCalculationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xl2wh_kpi_calculations_total",
		Help: "KPI calculation runs by outcome",
	}, []string{"status"}) // status=success|failure

	kpiCalculatedRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xl2wh_kpi_calculated_rows_total",
		Help: "Calculated KPI fact rows written",
	})

	kpiCalculationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "xl2wh_kpi_calculation_duration_seconds",
		Help:    "End-to-end KPI calculation time",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
)

// RecordETLBatch counts one ETL run, successful or not. Rows and issues
// only accumulate for successful runs.
func RecordETLBatch(success bool, loadedRows, dqIssues int, seconds float64) {
	status := "success"
	if !success {
		status = "failure"
	}
	etlBatchesTotal.WithLabelValues(status).Inc()
	etlBatchDuration.Observe(seconds)
	if success {
		etlLoadedRowsTotal.Add(float64(loadedRows))
		etlIssuesTotal.Add(float64(dqIssues))
	}
}

// RecordKPICalculation counts one calculation run.
func RecordKPICalculation(success bool, results int, seconds float64) {
	status := "success"
	if !success {
		status = "failure"
	}
	kpiCalculationsTotal.WithLabelValues(status).Inc()
	kpiCalculationDuration.Observe(seconds)
	if success {
		kpiCalculatedRowsTotal.Add(float64(results))
	}
}
