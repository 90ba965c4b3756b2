// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package etl

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// observeRun records per-run ETL metrics. The meter provider is looked up at
// call time so runs observed before telemetry init hit the global no-op.
func observeRun(ctx context.Context, dataset string, loaded, dqIssues int, elapsed time.Duration) {
	meter := otel.GetMeterProvider().Meter("xl2wh.etl")

	attrs := metric.WithAttributes(attribute.String("dataset", dataset))

	runsTotal, _ := meter.Int64Counter("xl2wh_etl_runs_total",
		metric.WithDescription("Completed ETL runs"))
	runsTotal.Add(ctx, 1, attrs)

	rowsLoaded, _ := meter.Int64Counter("xl2wh_etl_rows_loaded_total",
		metric.WithDescription("Rows loaded into warehouse fact tables"))
	rowsLoaded.Add(ctx, int64(loaded), attrs)

	issuesTotal, _ := meter.Int64Counter("xl2wh_etl_dq_issues_total",
		metric.WithDescription("Data-quality issues recorded during ETL runs"))
	issuesTotal.Add(ctx, int64(dqIssues), attrs)

	duration, _ := meter.Float64Histogram("xl2wh_etl_run_seconds",
		metric.WithDescription("ETL run duration"),
		metric.WithUnit("s"))
	duration.Record(ctx, elapsed.Seconds(), attrs)
}
