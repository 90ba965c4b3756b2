// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package kpi

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// observeCalc records one calculation run. The meter provider is looked up at
// call time so runs observed before telemetry init hit the global no-op.
func observeCalc(ctx context.Context, results int, elapsed time.Duration) {
	meter := otel.GetMeterProvider().Meter("xl2wh.kpi")

	runsTotal, _ := meter.Int64Counter("xl2wh_kpi_runs_total",
		metric.WithDescription("Completed KPI calculation runs"))
	runsTotal.Add(ctx, 1)

	resultsTotal, _ := meter.Int64Counter("xl2wh_kpi_results_total",
		metric.WithDescription("Calculated KPI rows written"))
	resultsTotal.Add(ctx, int64(results))

	duration, _ := meter.Float64Histogram("xl2wh_kpi_calc_seconds",
		metric.WithDescription("KPI calculation duration"),
		metric.WithUnit("s"))
	duration.Record(ctx, elapsed.Seconds())
}
