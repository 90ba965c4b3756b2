// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package analysis

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// observeQuery records one answered query. The meter provider is looked up at
// call time so queries observed before telemetry init hit the global no-op.
func observeQuery(ctx context.Context, cached bool, elapsed time.Duration) {
	meter := otel.GetMeterProvider().Meter("xl2wh.analysis")

	queriesTotal, _ := meter.Int64Counter("xl2wh_analysis_queries_total",
		metric.WithDescription("Answered analysis queries"))
	queriesTotal.Add(ctx, 1)

	if cached {
		hitsTotal, _ := meter.Int64Counter("xl2wh_analysis_cache_hits_total",
			metric.WithDescription("Analysis queries served from cache"))
		hitsTotal.Add(ctx, 1)
		return
	}

	duration, _ := meter.Float64Histogram("xl2wh_analysis_scan_seconds",
		metric.WithDescription("Analysis table scan duration"),
		metric.WithUnit("s"))
	duration.Record(ctx, elapsed.Seconds())
}
