// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package jobs runs warehouse loads, KPI calculations, and stale-batch
// sweeps on an in-process amboy queue.
package jobs

import (
	"github.com/ManuGH/xl2wh/internal/etl"
	"github.com/ManuGH/xl2wh/internal/kpi"
	"github.com/ManuGH/xl2wh/internal/staging"
)

// Job completion states reported on the run span.
const (
	jobStatusCompleted = "completed"
	jobStatusFailed    = "failed"
)

// Environment carries the collaborators jobs need at run time. Jobs only
// travel through the local queue, so none of this serializes.
type Environment struct {
	Staging *staging.SqliteStore
	ETL     *etl.Runner
	KPI     *kpi.Engine
}
