// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/mongodb/amboy"
	"github.com/mongodb/amboy/dependency"
	"github.com/mongodb/amboy/job"
	"github.com/mongodb/amboy/registry"
	"github.com/pkg/errors"

	"github.com/ManuGH/xl2wh/internal/telemetry"
)

const kpiJobName = "kpi-calc"

type kpiJob struct {
	BatchID    int64   `bson:"batch_id" json:"batch_id" yaml:"batch_id"`
	PeriodKeys []int64 `bson:"period_keys" json:"period_keys" yaml:"period_keys"`
	Results    int     `bson:"results" json:"results" yaml:"results"`

	job.Base `bson:"metadata" json:"metadata" yaml:"metadata"`
	env      *Environment
}

func init() {
	registry.AddJobType(kpiJobName, func() amboy.Job { return makeKPIJob() })
}

func makeKPIJob() *kpiJob {
	j := &kpiJob{
		Base: job.Base{
			JobType: amboy.JobType{
				Name:    kpiJobName,
				Version: 1,
			},
		},
	}
	j.SetDependency(dependency.NewAlways())
	return j
}

// NewKPIJob schedules a metric calculation for a loaded batch. Empty
// periodKeys calculates every period.
func NewKPIJob(env *Environment, batchID int64, periodKeys []int64) amboy.Job {
	j := makeKPIJob()
	j.env = env
	j.BatchID = batchID
	j.PeriodKeys = periodKeys
	j.SetID(fmt.Sprintf("%s.%d.%d", kpiJobName, batchID, job.GetNumber()))
	return j
}

func (j *kpiJob) Run(ctx context.Context) {
	defer j.MarkComplete()

	ctx, span := telemetry.Tracer("xl2wh.jobs").Start(ctx, kpiJobName)
	start := time.Now()
	status := jobStatusCompleted
	defer func() {
		span.SetAttributes(telemetry.JobAttributes(kpiJobName, status, time.Since(start).Milliseconds())...)
		span.End()
	}()

	if j.env == nil || j.env.KPI == nil {
		status = jobStatusFailed
		j.AddError(errors.New("kpi job has no environment"))
		return
	}

	n, err := j.env.KPI.Calculate(ctx, j.BatchID, j.PeriodKeys)
	if err != nil {
		status = jobStatusFailed
		j.AddError(errors.Wrapf(err, "kpi batch %d", j.BatchID))
		return
	}
	j.Results = n
}
