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

	"github.com/ManuGH/xl2wh/internal/etl"
	"github.com/ManuGH/xl2wh/internal/telemetry"
)

const etlJobName = "etl-run"

type etlJob struct {
	BatchID    int64              `bson:"batch_id" json:"batch_id" yaml:"batch_id"`
	Thresholds map[string]float64 `bson:"thresholds" json:"thresholds" yaml:"thresholds"`
	Summary    *etl.Summary       `bson:"summary" json:"summary" yaml:"summary"`

	job.Base `bson:"metadata" json:"metadata" yaml:"metadata"`
	env      *Environment
}

func init() {
	registry.AddJobType(etlJobName, func() amboy.Job { return makeETLJob() })
}

func makeETLJob() *etlJob {
	j := &etlJob{
		Base: job.Base{
			JobType: amboy.JobType{
				Name:    etlJobName,
				Version: 1,
			},
		},
	}
	j.SetDependency(dependency.NewAlways())
	return j
}

// NewETLJob schedules one warehouse load for a staged batch.
func NewETLJob(env *Environment, batchID int64, thresholds map[string]float64) amboy.Job {
	j := makeETLJob()
	j.env = env
	j.BatchID = batchID
	j.Thresholds = thresholds
	j.SetID(fmt.Sprintf("%s.%d.%d", etlJobName, batchID, job.GetNumber()))
	return j
}

func (j *etlJob) Run(ctx context.Context) {
	defer j.MarkComplete()

	ctx, span := telemetry.Tracer("xl2wh.jobs").Start(ctx, etlJobName)
	start := time.Now()
	status := jobStatusCompleted
	defer func() {
		span.SetAttributes(telemetry.JobAttributes(etlJobName, status, time.Since(start).Milliseconds())...)
		span.End()
	}()

	if j.env == nil || j.env.ETL == nil {
		status = jobStatusFailed
		j.AddError(errors.New("etl job has no environment"))
		return
	}

	summary, err := j.env.ETL.RunBatch(ctx, j.BatchID, j.Thresholds)
	if err != nil {
		status = jobStatusFailed
		j.AddError(errors.Wrapf(err, "etl batch %d", j.BatchID))
		return
	}
	j.Summary = summary
}
