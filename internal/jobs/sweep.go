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

	"github.com/ManuGH/xl2wh/internal/log"
	"github.com/ManuGH/xl2wh/internal/metrics"
)

const sweepJobName = "batch-sweep"

// sweepJob fails upload batches stuck in processing. A crash between batch
// creation and completion leaves such rows behind; the sweeper keeps them
// from looking alive forever.
type sweepJob struct {
	StaleAfter time.Duration `bson:"stale_after" json:"stale_after" yaml:"stale_after"`
	Swept      int64         `bson:"swept" json:"swept" yaml:"swept"`

	job.Base `bson:"metadata" json:"metadata" yaml:"metadata"`
	env      *Environment
}

func init() {
	registry.AddJobType(sweepJobName, func() amboy.Job { return makeSweepJob() })
}

func makeSweepJob() *sweepJob {
	j := &sweepJob{
		Base: job.Base{
			JobType: amboy.JobType{
				Name:    sweepJobName,
				Version: 1,
			},
		},
	}
	j.SetDependency(dependency.NewAlways())
	return j
}

func newSweepJob(env *Environment, staleAfter time.Duration) amboy.Job {
	j := makeSweepJob()
	j.env = env
	j.StaleAfter = staleAfter
	j.SetID(fmt.Sprintf("%s.%d", sweepJobName, job.GetNumber()))
	return j
}

func (j *sweepJob) Run(ctx context.Context) {
	defer j.MarkComplete()

	if j.env == nil || j.env.Staging == nil {
		j.AddError(errors.New("sweep job has no environment"))
		return
	}

	n, err := j.env.Staging.SweepStale(ctx, j.StaleAfter)
	if err != nil {
		j.AddError(errors.Wrap(err, "sweep stale batches"))
		return
	}
	j.Swept = n
	metrics.AddBatchesSwept(n)
	if n > 0 {
		logger := log.WithComponentFromContext(ctx, "jobs")
		logger.Warn().
			Int64("batches", n).
			Str("event", "jobs.batches_swept").
			Msg("stale processing batches marked failed")
	}
}
