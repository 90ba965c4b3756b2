// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package jobs

import (
	"context"
	"time"

	"github.com/mongodb/amboy"
	"github.com/mongodb/amboy/queue"
	"github.com/pkg/errors"

	"github.com/ManuGH/xl2wh/internal/log"
)

// Options sizes the queue and its background sweeper. A zero SweepInterval
// or StaleAfter disables sweeping.
type Options struct {
	Workers       int
	Capacity      int
	SweepInterval time.Duration
	StaleAfter    time.Duration
}

// Service owns the in-process job queue.
type Service struct {
	queue  amboy.Queue
	env    *Environment
	opts   Options
	cancel context.CancelFunc
}

// NewService builds a local limited-size queue around env.
func NewService(env *Environment, opts Options) *Service {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Capacity <= 0 {
		opts.Capacity = 256
	}
	return &Service{
		queue: queue.NewLocalLimitedSize(opts.Workers, opts.Capacity),
		env:   env,
		opts:  opts,
	}
}

// Start launches the queue workers and, when configured, the periodic
// stale-batch sweeper. Workers stop when ctx is canceled or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	qctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if err := s.queue.Start(qctx); err != nil {
		cancel()
		return errors.Wrap(err, "start job queue")
	}

	if s.opts.SweepInterval > 0 && s.opts.StaleAfter > 0 {
		opConf := amboy.QueueOperationConfig{ContinueOnError: true}
		amboy.IntervalQueueOperation(qctx, s.queue, s.opts.SweepInterval, time.Now().Add(s.opts.SweepInterval), opConf,
			func(ctx context.Context, q amboy.Queue) error {
				return q.Put(ctx, newSweepJob(s.env, s.opts.StaleAfter))
			})
	}

	logger := log.WithComponent("jobs")
	logger.Info().
		Int("workers", s.opts.Workers).
		Int("capacity", s.opts.Capacity).
		Dur("sweep_interval", s.opts.SweepInterval).
		Msg("jobs.queue_started")
	return nil
}

// Stop halts the queue workers. Jobs still pending stay unprocessed.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// EnqueueETL schedules a warehouse load and returns the job id.
func (s *Service) EnqueueETL(ctx context.Context, batchID int64, thresholds map[string]float64) (string, error) {
	j := NewETLJob(s.env, batchID, thresholds)
	if err := s.queue.Put(ctx, j); err != nil {
		return "", errors.Wrapf(err, "enqueue %s", j.ID())
	}
	return j.ID(), nil
}

// EnqueueKPI schedules a metric calculation and returns the job id.
func (s *Service) EnqueueKPI(ctx context.Context, batchID int64, periodKeys []int64) (string, error) {
	j := NewKPIJob(s.env, batchID, periodKeys)
	if err := s.queue.Put(ctx, j); err != nil {
		return "", errors.Wrapf(err, "enqueue %s", j.ID())
	}
	return j.ID(), nil
}

// Stats reports queue depth for the status endpoint.
func (s *Service) Stats(ctx context.Context) amboy.QueueStats {
	return s.queue.Stats(ctx)
}
