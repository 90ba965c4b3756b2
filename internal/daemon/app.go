// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/xl2wh/internal/cache"
	"github.com/ManuGH/xl2wh/internal/jobs"
	"github.com/ManuGH/xl2wh/internal/kpi"
	"github.com/ManuGH/xl2wh/internal/metrics"
	"github.com/rs/zerolog"
)

// App owns the long-lived runtime lifecycle (job workers, definition watcher,
// stats polling) and delegates server management to Manager.
type App struct {
	logger        zerolog.Logger
	manager       Manager
	jobs          *jobs.Service
	watcher       *kpi.DefinitionsWatcher
	cache         cache.Cache
	statsInterval time.Duration
}

// AppOptions carries the optional background subsystems an App drives.
// Any nil field is simply skipped at startup.
type AppOptions struct {
	Jobs          *jobs.Service
	Watcher       *kpi.DefinitionsWatcher
	Cache         cache.Cache
	StatsInterval time.Duration
}

// NewApp creates a new App orchestrator.
func NewApp(logger zerolog.Logger, manager Manager, opts AppOptions) *App {
	interval := opts.StatsInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &App{
		logger:        logger,
		manager:       manager,
		jobs:          opts.Jobs,
		watcher:       opts.Watcher,
		cache:         opts.Cache,
		statsInterval: interval,
	}
}

// Run starts all owned background subsystems and blocks until ctx is cancelled
// or a fatal error occurs. Subsystem teardown is owned by the shutdown hooks
// registered on the manager, not by Run.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, ctx := errgroup.WithContext(ctx)

	// Job workers must be running before the API accepts async work, otherwise
	// accepted batches would sit in the queue forever.
	if a.jobs != nil {
		if err := a.jobs.Start(ctx); err != nil {
			return err
		}
	}

	// Definition watcher is best-effort: startup should not fail if the watch
	// cannot be established, reloads just require a restart then.
	if a.watcher != nil {
		if err := a.watcher.Start(ctx); err != nil {
			a.logger.Warn().Err(err).Str("event", "kpi.watcher_start_failed").Msg("failed to start definitions watcher")
		}
	}

	// Queue and cache gauges are polled rather than pushed; amboy exposes
	// stats only on demand.
	if a.jobs != nil || a.cache != nil {
		g.Go(func() error {
			ticker := time.NewTicker(a.statsInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if a.jobs != nil {
						st := a.jobs.Stats(ctx)
						metrics.RecordQueueStats(st.Pending, st.Running, st.Completed)
					}
					if a.cache != nil {
						cs := a.cache.Stats()
						metrics.RecordCacheStats(cs.Hits, cs.Misses, cs.CurrentSize)
					}
				}
			}
		})
	}

	// Main server lifecycle.
	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.Background())
		}
		return err
	})

	return g.Wait()
}
