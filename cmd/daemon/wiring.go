// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/xl2wh/internal/analysis"
	"github.com/ManuGH/xl2wh/internal/api"
	"github.com/ManuGH/xl2wh/internal/archive"
	"github.com/ManuGH/xl2wh/internal/cache"
	"github.com/ManuGH/xl2wh/internal/config"
	"github.com/ManuGH/xl2wh/internal/daemon"
	"github.com/ManuGH/xl2wh/internal/dedup"
	"github.com/ManuGH/xl2wh/internal/etl"
	"github.com/ManuGH/xl2wh/internal/health"
	"github.com/ManuGH/xl2wh/internal/ingest"
	"github.com/ManuGH/xl2wh/internal/jobs"
	"github.com/ManuGH/xl2wh/internal/kpi"
	"github.com/ManuGH/xl2wh/internal/persistence/sqlite"
	"github.com/ManuGH/xl2wh/internal/ratelimit"
	"github.com/ManuGH/xl2wh/internal/records"
	"github.com/ManuGH/xl2wh/internal/staging"
	"github.com/ManuGH/xl2wh/internal/telemetry"
	"github.com/ManuGH/xl2wh/internal/validate"
	"github.com/ManuGH/xl2wh/internal/version"
	"github.com/ManuGH/xl2wh/internal/warehouse"
)

// shutdownHook pairs a cleanup function with a name for manager registration.
type shutdownHook struct {
	name string
	fn   daemon.ShutdownHook
}

// runtime bundles everything main wires into the daemon manager and app.
type runtime struct {
	apiHandler http.Handler
	jobs       *jobs.Service
	watcher    *kpi.DefinitionsWatcher
	cache      cache.Cache

	// hooks in registration order; the manager executes them LIFO.
	hooks []shutdownHook
}

// buildRuntime constructs the full service graph. Any failure is fatal; the
// process exits before a listener is bound, so partially opened resources
// are released by process teardown.
func buildRuntime(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*runtime, error) {
	rt := &runtime{}

	tracer, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    "xl2wh",
		ServiceVersion: version.Version,
		Environment:    config.ParseString("XL2WH_ENV", "production"),
		ExporterType:   cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SamplingRate:   cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	rt.hooks = append(rt.hooks, shutdownHook{"tracing", tracer.Shutdown})

	db, err := sqlite.Open(cfg.DBPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	rt.hooks = append(rt.hooks, shutdownHook{"database", func(context.Context) error { return db.Close() }})

	stagingStore, err := staging.NewSqliteStoreWithDB(db)
	if err != nil {
		return nil, fmt.Errorf("init staging store: %w", err)
	}
	warehouseStore, err := warehouse.NewSqliteStoreWithDB(db)
	if err != nil {
		return nil, fmt.Errorf("init warehouse store: %w", err)
	}
	recordsStore, err := records.NewSqliteStoreWithDB(db)
	if err != nil {
		return nil, fmt.Errorf("init records store: %w", err)
	}

	rules := validate.NewRules(cfg.AllowedFactoryCodes, cfg.AllowedIndicators)

	// A broken duplicate index degrades to accepting re-uploads instead of
	// refusing uploads outright.
	var dedupIndex *dedup.Index
	if cfg.DedupPath != "" {
		idx, err := dedup.Open(cfg.DedupPath)
		if err != nil {
			logger.Warn().
				Err(err).
				Str("path", cfg.DedupPath).
				Msg("duplicate index unavailable, re-uploads will not be flagged")
		} else {
			dedupIndex = idx
			rt.hooks = append(rt.hooks, shutdownHook{"dedup-index", func(context.Context) error { return idx.Close() }})
		}
	}

	arch, err := archive.New(ctx, archive.Options{
		Backend:   cfg.ArchiveBackend,
		Path:      cfg.ArchivePath,
		Bucket:    cfg.ArchiveBucket,
		Prefix:    cfg.ArchivePrefix,
		Region:    cfg.AWSRegion,
		AWSKey:    cfg.AWSKey,
		AWSSecret: cfg.AWSSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	rt.cache = buildCache(cfg, logger)
	rt.hooks = append(rt.hooks, shutdownHook{"cache", func(context.Context) error {
		switch v := rt.cache.(type) {
		case interface{ Close() error }:
			return v.Close()
		case interface{ Stop() }:
			v.Stop()
		}
		return nil
	}})

	ingestSvc := ingest.NewService(stagingStore, rules, dedupIndex, arch, cfg.UploadParallelism)
	etlRunner := etl.NewRunner(stagingStore, warehouseStore, cfg.AnomalyThreshold, filepath.Join(cfg.DataDir, "reports"))
	kpiEngine := kpi.NewEngine(warehouseStore, nil)
	analysisSvc := analysis.NewService(recordsStore, rt.cache, cfg.AnalysisCacheTTL)

	if cfg.KPIDefinitionsPath != "" {
		count, err := kpi.SeedDefinitions(ctx, warehouseStore, cfg.KPIDefinitionsPath)
		if err != nil {
			return nil, fmt.Errorf("seed KPI definitions: %w", err)
		}
		logger.Info().
			Int("definitions", count).
			Str("path", cfg.KPIDefinitionsPath).
			Msg("KPI definitions seeded")

		rt.watcher = kpi.NewDefinitionsWatcher(warehouseStore, cfg.KPIDefinitionsPath)
		rt.hooks = append(rt.hooks, shutdownHook{"definitions-watcher", func(context.Context) error {
			rt.watcher.Stop()
			return nil
		}})
	}

	rt.jobs = jobs.NewService(&jobs.Environment{
		Staging: stagingStore,
		ETL:     etlRunner,
		KPI:     kpiEngine,
	}, jobs.Options{
		Workers:       cfg.ETLWorkers,
		Capacity:      cfg.ETLQueueCapacity,
		SweepInterval: cfg.SweepInterval,
		StaleAfter:    cfg.BatchStaleAfter,
	})
	rt.hooks = append(rt.hooks, shutdownHook{"job-queue", func(context.Context) error {
		rt.jobs.Stop()
		return nil
	}})

	var limiter *ratelimit.Limiter
	if cfg.RateLimitEnabled {
		rlCfg := ratelimit.DefaultConfig()
		rlCfg.GlobalRate = rate.Limit(cfg.RateLimitGlobalRPS)
		rlCfg.GlobalBurst = cfg.RateLimitGlobalBurst
		rlCfg.PerIPRate = rate.Limit(cfg.RateLimitPerIPRPS)
		rlCfg.PerIPBurst = cfg.RateLimitPerIPBurst
		limiter = ratelimit.New(rlCfg)
	}

	hm := health.NewManager(version.Version)
	hm.RegisterChecker(health.NewPingChecker("database", db.PingContext))
	hm.RegisterChecker(health.NewQueueChecker(cfg.ETLQueueCapacity, func(ctx context.Context) (int, int) {
		st := rt.jobs.Stats(ctx)
		return st.Pending, st.Running
	}))
	if cfg.KPIDefinitionsPath != "" {
		hm.RegisterChecker(health.NewFileChecker("kpi-definitions", cfg.KPIDefinitionsPath))
	}
	if rc, ok := rt.cache.(*cache.RedisCache); ok {
		hm.RegisterChecker(health.NewPingChecker("redis", rc.HealthCheck))
	}

	srv := api.New(cfg, api.Deps{
		Staging:   stagingStore,
		Warehouse: warehouseStore,
		Records:   recordsStore,
		Ingest:    ingestSvc,
		ETL:       etlRunner,
		KPI:       kpiEngine,
		Analysis:  analysisSvc,
		Jobs:      rt.jobs,
		Health:    hm,
		Limiter:   limiter,
	})
	rt.apiHandler = srv.Router()

	return rt, nil
}

// buildCache prefers Redis when configured and falls back to the in-process
// cache when the connection cannot be established.
func buildCache(cfg config.Config, logger zerolog.Logger) cache.Cache {
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err == nil {
			return rc
		}
		logger.Warn().
			Err(err).
			Str("addr", cfg.RedisAddr).
			Msg("redis unavailable, using in-process cache")
	}
	return cache.NewMemoryCache(time.Minute)
}
