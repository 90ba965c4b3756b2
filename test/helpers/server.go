// SPDX-License-Identifier: MIT

// Package helpers boots the full service stack in-process for integration
// tests: one shared SQLite file, the job queue and the assembled router.
package helpers

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/xl2wh/internal/analysis"
	"github.com/ManuGH/xl2wh/internal/api"
	"github.com/ManuGH/xl2wh/internal/cache"
	"github.com/ManuGH/xl2wh/internal/config"
	"github.com/ManuGH/xl2wh/internal/etl"
	"github.com/ManuGH/xl2wh/internal/health"
	"github.com/ManuGH/xl2wh/internal/ingest"
	"github.com/ManuGH/xl2wh/internal/jobs"
	"github.com/ManuGH/xl2wh/internal/kpi"
	"github.com/ManuGH/xl2wh/internal/persistence/sqlite"
	"github.com/ManuGH/xl2wh/internal/records"
	"github.com/ManuGH/xl2wh/internal/staging"
	"github.com/ManuGH/xl2wh/internal/validate"
	"github.com/ManuGH/xl2wh/internal/version"
	"github.com/ManuGH/xl2wh/internal/warehouse"
)

// TestServerOptions configures the in-process stack.
type TestServerOptions struct {
	DataDir  string
	APIToken string
	Workers  int
	Capacity int

	// Mutate adjusts the config after defaults, before the server is built.
	Mutate func(*config.Config)
}

// TestServer bundles the running HTTP server with the stores behind it so
// tests can assert on persisted state directly.
type TestServer struct {
	Server    *httptest.Server
	Config    config.Config
	Jobs      *jobs.Service
	Staging   *staging.SqliteStore
	Warehouse *warehouse.SqliteStore
	Records   *records.SqliteStore
}

// NewTestServer wires every store onto one shared database file the way the
// daemon does, starts the job queue and serves the assembled router. All
// cleanup is registered on t.
func NewTestServer(t *testing.T, opts TestServerOptions) *TestServer {
	t.Helper()

	if opts.DataDir == "" {
		opts.DataDir = t.TempDir()
	}

	db, err := sqlite.Open(filepath.Join(opts.DataDir, "xl2wh.db"), sqlite.DefaultConfig())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	st, err := staging.NewSqliteStoreWithDB(db)
	if err != nil {
		t.Fatalf("staging store: %v", err)
	}
	wh, err := warehouse.NewSqliteStoreWithDB(db)
	if err != nil {
		t.Fatalf("warehouse store: %v", err)
	}
	rec, err := records.NewSqliteStoreWithDB(db)
	if err != nil {
		t.Fatalf("records store: %v", err)
	}

	rules := validate.NewRules(nil, config.DefaultIndicators)
	etlRunner := etl.NewRunner(st, wh, 1_000_000, filepath.Join(opts.DataDir, "reports"))
	kpiEngine := kpi.NewEngine(wh, nil)

	jobSvc := jobs.NewService(&jobs.Environment{
		Staging: st,
		ETL:     etlRunner,
		KPI:     kpiEngine,
	}, jobs.Options{Workers: opts.Workers, Capacity: opts.Capacity})
	if err := jobSvc.Start(context.Background()); err != nil {
		t.Fatalf("start job queue: %v", err)
	}
	t.Cleanup(jobSvc.Stop)

	hm := health.NewManager(version.Version)
	hm.RegisterChecker(health.NewPingChecker("database", db.PingContext))

	cfg := config.Config{
		DataDir:        opts.DataDir,
		APIToken:       opts.APIToken,
		MaxUploadBytes: 8 << 20,
	}
	if opts.Mutate != nil {
		opts.Mutate(&cfg)
	}

	srv := api.New(cfg, api.Deps{
		Staging:   st,
		Warehouse: wh,
		Records:   rec,
		Ingest:    ingest.NewService(st, rules, nil, nil, 2),
		ETL:       etlRunner,
		KPI:       kpiEngine,
		Analysis:  analysis.NewService(rec, cache.NewMemoryCache(0), time.Minute),
		Jobs:      jobSvc,
		Health:    hm,
	})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &TestServer{
		Server:    ts,
		Config:    cfg,
		Jobs:      jobSvc,
		Staging:   st,
		Warehouse: wh,
		Records:   rec,
	}
}
