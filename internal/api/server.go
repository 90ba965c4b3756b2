// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api provides the HTTP API of the xl2wh import daemon: workbook
// uploads, ETL and KPI pipeline triggers, analysis queries and operational
// status endpoints.
package api

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/xl2wh/internal/analysis"
	"github.com/ManuGH/xl2wh/internal/api/middleware"
	"github.com/ManuGH/xl2wh/internal/config"
	"github.com/ManuGH/xl2wh/internal/etl"
	"github.com/ManuGH/xl2wh/internal/health"
	"github.com/ManuGH/xl2wh/internal/ingest"
	"github.com/ManuGH/xl2wh/internal/jobs"
	"github.com/ManuGH/xl2wh/internal/kpi"
	xllog "github.com/ManuGH/xl2wh/internal/log"
	"github.com/ManuGH/xl2wh/internal/ratelimit"
	"github.com/ManuGH/xl2wh/internal/records"
	"github.com/ManuGH/xl2wh/internal/staging"
	"github.com/ManuGH/xl2wh/internal/warehouse"
)

// Server is the HTTP API server of the import daemon.
type Server struct {
	cfg config.Config

	staging   *staging.SqliteStore
	warehouse *warehouse.SqliteStore
	records   *records.SqliteStore

	ingest   *ingest.Service
	etl      *etl.Runner
	kpi      *kpi.Engine
	analysis *analysis.Service
	jobs     *jobs.Service

	healthManager *health.Manager
	limiter       *ratelimit.Limiter

	startTime time.Time
}

// Deps bundles the services the API server exposes. Jobs and Limiter may be
// nil; async execution and scope throttling are then disabled.
type Deps struct {
	Staging   *staging.SqliteStore
	Warehouse *warehouse.SqliteStore
	Records   *records.SqliteStore
	Ingest    *ingest.Service
	ETL       *etl.Runner
	KPI       *kpi.Engine
	Analysis  *analysis.Service
	Jobs      *jobs.Service
	Health    *health.Manager
	Limiter   *ratelimit.Limiter
}

// New creates and initializes a new HTTP API server.
func New(cfg config.Config, deps Deps) *Server {
	s := &Server{
		cfg:           cfg,
		staging:       deps.Staging,
		warehouse:     deps.Warehouse,
		records:       deps.Records,
		ingest:        deps.Ingest,
		etl:           deps.ETL,
		kpi:           deps.KPI,
		analysis:      deps.Analysis,
		jobs:          deps.Jobs,
		healthManager: deps.Health,
		limiter:       deps.Limiter,
		startTime:     time.Now(),
	}
	if cfg.APIToken == "" {
		logger := xllog.WithComponent("api")
		logger.Warn().
			Str(xllog.FieldEvent, "auth.disabled").
			Msg("XL2WH_API_TOKEN not set, accepting unauthenticated requests")
	}
	return s
}

// Router assembles the middleware stack and the full route table.
func (s *Server) Router() http.Handler {
	r := s.newRouter()
	s.registerPublicRoutes(r)

	rQuery, rUpload, rPipeline := s.scopedRouters(r)
	s.registerQueryRoutes(rQuery)
	s.registerUploadRoutes(rUpload)
	s.registerPipelineRoutes(rPipeline)

	return r
}

func (s *Server) newRouter() *chi.Mux {
	tracingService := ""
	if s.cfg.Tracing.Enabled {
		tracingService = "xl2wh-api"
	}
	return middleware.NewRouter(middleware.StackConfig{
		EnableCORS:     true,
		AllowedOrigins: s.cfg.CORSOrigins,

		EnableSecurityHeaders: true,
		CSP:                   middleware.DefaultCSP,
		TrustedProxies:        s.parsedTrustedProxies(),

		EnableMetrics:  s.cfg.MetricsEnabled,
		TracingService: tracingService,
		EnableLogging:  true,

		Limiter: s.limiter,
	})
}

func (s *Server) parsedTrustedProxies() []*net.IPNet {
	if len(s.cfg.TrustedProxies) == 0 {
		return nil
	}
	proxies, err := middleware.ParseCIDRs(s.cfg.TrustedProxies)
	if err != nil {
		logger := xllog.WithComponent("api")
		logger.Warn().Err(err).
			Msg("invalid trusted proxies configuration, ignoring value")
		return nil
	}
	return proxies
}

func (s *Server) registerPublicRoutes(r chi.Router) {
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
}

// scopedRouters layers per-scope token buckets and the slower per-route
// rate windows on top of the base stack. Query routes stay unauthenticated,
// matching the original service where dashboards read without credentials.
func (s *Server) scopedRouters(r chi.Router) (query, upload, pipeline chi.Router) {
	query = r.With(middleware.Throttle(s.limiter, ratelimit.ScopeQuery))
	upload = r.With(s.authMiddleware, middleware.Throttle(s.limiter, ratelimit.ScopeUpload))
	pipeline = r.With(s.authMiddleware, middleware.Throttle(s.limiter, ratelimit.ScopePipeline))
	if s.cfg.RateLimitEnabled {
		query = query.With(middleware.APIRateLimit())
		upload = upload.With(middleware.UploadRateLimit())
		pipeline = pipeline.With(middleware.PipelineRateLimit())
	}
	return query, upload, pipeline
}

func (s *Server) registerQueryRoutes(r chi.Router) {
	r.Get("/api/uploads/batches/{batchID}", s.handleGetBatch)
	r.Get("/api/uploads/batches/{batchID}/errors", s.handleBatchErrors)
	r.Get("/api/etl/batches/{batchID}/issues", s.handleBatchIssues)
	r.Get("/api/kpi/results", s.handleKPIResults)
	r.Post("/api/kpi/analysis", s.handleAnalysis)
	r.Get("/api/tables/{table}/rows/{rowID}", s.handleTableRow)
	r.Get("/api/status", s.handleStatus)
}

func (s *Server) registerUploadRoutes(r chi.Router) {
	r.Post("/api/uploads", s.handleUpload)
	r.Post("/api/tables/{table}/upload", s.handleTableUpload)
}

func (s *Server) registerPipelineRoutes(r chi.Router) {
	r.Post("/api/etl/batches/{batchID}/run", s.handleETLRun)
	r.Post("/api/kpi/calculate", s.handleKPICalculate)
}
