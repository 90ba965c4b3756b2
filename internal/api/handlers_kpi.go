// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ManuGH/xl2wh/internal/analysis"
	"github.com/ManuGH/xl2wh/internal/api/middleware"
	xllog "github.com/ManuGH/xl2wh/internal/log"
	"github.com/ManuGH/xl2wh/internal/staging"
	"github.com/ManuGH/xl2wh/internal/telemetry"
	"github.com/ManuGH/xl2wh/internal/warehouse"
)

type kpiCalculateRequest struct {
	BatchID    int64   `json:"batch_id"`
	PeriodKeys []int64 `json:"period_keys"`
	Async      bool    `json:"async"`
}

// handleKPICalculate recomputes KPI scores over the warehouse facts and tags
// the result rows with the given batch.
//
// POST /api/kpi/calculate
func (s *Server) handleKPICalculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req kpiCalculateRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.BatchID <= 0 {
		writeBadRequest(w, "batch_id is required")
		return
	}

	// Calculation results are tagged with the batch, so it has to exist.
	if _, err := s.staging.GetBatch(ctx, req.BatchID); err != nil {
		if errors.Is(err, staging.ErrNotFound) {
			writeNotFound(w, fmt.Sprintf("batch %d not found", req.BatchID))
			return
		}
		logger(ctx, "api").Error().Err(err).Int64(xllog.FieldBatchID, req.BatchID).Msg("load batch failed")
		writeInternalError(w)
		return
	}

	if req.Async {
		if s.jobs == nil {
			writeError(w, http.StatusServiceUnavailable, "async execution is not available")
			return
		}
		jobID, err := s.jobs.EnqueueKPI(ctx, req.BatchID, req.PeriodKeys)
		if err != nil {
			logger(ctx, "api").Error().Err(err).
				Str(xllog.FieldEvent, "kpi.enqueue_failed").
				Int64(xllog.FieldBatchID, req.BatchID).
				Msg("KPI enqueue failed")
			writeInternalError(w)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":   "queued",
			"batch_id": req.BatchID,
			"job_id":   jobID,
		})
		return
	}

	results, err := s.kpi.Calculate(ctx, req.BatchID, req.PeriodKeys)
	if err != nil {
		logger(ctx, "api").Error().Err(err).
			Str(xllog.FieldEvent, "kpi.run_failed").
			Int64(xllog.FieldBatchID, req.BatchID).
			Msg("KPI calculation failed")
		writeInternalError(w)
		return
	}

	middleware.AddSpanAttributes(r,
		telemetry.KPIAttributes(req.BatchID, len(req.PeriodKeys), results)...)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "completed",
		"batch_id": req.BatchID,
		"results":  results,
	})
}

// handleKPIResults returns calculated KPI rows, optionally filtered.
//
// GET /api/kpi/results?batch_id=&scope=&metric=&period_key=
func (s *Server) handleKPIResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var filter warehouse.CalcFilter
	if raw := q.Get("batch_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeBadRequest(w, fmt.Sprintf("invalid batch_id %q", raw))
			return
		}
		filter.BatchID = &id
	}
	filter.Scope = q.Get("scope")
	filter.MetricCode = q.Get("metric")
	if raw := q.Get("period_key"); raw != "" {
		key, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeBadRequest(w, fmt.Sprintf("invalid period_key %q", raw))
			return
		}
		filter.PeriodKey = &key
	}

	rows, err := s.warehouse.CalcResults(ctx, filter)
	if err != nil {
		logger(ctx, "api").Error().Err(err).Msg("load kpi results failed")
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(rows),
		"results": rows,
	})
}

// handleAnalysis answers ad-hoc aggregation queries over the raw tables.
//
// POST /api/kpi/analysis
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req analysis.Request
	if err := decodeJSONBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	resp, err := s.analysis.Query(ctx, req)
	if err != nil {
		if errors.Is(err, analysis.ErrInvalidRequest) {
			writeBadRequest(w, err.Error())
			return
		}
		logger(ctx, "api").Error().Err(err).
			Str(xllog.FieldEvent, "analysis.failed").
			Msg("analysis query failed")
		writeInternalError(w)
		return
	}

	middleware.AddSpanAttributes(r,
		telemetry.AnalysisAttributes(resp.GroupBy, len(resp.Results), resp.Cached)...)

	writeJSON(w, http.StatusOK, resp)
}
