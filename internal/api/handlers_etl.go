// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ManuGH/xl2wh/internal/api/middleware"
	xllog "github.com/ManuGH/xl2wh/internal/log"
	"github.com/ManuGH/xl2wh/internal/staging"
	"github.com/ManuGH/xl2wh/internal/telemetry"
)

type etlRunRequest struct {
	AnomalyThresholds map[string]float64 `json:"anomaly_thresholds"`
	Async             bool               `json:"async"`
}

// handleETLRun loads one staged batch into the warehouse, either inline or
// through the job queue.
//
// POST /api/etl/batches/{batchID}/run
func (s *Server) handleETLRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID, ok := batchIDParam(w, r)
	if !ok {
		return
	}

	var req etlRunRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Async {
		if s.jobs == nil {
			writeError(w, http.StatusServiceUnavailable, "async execution is not available")
			return
		}
		jobID, err := s.jobs.EnqueueETL(ctx, batchID, req.AnomalyThresholds)
		if err != nil {
			logger(ctx, "api").Error().Err(err).
				Str(xllog.FieldEvent, "etl.enqueue_failed").
				Int64(xllog.FieldBatchID, batchID).
				Msg("ETL enqueue failed")
			writeInternalError(w)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":   "queued",
			"batch_id": batchID,
			"job_id":   jobID,
		})
		return
	}

	summary, err := s.etl.RunBatch(ctx, batchID, req.AnomalyThresholds)
	if err != nil {
		if errors.Is(err, staging.ErrNotFound) {
			writeNotFound(w, fmt.Sprintf("batch %d not found", batchID))
			return
		}
		logger(ctx, "api").Error().Err(err).
			Str(xllog.FieldEvent, "etl.run_failed").
			Int64(xllog.FieldBatchID, batchID).
			Msg("ETL run failed")
		writeInternalError(w)
		return
	}

	middleware.AddSpanAttributes(r,
		telemetry.ETLAttributes(batchID, string(summary.Dataset), summary.LoadedRows, summary.DQIssues)...)

	writeJSON(w, http.StatusOK, summary)
}

// handleBatchIssues returns the data-quality issues the ETL recorded.
//
// GET /api/etl/batches/{batchID}/issues
func (s *Server) handleBatchIssues(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID, ok := batchIDParam(w, r)
	if !ok {
		return
	}

	if _, err := s.staging.GetBatch(ctx, batchID); err != nil {
		if errors.Is(err, staging.ErrNotFound) {
			writeNotFound(w, fmt.Sprintf("batch %d not found", batchID))
			return
		}
		logger(ctx, "api").Error().Err(err).Int64(xllog.FieldBatchID, batchID).Msg("load batch failed")
		writeInternalError(w)
		return
	}

	issues, err := s.warehouse.IssuesForBatch(ctx, batchID)
	if err != nil {
		logger(ctx, "api").Error().Err(err).Int64(xllog.FieldBatchID, batchID).Msg("load dq issues failed")
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"batch_id": batchID,
		"count":    len(issues),
		"issues":   issues,
	})
}
