// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"net/http"
	"time"

	"github.com/mongodb/amboy"

	"github.com/ManuGH/xl2wh/internal/staging"
	"github.com/ManuGH/xl2wh/internal/version"
	"github.com/ManuGH/xl2wh/internal/warehouse"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.healthManager.ServeHealth(w, r)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.healthManager.ServeReady(w, r)
}

// statusResponse is the payload of GET /api/status.
type statusResponse struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	UptimeS   int64  `json:"uptime_seconds"`

	Staging   *staging.Stats    `json:"staging,omitempty"`
	Warehouse *warehouse.Stats  `json:"warehouse,omitempty"`
	Tables    map[string]int64  `json:"tables,omitempty"`
	Queue     *amboy.QueueStats `json:"queue,omitempty"`
}

// handleStatus reports build information, uptime and store counters. Failing
// counters degrade to omitted sections rather than failing the endpoint.
//
// GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := statusResponse{
		Service:   "xl2wh",
		Version:   version.Version,
		Commit:    version.Commit,
		BuildDate: version.Date,
		UptimeS:   int64(time.Since(s.startTime).Seconds()),
	}

	if st, err := s.staging.Stats(ctx); err != nil {
		logger(ctx, "api").Warn().Err(err).Msg("staging stats unavailable")
	} else {
		resp.Staging = &st
	}
	if st, err := s.warehouse.Stats(ctx); err != nil {
		logger(ctx, "api").Warn().Err(err).Msg("warehouse stats unavailable")
	} else {
		resp.Warehouse = &st
	}
	if counts, err := s.records.RowCounts(ctx); err != nil {
		logger(ctx, "api").Warn().Err(err).Msg("table counts unavailable")
	} else {
		resp.Tables = counts
	}
	if s.jobs != nil {
		qs := s.jobs.Stats(ctx)
		resp.Queue = &qs
	}

	writeJSON(w, http.StatusOK, resp)
}
