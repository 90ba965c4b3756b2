// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"bytes"
	"crypto/md5" // #nosec G501 -- content fingerprint for duplicate detection, not a credential hash
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/xl2wh/internal/ingest"
	xllog "github.com/ManuGH/xl2wh/internal/log"
	"github.com/ManuGH/xl2wh/internal/records"
)

// handleTableUpload loads one workbook straight into a raw table, updating
// rows that match the table's unique key columns and appending the rest.
//
// POST /api/tables/{table}/upload?allow_duplicate=
func (s *Server) handleTableUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	table := chi.URLParam(r, "table")
	if !records.ValidTable(table) {
		writeBadRequest(w, fmt.Sprintf("invalid table name %q", table))
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeBadRequest(w, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	parts := r.MultipartForm.File["file"]
	if len(parts) == 0 {
		writeBadRequest(w, `no file provided, use multipart field "file"`)
		return
	}
	fh := parts[0]

	content, err := readPart(fh, s.cfg.MaxUploadBytes)
	if err != nil {
		if errors.Is(err, errFileTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("file %q exceeds the limit of %d bytes", fh.Filename, s.cfg.MaxUploadBytes))
			return
		}
		writeBadRequest(w, fmt.Sprintf("read file %q: %v", fh.Filename, err))
		return
	}

	sum := md5.Sum(content) // #nosec G401 -- duplicate detection only
	fileHash := hex.EncodeToString(sum[:])

	if !queryFlag(r, "allow_duplicate") {
		prior, err := s.records.FileExists(ctx, table, fileHash)
		if err != nil {
			logger(ctx, "api").Error().Err(err).Str("table", table).Msg("duplicate check failed")
			writeInternalError(w)
			return
		}
		if prior != nil {
			logger(ctx, "api").Warn().
				Str(xllog.FieldEvent, "table_upload.duplicate").
				Str("table", table).
				Str("file", fh.Filename).
				Msg("identical file already uploaded")
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":        "file already uploaded",
				"table":        table,
				"prior_upload": prior,
			})
			return
		}
	}

	sheet, err := ingest.ReadWorkbook(bytes.NewReader(content))
	if err != nil {
		writeBadRequest(w, fmt.Sprintf("read workbook: %v", err))
		return
	}

	rows := make([]records.RowInput, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		rows = append(rows, records.RowInput{RowNumber: row.Number, Data: row.Cells})
	}

	result, err := s.records.UpsertRows(ctx, table, fh.Filename, fileHash, rows)
	if err != nil {
		logger(ctx, "api").Error().Err(err).
			Str(xllog.FieldEvent, "table_upload.failed").
			Str("table", table).
			Msg("table upload failed")
		writeInternalError(w)
		return
	}

	// Cached analysis answers must not outlive the data they were computed
	// from.
	if s.analysis != nil {
		s.analysis.Invalidate(ctx)
	}

	logger(ctx, "api").Info().
		Str(xllog.FieldEvent, "table_upload.completed").
		Str("table", table).
		Str("file", fh.Filename).
		Int("inserted", result.Inserted).
		Int("updated", result.Updated).
		Msg("table upload completed")

	writeJSON(w, http.StatusOK, struct {
		Status   string `json:"status"`
		Table    string `json:"table"`
		FileName string `json:"file_name"`
		records.UpsertResult
	}{Status: "success", Table: table, FileName: fh.Filename, UpsertResult: result})
}

// handleTableRow returns one raw table row with its data decoded.
//
// GET /api/tables/{table}/rows/{rowID}
func (s *Server) handleTableRow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	table := chi.URLParam(r, "table")
	if !records.ValidTable(table) {
		writeBadRequest(w, fmt.Sprintf("invalid table name %q", table))
		return
	}

	raw := chi.URLParam(r, "rowID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, fmt.Sprintf("invalid row id %q", raw))
		return
	}

	row, err := s.records.GetRow(ctx, table, id)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			writeNotFound(w, "data not found")
			return
		}
		logger(ctx, "api").Error().Err(err).Str("table", table).Msg("load row failed")
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"data":   row,
	})
}

// queryFlag interprets a query parameter as a boolean switch.
func queryFlag(r *http.Request, name string) bool {
	switch r.URL.Query().Get(name) {
	case "1", "true", "yes":
		return true
	}
	return false
}
