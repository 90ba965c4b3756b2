// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/xl2wh/internal/api/middleware"
	"github.com/ManuGH/xl2wh/internal/ingest"
	xllog "github.com/ManuGH/xl2wh/internal/log"
	"github.com/ManuGH/xl2wh/internal/staging"
	"github.com/ManuGH/xl2wh/internal/telemetry"
)

// maxUploadMemory bounds the in-memory multipart buffer; larger parts spill
// to temp files which RemoveAll cleans up after the request.
const maxUploadMemory = 8 << 20

var errFileTooLarge = errors.New("file exceeds upload limit")

// handleUpload ingests one or more Excel workbooks into the staging area.
//
// POST /api/uploads?dataset=operations|kpi, multipart field "files".
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	datasetParam := r.URL.Query().Get("dataset")
	if datasetParam == "" {
		datasetParam = string(staging.DatasetOperations)
	}
	dataset, err := staging.ParseDataset(datasetParam)
	if err != nil {
		writeBadRequest(w, err.Error())
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

	parts := r.MultipartForm.File["files"]
	if len(parts) == 0 {
		logger(ctx, "api").Warn().
			Str(xllog.FieldEvent, "upload.rejected").
			Str(xllog.FieldDataset, string(dataset)).
			Msg("multipart form carries no files")
		writeBadRequest(w, `no files provided, use multipart field "files"`)
		return
	}

	files := make([]ingest.FileUpload, 0, len(parts))
	for _, fh := range parts {
		content, err := readPart(fh, s.cfg.MaxUploadBytes)
		if err != nil {
			if errors.Is(err, errFileTooLarge) {
				logger(ctx, "api").Warn().
					Str(xllog.FieldEvent, "upload.rejected").
					Str("file", fh.Filename).
					Int64("size", fh.Size).
					Msg("file exceeds upload limit")
				writeError(w, http.StatusRequestEntityTooLarge,
					fmt.Sprintf("file %q exceeds the limit of %d bytes", fh.Filename, s.cfg.MaxUploadBytes))
				return
			}
			writeBadRequest(w, fmt.Sprintf("read file %q: %v", fh.Filename, err))
			return
		}
		files = append(files, ingest.FileUpload{Name: fh.Filename, Content: content})
	}

	result, err := s.ingest.Process(ctx, dataset, files)
	if err != nil {
		logger(ctx, "api").Error().Err(err).
			Str(xllog.FieldEvent, "upload.failed").
			Str(xllog.FieldDataset, string(dataset)).
			Msg("upload processing failed")
		writeInternalError(w)
		return
	}

	middleware.AddSpanAttributes(r,
		telemetry.UploadAttributes(string(dataset), result.BatchID, len(files), result.Totals.Rows)...)

	if s.cfg.ETLAuto && s.jobs != nil {
		jobID, err := s.jobs.EnqueueETL(ctx, result.BatchID, nil)
		if err != nil {
			logger(ctx, "api").Warn().Err(err).
				Int64(xllog.FieldBatchID, result.BatchID).
				Msg("auto ETL enqueue failed")
		} else {
			logger(ctx, "api").Info().
				Str(xllog.FieldEvent, "etl.auto_enqueued").
				Int64(xllog.FieldBatchID, result.BatchID).
				Str("job_id", jobID).
				Msg("ETL queued after upload")
		}
	}

	writeJSON(w, http.StatusOK, result)
}

func readPart(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	if fh.Size > limit {
		return nil, errFileTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	// The size check above relies on the parsed header; re-check while
	// reading so a lying part cannot blow past the limit.
	content, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > limit {
		return nil, errFileTooLarge
	}
	return content, nil
}

// handleGetBatch returns one batch with its per-file summaries.
//
// GET /api/uploads/batches/{batchID}
func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID, ok := batchIDParam(w, r)
	if !ok {
		return
	}

	batch, err := s.staging.GetBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, staging.ErrNotFound) {
			writeNotFound(w, fmt.Sprintf("batch %d not found", batchID))
			return
		}
		logger(ctx, "api").Error().Err(err).Int64(xllog.FieldBatchID, batchID).Msg("load batch failed")
		writeInternalError(w)
		return
	}

	files, err := s.staging.FilesForBatch(ctx, batchID)
	if err != nil {
		logger(ctx, "api").Error().Err(err).Int64(xllog.FieldBatchID, batchID).Msg("load batch files failed")
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		staging.Batch
		Files []staging.FileSummary `json:"files"`
	}{Batch: batch, Files: files})
}

// handleBatchErrors returns the row-level validation errors of a batch.
//
// GET /api/uploads/batches/{batchID}/errors
func (s *Server) handleBatchErrors(w http.ResponseWriter, r *http.Request) {
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

	errs, err := s.staging.ErrorsForBatch(ctx, batchID)
	if err != nil {
		logger(ctx, "api").Error().Err(err).Int64(xllog.FieldBatchID, batchID).Msg("load batch errors failed")
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"batch_id": batchID,
		"count":    len(errs),
		"errors":   errs,
	})
}

// batchIDParam parses the {batchID} URL parameter, writing a 400 on garbage.
func batchIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "batchID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, fmt.Sprintf("invalid batch id %q", raw))
		return 0, false
	}
	return id, true
}
