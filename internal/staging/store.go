// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package staging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/xl2wh/internal/persistence/sqlite"
)

const schemaVersion = 1

// SqliteStore implements batch staging on SQLite.
type SqliteStore struct {
	DB *sql.DB
}

// NewSqliteStore opens (or reuses) the database at dbPath and migrates the
// staging schema.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}

	s := &SqliteStore{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("staging store: migration failed: %w", err)
	}
	return s, nil
}

// NewSqliteStoreWithDB wraps an already-open handle. Used when several stores
// share one database file.
func NewSqliteStoreWithDB(db *sql.DB) (*SqliteStore, error) {
	s := &SqliteStore{DB: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("staging store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}

func (s *SqliteStore) migrate() error {
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	currentVersion, err := sqlite.ModuleVersion(tx, "staging")
	if err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	schema := `
	CREATE TABLE IF NOT EXISTS upload_batches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dataset TEXT NOT NULL,
		status TEXT NOT NULL,
		total_files INTEGER NOT NULL DEFAULT 0,
		total_rows INTEGER NOT NULL DEFAULT 0,
		valid_rows INTEGER NOT NULL DEFAULT 0,
		invalid_rows INTEGER NOT NULL DEFAULT 0,
		message TEXT,
		created_at TEXT NOT NULL,
		completed_at TEXT,
		processed_rows INTEGER NOT NULL DEFAULT 0,
		dq_error_count INTEGER NOT NULL DEFAULT 0,
		processing_ms INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_upload_batches_status ON upload_batches(status);

	CREATE TABLE IF NOT EXISTS raw_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id INTEGER NOT NULL REFERENCES upload_batches(id),
		file_name TEXT NOT NULL,
		file_hash TEXT NOT NULL,
		rows_count INTEGER NOT NULL DEFAULT 0,
		valid_rows INTEGER NOT NULL DEFAULT 0,
		invalid_rows INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_raw_files_batch ON raw_files(batch_id);
	CREATE INDEX IF NOT EXISTS idx_raw_files_hash ON raw_files(file_hash);

	CREATE TABLE IF NOT EXISTS validation_errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id INTEGER NOT NULL REFERENCES upload_batches(id),
		file_name TEXT NOT NULL,
		row_number INTEGER NOT NULL,
		column_name TEXT NOT NULL,
		error_code TEXT NOT NULL,
		error_message TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_validation_errors_batch ON validation_errors(batch_id);

	CREATE TABLE IF NOT EXISTS stg_operations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id INTEGER NOT NULL REFERENCES upload_batches(id),
		file_name TEXT NOT NULL,
		row_number INTEGER NOT NULL,
		data TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_stg_operations_batch ON stg_operations(batch_id);

	CREATE TABLE IF NOT EXISTS stg_kpi_raw (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id INTEGER NOT NULL REFERENCES upload_batches(id),
		file_name TEXT NOT NULL,
		row_number INTEGER NOT NULL,
		data TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_stg_kpi_raw_batch ON stg_kpi_raw(batch_id);
	`

	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if err := sqlite.SetModuleVersion(tx, "staging", schemaVersion); err != nil {
		return err
	}
	return tx.Commit()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// CreateBatch opens a new batch in status processing and returns its id.
func (s *SqliteStore) CreateBatch(ctx context.Context, dataset Dataset) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO upload_batches (dataset, status, created_at) VALUES (?, ?, ?)`,
		string(dataset), StatusProcessing, now(),
	)
	if err != nil {
		return 0, fmt.Errorf("create batch: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create batch: %w", err)
	}
	return id, nil
}

// FinishBatch records upload totals and the final upload status.
func (s *SqliteStore) FinishBatch(ctx context.Context, id int64, status string, t Totals, message string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE upload_batches
		 SET status = ?, total_files = ?, total_rows = ?, valid_rows = ?, invalid_rows = ?,
		     message = NULLIF(?, ''), completed_at = ?
		 WHERE id = ?`,
		status, t.Files, t.Rows, t.ValidRows, t.InvalidRows, message, now(), id,
	)
	if err != nil {
		return fmt.Errorf("finish batch %d: %w", id, err)
	}
	return requireRow(res, id)
}

// FailBatch marks a batch failed with the given message.
func (s *SqliteStore) FailBatch(ctx context.Context, id int64, message string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE upload_batches SET status = ?, message = ?, completed_at = ? WHERE id = ?`,
		StatusFailed, message, now(), id,
	)
	if err != nil {
		return fmt.Errorf("fail batch %d: %w", id, err)
	}
	return requireRow(res, id)
}

// StampETLResult records the outcome of an ETL run on the batch row.
func (s *SqliteStore) StampETLResult(ctx context.Context, id int64, status string, processedRows, dqErrors int, processingMS int64, message string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE upload_batches
		 SET status = ?, processed_rows = ?, dq_error_count = ?, processing_ms = ?, message = ?
		 WHERE id = ?`,
		status, processedRows, dqErrors, processingMS, message, id,
	)
	if err != nil {
		return fmt.Errorf("stamp batch %d: %w", id, err)
	}
	return requireRow(res, id)
}

// GetBatch loads one batch. Returns ErrNotFound for unknown ids.
func (s *SqliteStore) GetBatch(ctx context.Context, id int64) (Batch, error) {
	var (
		b           Batch
		dataset     string
		message     sql.NullString
		createdAt   string
		completedAt sql.NullString
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, dataset, status, total_files, total_rows, valid_rows, invalid_rows,
		        message, created_at, completed_at, processed_rows, dq_error_count, processing_ms
		 FROM upload_batches WHERE id = ?`, id,
	).Scan(&b.ID, &dataset, &b.Status, &b.TotalFiles, &b.TotalRows, &b.ValidRows, &b.InvalidRows,
		&message, &createdAt, &completedAt, &b.ProcessedRows, &b.DQErrorCount, &b.ProcessingMS)
	if errors.Is(err, sql.ErrNoRows) {
		return Batch{}, ErrNotFound
	}
	if err != nil {
		return Batch{}, fmt.Errorf("get batch %d: %w", id, err)
	}
	b.Dataset = Dataset(dataset)
	b.Message = message.String
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if completedAt.Valid {
		if t, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
			b.CompletedAt = &t
		}
	}
	return b, nil
}

// AddFile records a per-file upload summary.
func (s *SqliteStore) AddFile(ctx context.Context, f FileSummary) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO raw_files (batch_id, file_name, file_hash, rows_count, valid_rows, invalid_rows, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.BatchID, f.FileName, f.FileHash, f.Rows, f.ValidRows, f.InvalidRows, now(),
	)
	if err != nil {
		return fmt.Errorf("add file %q to batch %d: %w", f.FileName, f.BatchID, err)
	}
	return nil
}

// FilesForBatch lists file summaries in upload order.
func (s *SqliteStore) FilesForBatch(ctx context.Context, batchID int64) ([]FileSummary, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, batch_id, file_name, file_hash, rows_count, valid_rows, invalid_rows
		 FROM raw_files WHERE batch_id = ? ORDER BY id`, batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("files for batch %d: %w", batchID, err)
	}
	defer rows.Close()

	var out []FileSummary
	for rows.Next() {
		var f FileSummary
		if err := rows.Scan(&f.ID, &f.BatchID, &f.FileName, &f.FileHash, &f.Rows, &f.ValidRows, &f.InvalidRows); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// AddValidationErrors bulk-inserts validation errors inside one transaction.
func (s *SqliteStore) AddValidationErrors(ctx context.Context, errs []ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO validation_errors (batch_id, file_name, row_number, column_name, error_code, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	ts := now()
	for _, e := range errs {
		if _, err := stmt.ExecContext(ctx, e.BatchID, e.FileName, e.RowNumber, e.Column, e.Code, e.Message, ts); err != nil {
			return fmt.Errorf("insert validation error: %w", err)
		}
	}
	return tx.Commit()
}

// ErrorsForBatch lists validation errors in insert order.
func (s *SqliteStore) ErrorsForBatch(ctx context.Context, batchID int64) ([]ValidationError, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, batch_id, file_name, row_number, column_name, error_code, error_message
		 FROM validation_errors WHERE batch_id = ? ORDER BY id`, batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("errors for batch %d: %w", batchID, err)
	}
	defer rows.Close()

	var out []ValidationError
	for rows.Next() {
		var e ValidationError
		if err := rows.Scan(&e.ID, &e.BatchID, &e.FileName, &e.RowNumber, &e.Column, &e.Code, &e.Message); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// StageRows bulk-inserts validated rows into the dataset's staging table.
func (s *SqliteStore) StageRows(ctx context.Context, dataset Dataset, rows []StagedRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Table name comes from the Dataset enum, never from request input.
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (batch_id, file_name, row_number, data, created_at) VALUES (?, ?, ?, ?, ?)`,
		dataset.StagingTable(),
	))
	if err != nil {
		return err
	}
	defer stmt.Close()

	ts := now()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.BatchID, r.FileName, r.RowNumber, string(r.Data), ts); err != nil {
			return fmt.Errorf("stage row %d of %q: %w", r.RowNumber, r.FileName, err)
		}
	}
	return tx.Commit()
}

// StagedRows loads all staged rows of a batch in row order.
func (s *SqliteStore) StagedRows(ctx context.Context, dataset Dataset, batchID int64) ([]StagedRow, error) {
	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, batch_id, file_name, row_number, data FROM %s WHERE batch_id = ? ORDER BY id`,
		dataset.StagingTable(),
	), batchID)
	if err != nil {
		return nil, fmt.Errorf("staged rows for batch %d: %w", batchID, err)
	}
	defer rows.Close()

	var out []StagedRow
	for rows.Next() {
		var (
			r    StagedRow
			data string
		)
		if err := rows.Scan(&r.ID, &r.BatchID, &r.FileName, &r.RowNumber, &data); err != nil {
			return nil, err
		}
		r.Data = []byte(data)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SweepStale fails processing batches older than the cutoff and returns how
// many were swept. Interrupted uploads would otherwise sit in processing
// forever.
func (s *SqliteStore) SweepStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	res, err := s.DB.ExecContext(ctx,
		`UPDATE upload_batches SET status = ?, message = ?, completed_at = ?
		 WHERE status = ? AND created_at < ?`,
		StatusFailed, "batch timed out", now(), StatusProcessing, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("sweep stale batches: %w", err)
	}
	return res.RowsAffected()
}

// Stats counts staging rows for the status endpoint.
func (s *SqliteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	row := s.DB.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM upload_batches),
			(SELECT COUNT(*) FROM upload_batches WHERE status = ?),
			(SELECT COUNT(*) FROM upload_batches WHERE status = ?),
			(SELECT COUNT(*) FROM stg_operations),
			(SELECT COUNT(*) FROM stg_kpi_raw),
			(SELECT COUNT(*) FROM validation_errors)`,
		StatusProcessing, StatusFailed,
	)
	if err := row.Scan(&st.Batches, &st.ProcessingBatches, &st.FailedBatches,
		&st.StagedOperations, &st.StagedKPI, &st.ValidationErrors); err != nil {
		return Stats{}, fmt.Errorf("staging stats: %w", err)
	}
	return st, nil
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("batch %d: %w", id, ErrNotFound)
	}
	return nil
}
