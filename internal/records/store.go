// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/xl2wh/internal/persistence/sqlite"
)

const schemaVersion = 1

// SqliteStore implements the legacy raw tables on SQLite.
type SqliteStore struct {
	DB *sql.DB
}

// NewSqliteStore opens (or reuses) the database at dbPath and migrates the
// legacy tables.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}

	s := &SqliteStore{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("records store: migration failed: %w", err)
	}
	return s, nil
}

// NewSqliteStoreWithDB wraps an already-open handle. Used when several stores
// share one database file.
func NewSqliteStoreWithDB(db *sql.DB) (*SqliteStore, error) {
	s := &SqliteStore{DB: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("records store: migration failed: %w", err)
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

	currentVersion, err := sqlite.ModuleVersion(tx, "records")
	if err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	// All four tables share one shape: raw workbook rows as JSON documents.
	for _, table := range Tables {
		ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_name TEXT NOT NULL,
			row_number INTEGER NOT NULL DEFAULT 0,
			data TEXT NOT NULL,
			file_hash TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_hash ON %[1]s(file_hash);
		`, table)
		if _, err := tx.Exec(ddl); err != nil {
			return fmt.Errorf("create %s: %w", table, err)
		}
	}

	if err := sqlite.SetModuleVersion(tx, "records", schemaVersion); err != nil {
		return err
	}
	return tx.Commit()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// FileExists returns metadata for an earlier upload with the same hash, or
// nil when the table has never seen the content.
func (s *SqliteStore) FileExists(ctx context.Context, table, fileHash string) (*PriorUpload, error) {
	if !ValidTable(table) {
		return nil, ErrInvalidTable
	}

	var (
		prior     PriorUpload
		createdAt string
	)
	err := s.DB.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, file_name, created_at FROM %s WHERE file_hash = ? LIMIT 1`, table),
		fileHash,
	).Scan(&prior.ID, &prior.FileName, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file hash lookup: %w", err)
	}
	prior.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &prior, nil
}

// UpsertRows writes workbook rows into a legacy table. Tables with unique
// keys match incoming rows against stored JSON documents and update in
// place; everything else appends.
func (s *SqliteStore) UpsertRows(ctx context.Context, table, fileName, fileHash string, rows []RowInput) (UpsertResult, error) {
	if !ValidTable(table) {
		return UpsertResult{}, ErrInvalidTable
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return UpsertResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	keys := uniqueKeys[table]
	matchQuery := ""
	if len(keys) > 0 {
		matchQuery = buildMatchQuery(table, keys)
	}

	insertStmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (file_name, row_number, data, file_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`, table))
	if err != nil {
		return UpsertResult{}, err
	}
	defer func() { _ = insertStmt.Close() }()

	updateStmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`UPDATE %s SET data = ?, file_name = ?, row_number = ?, file_hash = ?, updated_at = ?
		 WHERE id = ?`, table))
	if err != nil {
		return UpsertResult{}, err
	}
	defer func() { _ = updateStmt.Close() }()

	var result UpsertResult
	ts := now()
	for _, row := range rows {
		data, err := json.Marshal(row.Data)
		if err != nil {
			return UpsertResult{}, fmt.Errorf("marshal row %d: %w", row.RowNumber, err)
		}

		existingID := int64(0)
		if matchQuery != "" {
			if keyValues, complete := keyValuesFor(row.Data, keys); complete {
				err := tx.QueryRowContext(ctx, matchQuery, keyValues...).Scan(&existingID)
				if err != nil && !errors.Is(err, sql.ErrNoRows) {
					return UpsertResult{}, fmt.Errorf("unique key lookup: %w", err)
				}
			}
		}

		if existingID > 0 {
			if _, err := updateStmt.ExecContext(ctx, string(data), fileName, row.RowNumber, fileHash, ts, existingID); err != nil {
				return UpsertResult{}, fmt.Errorf("update row %d: %w", row.RowNumber, err)
			}
			result.Updated++
		} else {
			if _, err := insertStmt.ExecContext(ctx, fileName, row.RowNumber, string(data), fileHash, ts, ts); err != nil {
				return UpsertResult{}, fmt.Errorf("insert row %d: %w", row.RowNumber, err)
			}
			result.Inserted++
		}
	}
	result.Total = len(rows)

	if err := tx.Commit(); err != nil {
		return UpsertResult{}, err
	}
	return result, nil
}

// buildMatchQuery compares stored JSON documents field by field. Key names
// come from the fixed uniqueKeys table, never from request input.
func buildMatchQuery(table string, keys []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `SELECT id FROM %s WHERE `, table)
	for i, key := range keys {
		if i > 0 {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(&b, `json_extract(data, '$."%s"') = ?`, key)
	}
	b.WriteString(" LIMIT 1")
	return b.String()
}

// keyValuesFor extracts the unique-key values from a row. A row missing any
// key (or carrying only whitespace) falls back to plain insert.
func keyValuesFor(data map[string]any, keys []string) ([]any, bool) {
	values := make([]any, 0, len(keys))
	for _, key := range keys {
		v, ok := data[key]
		if !ok || v == nil {
			return nil, false
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			return nil, false
		}
		values = append(values, v)
	}
	return values, true
}

// GetRow fetches one stored row with its JSON document decoded.
func (s *SqliteStore) GetRow(ctx context.Context, table string, id int64) (Row, error) {
	if !ValidTable(table) {
		return Row{}, ErrInvalidTable
	}

	var (
		row                  Row
		data                 string
		fileHash             sql.NullString
		createdAt, updatedAt string
	)
	err := s.DB.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, file_name, row_number, data, file_hash, created_at, updated_at
			FROM %s WHERE id = ?`, table),
		id,
	).Scan(&row.ID, &row.FileName, &row.RowNumber, &data, &fileHash, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, ErrNotFound
	}
	if err != nil {
		return Row{}, fmt.Errorf("fetch row: %w", err)
	}

	if err := json.Unmarshal([]byte(data), &row.Data); err != nil {
		return Row{}, fmt.Errorf("decode row data: %w", err)
	}
	row.FileHash = fileHash.String
	row.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	row.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return row, nil
}

// ScanTable streams every row's decoded JSON document through fn, stopping
// on the first error. Used by the analysis queries.
func (s *SqliteStore) ScanTable(ctx context.Context, table string, fn func(id int64, data map[string]any) error) error {
	if !ValidTable(table) {
		return ErrInvalidTable
	}

	rows, err := s.DB.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, data FROM %s ORDER BY id`, table))
	if err != nil {
		return fmt.Errorf("scan %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			id   int64
			raw  string
			data map[string]any
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			// Skip rows with unreadable documents rather than failing the scan.
			continue
		}
		if err := fn(id, data); err != nil {
			return err
		}
	}
	return rows.Err()
}

// RowCounts reports per-table row counts for the status endpoint.
func (s *SqliteStore) RowCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(Tables))
	for _, table := range Tables {
		var n int64
		if err := s.DB.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
