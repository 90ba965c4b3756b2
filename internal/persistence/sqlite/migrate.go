// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sqlite

import (
	"database/sql"
	"errors"
	"time"
)

// Several stores share one database file, so a single PRAGMA user_version
// cannot track them independently. Each store records its own version in
// schema_migrations instead, keyed by module name.

// ModuleVersion returns the applied schema version for module, creating the
// tracking table on first use. Runs inside the caller's migration
// transaction.
func ModuleVersion(tx *sql.Tx, module string) (int, error) {
	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		module TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return 0, err
	}

	var v int
	err := tx.QueryRow(`SELECT version FROM schema_migrations WHERE module = ?`, module).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}

// SetModuleVersion stamps the schema version for module.
func SetModuleVersion(tx *sql.Tx, module string, version int) error {
	_, err := tx.Exec(`INSERT INTO schema_migrations (module, version, applied_at)
		VALUES (?, ?, ?)
		ON CONFLICT(module) DO UPDATE SET version = excluded.version, applied_at = excluded.applied_at`,
		module, version, time.Now().UTC().Format(time.RFC3339))
	return err
}
