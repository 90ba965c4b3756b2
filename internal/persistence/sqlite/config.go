// Package sqlite opens and maintains the shared database file every store
// runs on.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go driver
)

// Config carries the pool settings for the shared database handle.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
	MaxLifetime  time.Duration
}

// DefaultConfig returns the pool settings the daemon runs with.
func DefaultConfig() Config {
	return Config{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 25,
		MaxLifetime:  time.Hour,
	}
}

// dsn builds the connection string. The pragmas ride in the DSN so they
// apply to every connection the pool opens, not just the first: WAL plus
// busy_timeout keeps concurrent readers off the writer's back, and
// foreign_keys guards the staging and warehouse references.
func dsn(path string, busy time.Duration) string {
	pragmas := []string{
		"journal_mode(WAL)",
		fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()),
		"synchronous(NORMAL)",
		"foreign_keys(ON)",
	}
	return "file:" + path + "?_pragma=" + strings.Join(pragmas, "&_pragma=")
}

// Open returns a pooled handle on the database file with the pragmas every
// store depends on. The handle is shared by all stores; closing it is the
// caller's job.
func Open(path string, cfg Config) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn(path, cfg.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	lifetime := cfg.MaxLifetime
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	db.SetConnMaxLifetime(lifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return db, nil
}
