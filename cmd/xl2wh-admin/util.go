// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"database/sql"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/ManuGH/xl2wh/internal/fsutil"
	"github.com/ManuGH/xl2wh/internal/persistence/sqlite"
	"github.com/ManuGH/xl2wh/internal/staging"
	"github.com/ManuGH/xl2wh/internal/warehouse"
)

// stores bundles the direct-database handles the offline commands share.
type stores struct {
	db        *sql.DB
	staging   *staging.SqliteStore
	warehouse *warehouse.SqliteStore
}

// openStores opens the daemon's SQLite database read-write. The file must
// already exist; admin commands never create a fresh database behind the
// daemon's back.
func openStores(c *cli.Context) (*stores, error) {
	dbPath := c.String(dbFlagName)
	if err := fsutil.IsRegularFile(dbPath); err != nil {
		return nil, errors.Wrapf(err, "database %s", dbPath)
	}
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	st, err := staging.NewSqliteStoreWithDB(db)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "open staging store")
	}
	wh, err := warehouse.NewSqliteStoreWithDB(db)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "open warehouse store")
	}
	return &stores{db: db, staging: st, warehouse: wh}, nil
}

func (s *stores) Close() error { return s.db.Close() }

// parseThresholds turns repeated "metric=value" flags into the per-metric
// anomaly threshold overrides the ETL runner accepts.
func parseThresholds(pairs []string) (map[string]float64, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, errors.Errorf("invalid threshold %q, expected metric=value", pair)
		}
		val, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid threshold %q", pair)
		}
		if val <= 0 {
			return nil, errors.Errorf("threshold %q must be positive", pair)
		}
		out[name] = val
	}
	return out, nil
}
