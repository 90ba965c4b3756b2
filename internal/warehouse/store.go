// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package warehouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/xl2wh/internal/persistence/sqlite"
)

const schemaVersion = 1

// SqliteStore implements the star schema on SQLite.
type SqliteStore struct {
	DB *sql.DB
}

// NewSqliteStore opens (or reuses) the database at dbPath and migrates the
// warehouse schema.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}

	s := &SqliteStore{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("warehouse store: migration failed: %w", err)
	}
	return s, nil
}

// NewSqliteStoreWithDB wraps an already-open handle. Used when several stores
// share one database file.
func NewSqliteStoreWithDB(db *sql.DB) (*SqliteStore, error) {
	s := &SqliteStore{DB: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("warehouse store: migration failed: %w", err)
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

	currentVersion, err := sqlite.ModuleVersion(tx, "warehouse")
	if err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	schema := `
	CREATE TABLE IF NOT EXISTS dim_factory (
		factory_key INTEGER PRIMARY KEY AUTOINCREMENT,
		factory_code TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS dim_employee (
		employee_key INTEGER PRIMARY KEY AUTOINCREMENT,
		employee_id TEXT NOT NULL UNIQUE,
		factory_code TEXT
	);

	CREATE TABLE IF NOT EXISTS dim_period (
		period_key INTEGER PRIMARY KEY AUTOINCREMENT,
		month INTEGER NOT NULL,
		quarter INTEGER NOT NULL,
		year INTEGER NOT NULL,
		UNIQUE (year, month)
	);

	CREATE TABLE IF NOT EXISTS fact_operations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id INTEGER NOT NULL,
		factory_key INTEGER NOT NULL REFERENCES dim_factory(factory_key),
		period_key INTEGER NOT NULL REFERENCES dim_period(period_key),
		revenue REAL,
		cost REAL,
		output_qty REAL,
		downtime_hours REAL
	);
	CREATE INDEX IF NOT EXISTS idx_fact_operations_batch ON fact_operations(batch_id);
	CREATE INDEX IF NOT EXISTS idx_fact_operations_period ON fact_operations(period_key);

	CREATE TABLE IF NOT EXISTS fact_kpi (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id INTEGER NOT NULL,
		employee_key INTEGER NOT NULL REFERENCES dim_employee(employee_key),
		period_key INTEGER NOT NULL REFERENCES dim_period(period_key),
		metric_code TEXT NOT NULL,
		value REAL,
		target REAL
	);
	CREATE INDEX IF NOT EXISTS idx_fact_kpi_batch ON fact_kpi(batch_id);
	CREATE INDEX IF NOT EXISTS idx_fact_kpi_period ON fact_kpi(period_key);

	CREATE TABLE IF NOT EXISTS kpi_metrics (
		metric_code TEXT PRIMARY KEY,
		scope TEXT NOT NULL CHECK (scope IN ('factory', 'employee')),
		formula TEXT,
		aggregation TEXT NOT NULL DEFAULT 'sum',
		weight REAL,
		target_source TEXT
	);

	CREATE TABLE IF NOT EXISTS fact_kpi_calc (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id INTEGER NOT NULL,
		period_key INTEGER NOT NULL REFERENCES dim_period(period_key),
		scope TEXT NOT NULL CHECK (scope IN ('factory', 'employee')),
		scope_id INTEGER NOT NULL,
		metric_code TEXT NOT NULL,
		value REAL,
		target REAL,
		weight REAL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_fact_kpi_calc_batch ON fact_kpi_calc(batch_id);

	CREATE TABLE IF NOT EXISTS factory_code_alias (
		alias TEXT PRIMARY KEY,
		factory_code TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS employee_id_alias (
		alias TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS dq_issues (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id INTEGER NOT NULL,
		dataset TEXT NOT NULL,
		row_number INTEGER NOT NULL DEFAULT 0,
		issue_type TEXT NOT NULL,
		issue_message TEXT NOT NULL,
		context TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_dq_issues_batch ON dq_issues(batch_id);
	`

	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if err := sqlite.SetModuleVersion(tx, "warehouse", schemaVersion); err != nil {
		return err
	}
	return tx.Commit()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// dbtx lets the ensure helpers run on the pool or inside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// EnsureFactory upserts a factory code and returns its dimension key.
func (s *SqliteStore) EnsureFactory(ctx context.Context, code string) (int64, error) {
	return ensureFactory(ctx, s.DB, code)
}

func ensureFactory(ctx context.Context, q dbtx, code string) (int64, error) {
	code = Fold(code)
	if code == "" {
		return 0, fmt.Errorf("factory dimension: empty code")
	}
	if _, err := q.ExecContext(ctx,
		`INSERT INTO dim_factory (factory_code) VALUES (?)
		 ON CONFLICT(factory_code) DO NOTHING`, code,
	); err != nil {
		return 0, fmt.Errorf("factory upsert: %w", err)
	}
	var key int64
	if err := q.QueryRowContext(ctx,
		`SELECT factory_key FROM dim_factory WHERE factory_code = ?`, code,
	).Scan(&key); err != nil {
		return 0, fmt.Errorf("factory lookup: %w", err)
	}
	return key, nil
}

// EnsureEmployee upserts an employee and returns its dimension key. A
// non-empty factoryCode replaces the stored one; an empty factoryCode leaves
// it untouched.
func (s *SqliteStore) EnsureEmployee(ctx context.Context, employeeID, factoryCode string) (int64, error) {
	return ensureEmployee(ctx, s.DB, employeeID, factoryCode)
}

func ensureEmployee(ctx context.Context, q dbtx, employeeID, factoryCode string) (int64, error) {
	employeeID = Fold(employeeID)
	if employeeID == "" {
		return 0, fmt.Errorf("employee dimension: empty id")
	}
	if _, err := q.ExecContext(ctx,
		`INSERT INTO dim_employee (employee_id, factory_code) VALUES (?, NULLIF(?, ''))
		 ON CONFLICT(employee_id) DO UPDATE SET
		     factory_code = COALESCE(NULLIF(excluded.factory_code, ''), dim_employee.factory_code)`,
		employeeID, Fold(factoryCode),
	); err != nil {
		return 0, fmt.Errorf("employee upsert: %w", err)
	}
	var key int64
	if err := q.QueryRowContext(ctx,
		`SELECT employee_key FROM dim_employee WHERE employee_id = ?`, employeeID,
	).Scan(&key); err != nil {
		return 0, fmt.Errorf("employee lookup: %w", err)
	}
	return key, nil
}

// EnsurePeriod upserts a (year, month) period and returns its key.
func (s *SqliteStore) EnsurePeriod(ctx context.Context, month, year int) (int64, error) {
	return ensurePeriod(ctx, s.DB, month, year)
}

func ensurePeriod(ctx context.Context, q dbtx, month, year int) (int64, error) {
	if month < 1 || month > 12 {
		return 0, fmt.Errorf("period dimension: month %d out of range", month)
	}
	if _, err := q.ExecContext(ctx,
		`INSERT INTO dim_period (month, quarter, year) VALUES (?, ?, ?)
		 ON CONFLICT(year, month) DO NOTHING`,
		month, QuarterOf(month), year,
	); err != nil {
		return 0, fmt.Errorf("period upsert: %w", err)
	}
	var key int64
	if err := q.QueryRowContext(ctx,
		`SELECT period_key FROM dim_period WHERE year = ? AND month = ?`, year, month,
	).Scan(&key); err != nil {
		return 0, fmt.Errorf("period lookup: %w", err)
	}
	return key, nil
}

// LoadOperations replaces the batch's fact_operations rows with records,
// upserting dimensions along the way. Re-running a batch is idempotent.
func (s *SqliteStore) LoadOperations(ctx context.Context, batchID int64, records []OperationsRecord) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fact_operations WHERE batch_id = ?`, batchID); err != nil {
		return fmt.Errorf("clear operations facts: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO fact_operations
		(batch_id, factory_key, period_key, revenue, cost, output_qty, downtime_hours)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		factoryKey, err := ensureFactory(ctx, tx, r.FactoryCode)
		if err != nil {
			return err
		}
		periodKey, err := ensurePeriod(ctx, tx, r.Month, r.Year)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, batchID, factoryKey, periodKey,
			r.Revenue, r.Cost, r.OutputQty, r.DowntimeHours); err != nil {
			return fmt.Errorf("insert operations fact: %w", err)
		}
	}
	return tx.Commit()
}

// LoadKPI replaces the batch's fact_kpi rows with records.
func (s *SqliteStore) LoadKPI(ctx context.Context, batchID int64, records []KPIRecord) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fact_kpi WHERE batch_id = ?`, batchID); err != nil {
		return fmt.Errorf("clear kpi facts: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO fact_kpi
		(batch_id, employee_key, period_key, metric_code, value, target)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		employeeKey, err := ensureEmployee(ctx, tx, r.EmployeeID, r.FactoryCode)
		if err != nil {
			return err
		}
		periodKey, err := ensurePeriod(ctx, tx, r.Month, r.Year)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, batchID, employeeKey, periodKey,
			r.MetricCode, r.Value, r.Target); err != nil {
			return fmt.Errorf("insert kpi fact: %w", err)
		}
	}
	return tx.Commit()
}

// Aliases loads both alias tables with folded keys.
func (s *SqliteStore) Aliases(ctx context.Context) (AliasMaps, error) {
	maps := AliasMaps{
		Factory:  make(map[string]string),
		Employee: make(map[string]string),
	}

	load := func(query string, dst map[string]string) error {
		rows, err := s.DB.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var alias, canonical string
			if err := rows.Scan(&alias, &canonical); err != nil {
				return err
			}
			dst[Fold(alias)] = canonical
		}
		return rows.Err()
	}

	if err := load(`SELECT alias, factory_code FROM factory_code_alias`, maps.Factory); err != nil {
		return AliasMaps{}, fmt.Errorf("load factory aliases: %w", err)
	}
	if err := load(`SELECT alias, employee_id FROM employee_id_alias`, maps.Employee); err != nil {
		return AliasMaps{}, fmt.Errorf("load employee aliases: %w", err)
	}
	return maps, nil
}

// SeedFactoryAlias maps alias onto a canonical factory code.
func (s *SqliteStore) SeedFactoryAlias(ctx context.Context, alias, factoryCode string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO factory_code_alias (alias, factory_code) VALUES (?, ?)
		 ON CONFLICT(alias) DO UPDATE SET factory_code = excluded.factory_code`,
		Fold(alias), Fold(factoryCode),
	)
	if err != nil {
		return fmt.Errorf("seed factory alias: %w", err)
	}
	return nil
}

// SeedEmployeeAlias maps alias onto a canonical employee id.
func (s *SqliteStore) SeedEmployeeAlias(ctx context.Context, alias, employeeID string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO employee_id_alias (alias, employee_id) VALUES (?, ?)
		 ON CONFLICT(alias) DO UPDATE SET employee_id = excluded.employee_id`,
		Fold(alias), Fold(employeeID),
	)
	if err != nil {
		return fmt.Errorf("seed employee alias: %w", err)
	}
	return nil
}

// RecordIssues appends data-quality findings for a batch.
func (s *SqliteStore) RecordIssues(ctx context.Context, issues []Issue) error {
	if len(issues) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO dq_issues
		(batch_id, dataset, row_number, issue_type, issue_message, context, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	ts := now()
	for _, i := range issues {
		var ctxJSON any
		if len(i.Context) > 0 {
			data, err := json.Marshal(i.Context)
			if err != nil {
				return fmt.Errorf("marshal issue context: %w", err)
			}
			ctxJSON = string(data)
		}
		if _, err := stmt.ExecContext(ctx, i.BatchID, i.Dataset, i.RowNumber,
			i.Type, i.Message, ctxJSON, ts); err != nil {
			return fmt.Errorf("insert dq issue: %w", err)
		}
	}
	return tx.Commit()
}

// IssuesForBatch returns the batch's data-quality findings in insert order.
func (s *SqliteStore) IssuesForBatch(ctx context.Context, batchID int64) ([]Issue, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, batch_id, dataset, row_number, issue_type, issue_message, context, created_at
		 FROM dq_issues WHERE batch_id = ? ORDER BY id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query dq issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Issue
	for rows.Next() {
		var (
			i         Issue
			ctxJSON   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&i.ID, &i.BatchID, &i.Dataset, &i.RowNumber,
			&i.Type, &i.Message, &ctxJSON, &createdAt); err != nil {
			return nil, err
		}
		if ctxJSON.Valid && ctxJSON.String != "" {
			if err := json.Unmarshal([]byte(ctxJSON.String), &i.Context); err != nil {
				return nil, fmt.Errorf("decode issue context: %w", err)
			}
		}
		i.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, i)
	}
	return out, rows.Err()
}

// UpsertMetrics writes metric definitions, replacing existing rows by code.
func (s *SqliteStore) UpsertMetrics(ctx context.Context, defs []MetricDefinition) error {
	if len(defs) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO kpi_metrics
		(metric_code, scope, formula, aggregation, weight, target_source)
		VALUES (?, ?, NULLIF(?, ''), ?, ?, NULLIF(?, ''))
		ON CONFLICT(metric_code) DO UPDATE SET
		    scope = excluded.scope,
		    formula = excluded.formula,
		    aggregation = excluded.aggregation,
		    weight = excluded.weight,
		    target_source = excluded.target_source`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, d := range defs {
		if d.MetricCode == "" {
			return fmt.Errorf("metric definition: empty metric_code")
		}
		if d.Scope != ScopeFactory && d.Scope != ScopeEmployee {
			return fmt.Errorf("metric %s: scope %q is not factory or employee", d.MetricCode, d.Scope)
		}
		agg := d.Aggregation
		if agg == "" {
			agg = "sum"
		}
		if _, err := stmt.ExecContext(ctx, d.MetricCode, d.Scope, d.Formula,
			agg, d.Weight, d.TargetSource); err != nil {
			return fmt.Errorf("upsert metric %s: %w", d.MetricCode, err)
		}
	}
	return tx.Commit()
}

// MetricDefinitions returns all metric definitions ordered by code.
func (s *SqliteStore) MetricDefinitions(ctx context.Context) ([]MetricDefinition, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT metric_code, scope, COALESCE(formula, ''), aggregation, weight, COALESCE(target_source, '')
		 FROM kpi_metrics ORDER BY metric_code`)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []MetricDefinition
	for rows.Next() {
		var (
			d      MetricDefinition
			weight sql.NullFloat64
		)
		if err := rows.Scan(&d.MetricCode, &d.Scope, &d.Formula, &d.Aggregation, &weight, &d.TargetSource); err != nil {
			return nil, err
		}
		if weight.Valid {
			d.Weight = &weight.Float64
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// PeriodIndex returns every dim_period row keyed by period_key.
func (s *SqliteStore) PeriodIndex(ctx context.Context) (map[int64]Period, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT period_key, month, quarter, year FROM dim_period`)
	if err != nil {
		return nil, fmt.Errorf("query periods: %w", err)
	}
	defer func() { _ = rows.Close() }()

	index := make(map[int64]Period)
	for rows.Next() {
		var p Period
		if err := rows.Scan(&p.Key, &p.Month, &p.Quarter, &p.Year); err != nil {
			return nil, err
		}
		index[p.Key] = p
	}
	return index, rows.Err()
}

// FactoryAggregates sums fact_operations per factory+period. An empty
// periodKeys slice means all periods.
func (s *SqliteStore) FactoryAggregates(ctx context.Context, periodKeys []int64) ([]FactoryAggregate, error) {
	query := `SELECT
		fo.factory_key, fo.period_key,
		SUM(fo.revenue), SUM(fo.cost), SUM(fo.output_qty), SUM(fo.downtime_hours),
		dp.month, dp.quarter, dp.year
	FROM fact_operations fo
	JOIN dim_period dp ON fo.period_key = dp.period_key`
	args := []any{}
	if len(periodKeys) > 0 {
		query += ` WHERE fo.period_key IN (` + placeholders(len(periodKeys)) + `)`
		for _, k := range periodKeys {
			args = append(args, k)
		}
	}
	query += ` GROUP BY fo.factory_key, fo.period_key, dp.month, dp.quarter, dp.year
	ORDER BY fo.factory_key, fo.period_key`

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query factory aggregates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []FactoryAggregate
	for rows.Next() {
		var a FactoryAggregate
		var revenue, cost, qty, downtime sql.NullFloat64
		if err := rows.Scan(&a.FactoryKey, &a.Period.Key,
			&revenue, &cost, &qty, &downtime,
			&a.Period.Month, &a.Period.Quarter, &a.Period.Year); err != nil {
			return nil, err
		}
		a.Measures = map[string]*float64{
			"revenue":        nullFloat(revenue),
			"cost":           nullFloat(cost),
			"output_qty":     nullFloat(qty),
			"downtime_hours": nullFloat(downtime),
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// EmployeeAggregates groups fact_kpi per employee+period with one summed
// value and one averaged target per metric code.
func (s *SqliteStore) EmployeeAggregates(ctx context.Context, periodKeys []int64) ([]EmployeeAggregate, error) {
	query := `SELECT
		fk.employee_key, fk.period_key, fk.metric_code,
		SUM(fk.value), AVG(fk.target),
		dp.month, dp.quarter, dp.year
	FROM fact_kpi fk
	JOIN dim_period dp ON fk.period_key = dp.period_key`
	args := []any{}
	if len(periodKeys) > 0 {
		query += ` WHERE fk.period_key IN (` + placeholders(len(periodKeys)) + `)`
		for _, k := range periodKeys {
			args = append(args, k)
		}
	}
	query += ` GROUP BY fk.employee_key, fk.period_key, fk.metric_code, dp.month, dp.quarter, dp.year
	ORDER BY fk.employee_key, fk.period_key, fk.metric_code`

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query employee aggregates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		out   []EmployeeAggregate
		index = make(map[[2]int64]int)
	)
	for rows.Next() {
		var (
			employeeKey, periodKey int64
			metricCode             string
			value, target          sql.NullFloat64
			period                 Period
		)
		if err := rows.Scan(&employeeKey, &periodKey, &metricCode,
			&value, &target, &period.Month, &period.Quarter, &period.Year); err != nil {
			return nil, err
		}
		period.Key = periodKey

		key := [2]int64{employeeKey, periodKey}
		pos, ok := index[key]
		if !ok {
			pos = len(out)
			index[key] = pos
			out = append(out, EmployeeAggregate{
				EmployeeKey: employeeKey,
				Period:      period,
				Values:      make(map[string]*float64),
				Targets:     make(map[string]float64),
			})
		}
		out[pos].Values[metricCode] = nullFloat(value)
		if target.Valid {
			out[pos].Targets[metricCode] = target.Float64
		}
	}
	return out, rows.Err()
}

// ReplaceCalc swaps the batch's fact_kpi_calc rows for the given results.
func (s *SqliteStore) ReplaceCalc(ctx context.Context, batchID int64, results []CalcRow) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fact_kpi_calc WHERE batch_id = ?`, batchID); err != nil {
		return fmt.Errorf("clear calc facts: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO fact_kpi_calc
		(batch_id, period_key, scope, scope_id, metric_code, value, target, weight, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	ts := now()
	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, batchID, r.PeriodKey, r.Scope, r.ScopeID,
			r.MetricCode, r.Value, r.Target, r.Weight, ts); err != nil {
			return fmt.Errorf("insert calc fact: %w", err)
		}
	}
	return tx.Commit()
}

// CalcResults returns fact_kpi_calc rows matching the filter, oldest first.
func (s *SqliteStore) CalcResults(ctx context.Context, f CalcFilter) ([]CalcRow, error) {
	query := `SELECT id, batch_id, period_key, scope, scope_id, metric_code, value, target, weight, created_at
		FROM fact_kpi_calc WHERE 1=1`
	args := []any{}
	if f.BatchID != nil {
		query += ` AND batch_id = ?`
		args = append(args, *f.BatchID)
	}
	if f.Scope != "" {
		query += ` AND scope = ?`
		args = append(args, f.Scope)
	}
	if f.MetricCode != "" {
		query += ` AND metric_code = ?`
		args = append(args, f.MetricCode)
	}
	if f.PeriodKey != nil {
		query += ` AND period_key = ?`
		args = append(args, *f.PeriodKey)
	}
	query += ` ORDER BY id`

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query calc results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []CalcRow
	for rows.Next() {
		var (
			r                     CalcRow
			value, target, weight sql.NullFloat64
			createdAt             string
		)
		if err := rows.Scan(&r.ID, &r.BatchID, &r.PeriodKey, &r.Scope, &r.ScopeID,
			&r.MetricCode, &value, &target, &weight, &createdAt); err != nil {
			return nil, err
		}
		r.Value = nullFloat(value)
		r.Target = nullFloat(target)
		r.Weight = nullFloat(weight)
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats reports row counts for the status endpoint.
type Stats struct {
	Factories       int64 `json:"factories"`
	Employees       int64 `json:"employees"`
	Periods         int64 `json:"periods"`
	OperationsFacts int64 `json:"operations_facts"`
	KPIFacts        int64 `json:"kpi_facts"`
	CalcRows        int64 `json:"calc_rows"`
	DQIssues        int64 `json:"dq_issues"`
	Metrics         int64 `json:"metric_definitions"`
}

func (s *SqliteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.DB.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM dim_factory),
		(SELECT COUNT(*) FROM dim_employee),
		(SELECT COUNT(*) FROM dim_period),
		(SELECT COUNT(*) FROM fact_operations),
		(SELECT COUNT(*) FROM fact_kpi),
		(SELECT COUNT(*) FROM fact_kpi_calc),
		(SELECT COUNT(*) FROM dq_issues),
		(SELECT COUNT(*) FROM kpi_metrics)`,
	).Scan(&st.Factories, &st.Employees, &st.Periods, &st.OperationsFacts,
		&st.KPIFacts, &st.CalcRows, &st.DQIssues, &st.Metrics)
	if err != nil {
		return Stats{}, fmt.Errorf("warehouse stats: %w", err)
	}
	return st, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
