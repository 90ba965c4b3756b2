// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package etl

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/xl2wh/internal/staging"
	"github.com/ManuGH/xl2wh/internal/validate"
	"github.com/ManuGH/xl2wh/internal/warehouse"
)

// DefaultAnomalyThreshold caps |value| for every metric that has no
// per-metric override.
const DefaultAnomalyThreshold = 1_000_000

// measure preserves metric order within a row so recorded issues come out
// deterministic.
type measure struct {
	name  string
	value float64
}

// buildOperations cleanses staged operations rows into fact records.
// Every rejected or degraded row yields one issue per finding; the dq count
// of a run is exactly len(issues).
func buildOperations(batchID int64, rows []staging.StagedRow, aliases warehouse.AliasMaps, overrides map[string]float64, defaultThreshold float64) ([]warehouse.OperationsRecord, []warehouse.Issue) {
	type periodKey struct {
		factory     string
		year, month int
	}

	var (
		records []warehouse.OperationsRecord
		issues  []warehouse.Issue
	)
	seen := make(map[periodKey]struct{})
	add := func(rowNumber int, typ, message string, ctx map[string]any) {
		issues = append(issues, warehouse.Issue{
			BatchID: batchID, Dataset: string(staging.DatasetOperations),
			RowNumber: rowNumber, Type: typ, Message: message, Context: ctx,
		})
	}

	for _, sr := range rows {
		var raw map[string]any
		if err := json.Unmarshal(sr.Data, &raw); err != nil {
			add(sr.RowNumber, warehouse.IssueInvalidJSON, "staging row contains invalid JSON", nil)
			continue
		}

		if missing := missingFields(raw, "factory_code", "date"); len(missing) > 0 {
			for _, field := range missing {
				add(sr.RowNumber, warehouse.IssueMissingValue, field+" is required", map[string]any{"field": field})
			}
			continue
		}

		year, month, err := parsePeriod(raw["date"])
		if err != nil {
			add(sr.RowNumber, warehouse.IssueInvalidDate, err.Error(), map[string]any{"value": raw["date"]})
			continue
		}

		factory := warehouse.ResolveAlias(asString(raw["factory_code"]), aliases.Factory)
		if factory == "" {
			add(sr.RowNumber, warehouse.IssueMissingValue, "factory_code is required", nil)
			continue
		}

		key := periodKey{factory, year, month}
		if _, dup := seen[key]; dup {
			add(sr.RowNumber, warehouse.IssueDuplicateKey, "duplicate factory+period combination",
				map[string]any{"factory_code": factory, "year": year, "month": month})
			continue
		}
		seen[key] = struct{}{}

		// A bad measure degrades the row but does not reject it.
		var metrics []measure
		for _, field := range warehouse.OperationsMeasures {
			v := raw[field]
			if v == nil {
				continue
			}
			f, ok := validate.Numeric(v)
			if !ok {
				add(sr.RowNumber, warehouse.IssueInvalidValue, field+" must be numeric", map[string]any{"field": field})
				continue
			}
			metrics = append(metrics, measure{field, f})
		}

		// Narrow indicator/value rows carry a single metric.
		if len(metrics) == 0 && truthy(raw["indicator"]) && raw["value"] != nil {
			f, ok := validate.Numeric(raw["value"])
			if !ok {
				add(sr.RowNumber, warehouse.IssueInvalidValue, "value must be numeric", nil)
				continue
			}
			name := strings.ToLower(strings.TrimSpace(asString(raw["indicator"])))
			metrics = append(metrics, measure{name, f})
		}

		if len(metrics) == 0 {
			add(sr.RowNumber, warehouse.IssueMissingValue, "no metrics to load", nil)
			continue
		}

		anomaly := false
		for _, m := range metrics {
			threshold := thresholdFor(overrides, m.name, defaultThreshold)
			if math.Abs(m.value) > threshold {
				anomaly = true
				add(sr.RowNumber, warehouse.IssueAnomaly,
					fmt.Sprintf("%s exceeds threshold %s", m.name, formatFloat(threshold)),
					map[string]any{"metric": m.name, "value": m.value, "threshold": threshold})
			}
		}
		if anomaly {
			continue
		}

		rec := warehouse.OperationsRecord{FactoryCode: factory, Year: year, Month: month}
		for _, m := range metrics {
			rec.SetMeasure(m.name, m.value)
		}
		records = append(records, rec)
	}
	return records, issues
}

// buildKPI cleanses staged kpi rows into fact records. Anomaly overrides are
// matched case-insensitively against the metric code.
func buildKPI(batchID int64, rows []staging.StagedRow, aliases warehouse.AliasMaps, overrides map[string]float64, defaultThreshold float64) ([]warehouse.KPIRecord, []warehouse.Issue) {
	type metricKey struct {
		employee    string
		year, month int
		metric      string
	}

	lowered := make(map[string]float64, len(overrides))
	for k, v := range overrides {
		lowered[strings.ToLower(k)] = v
	}

	var (
		records []warehouse.KPIRecord
		issues  []warehouse.Issue
	)
	seen := make(map[metricKey]struct{})
	add := func(rowNumber int, typ, message string, ctx map[string]any) {
		issues = append(issues, warehouse.Issue{
			BatchID: batchID, Dataset: string(staging.DatasetKPI),
			RowNumber: rowNumber, Type: typ, Message: message, Context: ctx,
		})
	}

	for _, sr := range rows {
		var raw map[string]any
		if err := json.Unmarshal(sr.Data, &raw); err != nil {
			add(sr.RowNumber, warehouse.IssueInvalidJSON, "staging row contains invalid JSON", nil)
			continue
		}

		if missing := missingFields(raw, "employee_id", "indicator", "value", "date"); len(missing) > 0 {
			for _, field := range missing {
				add(sr.RowNumber, warehouse.IssueMissingValue, field+" is required", map[string]any{"field": field})
			}
			continue
		}

		year, month, err := parsePeriod(raw["date"])
		if err != nil {
			add(sr.RowNumber, warehouse.IssueInvalidDate, err.Error(), map[string]any{"value": raw["date"]})
			continue
		}

		metricCode := strings.TrimSpace(asString(raw["indicator"]))
		employee := warehouse.ResolveAlias(asString(raw["employee_id"]), aliases.Employee)
		if employee == "" {
			add(sr.RowNumber, warehouse.IssueMissingValue, "employee_id is required", nil)
			continue
		}

		key := metricKey{employee, year, month, strings.ToLower(metricCode)}
		if _, dup := seen[key]; dup {
			add(sr.RowNumber, warehouse.IssueDuplicateKey, "duplicate employee+period+metric combination",
				map[string]any{"employee_id": employee, "year": year, "month": month, "metric": metricCode})
			continue
		}
		seen[key] = struct{}{}

		value, ok := validate.Numeric(raw["value"])
		if !ok {
			add(sr.RowNumber, warehouse.IssueInvalidValue, "value must be numeric", nil)
			continue
		}

		threshold := thresholdFor(lowered, strings.ToLower(metricCode), defaultThreshold)
		if math.Abs(value) > threshold {
			add(sr.RowNumber, warehouse.IssueAnomaly,
				fmt.Sprintf("%s exceeds threshold %s", metricCode, formatFloat(threshold)),
				map[string]any{"metric": metricCode, "value": value, "threshold": threshold})
			continue
		}

		var factory string
		if raw["factory_code"] != nil {
			factory = warehouse.ResolveAlias(asString(raw["factory_code"]), aliases.Factory)
		}

		rec := warehouse.KPIRecord{
			EmployeeID: employee, FactoryCode: factory, MetricCode: metricCode,
			Value: value, Year: year, Month: month,
		}
		if target, ok := validate.Numeric(raw["target"]); ok {
			rec.Target = &target
		}
		records = append(records, rec)
	}
	return records, issues
}

func missingFields(row map[string]any, fields ...string) []string {
	var missing []string
	for _, f := range fields {
		if blank(row[f]) {
			missing = append(missing, f)
		}
	}
	return missing
}

// blank reports whether a field counts as absent: nil or a whitespace-only
// string. Numbers and booleans are never blank.
func blank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// truthy mirrors JSON value truthiness: nil, "", 0 and false are all absent.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case float64:
		return x != 0
	default:
		return true
	}
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

var periodLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339}

// parsePeriod extracts (year, month) from a staged date cell. Dates normally
// arrive in ISO form from upload validation, but staging rows inserted by
// other tools may carry a clock part.
func parsePeriod(v any) (year, month int, err error) {
	s := strings.TrimSpace(asString(v))
	if s == "" {
		return 0, 0, errors.New("date is required for period parsing")
	}
	for _, layout := range periodLayouts {
		t, perr := time.Parse(layout, s)
		if perr == nil {
			return t.Year(), int(t.Month()), nil
		}
	}
	return 0, 0, fmt.Errorf("cannot parse %q as a date", s)
}

func thresholdFor(overrides map[string]float64, metric string, fallback float64) float64 {
	if t, ok := overrides[metric]; ok {
		return t
	}
	return fallback
}

// formatFloat renders thresholds in plain decimal form for issue messages.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
