// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package kpi evaluates metric definitions against warehouse aggregates and
// replaces a batch's calculated facts, including quarter and year rollups.
// Formulas are HCL expressions over the measure and metric names in scope.
package kpi

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/ManuGH/xl2wh/internal/log"
	"github.com/ManuGH/xl2wh/internal/metrics"
	"github.com/ManuGH/xl2wh/internal/warehouse"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Context carries the values visible to a formula during evaluation: the base
// measures of the record plus every metric computed so far. A nil entry is a
// known-but-NULL value and poisons any arithmetic that touches it.
type Context map[string]*float64

// MetricFunc computes a metric from the full evaluation context. Registered
// functions can be named directly as a formula or called inside one.
type MetricFunc func(Context) (float64, error)

// builtinFunctions are available in every formula evaluation. Registered
// MetricFuncs with the same name take precedence.
var builtinFunctions = map[string]function.Function{
	"abs":   stdlib.AbsoluteFunc,
	"ceil":  stdlib.CeilFunc,
	"floor": stdlib.FloorFunc,
	"max":   stdlib.MaxFunc,
	"min":   stdlib.MinFunc,
	"pow":   stdlib.PowFunc,
}

// Engine runs KPI calculations against one warehouse store.
type Engine struct {
	store     *warehouse.SqliteStore
	functions map[string]MetricFunc
}

// NewEngine returns an engine bound to the store. functions may be nil.
func NewEngine(store *warehouse.SqliteStore, functions map[string]MetricFunc) *Engine {
	return &Engine{store: store, functions: functions}
}

// Calculate evaluates every metric definition against the warehouse
// aggregates and replaces the batch's calculated facts. An empty periodKeys
// slice covers all periods. It returns the number of result rows written.
func (e *Engine) Calculate(ctx context.Context, batchID int64, periodKeys []int64) (int, error) {
	start := time.Now()
	logger := log.WithComponentFromContext(ctx, "kpi").With().
		Int64(log.FieldBatchID, batchID).
		Logger()
	fail := func(err error) (int, error) {
		logger.Error().Err(err).Str("event", "kpi.failed").Msg("kpi calculation failed")
		metrics.RecordKPICalculation(false, 0, time.Since(start).Seconds())
		return 0, err
	}

	defs, err := e.store.MetricDefinitions(ctx)
	if err != nil {
		return fail(err)
	}
	periods, err := e.store.PeriodIndex(ctx)
	if err != nil {
		return fail(err)
	}

	var factoryDefs, employeeDefs []warehouse.MetricDefinition
	for _, d := range defs {
		switch d.Scope {
		case warehouse.ScopeFactory:
			factoryDefs = append(factoryDefs, d)
		case warehouse.ScopeEmployee:
			employeeDefs = append(employeeDefs, d)
		}
	}

	factories, err := e.store.FactoryAggregates(ctx, periodKeys)
	if err != nil {
		return fail(err)
	}
	employees, err := e.store.EmployeeAggregates(ctx, periodKeys)
	if err != nil {
		return fail(err)
	}

	monthly := e.scopeResults(factoryRecords(factories), factoryDefs, warehouse.ScopeFactory)
	monthly = append(monthly, e.scopeResults(employeeRecords(employees), employeeDefs, warehouse.ScopeEmployee)...)

	results := make([]warehouse.CalcRow, 0, len(monthly)*2)
	results = append(results, monthly...)

	// Rollups aggregate the monthly rows only. Feeding quarter rows back into
	// the year rollup would count quarter-end months twice.
	for _, r := range []struct {
		defs  []warehouse.MetricDefinition
		scope string
		level string
	}{
		{factoryDefs, warehouse.ScopeFactory, levelQuarter},
		{factoryDefs, warehouse.ScopeFactory, levelYear},
		{employeeDefs, warehouse.ScopeEmployee, levelQuarter},
		{employeeDefs, warehouse.ScopeEmployee, levelYear},
	} {
		rolled, err := e.rollup(ctx, monthly, r.defs, periods, r.scope, r.level)
		if err != nil {
			return fail(err)
		}
		results = append(results, rolled...)
	}

	if err := e.store.ReplaceCalc(ctx, batchID, results); err != nil {
		return fail(err)
	}

	elapsed := time.Since(start)
	observeCalc(ctx, len(results), elapsed)
	metrics.RecordKPICalculation(true, len(results), elapsed.Seconds())
	logger.Info().
		Str("event", "kpi.completed").
		Int("definitions", len(defs)).
		Int("results", len(results)).
		Int64("processing_ms", elapsed.Milliseconds()).
		Msg("kpi calculation finished")
	return len(results), nil
}

// scopeRecord is one scope entity in one period: its base measure context and
// any targets averaged out of the fact table.
type scopeRecord struct {
	scopeID   int64
	periodKey int64
	base      Context
	targets   map[string]float64
}

func factoryRecords(aggs []warehouse.FactoryAggregate) []scopeRecord {
	records := make([]scopeRecord, len(aggs))
	for i, a := range aggs {
		records[i] = scopeRecord{
			scopeID:   a.FactoryKey,
			periodKey: a.Period.Key,
			base:      Context(a.Measures),
		}
	}
	return records
}

func employeeRecords(aggs []warehouse.EmployeeAggregate) []scopeRecord {
	records := make([]scopeRecord, len(aggs))
	for i, a := range aggs {
		records[i] = scopeRecord{
			scopeID:   a.EmployeeKey,
			periodKey: a.Period.Key,
			base:      Context(a.Values),
			targets:   a.Targets,
		}
	}
	return records
}

// scopeResults evaluates all definitions of one scope against each record and
// emits one row per computed metric, in definition order. Metrics whose
// dependencies never resolve produce no row at all; metrics that resolve to
// nothing produce a NULL row.
func (e *Engine) scopeResults(records []scopeRecord, defs []warehouse.MetricDefinition, scope string) []warehouse.CalcRow {
	var rows []warehouse.CalcRow
	for _, rec := range records {
		computed := e.evaluateMetrics(defs, rec.base)
		for _, def := range defs {
			value, ok := computed[def.MetricCode]
			if !ok {
				continue
			}
			var target *float64
			if def.TargetSource == "fact_kpi" {
				if t, ok := rec.targets[def.MetricCode]; ok {
					target = &t
				}
			}
			rows = append(rows, warehouse.CalcRow{
				PeriodKey:  rec.periodKey,
				Scope:      scope,
				ScopeID:    rec.scopeID,
				MetricCode: def.MetricCode,
				Value:      value,
				Target:     target,
				Weight:     def.Weight,
			})
		}
	}
	return rows
}

// evaluateMetrics resolves definitions against the base context in passes so
// metrics may reference each other in any definition order. A metric whose
// formula fails with its dependencies present is recorded as nil; one whose
// dependencies never appear is left out entirely.
func (e *Engine) evaluateMetrics(defs []warehouse.MetricDefinition, base Context) map[string]*float64 {
	computed := make(map[string]*float64, len(defs))
	evalCtx := make(Context, len(base)+len(defs))
	for name, value := range base {
		evalCtx[name] = value
	}

	// One pass per definition is enough for any resolvable dependency chain.
	for range defs {
		progress := false
		for _, def := range defs {
			if _, done := computed[def.MetricCode]; done {
				continue
			}
			value := e.evaluateMetric(def, evalCtx)
			if value == nil && !e.dependenciesReady(def, evalCtx) {
				continue
			}
			computed[def.MetricCode] = value
			if value != nil {
				evalCtx[def.MetricCode] = value
			}
			progress = true
		}
		if !progress {
			break
		}
	}
	return computed
}

// evaluateMetric computes one metric, returning nil when the formula cannot
// produce a finite number. A definition without a formula takes its value
// straight from the context under its own code.
func (e *Engine) evaluateMetric(def warehouse.MetricDefinition, evalCtx Context) *float64 {
	if def.Formula == "" {
		return evalCtx[def.MetricCode]
	}

	if fn, ok := e.functions[def.Formula]; ok {
		v, err := fn(evalCtx)
		if err != nil {
			return nil
		}
		return &v
	}

	expr, diags := hclsyntax.ParseExpression([]byte(normalizeExpression(def.Formula)), def.MetricCode, hcl.InitialPos)
	if diags.HasErrors() {
		return nil
	}
	val, diags := expr.Value(e.hclContext(evalCtx))
	if diags.HasErrors() || val.IsNull() {
		return nil
	}
	val, err := convert.Convert(val, cty.Number)
	if err != nil {
		return nil
	}
	f, _ := val.AsBigFloat().Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil
	}
	return &f
}

// dependenciesReady reports whether every variable the formula references is
// present in the context. Formulas naming a registered function directly and
// formulas that do not parse are both ready: retrying them cannot help.
func (e *Engine) dependenciesReady(def warehouse.MetricDefinition, evalCtx Context) bool {
	if def.Formula == "" {
		return true
	}
	if _, ok := e.functions[def.Formula]; ok {
		return true
	}
	expr, diags := hclsyntax.ParseExpression([]byte(normalizeExpression(def.Formula)), def.MetricCode, hcl.InitialPos)
	if diags.HasErrors() {
		return true
	}
	for _, traversal := range expr.Variables() {
		if _, ok := evalCtx[traversal.RootName()]; !ok {
			return false
		}
	}
	return true
}

// hclContext builds the HCL evaluation context: one number variable per
// context entry (NULL for nil) plus builtin and registered functions.
func (e *Engine) hclContext(evalCtx Context) *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(evalCtx))
	for name, value := range evalCtx {
		if value == nil {
			vars[name] = cty.NullVal(cty.Number)
		} else {
			vars[name] = cty.NumberFloatVal(*value)
		}
	}

	funcs := make(map[string]function.Function, len(builtinFunctions)+len(e.functions))
	for name, fn := range builtinFunctions {
		funcs[name] = fn
	}
	for name, fn := range e.functions {
		funcs[name] = function.New(&function.Spec{
			Type: function.StaticReturnType(cty.Number),
			Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
				v, err := fn(evalCtx)
				if err != nil {
					return cty.NilVal, err
				}
				return cty.NumberFloatVal(v), nil
			},
		})
	}

	return &hcl.EvalContext{Variables: vars, Functions: funcs}
}

// normalizeExpression strips an optional "name = expr" assignment prefix so
// definitions may spell the formula either way.
func normalizeExpression(formula string) string {
	expr := strings.TrimSpace(formula)
	if i := strings.Index(expr, "="); i >= 0 {
		expr = strings.TrimSpace(expr[i+1:])
	}
	return expr
}
