// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package kpi

import (
	"context"
	"fmt"
	"strings"

	"github.com/ManuGH/xl2wh/internal/warehouse"
)

const (
	levelQuarter = "quarter"
	levelYear    = "year"
)

// seriesPoint is one monthly observation inside a rollup group. Values and
// targets form separate series so each aggregates from its own points.
type seriesPoint struct {
	month int
	value float64
}

type rollupGroup struct {
	values  []seriesPoint
	targets []seriesPoint
}

// rollup folds monthly rows of one scope into quarter or year rows. Quarter
// rows land on the quarter-end month, year rows on December, with missing
// period dimension rows created on demand. Group order follows first
// appearance in the monthly results.
func (e *Engine) rollup(ctx context.Context, monthly []warehouse.CalcRow, defs []warehouse.MetricDefinition, periods map[int64]warehouse.Period, scope, level string) ([]warehouse.CalcRow, error) {
	byCode := make(map[string]warehouse.MetricDefinition, len(defs))
	for _, d := range defs {
		byCode[d.MetricCode] = d
	}

	type groupKey struct {
		scopeID int64
		metric  string
		year    int
		quarter int
	}
	var (
		order  []groupKey
		groups = make(map[groupKey]*rollupGroup)
	)
	for _, row := range monthly {
		if row.Scope != scope {
			continue
		}
		period, ok := periods[row.PeriodKey]
		if !ok {
			continue
		}
		key := groupKey{scopeID: row.ScopeID, metric: row.MetricCode, year: period.Year}
		if level == levelQuarter {
			key.quarter = period.Quarter
		}
		g, ok := groups[key]
		if !ok {
			g = &rollupGroup{}
			groups[key] = g
			order = append(order, key)
		}
		if row.Value != nil {
			g.values = append(g.values, seriesPoint{month: period.Month, value: *row.Value})
		}
		if row.Target != nil {
			g.targets = append(g.targets, seriesPoint{month: period.Month, value: *row.Target})
		}
	}

	var rolled []warehouse.CalcRow
	for _, key := range order {
		def, ok := byCode[key.metric]
		if !ok {
			continue
		}
		month := 12
		if level == levelQuarter {
			month = key.quarter * 3
		}
		periodKey, err := e.store.EnsurePeriod(ctx, month, key.year)
		if err != nil {
			return nil, fmt.Errorf("rollup period %d-%02d: %w", key.year, month, err)
		}
		g := groups[key]
		rolled = append(rolled, warehouse.CalcRow{
			PeriodKey:  periodKey,
			Scope:      scope,
			ScopeID:    key.scopeID,
			MetricCode: key.metric,
			Value:      aggregateSeries(g.values, def.Aggregation),
			Target:     aggregateSeries(g.targets, def.Aggregation),
			Weight:     def.Weight,
		})
	}
	return rolled, nil
}

// aggregateSeries folds the non-NULL points of one series into a single
// value. An empty series stays NULL, unknown methods fall back to sum, and
// latest picks the point with the highest month.
func aggregateSeries(points []seriesPoint, method string) *float64 {
	if len(points) == 0 {
		return nil
	}
	var out float64
	switch strings.ToLower(method) {
	case "avg", "mean":
		for _, p := range points {
			out += p.value
		}
		out /= float64(len(points))
	case "max":
		out = points[0].value
		for _, p := range points[1:] {
			if p.value > out {
				out = p.value
			}
		}
	case "min":
		out = points[0].value
		for _, p := range points[1:] {
			if p.value < out {
				out = p.value
			}
		}
	case "latest":
		best := points[0]
		for _, p := range points[1:] {
			if p.month > best.month {
				best = p
			}
		}
		out = best.value
	default:
		for _, p := range points {
			out += p.value
		}
	}
	return &out
}
