// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package warehouse owns the analytical star schema: conformed dimensions,
// the operations and KPI fact tables, metric definitions, calculated KPI
// results, alias mapping tables, and the data-quality issue log the ETL
// writes while loading.
package warehouse

import "time"

// Issue types recorded in dq_issues.
const (
	IssueInvalidJSON  = "invalid_json"
	IssueMissingValue = "missing_value"
	IssueInvalidDate  = "invalid_date"
	IssueDuplicateKey = "duplicate_key"
	IssueInvalidValue = "invalid_value"
	IssueAnomaly      = "anomaly"
)

// Scopes for metric definitions and calculated facts.
const (
	ScopeFactory  = "factory"
	ScopeEmployee = "employee"
)

// Measure column names on fact_operations, in storage order.
var OperationsMeasures = []string{"revenue", "cost", "output_qty", "downtime_hours"}

// OperationsRecord is one cleansed factory+period row bound for
// fact_operations. Nil measures load as NULL.
type OperationsRecord struct {
	FactoryCode   string
	Year          int
	Month         int
	Revenue       *float64
	Cost          *float64
	OutputQty     *float64
	DowntimeHours *float64
}

// Measure returns the named measure pointer, nil for unknown names.
func (r *OperationsRecord) Measure(name string) *float64 {
	switch name {
	case "revenue":
		return r.Revenue
	case "cost":
		return r.Cost
	case "output_qty":
		return r.OutputQty
	case "downtime_hours":
		return r.DowntimeHours
	}
	return nil
}

// SetMeasure stores value under the named measure. Unknown names are ignored.
func (r *OperationsRecord) SetMeasure(name string, value float64) {
	v := value
	switch name {
	case "revenue":
		r.Revenue = &v
	case "cost":
		r.Cost = &v
	case "output_qty":
		r.OutputQty = &v
	case "downtime_hours":
		r.DowntimeHours = &v
	}
}

// KPIRecord is one cleansed employee metric row bound for fact_kpi.
// FactoryCode, when set, updates the employee dimension.
type KPIRecord struct {
	EmployeeID  string
	FactoryCode string
	MetricCode  string
	Value       float64
	Target      *float64
	Year        int
	Month       int
}

// Issue is one data-quality finding tied to a batch and staging row.
type Issue struct {
	ID        int64          `json:"id,omitempty"`
	BatchID   int64          `json:"batch_id"`
	Dataset   string         `json:"dataset"`
	RowNumber int            `json:"row_number"`
	Type      string         `json:"issue_type"`
	Message   string         `json:"issue_message"`
	Context   map[string]any `json:"context,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Period is one dim_period row.
type Period struct {
	Key     int64 `json:"period_key"`
	Month   int   `json:"month"`
	Quarter int   `json:"quarter"`
	Year    int   `json:"year"`
}

// QuarterOf maps a calendar month (1..12) to its quarter.
func QuarterOf(month int) int {
	return (month-1)/3 + 1
}

// MetricDefinition is one kpi_metrics row. An empty Formula means the metric
// takes its value straight from the evaluation context under its own code.
type MetricDefinition struct {
	MetricCode   string   `json:"metric_code" yaml:"metric_code"`
	Scope        string   `json:"scope" yaml:"scope"`
	Formula      string   `json:"formula,omitempty" yaml:"formula"`
	Aggregation  string   `json:"aggregation,omitempty" yaml:"aggregation"`
	Weight       *float64 `json:"weight,omitempty" yaml:"weight"`
	TargetSource string   `json:"target_source,omitempty" yaml:"target_source"`
}

// FactoryAggregate is the per-factory, per-period sum of fact_operations
// measures that seeds factory-scope KPI evaluation. A measure summed over
// only-NULL rows stays nil.
type FactoryAggregate struct {
	FactoryKey int64
	Period     Period
	Measures   map[string]*float64
}

// EmployeeAggregate groups fact_kpi per employee+period: summed value and
// averaged target per metric code.
type EmployeeAggregate struct {
	EmployeeKey int64
	Period      Period
	Values      map[string]*float64
	Targets     map[string]float64
}

// CalcRow is one fact_kpi_calc row.
type CalcRow struct {
	ID         int64     `json:"id,omitempty"`
	BatchID    int64     `json:"batch_id"`
	PeriodKey  int64     `json:"period_key"`
	Scope      string    `json:"scope"`
	ScopeID    int64     `json:"scope_id"`
	MetricCode string    `json:"metric_code"`
	Value      *float64  `json:"value"`
	Target     *float64  `json:"target,omitempty"`
	Weight     *float64  `json:"weight,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// CalcFilter narrows CalcResults queries. Zero fields match everything.
type CalcFilter struct {
	BatchID    *int64
	Scope      string
	MetricCode string
	PeriodKey  *int64
}
