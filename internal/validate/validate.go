// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package validate implements the row-level rules applied to imported
// spreadsheet data before it is staged.
package validate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Error codes recorded in validation_errors. These strings are part of the
// API contract and must not change.
const (
	CodeMissingColumn = "missing_column"
	CodeMissingField  = "missing_field"
	CodeInvalidValue  = "invalid_value"
	CodeInvalidFormat = "invalid_format"
	CodeInvalidType   = "invalid_type"
	CodeInvalidFile   = "invalid_file"
)

// FileColumn is the synthetic column name for errors that concern a whole
// file rather than a single cell.
const FileColumn = "__file__"

// RowError describes one failed validation rule for one cell.
type RowError struct {
	Column  string
	Code    string
	Message string
}

func (e RowError) Error() string {
	return fmt.Sprintf("%s: %s", e.Column, e.Message)
}

// RequiredColumns lists the columns every workbook must provide, in the
// order they are reported when missing.
func RequiredColumns() []string {
	return []string{"factory_code", "date", "employee_id", "indicator", "value"}
}

// MissingColumns returns the required columns absent from the given
// normalized header set.
func MissingColumns(headers []string) []string {
	present := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		present[h] = struct{}{}
	}
	var missing []string
	for _, col := range RequiredColumns() {
		if _, ok := present[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

// Rules holds the configured value constraints. The zero value accepts any
// factory code and no indicator, so always construct via NewRules.
type Rules struct {
	allowedFactories  map[string]struct{}
	allowedIndicators map[string]struct{}
	factoryList       string
	indicatorList     string
}

// NewRules builds the rule set. An empty factoryCodes slice disables the
// factory allowlist; indicators always have an allowlist.
func NewRules(factoryCodes, indicators []string) *Rules {
	r := &Rules{
		allowedFactories:  make(map[string]struct{}, len(factoryCodes)),
		allowedIndicators: make(map[string]struct{}, len(indicators)),
	}
	for _, c := range factoryCodes {
		r.allowedFactories[c] = struct{}{}
	}
	for _, i := range indicators {
		r.allowedIndicators[i] = struct{}{}
	}
	r.factoryList = joinSorted(factoryCodes)
	r.indicatorList = joinSorted(indicators)
	return r
}

func joinSorted(values []string) string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return strings.Join(out, ", ")
}

// ValidateRow applies all rules to a row keyed by normalized headers.
// On success it returns the cleaned row: the date in ISO form, the value as
// float64 and empty cells as nil. On failure the cleaned row is nil and
// every violated rule is reported.
func (r *Rules) ValidateRow(row map[string]any) (map[string]any, []RowError) {
	cleaned := make(map[string]any, len(row))
	for k, v := range row {
		cleaned[k] = v
	}
	var errs []RowError

	factory := cellString(row["factory_code"])
	if factory == "" {
		errs = append(errs, RowError{Column: "factory_code", Code: CodeMissingField, Message: "factory_code is required"})
	} else if len(r.allowedFactories) > 0 {
		if _, ok := r.allowedFactories[factory]; !ok {
			errs = append(errs, RowError{Column: "factory_code", Code: CodeInvalidValue,
				Message: "factory_code must be one of: " + r.factoryList})
		}
	}

	date := cellString(row["date"])
	if date == "" {
		errs = append(errs, RowError{Column: "date", Code: CodeMissingField, Message: "date is required"})
	} else if iso, err := ParseDate(date); err != nil {
		errs = append(errs, RowError{Column: "date", Code: CodeInvalidFormat, Message: err.Error()})
	} else {
		cleaned["date"] = iso
	}

	if cellString(row["employee_id"]) == "" {
		errs = append(errs, RowError{Column: "employee_id", Code: CodeMissingField, Message: "employee_id is required"})
	}

	indicator := cellString(row["indicator"])
	if indicator == "" {
		errs = append(errs, RowError{Column: "indicator", Code: CodeMissingField, Message: "indicator is required"})
	} else if _, ok := r.allowedIndicators[indicator]; !ok {
		errs = append(errs, RowError{Column: "indicator", Code: CodeInvalidValue,
			Message: "indicator must be one of: " + r.indicatorList})
	}

	if f, ok := Numeric(row["value"]); !ok {
		errs = append(errs, RowError{Column: "value", Code: CodeInvalidType, Message: "value must be numeric"})
	} else {
		cleaned["value"] = f
	}

	if len(errs) > 0 {
		return nil, errs
	}

	for k, v := range cleaned {
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			cleaned[k] = nil
		}
	}
	return cleaned, nil
}

// Numeric coerces a cell value to float64. It accepts numeric Go types and
// numeric strings.
func Numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", x))
	}
}
