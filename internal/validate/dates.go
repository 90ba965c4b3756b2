// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package validate

import (
	"errors"
	"strings"
	"time"
)

// ErrDateFormat is returned for any date that does not match an accepted layout.
// The text is surfaced verbatim in validation errors.
var ErrDateFormat = errors.New("date format must be YYYY-MM-DD, YYYY/MM/DD, or YYYYMMDD")

var dateLayouts = []string{"2006-01-02", "2006/01/02", "20060102"}

// ParseDate normalizes an accepted date string to ISO YYYY-MM-DD form.
// Date-formatted spreadsheet cells often arrive with a clock component
// ("2024-03-01 00:00:00"); the clock part is dropped before parsing.
func ParseDate(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	if s == "" {
		return "", ErrDateFormat
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return t.Format("2006-01-02"), nil
	}
	return "", ErrDateFormat
}

// SplitDate returns the year and month of an ISO date produced by ParseDate.
func SplitDate(iso string) (year, month int, err error) {
	t, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return 0, 0, err
	}
	return t.Year(), int(t.Month()), nil
}
