// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package validate

import (
	"strings"

	"golang.org/x/text/width"
)

// NormalizeHeader canonicalizes a spreadsheet column header: full-width
// characters are narrowed, surrounding whitespace is trimmed, letters are
// lowered and interior whitespace becomes a single underscore.
// "Factory Code" and "ＦＡＣＴＯＲＹ　CODE" both map to "factory_code".
func NormalizeHeader(h string) string {
	s := width.Narrow.String(h)
	s = strings.ToLower(strings.TrimSpace(s))
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.Join(fields, "_")
}

// NormalizeHeaders maps NormalizeHeader over a header row, preserving order.
// Empty headers normalize to "" and are kept so column indexes stay aligned.
func NormalizeHeaders(headers []string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = NormalizeHeader(h)
	}
	return out
}
