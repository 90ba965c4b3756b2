// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package warehouse

import "strings"

// Fold canonicalizes an identifier the way the dimension tables store it:
// trimmed and upper-cased.
func Fold(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ResolveAlias folds raw and maps it through an alias table. Alias keys are
// matched after folding, so "tw-01 " and "TW-01" hit the same row. Empty
// input stays empty.
func ResolveAlias(raw string, aliases map[string]string) string {
	code := Fold(raw)
	if code == "" {
		return ""
	}
	if canonical, ok := aliases[code]; ok && canonical != "" {
		return Fold(canonical)
	}
	return code
}

// AliasMaps carries both alias tables, keys pre-folded for ResolveAlias.
type AliasMaps struct {
	Factory  map[string]string
	Employee map[string]string
}
