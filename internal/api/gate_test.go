// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// Handlers reach the database only through the store packages, so schema
// and SQL stay out of the transport layer.
func TestAPIStaysOutOfSQL(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedImports | packages.NeedName}
	pkgs, err := packages.Load(cfg,
		"github.com/ManuGH/xl2wh/internal/api",
		"github.com/ManuGH/xl2wh/internal/api/middleware",
	)
	if err != nil {
		t.Fatalf("failed to load packages: %v", err)
	}

	forbiddenPatterns := []string{
		"database/sql",
		"modernc.org/sqlite",
		"github.com/ManuGH/xl2wh/internal/persistence",
	}

	for _, pkg := range pkgs {
		for imp := range pkg.Imports {
			for _, pattern := range forbiddenPatterns {
				if strings.Contains(imp, pattern) {
					t.Errorf("forbidden import in API package %s: %s (matches pattern %s)", pkg.PkgPath, imp, pattern)
				}
			}
		}
	}
}
