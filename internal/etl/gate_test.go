// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package etl

import (
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// The pipeline layer must stay transport-free: HTTP belongs to internal/api,
// which calls down into these packages, never the other way around.
func TestPipelinePackagesStayTransportFree(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedImports | packages.NeedName}
	pkgs, err := packages.Load(cfg,
		"github.com/ManuGH/xl2wh/internal/etl",
		"github.com/ManuGH/xl2wh/internal/kpi",
		"github.com/ManuGH/xl2wh/internal/ingest",
		"github.com/ManuGH/xl2wh/internal/analysis",
	)
	if err != nil {
		t.Fatalf("failed to load packages: %v", err)
	}

	forbiddenPatterns := []string{
		"net/http",
		"github.com/go-chi/chi",
		"github.com/ManuGH/xl2wh/internal/api",
	}

	for _, pkg := range pkgs {
		for imp := range pkg.Imports {
			for _, pattern := range forbiddenPatterns {
				if strings.Contains(imp, pattern) {
					t.Errorf("forbidden import in pipeline package %s: %s (matches pattern %s)", pkg.PkgPath, imp, pattern)
				}
			}
		}
	}
}
