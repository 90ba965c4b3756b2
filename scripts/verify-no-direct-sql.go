// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"fmt"
	"go/ast"
	"go/token"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/tools/go/packages"
)

// The store packages own all SQL. Everything else talks to them through
// their exported methods, so schema changes stay local to one package.
var sqlOwners = []string{
	"internal/persistence/sqlite",
	"internal/staging",
	"internal/warehouse",
	"internal/records",
}

func main() {
	pattern := "./internal/..."
	if len(os.Args) > 1 {
		pattern = os.Args[1]
	}

	violations, err := Analyze(pattern)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analysis failed: %v\n", err)
		os.Exit(1)
	}

	if len(violations) > 0 {
		fmt.Fprintln(os.Stderr, "❌ direct SQL outside the store packages:")
		for _, v := range violations {
			fmt.Fprintln(os.Stderr, v)
		}
		os.Exit(1)
	}
}

// Analyze flags database/sql imports and raw SQL statement literals in
// packages that are not designated SQL owners.
func Analyze(pattern string) ([]string, error) {
	cfg := &packages.Config{
		Mode: packages.NeedSyntax | packages.NeedFiles | packages.NeedName | packages.NeedImports,
		Dir:  ".",
	}
	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, fmt.Errorf("load packages: %w", err)
	}

	var violations []string
	for _, pkg := range pkgs {
		if isSQLOwner(pkg.PkgPath) {
			continue
		}

		for imp := range pkg.Imports {
			if imp == "database/sql" || strings.HasPrefix(imp, "modernc.org/sqlite") {
				violations = append(violations, fmt.Sprintf("%s: forbidden import %q (SQL belongs in the store packages)", pkg.PkgPath, imp))
			}
		}

		for i, file := range pkg.Syntax {
			filename := ""
			if i < len(pkg.CompiledGoFiles) {
				filename = pkg.CompiledGoFiles[i]
			} else if i < len(pkg.GoFiles) {
				filename = pkg.GoFiles[i]
			}
			if filename == "" || strings.HasSuffix(filename, "_test.go") {
				continue
			}

			ast.Inspect(file, func(n ast.Node) bool {
				lit, ok := n.(*ast.BasicLit)
				if !ok || lit.Kind != token.STRING {
					return true
				}
				val, err := strconv.Unquote(lit.Value)
				if err != nil {
					return true
				}
				if looksLikeSQL(val) {
					violations = append(violations, formatViolation(filename, lit.Pos(), fmt.Sprintf("raw SQL literal %.40q (use a store method)", val)))
				}
				return true
			})
		}
	}
	return violations, nil
}

func isSQLOwner(pkgPath string) bool {
	for _, owner := range sqlOwners {
		if strings.HasSuffix(pkgPath, owner) {
			return true
		}
	}
	return false
}

// looksLikeSQL matches statement-shaped literals, not every string that
// happens to start with a keyword.
func looksLikeSQL(val string) bool {
	lower := strings.ToLower(strings.TrimSpace(val))
	switch {
	case strings.HasPrefix(lower, "select ") && strings.Contains(lower, " from "):
		return true
	case strings.HasPrefix(lower, "insert into "):
		return true
	case strings.HasPrefix(lower, "update ") && strings.Contains(lower, " set "):
		return true
	case strings.HasPrefix(lower, "delete from "):
		return true
	case strings.HasPrefix(lower, "create table"):
		return true
	}
	return false
}

func formatViolation(filename string, pos token.Pos, msg string) string {
	if rel, err := filepath.Rel(".", filename); err == nil {
		filename = rel
	}
	return fmt.Sprintf("%s:%d: %s", filename, pos, msg)
}
