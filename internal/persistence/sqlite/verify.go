package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
)

// VerifyIntegrity runs SQLite's corruption check against the file at path.
// mode "full" runs integrity_check; anything else runs the cheaper
// quick_check. A healthy database yields (nil, nil); findings come back as
// the pragma's diagnostic rows.
func VerifyIntegrity(path, mode string) ([]string, error) {
	// Read-only handle: verification must never touch the file, even to
	// roll a journal forward.
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro&_busy_timeout=2000")
	if err != nil {
		return nil, fmt.Errorf("open for verification: %w", err)
	}
	defer func() { _ = db.Close() }()

	pragma := "PRAGMA quick_check;"
	if mode == "full" {
		pragma = "PRAGMA integrity_check;"
	}

	findings, err := collectRows(db, pragma)
	if err != nil {
		return nil, err
	}

	switch {
	case len(findings) == 0:
		// The pragma always reports at least one row on a readable file.
		return []string{"no results returned from integrity check"}, nil
	case len(findings) == 1 && strings.EqualFold(findings[0], "ok"):
		return nil, nil
	default:
		return findings, nil
	}
}

func collectRows(db *sql.DB, query string) ([]string, error) {
	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("integrity pragma failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("scan integrity row: %w", err)
		}
		out = append(out, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("integrity scan failed: %w", err)
	}
	return out, nil
}
