// Package fsutil confines externally influenced paths to their intended
// roots. Archive keys pass through here before they touch the filesystem.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveUnder joins rel onto root and resolves the result, erroring when it
// escapes root through "..", absolute segments, or symlinks. rel must be
// relative. Backslashes are rejected outright so generic parsing stays
// unambiguous across platforms.
func ResolveUnder(root, rel string) (string, error) {
	if strings.Contains(rel, `\`) {
		return "", fmt.Errorf("path contains backslash: %s", rel)
	}

	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "/") {
		return "", fmt.Errorf("target path must be relative: %s", rel)
	}
	// Clean collapses interior "..", so anything still leading with ".."
	// points outside the root.
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal attempt: %s", rel)
	}

	realRoot, err := resolveRoot(root)
	if err != nil {
		return "", err
	}
	return checkWithin(realRoot, filepath.Join(realRoot, clean))
}

// resolveRoot canonicalizes the confinement root. A missing root is an
// error; a root that cannot be fully resolved falls back to its absolute
// form.
func resolveRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root path: %w", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", err
		}
		return abs, nil
	}
	return real, nil
}

// checkWithin resolves the candidate's symlinks and verifies the real path
// still sits under realRoot.
func checkWithin(realRoot, candidate string) (string, error) {
	realPath, err := resolveCandidate(candidate)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(realRoot, realPath)
	if err != nil {
		return "", fmt.Errorf("rel computation failed: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes root via symlinks: %s", realPath)
	}
	return realPath, nil
}

// resolveCandidate canonicalizes a path that may not exist yet. An existing
// path that cannot be resolved fails closed. For a missing path the parent
// decides: a resolvable parent anchors the final component, a missing parent
// falls through to the containment check on the joined path.
func resolveCandidate(candidate string) (string, error) {
	if _, err := os.Lstat(candidate); err == nil {
		real, resolveErr := filepath.EvalSymlinks(candidate)
		if resolveErr != nil {
			return "", fmt.Errorf("failed to resolve path: %w", resolveErr)
		}
		return real, nil
	}

	dir := filepath.Dir(candidate)
	real, err := filepath.EvalSymlinks(dir)
	if err == nil {
		return filepath.Join(real, filepath.Base(candidate)), nil
	}
	if _, statErr := os.Stat(dir); statErr == nil {
		return "", fmt.Errorf("failed to resolve parent path: %v", err)
	}
	return candidate, nil
}

// IsRegularFile errors unless path names an existing regular file.
func IsRegularFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", path)
	}
	return nil
}
