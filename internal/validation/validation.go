// Package validation provides common validation functions for IDs and paths.
// This package has no dependencies on other internal packages to avoid import cycles.
package validation

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidPathSegment indicates a store identifier (namespace, category,
// item id, entity name) is malformed or attempts path traversal.
var ErrInvalidPathSegment = errors.New("invalid path segment")

// PathSegment checks that value is safe for use as a single filesystem
// path segment, rejecting traversal attempts ("..", embedded separators,
// absolute paths). Returns the cleaned value. The memory store calls this
// for namespace (when namespaces are enabled), item id, box id, question
// id, entity-name and transcript channel segments; category directory
// names are not passed through it.
func PathSegment(value string) (string, error) {
	if value == "" {
		return "", ErrInvalidPathSegment
	}
	if value == "." || value == ".." {
		return "", ErrInvalidPathSegment
	}
	if strings.ContainsAny(value, `/\`) {
		return "", ErrInvalidPathSegment
	}
	clean := filepath.Clean(value)
	if clean != value ||
		strings.HasPrefix(clean, "..") ||
		strings.Contains(clean, string(os.PathSeparator)+"..") ||
		filepath.IsAbs(clean) {
		return "", ErrInvalidPathSegment
	}
	return clean, nil
}
