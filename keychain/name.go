package keychain

import (
	"path/filepath"
	"strings"
)

// ReservedName is the one key name that may never be created, renamed to,
// imported as, or removed.
const ReservedName = "self"

// ValidName reports whether name is acceptable as a key name: it must equal
// its own trimmed, filename-sanitized form, and must not be empty,
// whitespace-only, or a path-traversal attempt.
func ValidName(name string) bool {
	if name == "" {
		return false
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return false
	}
	if trimmed != name {
		return false
	}
	if sanitizeName(trimmed) != trimmed {
		return false
	}
	return true
}

// sanitizeName strips path components and rejects traversal segments, the way
// a filesystem-backed Store must before ever joining a key name onto a root
// directory.
func sanitizeName(name string) string {
	if name == "." || name == ".." {
		return ""
	}
	if strings.ContainsAny(name, "/\\") {
		return ""
	}
	clean := filepath.Clean(name)
	if clean != name {
		return ""
	}
	return clean
}
