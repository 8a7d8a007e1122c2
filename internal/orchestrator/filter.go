package orchestrator

import (
	"path/filepath"
	"strings"
)

// Relevant reports whether a changed path matters to the target. A path is
// relevant iff no ignore pattern matches (pattern equals a path component,
// or is a leading component run of the slash-normalized path) and its
// extension is in IncludeExtensions. An empty IncludeExtensions admits every
// extension. Pattern matching stops at component boundaries: "build" ignores
// build/out.md but never builder/notes.md.
func Relevant(target Target, path string) bool {
	path = strings.TrimSpace(path)
	if path == "" {
		return false
	}
	normalized := filepath.ToSlash(path)
	trimmed := strings.Trim(normalized, "/")
	components := strings.Split(trimmed, "/")

	for _, pattern := range target.IgnorePatterns {
		pattern = strings.Trim(strings.TrimSpace(pattern), "/")
		if pattern == "" {
			continue
		}
		if trimmed == pattern || strings.HasPrefix(trimmed, pattern+"/") {
			return false
		}
		for _, component := range components {
			if component == pattern {
				return false
			}
		}
	}

	if len(target.IncludeExtensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(normalized))
	if ext == "" {
		return false
	}
	for _, include := range target.IncludeExtensions {
		if strings.ToLower(strings.TrimSpace(include)) == ext {
			return true
		}
	}
	return false
}
