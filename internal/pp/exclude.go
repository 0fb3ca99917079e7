package pp

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ExcludeMatcher checks scan candidates against exclusion patterns before
// any file I/O happens. A file is excluded when its path relative to the
// scan root exactly equals a pattern, when any path component exactly equals
// a pattern, or, for patterns containing a wildcard, when the relative path
// or any component glob-matches the pattern.
type ExcludeMatcher struct {
	patterns []string
}

// NewExcludeMatcher creates a matcher from raw pattern strings. Blank
// patterns are skipped.
func NewExcludeMatcher(patterns []string) *ExcludeMatcher {
	m := &ExcludeMatcher{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		m.patterns = append(m.patterns, p)
	}
	return m
}

// Match reports whether the given path, relative to the scan root, should be
// excluded.
func (m *ExcludeMatcher) Match(relPath string) bool {
	if len(m.patterns) == 0 {
		return false
	}

	normalized := filepath.ToSlash(relPath)
	parts := strings.Split(normalized, "/")

	for _, pattern := range m.patterns {
		if normalized == pattern {
			return true
		}

		for _, part := range parts {
			if part == pattern {
				return true
			}
		}

		if strings.ContainsAny(pattern, "*?[") {
			if ok, err := doublestar.Match(pattern, normalized); err == nil && ok {
				return true
			}
			for _, part := range parts {
				if ok, err := doublestar.Match(pattern, part); err == nil && ok {
					return true
				}
			}
		}
	}

	return false
}
