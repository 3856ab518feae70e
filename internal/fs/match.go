// Package fs selects archived paths for listing and restore.
package fs

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"strings"
)

type selectPattern struct {
	pattern   string
	matchPath bool // match the full path and its ancestors; otherwise the basename only
}

// PathMatcher selects '/'-separated archived paths with glob patterns.
// Patterns without '/' match a path's basename. Patterns with '/' match the
// full path or any of its ancestor directories, so "/home/*/docs" selects
// everything below each user's docs directory.
type PathMatcher struct {
	patterns []selectPattern
}

// NewPathMatcher creates a PathMatcher from raw pattern strings.
// Blank lines and lines starting with '#' are skipped. Malformed patterns
// are returned as an error.
func NewPathMatcher(rawPatterns []string) (*PathMatcher, error) {
	var patterns []selectPattern
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		if _, err := path.Match(raw, ""); err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", raw, err)
		}
		matchPath := strings.Contains(raw, "/")
		if matchPath && len(raw) > 1 {
			raw = strings.TrimSuffix(raw, "/")
		}
		patterns = append(patterns, selectPattern{pattern: raw, matchPath: matchPath})
	}
	return &PathMatcher{patterns: patterns}, nil
}

// Empty reports whether the matcher has no patterns.
func (m *PathMatcher) Empty() bool {
	return len(m.patterns) == 0
}

// Match reports whether p is selected. A matcher without patterns selects
// every path.
func (m *PathMatcher) Match(p string) bool {
	if m.Empty() {
		return true
	}
	if p == "" {
		return false
	}

	base := path.Base(p)
	for _, sp := range m.patterns {
		if !sp.matchPath {
			if ok, _ := path.Match(sp.pattern, base); ok {
				return true
			}
			continue
		}
		for cur := p; ; cur = path.Dir(cur) {
			if ok, _ := path.Match(sp.pattern, cur); ok {
				return true
			}
			parent := path.Dir(cur)
			if parent == cur {
				break
			}
		}
	}
	return false
}

// ParsePatternFile reads one pattern per line from path.
// Returns nil and no error if the file does not exist.
func ParsePatternFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening pattern file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading pattern file: %w", err)
	}
	return patterns, nil
}
