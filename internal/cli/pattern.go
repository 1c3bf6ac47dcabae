// Package cli provides shared utilities for CLI commands.
package cli

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

// HasGlob reports whether pattern contains glob characters.
func HasGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// ExpandPattern expands a tag glob against the existing tag names. A
// pattern without glob characters is returned as is, whether or not such a
// tag exists; a glob that matches nothing is an error.
func ExpandPattern(pattern string, tags []string) ([]string, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
	}
	if !HasGlob(pattern) {
		return []string{pattern}, nil
	}

	var matches []string
	for _, tag := range tags {
		matched, err := path.Match(pattern, tag)
		if err != nil {
			return nil, err
		}
		if matched {
			matches = append(matches, tag)
		}
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no tags match pattern '%s'", pattern)
	}
	return matches, nil
}

// ExpandPatterns expands multiple patterns and returns unique tag names in
// order of first match.
func ExpandPatterns(patterns []string, tags []string) ([]string, error) {
	seen := make(map[string]bool)
	var result []string

	for _, pattern := range patterns {
		matches, err := ExpandPattern(pattern, tags)
		if err != nil {
			return nil, err
		}
		for _, tag := range matches {
			if !seen[tag] {
				seen[tag] = true
				result = append(result, tag)
			}
		}
	}
	return result, nil
}

// SplitList splits comma-separated arguments ("a,b" "c") into their
// non-empty trimmed parts.
func SplitList(args ...string) []string {
	var out []string
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// ParseID parses a credential id. Ids are positive.
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid credential id '%s'", s)
	}
	return id, nil
}

// ParseIDs parses comma-separated credential ids, dropping duplicates.
func ParseIDs(args ...string) ([]int64, error) {
	seen := make(map[int64]bool)
	var ids []int64
	for _, part := range SplitList(args...) {
		id, err := ParseID(part)
		if err != nil {
			return nil, err
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no credential ids given")
	}
	return ids, nil
}

// IsID reports whether s looks like a credential id rather than a tag name.
func IsID(s string) bool {
	_, err := ParseID(s)
	return err == nil
}
