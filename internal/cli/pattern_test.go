package cli

import (
	"slices"
	"testing"
)

func TestExpandPattern(t *testing.T) {
	tags := []string{"aws-prod", "aws-staging", "db", "work/dev", "work/ops"}

	tests := []struct {
		name     string
		pattern  string
		expected []string
		wantErr  bool
	}{
		{name: "exact match", pattern: "db", expected: []string{"db"}},
		{name: "exact name passes through", pattern: "missing", expected: []string{"missing"}},
		{name: "wildcard prefix", pattern: "aws-*", expected: []string{"aws-prod", "aws-staging"}},
		{name: "question mark", pattern: "d?", expected: []string{"db"}},
		{name: "star stops at slash", pattern: "*", expected: []string{"aws-prod", "aws-staging", "db"}},
		{name: "slash segment", pattern: "work/*", expected: []string{"work/dev", "work/ops"}},
		{name: "character class", pattern: "work/[d]*", expected: []string{"work/dev"}},
		{name: "no match glob", pattern: "gcp-*", wantErr: true},
		{name: "invalid pattern", pattern: "[invalid", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := ExpandPattern(tc.pattern, tags)

			if tc.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(result, tc.expected) {
				t.Errorf("got %v, want %v", result, tc.expected)
			}
		})
	}
}

func TestExpandPatterns(t *testing.T) {
	tags := []string{"a", "b", "c", "ab", "bc"}

	tests := []struct {
		name     string
		patterns []string
		expected []string
	}{
		{name: "single pattern", patterns: []string{"a"}, expected: []string{"a"}},
		{name: "multiple patterns", patterns: []string{"a", "b"}, expected: []string{"a", "b"}},
		{name: "overlapping patterns", patterns: []string{"a*", "ab"}, expected: []string{"a", "ab"}},
		{name: "glob pattern", patterns: []string{"*b"}, expected: []string{"b", "ab"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := ExpandPatterns(tc.patterns, tags)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(result, tc.expected) {
				t.Errorf("got %v, want %v", result, tc.expected)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList("a,b", " c ", ",,", "d")
	want := []string{"a", "b", "c", "d"}
	if !slices.Equal(got, want) {
		t.Errorf("SplitList() = %v, want %v", got, want)
	}
	if got := SplitList(); got != nil {
		t.Errorf("SplitList() with no args = %v, want nil", got)
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := ParseIDs("3,1", "3", "2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []int64{3, 1, 2}; !slices.Equal(ids, want) {
		t.Errorf("ParseIDs() = %v, want %v", ids, want)
	}

	for _, bad := range []string{"0", "-1", "x", ""} {
		if _, err := ParseIDs(bad); err == nil {
			t.Errorf("ParseIDs(%q) expected error", bad)
		}
	}
}

func TestIsID(t *testing.T) {
	if !IsID("42") {
		t.Error("IsID(42) = false")
	}
	if IsID("github") {
		t.Error("IsID(github) = true")
	}
}
