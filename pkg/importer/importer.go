// Package importer converts exports from other password managers, and
// safeword's own JSON export, into credentials with tags.
//
// Supported sources: safeword JSON, 1Password CSV, Bitwarden JSON and
// LastPass CSV. Folders, groupings and tags of the source become tags.
package importer

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/forest6511/safeword/pkg/vault"
)

// Source represents the source password manager format.
type Source string

const (
	SourceSafeword  Source = "safeword"
	Source1Password Source = "1password"
	SourceBitwarden Source = "bitwarden"
	SourceLastPass  Source = "lastpass"
)

// MaxTagLength bounds the length of imported tag names, in bytes.
const MaxTagLength = 64

// ImportedCredential is one credential parsed from an export.
type ImportedCredential struct {
	// Name is the item title in the source, kept for messages.
	Name string

	Fields vault.CredentialFields

	// Tags are sanitized tag names, deduplicated, in source order.
	Tags []string
}

// ImportResult contains the results of a parse.
type ImportResult struct {
	Credentials []*ImportedCredential

	// Warnings are non-fatal issues encountered during parsing.
	Warnings []string

	// Skipped are items that were skipped with reasons.
	Skipped []SkippedItem

	// Annotations maps tag names to wiki text to set after the import.
	Annotations map[string]string
}

func newResult() *ImportResult {
	return &ImportResult{
		Credentials: make([]*ImportedCredential, 0),
		Warnings:    make([]string, 0),
		Skipped:     make([]SkippedItem, 0),
	}
}

// SkippedItem represents an item that was skipped during import.
type SkippedItem struct {
	OriginalName string
	Reason       string
}

// Parser is the interface for export format parsers.
type Parser interface {
	// Parse parses the input data and returns imported credentials.
	Parse(data []byte, opts ParseOptions) (*ImportResult, error)

	// Source returns the source type for this parser.
	Source() Source
}

// ParseOptions contains options for parsing.
type ParseOptions struct {
	// PreserveCase keeps tag names as written instead of lowercasing them.
	PreserveCase bool

	// ExtraTags are added to every imported credential.
	ExtraTags []string
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// SanitizeTagName turns a folder or group name into a tag name: NFC
// normalized, commas removed (the CLI splits tag lists on commas), runs of
// whitespace collapsed to one hyphen, trimmed, truncated to MaxTagLength
// bytes on a rune boundary and lowercased unless preserveCase is set.
func SanitizeTagName(name string, preserveCase bool) string {
	name = norm.NFC.String(name)
	name = strings.ReplaceAll(name, ",", "")
	name = strings.TrimSpace(name)
	name = whitespaceRun.ReplaceAllString(name, "-")

	if len(name) > MaxTagLength {
		cut := MaxTagLength
		for cut > 0 && !utf8RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut]
	}

	if !preserveCase {
		name = strings.ToLower(name)
	}
	return name
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }

// buildTags sanitizes raw tag names and appends opts.ExtraTags, dropping
// empty and duplicate names.
func buildTags(raw []string, opts ParseOptions) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, r := range append(append([]string{}, raw...), opts.ExtraTags...) {
		tag := SanitizeTagName(r, opts.PreserveCase)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}

// DecodeHTMLEntities decodes common HTML entities found in LastPass exports.
func DecodeHTMLEntities(s string) string {
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", "\"")
	s = strings.ReplaceAll(s, "&#39;", "'")
	s = strings.ReplaceAll(s, "&apos;", "'")
	s = strings.ReplaceAll(s, "&amp;", "&")
	return s
}

// IsEmptyOrWhitespace checks if a string is empty or contains only whitespace.
func IsEmptyOrWhitespace(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// fieldOrNil returns nil for empty values. Competitor exports cannot tell
// an empty field from a missing one, so both import as absent.
func fieldOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// noteWith builds a note from the source notes plus labelled extras
// (url, totp) that have no field of their own.
func noteWith(notes string, extras ...[2]string) *string {
	var b strings.Builder
	b.WriteString(notes)
	for _, kv := range extras {
		if kv[1] == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(kv[0])
		b.WriteString(": ")
		b.WriteString(kv[1])
	}
	return fieldOrNil(b.String())
}

// GetParser returns a parser for the given source.
func GetParser(source Source) (Parser, error) {
	switch source {
	case SourceSafeword:
		return &SafewordParser{}, nil
	case Source1Password:
		return &OnePasswordParser{}, nil
	case SourceBitwarden:
		return &BitwardenParser{}, nil
	case SourceLastPass:
		return &LastPassParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported import source: %s", source)
	}
}

// ValidSources returns a list of valid source names.
func ValidSources() []string {
	return []string{
		string(SourceSafeword),
		string(Source1Password),
		string(SourceBitwarden),
		string(SourceLastPass),
	}
}

// Store is the part of the vault an import writes to.
type Store interface {
	AddCredential(fields vault.CredentialFields) (int64, error)
	TagCredential(credentialID int64, name string) error
	CreateTag(name string, wiki *string) (int64, error)
}

// Apply adds every parsed credential to s, links its tags and then sets the
// tag annotations, returning the new ids in order. Each credential is its
// own write; on error the ids added so far are returned with it.
func Apply(s Store, result *ImportResult) ([]int64, error) {
	ids := make([]int64, 0, len(result.Credentials))
	for _, c := range result.Credentials {
		id, err := s.AddCredential(c.Fields)
		if err != nil {
			return ids, fmt.Errorf("failed to add %q: %w", c.Name, err)
		}
		ids = append(ids, id)
		for _, tag := range c.Tags {
			if err := s.TagCredential(id, tag); err != nil {
				return ids, fmt.Errorf("failed to tag %q with %q: %w", c.Name, tag, err)
			}
		}
	}
	for _, name := range slices.Sorted(maps.Keys(result.Annotations)) {
		wiki := result.Annotations[name]
		if _, err := s.CreateTag(name, &wiki); err != nil {
			return ids, fmt.Errorf("failed to annotate tag %q: %w", name, err)
		}
	}
	return ids, nil
}
