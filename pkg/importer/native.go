package importer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/forest6511/safeword/pkg/vault"
)

// DocumentVersion is the version of the safeword JSON export written by
// the export command.
const DocumentVersion = 1

// Document is safeword's own JSON export. Absent fields are omitted, so a
// present empty string survives a round trip.
type Document struct {
	Version     int         `json:"version"`
	ExportedAt  time.Time   `json:"exported_at"`
	Credentials []Record    `json:"credentials"`
	Tags        []TagRecord `json:"tags,omitempty"`
}

// Record is one exported credential.
type Record struct {
	ID          int64    `json:"id,omitempty"`
	Username    *string  `json:"username,omitempty"`
	Password    *string  `json:"password,omitempty"`
	Description *string  `json:"description,omitempty"`
	Note        *string  `json:"note,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// TagRecord is an exported tag annotation.
type TagRecord struct {
	Name string  `json:"name"`
	Wiki *string `json:"wiki,omitempty"`
}

// NewRecord converts a resolved credential into an export record.
func NewRecord(c *vault.Credential) Record {
	return Record{
		ID:          c.ID,
		Username:    c.Username,
		Password:    c.Password,
		Description: c.Description,
		Note:        c.Note,
		Tags:        c.Tags,
	}
}

// NewTagRecord converts a tag into an export record.
func NewTagRecord(t vault.Tag) TagRecord {
	return TagRecord{Name: t.Name, Wiki: t.Wiki}
}

// SafewordParser reads a Document. Tag names are kept exactly as exported
// and ids are not preserved.
type SafewordParser struct{}

// Source returns the source type for this parser.
func (p *SafewordParser) Source() Source {
	return SourceSafeword
}

// Parse parses a safeword JSON export.
func (p *SafewordParser) Parse(data []byte, opts ParseOptions) (*ImportResult, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse safeword JSON: %w", err)
	}
	if doc.Version < 1 || doc.Version > DocumentVersion {
		return nil, fmt.Errorf("unsupported safeword export version %d", doc.Version)
	}

	result := newResult()
	for i, rec := range doc.Credentials {
		fields := vault.CredentialFields{
			Username:    rec.Username,
			Password:    rec.Password,
			Description: rec.Description,
			Note:        rec.Note,
		}
		name := fmt.Sprintf("credential %d", rec.ID)
		if rec.ID == 0 {
			name = fmt.Sprintf("record %d", i+1)
		}
		if fields.Empty() && len(rec.Tags) == 0 {
			result.Skipped = append(result.Skipped, SkippedItem{OriginalName: name, Reason: "no useful data"})
			continue
		}
		result.Credentials = append(result.Credentials, &ImportedCredential{
			Name:   name,
			Fields: fields,
			Tags:   exactTags(rec.Tags, opts.ExtraTags),
		})
	}

	for _, t := range doc.Tags {
		if t.Name == "" || t.Wiki == nil {
			continue
		}
		if result.Annotations == nil {
			result.Annotations = make(map[string]string)
		}
		result.Annotations[t.Name] = *t.Wiki
	}
	return result, nil
}

func exactTags(tags, extra []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range append(append([]string{}, tags...), extra...) {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
