package importer

import (
	"encoding/json"
	"fmt"

	"github.com/forest6511/safeword/pkg/vault"
)

// BitwardenParser parses Bitwarden unencrypted JSON exports. Logins and
// secure notes are imported; cards and identities have no credential shape
// and are skipped.
type BitwardenParser struct{}

// Bitwarden item types.
const (
	bitwardenTypeLogin      = 1
	bitwardenTypeSecureNote = 2
	bitwardenTypeCard       = 3
	bitwardenTypeIdentity   = 4
)

const bitwardenFieldHidden = 1

type bitwardenExport struct {
	Encrypted   bool                  `json:"encrypted"`
	Folders     []bitwardenFolder     `json:"folders"`
	Collections []bitwardenCollection `json:"collections"`
	Items       []bitwardenItem       `json:"items"`
}

type bitwardenFolder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type bitwardenCollection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type bitwardenItem struct {
	Type          int                    `json:"type"`
	Name          string                 `json:"name"`
	Notes         string                 `json:"notes"`
	FolderID      *string                `json:"folderId"`
	CollectionIDs []string               `json:"collectionIds"`
	Login         *bitwardenLogin        `json:"login"`
	Fields        []bitwardenCustomField `json:"fields"`
}

type bitwardenLogin struct {
	URIs     []bitwardenURI `json:"uris"`
	Username string         `json:"username"`
	Password string         `json:"password"`
	TOTP     string         `json:"totp"`
}

type bitwardenURI struct {
	URI string `json:"uri"`
}

type bitwardenCustomField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Type  int    `json:"type"`
}

// Source returns the source type for this parser.
func (p *BitwardenParser) Source() Source {
	return SourceBitwarden
}

// Parse parses Bitwarden JSON data.
func (p *BitwardenParser) Parse(data []byte, opts ParseOptions) (*ImportResult, error) {
	var export bitwardenExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("failed to parse Bitwarden JSON: %w", err)
	}
	if export.Encrypted {
		return nil, fmt.Errorf("encrypted Bitwarden exports are not supported; export as unencrypted JSON")
	}

	groups := make(map[string]string, len(export.Folders)+len(export.Collections))
	for _, f := range export.Folders {
		groups[f.ID] = f.Name
	}
	for _, c := range export.Collections {
		groups[c.ID] = c.Name
	}

	result := newResult()
	for i := range export.Items {
		item := &export.Items[i]
		cred, reason := p.parseItem(item, groups, opts)
		if cred == nil {
			result.Skipped = append(result.Skipped, SkippedItem{OriginalName: item.Name, Reason: reason})
			continue
		}
		if hidden := countHidden(item.Fields); hidden > 0 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("item %d (%s): %d hidden custom field(s) copied into the note", i+1, item.Name, hidden))
		}
		result.Credentials = append(result.Credentials, cred)
	}
	return result, nil
}

func (p *BitwardenParser) parseItem(item *bitwardenItem, groups map[string]string, opts ParseOptions) (*ImportedCredential, string) {
	var fields vault.CredentialFields
	var extras [][2]string

	switch item.Type {
	case bitwardenTypeLogin:
		if item.Login != nil {
			fields.Username = fieldOrNil(item.Login.Username)
			fields.Password = fieldOrNil(item.Login.Password)
			for _, u := range item.Login.URIs {
				extras = append(extras, [2]string{"url", u.URI})
			}
			extras = append(extras, [2]string{"totp", item.Login.TOTP})
		}
	case bitwardenTypeSecureNote:
	case bitwardenTypeCard:
		return nil, "card items are not supported"
	case bitwardenTypeIdentity:
		return nil, "identity items are not supported"
	default:
		return nil, fmt.Sprintf("unsupported item type: %d", item.Type)
	}

	for _, cf := range item.Fields {
		name := cf.Name
		if name == "" {
			name = "field"
		}
		extras = append(extras, [2]string{name, cf.Value})
	}
	fields.Note = noteWith(item.Notes, extras...)

	if fields.Username == nil && fields.Password == nil && fields.Note == nil {
		return nil, "no useful data"
	}
	fields.Description = fieldOrNil(item.Name)

	var raw []string
	if item.FolderID != nil {
		raw = append(raw, groups[*item.FolderID])
	}
	for _, id := range item.CollectionIDs {
		raw = append(raw, groups[id])
	}

	return &ImportedCredential{
		Name:   item.Name,
		Fields: fields,
		Tags:   buildTags(raw, opts),
	}, ""
}

func countHidden(fields []bitwardenCustomField) int {
	n := 0
	for _, f := range fields {
		if f.Type == bitwardenFieldHidden {
			n++
		}
	}
	return n
}
