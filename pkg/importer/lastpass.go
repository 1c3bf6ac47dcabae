package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/forest6511/safeword/pkg/vault"
)

// LastPassParser parses LastPass CSV exports:
// url,username,password,totp,extra,name,grouping,fav
type LastPassParser struct{}

// LastPass column names. Columns are matched by header, not position.
const (
	lpColURL      = "url"
	lpColUsername = "username"
	lpColPassword = "password"
	lpColTOTP     = "totp"
	lpColExtra    = "extra"
	lpColName     = "name"
	lpColGrouping = "grouping"
)

// lastPassSecureNoteURL marks a secure note row.
const lastPassSecureNoteURL = "http://sn"

// Source returns the source type for this parser.
func (p *LastPassParser) Source() Source {
	return SourceLastPass
}

// Parse parses LastPass CSV data.
func (p *LastPassParser) Parse(data []byte, opts ParseOptions) (*ImportResult, error) {
	result := newResult()

	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	if _, ok := colIndex[lpColName]; !ok {
		return nil, fmt.Errorf("missing required column: %s", lpColName)
	}

	rowNum := 1
	for {
		rowNum++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("row %d: failed to parse: %v", rowNum, err))
			continue
		}
		if len(row) != len(header) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("row %d: column count mismatch (expected %d, got %d)",
					rowNum, len(header), len(row)))
			continue
		}

		cred, skip := p.parseRow(row, colIndex, opts)
		if skip != "" {
			result.Skipped = append(result.Skipped, SkippedItem{
				OriginalName: fmt.Sprintf("row %d", rowNum),
				Reason:       skip,
			})
			continue
		}
		result.Credentials = append(result.Credentials, cred)
	}

	return result, nil
}

func (p *LastPassParser) parseRow(row []string, colIndex map[string]int, opts ParseOptions) (*ImportedCredential, string) {
	get := func(col string) string {
		if idx, ok := colIndex[col]; ok && idx < len(row) {
			return DecodeHTMLEntities(strings.TrimSpace(row[idx]))
		}
		return ""
	}

	name := get(lpColName)
	url := get(lpColURL)
	username := get(lpColUsername)
	password := get(lpColPassword)
	totp := get(lpColTOTP)
	extra := get(lpColExtra)

	if url == lastPassSecureNoteURL {
		url = ""
	}
	if username == "" && password == "" && totp == "" && extra == "" {
		return nil, "no useful data"
	}

	var raw []string
	if grouping := get(lpColGrouping); grouping != "" {
		// Nested groupings ("Work\Servers") become one tag per level.
		raw = append(raw, strings.Split(grouping, `\`)...)
	}

	return &ImportedCredential{
		Name: name,
		Fields: vault.CredentialFields{
			Username:    fieldOrNil(username),
			Password:    fieldOrNil(password),
			Description: fieldOrNil(name),
			Note:        noteWith(extra, [2]string{"url", url}, [2]string{"totp", totp}),
		},
		Tags: buildTags(raw, opts),
	}, ""
}
