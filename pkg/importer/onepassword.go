package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/forest6511/safeword/pkg/vault"
)

// OnePasswordParser parses 1Password CSV exports:
// Title,Website,Username,Password,OTPAuth,Favorite,Archived,Tags,Notes
type OnePasswordParser struct{}

const (
	op1ColTitle    = "Title"
	op1ColWebsite  = "Website"
	op1ColUsername = "Username"
	op1ColPassword = "Password"
	op1ColOTPAuth  = "OTPAuth"
	op1ColArchived = "Archived"
	op1ColTags     = "Tags"
	op1ColNotes    = "Notes"
)

// ArchivedTag is added to credentials 1Password marks as archived.
const ArchivedTag = "archived"

// Source returns the source type for this parser.
func (p *OnePasswordParser) Source() Source {
	return Source1Password
}

// Parse parses 1Password CSV data.
func (p *OnePasswordParser) Parse(data []byte, opts ParseOptions) (*ImportResult, error) {
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
		colIndex[strings.TrimSpace(col)] = i
	}
	if _, ok := colIndex[op1ColTitle]; !ok {
		return nil, fmt.Errorf("missing required column: %s", op1ColTitle)
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

		cred := p.parseRow(row, colIndex, opts)
		if cred == nil {
			result.Skipped = append(result.Skipped, SkippedItem{
				OriginalName: fmt.Sprintf("row %d", rowNum),
				Reason:       "no useful data",
			})
			continue
		}
		result.Credentials = append(result.Credentials, cred)
	}

	return result, nil
}

func (p *OnePasswordParser) parseRow(row []string, colIndex map[string]int, opts ParseOptions) *ImportedCredential {
	get := func(col string) string {
		if idx, ok := colIndex[col]; ok && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	title := get(op1ColTitle)
	website := get(op1ColWebsite)
	username := get(op1ColUsername)
	password := get(op1ColPassword)
	otpAuth := get(op1ColOTPAuth)
	notes := get(op1ColNotes)

	if username == "" && password == "" && otpAuth == "" && notes == "" {
		return nil
	}

	var raw []string
	if s := get(op1ColTags); s != "" {
		raw = strings.Split(s, ",")
	}
	if strings.EqualFold(get(op1ColArchived), "true") {
		raw = append(raw, ArchivedTag)
	}

	return &ImportedCredential{
		Name: title,
		Fields: vault.CredentialFields{
			Username:    fieldOrNil(username),
			Password:    fieldOrNil(password),
			Description: fieldOrNil(title),
			Note:        noteWith(notes, [2]string{"url", website}, [2]string{"totp", otpAuth}),
		},
		Tags: buildTags(raw, opts),
	}
}
