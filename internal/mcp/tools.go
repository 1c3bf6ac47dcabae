package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forest6511/safeword/internal/cli"
	"github.com/forest6511/safeword/internal/clipboard"
	"github.com/forest6511/safeword/pkg/audit"
	"github.com/forest6511/safeword/pkg/security"
	"github.com/forest6511/safeword/pkg/vault"
)

// CredentialListInput represents input for credential_list tool.
type CredentialListInput struct {
	Tags     []string `json:"tags,omitempty" jsonschema:"only credentials carrying every one of these tags; globs are expanded against tag names"`
	Untagged bool     `json:"untagged,omitempty" jsonschema:"only credentials without tags"`
}

// CredentialListOutput represents output for credential_list tool.
type CredentialListOutput struct {
	Credentials []CredentialInfo `json:"credentials"`
}

// CredentialInfo is credential metadata. It never carries a password.
type CredentialInfo struct {
	ID          int64    `json:"id"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags"`
	HasUsername bool     `json:"has_username"`
	HasPassword bool     `json:"has_password"`
	HasNote     bool     `json:"has_note"`
}

// CredentialInfoInput represents input for credential_info tool.
type CredentialInfoInput struct {
	ID int64 `json:"id"`
}

// CredentialInfoOutput represents output for credential_info tool.
type CredentialInfoOutput struct {
	Credential CredentialInfo `json:"credential"`
	// Username is set only when the policy reveals usernames.
	Username         string `json:"username,omitempty"`
	MaskedPassword   string `json:"masked_password,omitempty"`
	PasswordLength   int    `json:"password_length,omitempty"`
	PasswordStrength string `json:"password_strength,omitempty"`
}

// TagListInput represents input for tag_list tool.
type TagListInput struct {
	RelatedTo []string `json:"related_to,omitempty" jsonschema:"only tags that appear together with all of these tags"`
}

// TagListOutput represents output for tag_list tool.
type TagListOutput struct {
	Tags []TagInfo `json:"tags"`
}

// TagInfo describes one tag.
type TagInfo struct {
	Name        string `json:"name"`
	Credentials int    `json:"credentials"`
	HasWiki     bool   `json:"has_wiki"`
}

// TagWikiInput represents input for tag_wiki tool.
type TagWikiInput struct {
	Name string `json:"name"`
}

// TagWikiOutput represents output for tag_wiki tool.
type TagWikiOutput struct {
	Name string `json:"name"`
	Wiki string `json:"wiki"`
}

// SecurityReportInput represents input for security_report tool.
type SecurityReportInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum issues of each type, 0 for all"`
}

// CredentialCopyInput represents input for credential_copy tool.
type CredentialCopyInput struct {
	ID    int64  `json:"id"`
	Field string `json:"field,omitempty" jsonschema:"username or password (default password)"`
}

// CredentialCopyOutput represents output for credential_copy tool.
type CredentialCopyOutput struct {
	ID                 int64  `json:"id"`
	Field              string `json:"field"`
	ClearsAfterSeconds int    `json:"clears_after_seconds"`
}

var (
	errCopyDisabled = errors.New("credential_copy is disabled by policy (set allow_copy: true in " + PolicyFileName + ")")
	errCopyPending  = errors.New("a previous copy is still on the clipboard")
)

// handleCredentialList handles the credential_list tool call.
func (s *Server) handleCredentialList(_ context.Context, _ *mcp.CallToolRequest, input CredentialListInput) (*mcp.CallToolResult, CredentialListOutput, error) {
	if input.Untagged && len(input.Tags) > 0 {
		return nil, CredentialListOutput{}, errors.New("tags and untagged cannot be combined")
	}

	q := vault.AllCredentials()
	switch {
	case input.Untagged:
		q = vault.UntaggedCredentials()
	case len(input.Tags) > 0:
		tags, err := s.expandTags(input.Tags)
		if err != nil {
			return nil, CredentialListOutput{}, err
		}
		q = vault.TaggedWith(tags...)
	}

	creds, err := s.visibleCredentials(q)
	if err != nil {
		return nil, CredentialListOutput{}, fmt.Errorf("failed to list credentials: %w", err)
	}

	output := CredentialListOutput{Credentials: make([]CredentialInfo, 0, len(creds))}
	for _, c := range creds {
		output.Credentials = append(output.Credentials, credentialInfo(c))
	}
	return nil, output, nil
}

// handleCredentialInfo handles the credential_info tool call.
func (s *Server) handleCredentialInfo(_ context.Context, _ *mcp.CallToolRequest, input CredentialInfoInput) (*mcp.CallToolResult, CredentialInfoOutput, error) {
	cred, err := s.visibleCredential(input.ID)
	if err != nil {
		return nil, CredentialInfoOutput{}, err
	}

	output := CredentialInfoOutput{Credential: credentialInfo(cred)}
	if cred.Username != nil && s.policy.CanRevealUsernames() {
		output.Username = *cred.Username
	}
	if cred.Password != nil {
		output.MaskedPassword = maskValue(*cred.Password)
		output.PasswordLength = utf8.RuneCountInString(*cred.Password)
		output.PasswordStrength = security.Strength(*cred.Password).String()
	}
	return nil, output, nil
}

// handleTagList handles the tag_list tool call. Counts only include
// credentials the policy shows, and under a policy a tag with no visible
// credential is left out.
func (s *Server) handleTagList(_ context.Context, _ *mcp.CallToolRequest, input TagListInput) (*mcp.CallToolResult, TagListOutput, error) {
	tags, err := s.vault.ListTags(input.RelatedTo...)
	if err != nil {
		return nil, TagListOutput{}, fmt.Errorf("failed to list tags: %w", err)
	}
	counts, err := s.visibleTagCounts()
	if err != nil {
		return nil, TagListOutput{}, err
	}

	output := TagListOutput{Tags: make([]TagInfo, 0, len(tags))}
	for _, t := range tags {
		n := counts[t.Name]
		if n == 0 && s.policy != nil {
			continue
		}
		output.Tags = append(output.Tags, TagInfo{Name: t.Name, Credentials: n, HasWiki: t.Wiki != nil})
	}
	return nil, output, nil
}

// handleTagWiki handles the tag_wiki tool call.
func (s *Server) handleTagWiki(_ context.Context, _ *mcp.CallToolRequest, input TagWikiInput) (*mcp.CallToolResult, TagWikiOutput, error) {
	notFound := fmt.Errorf("tag '%s' not found", input.Name)

	tag, err := s.vault.LookupTag(input.Name)
	if errors.Is(err, vault.ErrTagNotFound) {
		return nil, TagWikiOutput{}, notFound
	}
	if err != nil {
		return nil, TagWikiOutput{}, fmt.Errorf("failed to read tag: %w", err)
	}
	if s.policy != nil {
		counts, err := s.visibleTagCounts()
		if err != nil {
			return nil, TagWikiOutput{}, err
		}
		if counts[tag.Name] == 0 {
			return nil, TagWikiOutput{}, notFound
		}
	}

	output := TagWikiOutput{Name: tag.Name}
	if tag.Wiki != nil {
		output.Wiki = *tag.Wiki
	}
	return nil, output, nil
}

// handleSecurityReport handles the security_report tool call. The report
// covers visible credentials only.
func (s *Server) handleSecurityReport(_ context.Context, _ *mcp.CallToolRequest, input SecurityReportInput) (*mcp.CallToolResult, security.Score, error) {
	if input.Limit < 0 {
		return nil, security.Score{}, errors.New("limit must not be negative")
	}
	score, err := security.NewCalculator(visibleSource{s}, security.Options{Limit: input.Limit}).CalculateScore()
	if err != nil {
		return nil, security.Score{}, fmt.Errorf("failed to calculate security score: %w", err)
	}
	return nil, *score, nil
}

// handleCredentialCopy handles the credential_copy tool call. The value goes
// to the local clipboard and is cleared after the configured timeout; it is
// never part of the response.
func (s *Server) handleCredentialCopy(ctx context.Context, _ *mcp.CallToolRequest, input CredentialCopyInput) (*mcp.CallToolResult, CredentialCopyOutput, error) {
	target := audit.CredentialTarget(input.ID)
	if !s.policy.CanCopy() {
		s.deny(audit.OpCredentialCopy, target, "copy disabled by policy")
		return nil, CredentialCopyOutput{}, errCopyDisabled
	}

	field := clipboard.Field(input.Field)
	if field == "" {
		field = clipboard.FieldPassword
	}
	if _, err := s.visibleCredential(input.ID); err != nil {
		s.deny(audit.OpCredentialCopy, target, err.Error())
		return nil, CredentialCopyOutput{}, err
	}
	secret, err := clipboard.Secret(s.vault, input.ID, field)
	if err != nil {
		s.record(audit.OpCredentialCopy, target, err, map[string]string{"field": string(field)})
		return nil, CredentialCopyOutput{}, err
	}

	tool, err := s.detect()
	if err != nil {
		return nil, CredentialCopyOutput{}, err
	}

	select {
	case s.copySem <- struct{}{}:
	default:
		return nil, CredentialCopyOutput{}, errCopyPending
	}

	if err := tool.Copy(ctx, secret); err != nil {
		<-s.copySem
		return nil, CredentialCopyOutput{}, fmt.Errorf("failed to copy: %w", err)
	}
	slog.Info("credential copied for MCP client", "id", input.ID, "field", field)
	s.record(audit.OpCredentialCopy, target, nil, map[string]string{"field": string(field)})

	s.pending.Add(1)
	go s.clearLater(tool)

	return nil, CredentialCopyOutput{
		ID:                 input.ID,
		Field:              string(field),
		ClearsAfterSeconds: int(s.clearAfter / time.Second),
	}, nil
}

// clearLater empties the clipboard once clearAfter passes or the server
// stops, whichever comes first.
func (s *Server) clearLater(tool clipboard.Tool) {
	defer s.pending.Done()
	defer func() { <-s.copySem }()

	timer := time.NewTimer(s.clearAfter)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.stop:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tool.Clear(ctx); err != nil {
		slog.Warn("failed to clear clipboard", "error", err)
	}
}

// maskValue hides all but the tail of a value:
//   - 1-4 characters: all masked
//   - 5-8 characters: last 2 shown
//   - 9+ characters: last 4 shown
func maskValue(value string) string {
	runes := []rune(value)
	n := len(runes)
	var shown int
	switch {
	case n == 0:
		return ""
	case n <= 4:
		shown = 0
	case n <= 8:
		shown = 2
	default:
		shown = 4
	}
	masked := make([]rune, n)
	for i := range runes {
		if i < n-shown {
			masked[i] = '*'
		} else {
			masked[i] = runes[i]
		}
	}
	return string(masked)
}

func credentialInfo(c *vault.Credential) CredentialInfo {
	info := CredentialInfo{
		ID:          c.ID,
		Tags:        c.Tags,
		HasUsername: c.Username != nil,
		HasPassword: c.Password != nil,
		HasNote:     c.Note != nil,
	}
	if info.Tags == nil {
		info.Tags = []string{}
	}
	if c.Description != nil {
		info.Description = *c.Description
	}
	return info
}

func (s *Server) expandTags(patterns []string) ([]string, error) {
	var names []string
	for _, p := range patterns {
		if !cli.HasGlob(p) {
			continue
		}
		tags, err := s.vault.ListTags()
		if err != nil {
			return nil, fmt.Errorf("failed to list tags: %w", err)
		}
		for _, t := range tags {
			names = append(names, t.Name)
		}
		break
	}
	return cli.ExpandPatterns(patterns, names)
}

// visibleCredential reads credential id. A hidden credential is reported
// exactly like a missing one.
func (s *Server) visibleCredential(id int64) (*vault.Credential, error) {
	notFound := fmt.Errorf("credential %d not found", id)

	cred, err := s.vault.ReadCredential(id)
	if errors.Is(err, vault.ErrCredentialNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential: %w", err)
	}
	if ok, reason := s.policy.IsVisible(cred.Tags); !ok {
		slog.Debug("credential hidden by policy", "id", id, "reason", reason)
		return nil, notFound
	}
	return cred, nil
}

func (s *Server) visibleCredentials(q vault.CredentialQuery) ([]*vault.Credential, error) {
	list, err := s.vault.ListCredentials(q)
	if err != nil {
		return nil, err
	}
	creds := make([]*vault.Credential, 0, len(list))
	for _, summary := range list {
		cred, err := s.vault.ReadCredential(summary.ID)
		if errors.Is(err, vault.ErrCredentialNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if ok, _ := s.policy.IsVisible(cred.Tags); ok {
			creds = append(creds, cred)
		}
	}
	return creds, nil
}

func (s *Server) visibleTagCounts() (map[string]int, error) {
	creds, err := s.visibleCredentials(vault.AllCredentials())
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	counts := make(map[string]int)
	for _, c := range creds {
		for _, tag := range c.Tags {
			counts[tag]++
		}
	}
	return counts, nil
}

// visibleSource is a security.Source restricted to visible credentials.
type visibleSource struct {
	s *Server
}

func (v visibleSource) ListCredentials(q vault.CredentialQuery) ([]vault.CredentialSummary, error) {
	creds, err := v.s.visibleCredentials(q)
	if err != nil {
		return nil, err
	}
	list := make([]vault.CredentialSummary, len(creds))
	for i, c := range creds {
		list[i] = vault.CredentialSummary{ID: c.ID, Description: c.Description}
	}
	return list, nil
}

func (v visibleSource) ReadCredential(id int64) (*vault.Credential, error) {
	return v.s.visibleCredential(id)
}

// PasswordReuse keeps the visible members of each group and drops groups
// left with fewer than two.
func (v visibleSource) PasswordReuse() ([]vault.ReuseGroup, error) {
	groups, err := v.s.vault.PasswordReuse()
	if err != nil || v.s.policy == nil {
		return groups, err
	}
	creds, err := v.s.visibleCredentials(vault.AllCredentials())
	if err != nil {
		return nil, err
	}
	visible := make(map[int64]bool, len(creds))
	for _, c := range creds {
		visible[c.ID] = true
	}

	kept := []vault.ReuseGroup{}
	for _, g := range groups {
		var ids []int64
		for _, id := range g.CredentialIDs {
			if visible[id] {
				ids = append(ids, id)
			}
		}
		if len(ids) > 1 {
			kept = append(kept, vault.ReuseGroup{PasswordID: g.PasswordID, CredentialIDs: ids})
		}
	}
	return kept, nil
}
