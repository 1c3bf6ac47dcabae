package mcp

import (
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Policy decides what an MCP client may see and do. It lives next to the
// safeword config file.
type Policy struct {
	Version int `yaml:"version"`
	// DefaultAction applies to credentials that match neither tag list.
	DefaultAction string `yaml:"default_action"`
	// DeniedTags and AllowedTags are glob patterns matched against a
	// credential's tags. A denied match always hides the credential.
	DeniedTags  []string `yaml:"denied_tags"`
	AllowedTags []string `yaml:"allowed_tags"`
	// RevealUsernames returns usernames of visible credentials in clear.
	RevealUsernames bool `yaml:"reveal_usernames"`
	// AllowCopy enables credential_copy for visible credentials.
	AllowCopy bool `yaml:"allow_copy"`
}

// PolicyFileName is the name of the policy file
const PolicyFileName = "mcp-policy.yaml"

// Policy action constants
const (
	ActionAllow = "allow"
	ActionDeny  = "deny"
)

var (
	ErrPolicyNotFound       = errors.New("MCP policy file not found")
	ErrPolicyInsecure       = errors.New("MCP policy file has insecure permissions")
	ErrPolicySymlink        = errors.New("MCP policy file is a symlink")
	ErrPolicyNotOwnedByUser = errors.New("MCP policy file not owned by current user")
)

// LoadPolicy reads the policy file in dir. The file is opened without
// following symlinks and checked on the open descriptor: it must be mode
// 0600 and owned by the current user.
func LoadPolicy(dir string) (*Policy, error) {
	f, err := openPolicyFile(filepath.Join(dir, PolicyFileName))
	if err != nil {
		if errors.Is(err, ErrPolicyNotFound) || errors.Is(err, ErrPolicySymlink) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to open policy file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat policy file: %w", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		return nil, fmt.Errorf("%w: %o (expected 0600)", ErrPolicyInsecure, perm)
	}
	if err := checkFileOwnership(info); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var policy Policy
	if err := yaml.Unmarshal(content, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if policy.DefaultAction == "" {
		policy.DefaultAction = ActionDeny
	}
	if err := policy.ValidatePolicy(); err != nil {
		return nil, err
	}
	return &policy, nil
}

// ValidatePolicy validates the policy configuration
func (p *Policy) ValidatePolicy() error {
	if p.Version != 1 {
		return fmt.Errorf("unsupported policy version: %d", p.Version)
	}
	if p.DefaultAction != ActionDeny && p.DefaultAction != ActionAllow {
		return fmt.Errorf("invalid default_action: %s (must be '%s' or '%s')", p.DefaultAction, ActionDeny, ActionAllow)
	}
	for _, pattern := range append(append([]string{}, p.DeniedTags...), p.AllowedTags...) {
		if _, err := path.Match(pattern, ""); err != nil {
			return fmt.Errorf("invalid tag pattern %q: %w", pattern, err)
		}
	}
	return nil
}

// IsVisible reports whether a credential with the given tags may be shown.
// Evaluation order:
// 1. any tag matches denied_tags → hidden
// 2. any tag matches allowed_tags → visible
// 3. default_action
//
// A nil policy shows every credential.
func (p *Policy) IsVisible(tags []string) (visible bool, reason string) {
	if p == nil {
		return true, ""
	}
	for _, pattern := range p.DeniedTags {
		for _, tag := range tags {
			if matchTag(tag, pattern) {
				return false, fmt.Sprintf("tag '%s' matches denied pattern '%s'", tag, pattern)
			}
		}
	}
	for _, pattern := range p.AllowedTags {
		for _, tag := range tags {
			if matchTag(tag, pattern) {
				return true, ""
			}
		}
	}
	if p.DefaultAction == ActionAllow {
		return true, ""
	}
	return false, "no tag matches allowed_tags"
}

// CanRevealUsernames is false for a nil policy.
func (p *Policy) CanRevealUsernames() bool { return p != nil && p.RevealUsernames }

// CanCopy is false for a nil policy.
func (p *Policy) CanCopy() bool { return p != nil && p.AllowCopy }

func matchTag(tag, pattern string) bool {
	ok, err := path.Match(pattern, tag)
	return err == nil && ok
}
