package mcp

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writePolicy(t *testing.T, dir, content string, perm os.FileMode) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, PolicyFileName), []byte(content), perm); err != nil {
		t.Fatalf("failed to write policy file: %v", err)
	}
	// umask applies on create.
	if err := os.Chmod(filepath.Join(dir, PolicyFileName), perm); err != nil {
		t.Fatalf("failed to chmod policy file: %v", err)
	}
}

func TestLoadPolicy_NotFound(t *testing.T) {
	_, err := LoadPolicy(t.TempDir())
	if !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("expected ErrPolicyNotFound, got %v", err)
	}
}

func TestLoadPolicy_Success(t *testing.T) {
	tmpDir := t.TempDir()
	writePolicy(t, tmpDir, `version: 1
default_action: deny
allowed_tags:
  - work
  - "dev-*"
denied_tags:
  - bank
reveal_usernames: true
allow_copy: true
`, 0600)

	policy, err := LoadPolicy(tmpDir)
	if err != nil {
		t.Fatalf("LoadPolicy failed: %v", err)
	}

	if policy.Version != 1 {
		t.Errorf("expected version 1, got %d", policy.Version)
	}
	if policy.DefaultAction != ActionDeny {
		t.Errorf("expected default_action 'deny', got '%s'", policy.DefaultAction)
	}
	if len(policy.AllowedTags) != 2 {
		t.Errorf("expected 2 allowed tags, got %d", len(policy.AllowedTags))
	}
	if len(policy.DeniedTags) != 1 {
		t.Errorf("expected 1 denied tag, got %d", len(policy.DeniedTags))
	}
	if !policy.CanRevealUsernames() || !policy.CanCopy() {
		t.Error("expected reveal_usernames and allow_copy to be set")
	}
}

func TestLoadPolicy_InsecurePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	writePolicy(t, tmpDir, "version: 1\n", 0644)

	_, err := LoadPolicy(tmpDir)
	if !errors.Is(err, ErrPolicyInsecure) {
		t.Errorf("expected ErrPolicyInsecure, got %v", err)
	}
}

func TestLoadPolicy_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	writePolicy(t, tmpDir, `invalid: yaml: content: [[[`, 0600)

	if _, err := LoadPolicy(tmpDir); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadPolicy_UnsupportedVersion(t *testing.T) {
	tmpDir := t.TempDir()
	writePolicy(t, tmpDir, "version: 99\ndefault_action: deny\n", 0600)

	if _, err := LoadPolicy(tmpDir); err == nil {
		t.Error("expected error for unsupported version")
	}
}

func TestLoadPolicy_DefaultActionFallback(t *testing.T) {
	tmpDir := t.TempDir()
	writePolicy(t, tmpDir, "version: 1\nallowed_tags:\n  - work\n", 0600)

	policy, err := LoadPolicy(tmpDir)
	if err != nil {
		t.Fatalf("LoadPolicy failed: %v", err)
	}
	if policy.DefaultAction != ActionDeny {
		t.Errorf("expected default_action 'deny', got '%s'", policy.DefaultAction)
	}
	if policy.CanCopy() {
		t.Error("allow_copy should default to false")
	}
}

func TestLoadPolicy_Symlink(t *testing.T) {
	tmpDir := t.TempDir()

	realPath := filepath.Join(tmpDir, "real-policy.yaml")
	if err := os.WriteFile(realPath, []byte("version: 1\n"), 0600); err != nil {
		t.Fatalf("failed to write real policy file: %v", err)
	}
	if err := os.Symlink(realPath, filepath.Join(tmpDir, PolicyFileName)); err != nil {
		t.Skipf("symlinks not available: %v", err)
	}

	_, err := LoadPolicy(tmpDir)
	if !errors.Is(err, ErrPolicySymlink) {
		t.Errorf("expected ErrPolicySymlink, got %v", err)
	}
}

func TestIsVisible(t *testing.T) {
	policy := &Policy{
		Version:       1,
		DefaultAction: ActionDeny,
		DeniedTags:    []string{"bank", "*-prod"},
		AllowedTags:   []string{"work", "dev-*"},
	}

	tests := []struct {
		name    string
		tags    []string
		visible bool
	}{
		{"allowed tag", []string{"work"}, true},
		{"allowed glob", []string{"dev-api"}, true},
		{"denied wins over allowed", []string{"work", "bank"}, false},
		{"denied glob", []string{"db-prod"}, false},
		{"no match uses default", []string{"home"}, false},
		{"untagged uses default", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			visible, reason := policy.IsVisible(tt.tags)
			if visible != tt.visible {
				t.Errorf("IsVisible(%v) = %v, want %v", tt.tags, visible, tt.visible)
			}
			if !visible && reason == "" {
				t.Error("expected a reason for a hidden credential")
			}
		})
	}
}

func TestIsVisible_DefaultAllow(t *testing.T) {
	policy := &Policy{Version: 1, DefaultAction: ActionAllow, DeniedTags: []string{"bank"}}

	if visible, _ := policy.IsVisible(nil); !visible {
		t.Error("untagged credential should be visible with default allow")
	}
	if visible, _ := policy.IsVisible([]string{"bank"}); visible {
		t.Error("denied tag should hide the credential")
	}
}

func TestNilPolicy(t *testing.T) {
	var policy *Policy

	if visible, _ := policy.IsVisible([]string{"anything"}); !visible {
		t.Error("nil policy should show every credential")
	}
	if policy.CanRevealUsernames() {
		t.Error("nil policy must not reveal usernames")
	}
	if policy.CanCopy() {
		t.Error("nil policy must not allow copy")
	}
}

func TestValidatePolicy_Valid(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
	}{
		{"deny", Policy{Version: 1, DefaultAction: ActionDeny}},
		{"allow", Policy{Version: 1, DefaultAction: ActionAllow}},
		{"globs", Policy{Version: 1, DefaultAction: ActionDeny, AllowedTags: []string{"dev-*", "w?rk"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.policy.ValidatePolicy(); err != nil {
				t.Errorf("ValidatePolicy() = %v", err)
			}
		})
	}
}

func TestValidatePolicy_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
	}{
		{"version", Policy{Version: 2, DefaultAction: ActionDeny}},
		{"action", Policy{Version: 1, DefaultAction: "maybe"}},
		{"pattern", Policy{Version: 1, DefaultAction: ActionDeny, DeniedTags: []string{"[bad"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.policy.ValidatePolicy(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
