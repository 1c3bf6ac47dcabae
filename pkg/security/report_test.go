package security

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/forest6511/safeword/pkg/vault"
)

func newVault(t *testing.T, passwords ...*string) *vault.Vault {
	t.Helper()
	v, err := vault.Init(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { v.Close() })

	for _, p := range passwords {
		if _, err := v.AddCredential(vault.CredentialFields{Password: p}); err != nil {
			t.Fatalf("AddCredential() error = %v", err)
		}
	}
	return v
}

func strPtr(s string) *string { return &s }

func TestCalculateScore_EmptyVault(t *testing.T) {
	v := newVault(t)

	score, err := NewCalculator(v, Options{}).CalculateScore()
	if err != nil {
		t.Fatalf("CalculateScore() error = %v", err)
	}
	if score.Overall != 100 {
		t.Errorf("Overall = %d, want 100", score.Overall)
	}
	if len(score.Issues) != 0 || len(score.Suggestions) != 0 {
		t.Errorf("expected no issues or suggestions, got %+v", score)
	}
}

func TestCalculateScore_WeakAndReused(t *testing.T) {
	v := newVault(t,
		strPtr("short"),
		strPtr("short"),
		strPtr("correct-horse-battery-staple"),
		nil,
	)

	score, err := NewCalculator(v, Options{}).CalculateScore()
	if err != nil {
		t.Fatalf("CalculateScore() error = %v", err)
	}

	want := ScoreComponents{StrengthScore: 16, UniquenessScore: 33}
	if score.Components != want {
		t.Errorf("Components = %+v, want %+v", score.Components, want)
	}
	if score.Overall != 49 {
		t.Errorf("Overall = %d, want 49", score.Overall)
	}

	if len(score.Issues) != 3 {
		t.Fatalf("len(Issues) = %d, want 3", len(score.Issues))
	}
	reuse := score.Issues[0]
	if reuse.Type != IssueReusePassword || !reflect.DeepEqual(reuse.CredentialIDs, []int64{1, 2}) {
		t.Errorf("Issues[0] = %+v, want reuse of [1 2]", reuse)
	}
	for i, id := range []int64{1, 2} {
		issue := score.Issues[i+1]
		if issue.Type != IssueWeakPassword || issue.CredentialIDs[0] != id {
			t.Errorf("Issues[%d] = %+v, want weak password on %d", i+1, issue, id)
		}
	}
	if issue := score.Issues[1]; issue.Description != "Password has insufficient strength (5 characters)" {
		t.Errorf("Description = %q", issue.Description)
	}
	if len(score.Suggestions) != 2 {
		t.Errorf("Suggestions = %v, want 2 entries", score.Suggestions)
	}
	if score.Limited {
		t.Error("Limited = true without a limit")
	}
}

func TestCalculateScore_Limit(t *testing.T) {
	v := newVault(t, strPtr("a1"), strPtr("b2"), strPtr("c3"))

	score, err := NewCalculator(v, Options{Limit: 1}).CalculateScore()
	if err != nil {
		t.Fatalf("CalculateScore() error = %v", err)
	}
	if len(score.Issues) != 1 {
		t.Errorf("len(Issues) = %d, want 1", len(score.Issues))
	}
	if !score.Limited {
		t.Error("Limited = false, want true")
	}
}

func TestCalculateScore_EmptyPasswordIsRated(t *testing.T) {
	v := newVault(t, strPtr(""))

	score, err := NewCalculator(v, Options{}).CalculateScore()
	if err != nil {
		t.Fatalf("CalculateScore() error = %v", err)
	}
	if len(score.Issues) != 1 || score.Issues[0].Type != IssueWeakPassword {
		t.Errorf("Issues = %+v, want one weak password", score.Issues)
	}
}
