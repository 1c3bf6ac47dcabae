package security

import (
	"fmt"
	"strconv"

	"github.com/forest6511/safeword/pkg/vault"
)

// Score represents the overall security assessment of a vault.
type Score struct {
	// Overall is the total score (0-100).
	Overall int `json:"overall"`
	// Components breaks down the score into categories.
	Components ScoreComponents `json:"components"`
	// Issues contains the detected security issues.
	Issues []Issue `json:"issues"`
	// Suggestions provides actionable recommendations.
	Suggestions []string `json:"suggestions"`
	// Limited is set when issues were dropped to honour Options.Limit.
	Limited bool `json:"limited"`
}

// ScoreComponents breaks down the score. Each component contributes up to
// 50 points.
type ScoreComponents struct {
	StrengthScore   int `json:"strength"`
	UniquenessScore int `json:"uniqueness"`
}

// IssueType identifies the type of security issue.
type IssueType string

const (
	IssueWeakPassword  IssueType = "weak"
	IssueReusePassword IssueType = "reuse"
)

// Severity indicates the urgency of a security issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Issue represents a detected security problem.
type Issue struct {
	Type     IssueType `json:"type"`
	Severity Severity  `json:"severity"`
	// CredentialIDs are the affected credentials, ascending.
	CredentialIDs []int64 `json:"credential_ids"`
	Description   string  `json:"description"`
	Suggestion    string  `json:"suggestion,omitempty"`
}

// Source is the part of the vault a report reads.
type Source interface {
	ListCredentials(q vault.CredentialQuery) ([]vault.CredentialSummary, error)
	ReadCredential(id int64) (*vault.Credential, error)
	PasswordReuse() ([]vault.ReuseGroup, error)
}

// Options tune a report.
type Options struct {
	// Limit caps the issues of each type (0 = unlimited).
	Limit int
}

// Calculator computes security scores for a vault.
type Calculator struct {
	src  Source
	opts Options
}

// NewCalculator creates a calculator reading from src.
func NewCalculator(src Source, opts Options) *Calculator {
	return &Calculator{src: src, opts: opts}
}

// CalculateScore rates every present password and every reuse group.
// Reuse comes straight from the password pool: two credentials reuse a
// password exactly when they reference the same pool row.
func (c *Calculator) CalculateScore() (*Score, error) {
	list, err := c.src.ListCredentials(vault.AllCredentials())
	if err != nil {
		return nil, err
	}

	var weak []Issue
	points, rated := 0, 0
	for _, s := range list {
		cred, err := c.src.ReadCredential(s.ID)
		if err != nil {
			return nil, err
		}
		if cred.Password == nil {
			continue
		}
		rated++
		strength := Strength(*cred.Password)
		points += strength.Points()
		if strength == PasswordWeak {
			weak = append(weak, Issue{
				Type:          IssueWeakPassword,
				Severity:      SeverityWarning,
				CredentialIDs: []int64{cred.ID},
				Description:   "Password has insufficient strength (" + formatLength(*cred.Password) + ")",
				Suggestion:    "Use a longer password (14+ characters recommended)",
			})
		}
	}

	groups, err := c.src.PasswordReuse()
	if err != nil {
		return nil, err
	}
	var reuse []Issue
	shared := 0
	for _, g := range groups {
		shared += len(g.CredentialIDs)
		reuse = append(reuse, Issue{
			Type:          IssueReusePassword,
			Severity:      SeverityCritical,
			CredentialIDs: g.CredentialIDs,
			Description:   fmt.Sprintf("%d credentials share the same password", len(g.CredentialIDs)),
			Suggestion:    "Use unique passwords for each credential",
		})
	}

	strengthScore, uniquenessScore := 50, 50
	if rated > 0 {
		strengthScore = points / rated
		// Every credential in a group beyond the first is a repeat.
		repeats := shared - len(groups)
		uniquenessScore = (rated - repeats) * 50 / rated
	}

	weak, limitedWeak := c.limit(weak)
	reuse, limitedReuse := c.limit(reuse)
	issues := append(reuse, weak...)
	if issues == nil {
		issues = []Issue{}
	}

	return &Score{
		Overall: strengthScore + uniquenessScore,
		Components: ScoreComponents{
			StrengthScore:   strengthScore,
			UniquenessScore: uniquenessScore,
		},
		Issues:      issues,
		Suggestions: suggestions(len(weak) > 0, len(reuse) > 0),
		Limited:     limitedWeak || limitedReuse,
	}, nil
}

func (c *Calculator) limit(issues []Issue) ([]Issue, bool) {
	if c.opts.Limit > 0 && len(issues) > c.opts.Limit {
		return issues[:c.opts.Limit], true
	}
	return issues, false
}

func suggestions(hasWeak, hasReuse bool) []string {
	s := []string{}
	if hasReuse {
		s = append(s, "Replace reused passwords with unique values (safeword generate --set ID)")
	}
	if hasWeak {
		s = append(s, "Update weak passwords with stronger alternatives (14+ characters)")
	}
	return s
}

// formatLength returns a human-readable length description.
func formatLength(password string) string {
	n := len([]rune(password))
	if n == 1 {
		return "1 character"
	}
	return strconv.Itoa(n) + " characters"
}
