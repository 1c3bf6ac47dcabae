package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/safeword/pkg/security"
	"github.com/forest6511/safeword/pkg/vault"
)

var (
	securityVerbose bool
	securityJSON    bool
	securityLimit   int
)

func init() {
	rootCmd.AddCommand(securityCmd)

	securityCmd.Flags().BoolVarP(&securityVerbose, "verbose", "v", false, "Show suggestions")
	securityCmd.Flags().BoolVar(&securityJSON, "json", false, "Output in JSON format")
	securityCmd.Flags().IntVar(&securityLimit, "limit", 0, "Show at most N issues of each type (0 = all)")
}

var securityCmd = &cobra.Command{
	Use:   "security",
	Short: "Report weak and reused passwords",
	Long: `Analyze the passwords in the vault.

The score is made of:
  - Password Strength (0-50): average strength of the stored passwords
  - Uniqueness (0-50): share of credentials whose password is not reused

Reuse is detected from the password pool: credentials storing the same
password text share one pooled value.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if securityLimit < 0 {
			return fmt.Errorf("--limit must not be negative")
		}
		return withVault(func(v *vault.Vault) error {
			score, err := security.NewCalculator(v, security.Options{Limit: securityLimit}).CalculateScore()
			if err != nil {
				return fmt.Errorf("failed to calculate security score: %w", err)
			}
			if securityJSON {
				data, err := json.MarshalIndent(score, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			printScore(cmd.OutOrStdout(), score, securityVerbose)
			return nil
		})
	},
}

func printScore(w io.Writer, score *security.Score, verbose bool) {
	var rating string
	style := success
	switch {
	case score.Overall >= 90:
		rating = "Excellent"
	case score.Overall >= 70:
		rating = "Good"
	case score.Overall >= 50:
		rating, style = "Fair", caution
	default:
		rating, style = "Needs Attention", caution
	}
	fmt.Fprintf(w, "Security Score: %s\n\n", style.Sprintf("%d/100 (%s)", score.Overall, rating))

	fmt.Fprintln(w, heading.Sprint("Components:"))
	fmt.Fprintf(w, "  Password Strength: %2d/50 %s\n", score.Components.StrengthScore, progressBar(score.Components.StrengthScore, 50))
	fmt.Fprintf(w, "  Uniqueness:        %2d/50 %s\n", score.Components.UniquenessScore, progressBar(score.Components.UniquenessScore, 50))
	fmt.Fprintln(w)

	if len(score.Issues) > 0 {
		fmt.Fprintln(w, heading.Sprintf("Issues (%d):", len(score.Issues)))
		for i, issue := range score.Issues {
			ids := make([]string, len(issue.CredentialIDs))
			for j, id := range issue.CredentialIDs {
				ids[j] = strconv.FormatInt(id, 10)
			}
			fmt.Fprintf(w, "  %d. [%s] %s: %s\n", i+1, strings.ToUpper(string(issue.Type)), strings.Join(ids, ","), issue.Description)
		}
		fmt.Fprintln(w)
	}

	if verbose && len(score.Suggestions) > 0 {
		fmt.Fprintln(w, heading.Sprint("Suggestions:"))
		for _, suggestion := range score.Suggestions {
			fmt.Fprintf(w, "  - %s\n", suggestion)
		}
		fmt.Fprintln(w)
	}

	if score.Limited {
		fmt.Fprintln(w, faint.Sprint("More issues were found; raise --limit to see them."))
	}
}

func progressBar(value, maxVal int) string {
	const width = 20
	filled := value * width / maxVal
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}
