package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forest6511/safeword/internal/cli"
	"github.com/forest6511/safeword/pkg/vault"
)

var (
	listAll      bool
	listUntagged bool
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().BoolVarP(&listAll, "all", "a", false, "List every credential")
	listCmd.Flags().BoolVarP(&listUntagged, "untagged", "u", false, "List credentials without tags (the default)")
	listCmd.MarkFlagsMutuallyExclusive("all", "untagged")
}

var listCmd = &cobra.Command{
	Use:     "list [TAGS...]",
	Aliases: []string{"ls"},
	Short:   "List credentials",
	Long: `List credentials as "ID: description".

Without arguments only untagged credentials are shown. With TAGS, the
credentials carrying every one of them are shown. Tags may be comma-separated
and may use glob patterns such as 'work-*'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		patterns := cli.SplitList(args...)
		if len(patterns) > 0 && (listAll || listUntagged) {
			return fmt.Errorf("TAGS cannot be combined with --all or --untagged")
		}
		return withVault(func(v *vault.Vault) error {
			q := vault.UntaggedCredentials()
			switch {
			case listAll:
				q = vault.AllCredentials()
			case len(patterns) > 0:
				tags, err := expandTags(v, patterns)
				if err != nil {
					return err
				}
				q = vault.TaggedWith(tags...)
			}
			list, err := v.ListCredentials(q)
			if err != nil {
				return err
			}
			printSummaries(cmd.OutOrStdout(), list)
			return nil
		})
	},
}

// expandTags expands tag globs against the tags stored in v.
func expandTags(v *vault.Vault, patterns []string) ([]string, error) {
	needsNames := false
	for _, p := range patterns {
		if cli.HasGlob(p) {
			needsNames = true
			break
		}
	}

	var names []string
	if needsNames {
		tags, err := v.ListTags()
		if err != nil {
			return nil, err
		}
		names = make([]string, len(tags))
		for i, t := range tags {
			names[i] = t.Name
		}
	}
	return cli.ExpandPatterns(patterns, names)
}
