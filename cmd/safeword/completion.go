package main

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/safeword/pkg/vault"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate completion script for your shell",
	Long: `To load completions:

Bash:
  $ source <(safeword completion bash)

  # To load for each session (Linux):
  $ safeword completion bash > ~/.local/share/bash-completion/completions/safeword

Zsh:
  $ safeword completion zsh > ~/.zsh/completions/_safeword

Fish:
  $ safeword completion fish > ~/.config/fish/completions/safeword.fish

PowerShell:
  PS> safeword completion powershell >> $PROFILE

Credential ids and tag names are completed from the vault. Descriptions are
shown next to ids; secrets are never read.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(w)
		case "zsh":
			return cmd.Root().GenZshCompletion(w)
		case "fish":
			return cmd.Root().GenFishCompletion(w, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(w)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
	registerCompletionFunctions()
}

// completionVault runs fn against the vault for shell completion. Any
// failure yields no candidates.
func completionVault(cmd *cobra.Command, fn func(*vault.Vault) []string) ([]string, cobra.ShellCompDirective) {
	if err := loadSettings(cmd); err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var out []string
	err := vault.With(dbPath, func(v *vault.Vault) error {
		out = fn(v)
		return nil
	})
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

func completeIDs(cmd *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return completionVault(cmd, func(v *vault.Vault) []string { return idCandidates(v, toComplete) })
}

func completeTags(cmd *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return completionVault(cmd, func(v *vault.Vault) []string { return tagCandidates(v, toComplete) })
}

func completeIDsOrTags(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return completionVault(cmd, func(v *vault.Vault) []string {
		return append(idCandidates(v, toComplete), tagCandidates(v, toComplete)...)
	})
}

// completeTagArgs completes IDS for the first argument of tag and tag names
// after it.
func completeTagArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 && !tagDelete && !tagMove && !tagRelated && !cmd.Flags().Changed("wiki") {
		return completeIDs(cmd, args, toComplete)
	}
	return completeTags(cmd, args, toComplete)
}

func idCandidates(v *vault.Vault, prefix string) []string {
	list, err := v.ListCredentials(vault.AllCredentials())
	if err != nil {
		return nil
	}
	var out []string
	for _, s := range list {
		id := strconv.FormatInt(s.ID, 10)
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		if s.Description != nil {
			id += "\t" + *s.Description
		}
		out = append(out, id)
	}
	return out
}

func tagCandidates(v *vault.Vault, prefix string) []string {
	tags, err := v.ListTags()
	if err != nil {
		return nil
	}
	lower := strings.ToLower(prefix)
	var out []string
	for _, t := range tags {
		if strings.HasPrefix(strings.ToLower(t.Name), lower) {
			out = append(out, t.Name)
		}
	}
	return out
}

func registerCompletionFunctions() {
	for _, cmd := range []*cobra.Command{cpCmd, editCmd, removeCmd} {
		cmd.ValidArgsFunction = completeIDs
	}
	for _, cmd := range []*cobra.Command{showCmd, infoCmd} {
		cmd.ValidArgsFunction = completeIDsOrTags
	}
	listCmd.ValidArgsFunction = completeTags
	exportCmd.ValidArgsFunction = completeTags
	tagCmd.ValidArgsFunction = completeTagArgs

	_ = addCmd.RegisterFlagCompletionFunc("tag", completeTags)
	_ = importCmd.RegisterFlagCompletionFunc("tag", completeTags)
	_ = generateCmd.RegisterFlagCompletionFunc("set", completeIDs)
}
