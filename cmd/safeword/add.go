package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/safeword/internal/cli"
	"github.com/forest6511/safeword/pkg/audit"
	"github.com/forest6511/safeword/pkg/vault"
)

var (
	addDescription string
	addNote        string
	addTags        string
	addGenerate    bool
)

func init() {
	rootCmd.AddCommand(addCmd)

	addCmd.Flags().StringVarP(&addDescription, "message", "m", "", "Description of what the credential is for")
	addCmd.Flags().StringVarP(&addNote, "note", "n", "", "Free-form note")
	addCmd.Flags().StringVarP(&addTags, "tag", "t", "", "Comma-separated tags")
	addCmd.Flags().BoolVarP(&addGenerate, "generate", "g", false, "Generate the password")
}

var addCmd = &cobra.Command{
	Use:   "add [USERNAME [PASSWORD]]",
	Short: "Add a credential",
	Long: `Add a credential. Every part is optional.

With a USERNAME but no PASSWORD the password is prompted for; an empty answer
leaves it unset. Use --generate to store a random password instead.

Examples:
  safeword add -m "GitHub" -t work,git octocat
  safeword add -m "Router admin" -g admin
  safeword add -m "Wifi" -n "guest network" "" hunter2`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var fields vault.CredentialFields
		if cmd.Flags().Changed("message") {
			fields.Description = &addDescription
		}
		if cmd.Flags().Changed("note") {
			fields.Note = &addNote
		}
		if len(args) > 0 {
			fields.Username = &args[0]
		}

		switch {
		case len(args) == 2 && addGenerate:
			return fmt.Errorf("PASSWORD and --generate are mutually exclusive")
		case len(args) == 2:
			fields.Password = &args[1]
		case addGenerate:
			passwords, err := defaultRecipe.generate()
			if err != nil {
				return err
			}
			fields.Password = &passwords[0]
		case len(args) == 1:
			secret, err := readSecret(cmd, "Password (empty for none): ")
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			if len(secret) > 0 {
				password := string(secret)
				fields.Password = &password
			}
		}

		tags := cli.SplitList(addTags)
		return withVault(func(v *vault.Vault) error {
			id, err := v.AddCredential(fields)
			if err != nil {
				return fmt.Errorf("failed to add credential: %w", err)
			}
			for _, tag := range tags {
				if err := v.TagCredential(id, tag); err != nil {
					return fmt.Errorf("credential %d added but tagging with %q failed: %w", id, tag, err)
				}
			}
			slog.Info("credential added", "id", id, "tags", len(tags))
			recordAudit(audit.OpCredentialAdd, audit.CredentialTarget(id), nil, map[string]string{"tags": strings.Join(tags, ",")})
			success.Fprintf(cmd.OutOrStdout(), "Added credential %d\n", id)
			if addGenerate {
				fmt.Fprintln(cmd.OutOrStdout(), *fields.Password)
			}
			return nil
		})
	},
}
