package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/forest6511/safeword/internal/cli"
	"github.com/forest6511/safeword/pkg/audit"
	"github.com/forest6511/safeword/pkg/vault"
)

func init() {
	rootCmd.AddCommand(removeCmd)
}

var removeCmd = &cobra.Command{
	Use:     "remove ID...",
	Aliases: []string{"rm"},
	Short:   "Remove credentials",
	Long: `Remove credentials and their tag links. Tags and pooled usernames and
passwords are kept. Ids may be given as separate arguments or comma-separated.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := cli.ParseIDs(args...)
		if err != nil {
			return err
		}
		return withVault(func(v *vault.Vault) error {
			for _, id := range ids {
				exists, err := v.CredentialExists(id)
				if err != nil {
					return err
				}
				if !exists {
					slog.Warn("credential does not exist", "id", id)
					continue
				}
				err = v.DeleteCredential(id)
				recordAudit(audit.OpCredentialDelete, audit.CredentialTarget(id), err, nil)
				if err != nil {
					return err
				}
				success.Fprintf(cmd.OutOrStdout(), "Removed credential %d\n", id)
			}
			return nil
		})
	},
}
