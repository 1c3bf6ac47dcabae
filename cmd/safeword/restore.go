package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/forest6511/safeword/pkg/audit"
	"github.com/forest6511/safeword/pkg/backup"
	"github.com/forest6511/safeword/pkg/crypto"
)

var (
	restoreTarget     string
	restoreKeyFile    string
	restoreForce      bool
	restoreVerifyOnly bool
)

func init() {
	rootCmd.AddCommand(restoreCmd)

	restoreCmd.Flags().StringVar(&restoreTarget, "target", "", "Vault file to restore into (default: the current vault)")
	restoreCmd.Flags().StringVar(&restoreKeyFile, "key-file", "", "Decryption key file")
	restoreCmd.Flags().BoolVarP(&restoreForce, "force", "f", false, "Replace an existing vault without asking")
	restoreCmd.Flags().BoolVar(&restoreVerifyOnly, "verify-only", false, "Only check that the backup decrypts")
}

var restoreCmd = &cobra.Command{
	Use:   "restore BACKUP",
	Short: "Restore the vault from an encrypted backup",
	Long: `Restore a vault from a backup made with 'safeword backup'.

The backup is decrypted and checked before it replaces anything. An existing
vault is only replaced after confirmation or with --force.

Examples:
  safeword restore vault.swbak --verify-only
  safeword restore vault.swbak --target ~/restored.db
  safeword restore vault.swbak --key-file backup.key -f`,
	Args: cobra.ExactArgs(1),
	RunE: executeRestore,
}

func executeRestore(cmd *cobra.Command, args []string) error {
	target := restoreTarget
	if target == "" {
		target = dbPath
	}

	opts := backup.Options{KeyFile: restoreKeyFile}
	if restoreKeyFile == "" {
		password, err := readSecret(cmd, "Backup password: ")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(password)
		opts.Password = password
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer f.Close()

	if restoreVerifyOnly {
		header, err := backup.Verify(f, opts)
		if err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}
		success.Fprintln(cmd.OutOrStdout(), "Backup is valid")
		printBackupHeader(cmd, header)
		return nil
	}

	force := restoreForce
	if _, err := os.Stat(target); err == nil && !force {
		ok, err := confirm(cmd, fmt.Sprintf("replace the vault at %s? (y/N) ", target))
		if err != nil {
			return err
		}
		if !ok {
			return errAborted
		}
		force = true
	}

	header, err := backup.Restore(f, backup.RestoreOptions{Options: opts, Target: target, Force: force})
	if target == dbPath && !errors.Is(err, backup.ErrTargetExists) {
		recordAudit(audit.OpVaultRestore, args[0], err, nil)
	}
	if errors.Is(err, backup.ErrTargetExists) {
		return fmt.Errorf("%w (use --force to replace it)", err)
	}
	if err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	success.Fprintf(cmd.OutOrStdout(), "Restored %s credentials into %s\n", header.Meta[backup.MetaCredentials], target)
	return nil
}

func printBackupHeader(cmd *cobra.Command, h *crypto.Header) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "  %s %s\n", heading.Sprint("Created:    "), h.CreatedAt.Local().Format(time.RFC1123))
	fmt.Fprintf(w, "  %s %s\n", heading.Sprint("Vault:      "), h.Name)
	fmt.Fprintf(w, "  %s %s\n", heading.Sprint("Credentials:"), h.Meta[backup.MetaCredentials])
	fmt.Fprintf(w, "  %s %s\n", heading.Sprint("Schema:     "), h.Meta[backup.MetaSchemaVersion])
	fmt.Fprintf(w, "  %s %s\n", heading.Sprint("Size:       "), humanize.Bytes(uint64(h.Size)))
}
