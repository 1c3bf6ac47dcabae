package main

import (
	"bytes"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/forest6511/safeword/pkg/audit"
	"github.com/forest6511/safeword/pkg/backup"
	"github.com/forest6511/safeword/pkg/crypto"
	"github.com/forest6511/safeword/pkg/vault"
)

// kdfParams is the Argon2id cost used when sealing. Zero means the default.
var kdfParams crypto.KDFParams

var (
	backupOutput    string
	backupStdout    bool
	backupKeyFile   string
	backupCreateKey bool
	backupForce     bool
)

func init() {
	rootCmd.AddCommand(backupCmd)

	backupCmd.Flags().StringVarP(&backupOutput, "output", "o", "", "Output file path")
	backupCmd.Flags().BoolVar(&backupStdout, "stdout", false, "Write the backup to stdout")
	backupCmd.Flags().StringVar(&backupKeyFile, "key-file", "", "Encrypt with a 32-byte key file instead of a password")
	backupCmd.Flags().BoolVar(&backupCreateKey, "create-key", false, "Generate the --key-file first")
	backupCmd.Flags().BoolVarP(&backupForce, "force", "f", false, "Overwrite an existing output file")
	backupCmd.MarkFlagsMutuallyExclusive("output", "stdout")
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create an encrypted backup of the vault",
	Long: `Create an encrypted snapshot of the vault. The backup is sealed with a
password, prompted for twice, or with a key file.

Examples:
  safeword backup -o vault.swbak
  safeword backup --stdout > vault.swbak
  safeword backup -o vault.swbak --key-file backup.key --create-key`,
	Args: cobra.NoArgs,
	RunE: executeBackup,
}

func executeBackup(cmd *cobra.Command, args []string) error {
	if err := validateBackupFlags(); err != nil {
		return err
	}
	if !backupStdout {
		if err := checkOutput(backupOutput, backupForce); err != nil {
			return err
		}
	}

	opts := backup.Options{KeyFile: backupKeyFile, KDF: kdfParams}
	if backupCreateKey {
		if err := backup.GenerateKeyFile(backupKeyFile); err != nil {
			return err
		}
		success.Fprintf(cmd.ErrOrStderr(), "Key file created: %s\n", backupKeyFile)
	}
	if backupKeyFile == "" {
		password, err := readNewSecret(cmd, "backup password")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(password)
		opts.Password = password
	}

	var buf bytes.Buffer
	var header *crypto.Header
	err := withVault(func(v *vault.Vault) error {
		var err error
		header, err = backup.Backup(v, &buf, opts)
		recordAudit(audit.OpVaultBackup, backupOutput, err, nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	if backupStdout {
		_, err := cmd.OutOrStdout().Write(buf.Bytes())
		return err
	}
	if err := writeSecureFile(backupOutput, buf.Bytes()); err != nil {
		return err
	}
	success.Fprintf(cmd.OutOrStdout(), "Backup created: %s (%s credentials, %s)\n",
		backupOutput, header.Meta[backup.MetaCredentials], humanize.Bytes(uint64(buf.Len())))
	return nil
}

func validateBackupFlags() error {
	if !backupStdout && backupOutput == "" {
		return fmt.Errorf("either --output or --stdout is required")
	}
	if backupCreateKey && backupKeyFile == "" {
		return fmt.Errorf("--create-key requires --key-file")
	}
	return nil
}
