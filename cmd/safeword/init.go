package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/forest6511/safeword/internal/config"
	"github.com/forest6511/safeword/pkg/audit"
	"github.com/forest6511/safeword/pkg/vault"
)

var initForce bool

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing file")
}

var initCmd = &cobra.Command{
	Use:   "init [FILE]",
	Short: "Create a new vault",
	Long: `Create a new, empty vault file. Without FILE the resolved vault path is used.

The file is created with 0600 permissions. An existing file is never
overwritten unless --force is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := dbPath
		if len(args) == 1 {
			path = args[0]
		}

		if _, err := os.Stat(path); err == nil {
			if !initForce {
				return fmt.Errorf("'%s' already exists. Use --force to overwrite", path)
			}
			for _, p := range []string{path, path + "-wal", path + "-shm"} {
				if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("failed to remove %s: %w", p, err)
				}
			}
		}

		v, err := vault.Init(path)
		if err != nil {
			return fmt.Errorf("failed to initialize vault: %w", err)
		}
		if err := v.Close(); err != nil {
			return err
		}
		if path == dbPath {
			recordAudit(audit.OpVaultInit, "", nil, map[string]string{"force": strconv.FormatBool(initForce)})
		}

		success.Fprintf(cmd.OutOrStdout(), "Vault initialized at %s\n", path)
		if path != dbPath {
			fmt.Fprintf(cmd.OutOrStdout(), "Use it with: export %s=%s\n", config.EnvDatabase, path)
		}
		return nil
	},
}
