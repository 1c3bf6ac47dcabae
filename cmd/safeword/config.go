package main

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/forest6511/safeword/pkg/audit"
	"github.com/forest6511/safeword/pkg/vault"
)

var configUnset bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configGetCmd, configSetCmd, configListCmd)

	configSetCmd.Flags().BoolVar(&configUnset, "unset", false, "Restore the default value")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and change settings stored in the vault",
	Long: `Read and change settings stored in the vault itself.

Settings:
  copy_once   clipboard deliveries may be pasted only once (0 or 1)

These are separate from the YAML config file, which holds per-user settings
such as the vault path and the clipboard timeout.`,
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print a setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(v *vault.Vault) error {
			value, err := v.GetConfig(args[0])
			if err != nil {
				return err
			}
			if value == nil {
				return fmt.Errorf("setting '%s' is not set", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), *value)
			return nil
		})
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY [VALUE]",
	Short: "Change a setting",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var value *string
		switch {
		case configUnset && len(args) == 2:
			return fmt.Errorf("--unset takes no VALUE")
		case !configUnset && len(args) == 1:
			return fmt.Errorf("VALUE is required without --unset")
		case len(args) == 2:
			value = &args[1]
		}

		key := args[0]
		if !vault.IsConfigKey(key) {
			slog.Warn("not a known setting; only an existing row is updated", "key", key)
		}
		return withVault(func(v *vault.Vault) error {
			err := v.SetConfig(key, value, true)
			recordAudit(audit.OpConfigSet, "config:"+key, err, map[string]string{"unset": strconv.FormatBool(value == nil)})
			return err
		})
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every known setting",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(v *vault.Vault) error {
			for _, key := range []string{vault.KeyCopyOnce} {
				value, err := v.GetConfig(key)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", key, valueOrEmpty(value))
			}
			return nil
		})
	},
}
