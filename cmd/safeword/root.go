package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forest6511/safeword/internal/config"
	"github.com/forest6511/safeword/pkg/vault"
)

var (
	dbFlag       string
	configFlag   string
	logLevelFlag string

	// Resolved in PersistentPreRunE.
	cfg        *config.Config
	configPath string
	dbPath     string
)

// Output styles. fatih/color disables them when stdout is not a terminal.
var (
	heading = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen)
	caution = color.New(color.FgYellow)
	faint   = color.New(color.Faint)
)

var rootCmd = &cobra.Command{
	Use:   "safeword",
	Short: "safeword is a local credential vault with tags",
	Long: `safeword stores usernames, passwords, descriptions and notes in a local
SQLite file and organises them with tags.

The vault file is taken from --db, then $SAFEWORD_DB, then the "database"
setting in the config file, and finally ~/.safeword.db.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadSettings(cmd)
	},
}

// loadSettings reads the config file, installs the logger and resolves the
// vault path.
func loadSettings(cmd *cobra.Command) error {
	path := configFlag
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return err
		}
	}
	loaded, err := config.Load(path)
	if err != nil {
		return err
	}
	cfg = loaded
	configPath = path

	levelName := cfg.LogLevel
	if logLevelFlag != "" {
		levelName = logLevelFlag
	}
	level, err := config.ParseLevel(levelName)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))

	dbPath, err = cfg.DatabasePath(dbFlag)
	if err != nil {
		return err
	}
	slog.Debug("resolved vault path", "path", dbPath, "config", path)
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "Vault file (overrides $SAFEWORD_DB)")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default $XDG_CONFIG_HOME/safeword/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")
}

// withVault opens the resolved vault, runs fn and closes it.
func withVault(fn func(*vault.Vault) error) error {
	err := vault.With(dbPath, fn)
	if errors.Is(err, vault.ErrVaultNotFound) {
		return fmt.Errorf("no vault at %s (run 'safeword init %s' or set $%s)", dbPath, dbPath, config.EnvDatabase)
	}
	return err
}

func orNone(s *string) string {
	if s == nil {
		return faint.Sprint("(none)")
	}
	return *s
}

func printSummaries(w io.Writer, list []vault.CredentialSummary) {
	for _, s := range list {
		fmt.Fprintf(w, "%s: %s\n", heading.Sprint(s.ID), orNone(s.Description))
	}
}

func printCredential(w io.Writer, c *vault.Credential) {
	if c.Description != nil {
		fmt.Fprintln(w, *c.Description)
	}
	fmt.Fprintf(w, "username:%s\n", valueOrEmpty(c.Username))
	fmt.Fprintf(w, "password:%s\n", valueOrEmpty(c.Password))
	if c.Note != nil {
		fmt.Fprintln(w, *c.Note)
	}
	if len(c.Tags) > 0 {
		fmt.Fprintln(w, strings.Join(c.Tags, ", "))
	}
}

func valueOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
