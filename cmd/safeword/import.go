package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/safeword/internal/cli"
	"github.com/forest6511/safeword/pkg/audit"
	"github.com/forest6511/safeword/pkg/importer"
	"github.com/forest6511/safeword/pkg/vault"
)

// maxImportSize bounds the export file read into memory.
const maxImportSize = 64 << 20

var (
	importFrom         string
	importPreserveCase bool
	importTag          string
	importDryRun       bool
)

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importFrom, "from", string(importer.SourceSafeword),
		fmt.Sprintf("Export format: %s", strings.Join(importer.ValidSources(), ", ")))
	importCmd.Flags().BoolVar(&importPreserveCase, "preserve-case", false, "Keep the case of folder and tag names")
	importCmd.Flags().StringVar(&importTag, "tag", "", "Comma-separated tags added to every imported credential")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Show what would be imported without changing the vault")
}

var importCmd = &cobra.Command{
	Use:   "import [--from FORMAT] FILE|-",
	Short: "Import credentials from an export file",
	Long: `Import credentials from a safeword JSON export or from another password
manager. Folders, groupings and collections become tags.

Examples:
  safeword import backup.json
  safeword import --from lastpass --tag imported lastpass.csv
  safeword import --from bitwarden --dry-run bitwarden.json
  safeword import --from 1password - < 1password.csv`,
	Args: cobra.ExactArgs(1),
	RunE: executeImport,
}

func executeImport(cmd *cobra.Command, args []string) error {
	parser, err := importer.GetParser(importer.Source(strings.ToLower(importFrom)))
	if err != nil {
		return fmt.Errorf("invalid --from value '%s': must be one of %v", importFrom, importer.ValidSources())
	}

	data, err := readImportFile(cmd, args[0])
	if err != nil {
		return err
	}

	result, err := parser.Parse(data, importer.ParseOptions{
		PreserveCase: importPreserveCase,
		ExtraTags:    cli.SplitList(importTag),
	})
	if err != nil {
		return fmt.Errorf("failed to parse %s file: %w", parser.Source(), err)
	}

	errOut := cmd.ErrOrStderr()
	for _, warning := range result.Warnings {
		caution.Fprintf(errOut, "Warning: %s\n", warning)
	}
	for _, skipped := range result.Skipped {
		fmt.Fprintf(errOut, "Skipped: %s (%s)\n", skipped.OriginalName, skipped.Reason)
	}
	if len(result.Credentials) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No credentials found in file")
		return nil
	}

	out := cmd.OutOrStdout()
	if importDryRun {
		fmt.Fprintf(out, "Would import %d credential(s):\n", len(result.Credentials))
		for _, c := range result.Credentials {
			fmt.Fprintf(out, "  %s", c.Name)
			if len(c.Tags) > 0 {
				fmt.Fprintf(out, " %s", faint.Sprintf("[%s]", strings.Join(c.Tags, ", ")))
			}
			fmt.Fprintln(out)
		}
		return nil
	}

	return withVault(func(v *vault.Vault) error {
		ids, err := importer.Apply(v, result)
		recordAudit(audit.OpCredentialImport, "", err, map[string]string{
			"format":   string(parser.Source()),
			"imported": strconv.Itoa(len(ids)),
		})
		if len(ids) > 0 {
			success.Fprintf(out, "Imported %d credential(s) (ids %d-%d)\n", len(ids), ids[0], ids[len(ids)-1])
		}
		return err
	})
}

func readImportFile(cmd *cobra.Command, path string) ([]byte, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to access file: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("'%s' is a directory", path)
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %w", err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(io.LimitReader(r, maxImportSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) > maxImportSize {
		return nil, fmt.Errorf("file too large (max %d MB)", maxImportSize>>20)
	}
	return data, nil
}
