package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/forest6511/safeword/internal/cli"
	"github.com/forest6511/safeword/pkg/audit"
	"github.com/forest6511/safeword/pkg/importer"
	"github.com/forest6511/safeword/pkg/vault"
)

var (
	exportAll    bool
	exportOutput string
	exportForce  bool
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().BoolVarP(&exportAll, "all", "a", false, "Export every credential")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")
	exportCmd.Flags().BoolVarP(&exportForce, "force", "f", false, "Overwrite an existing output file")
}

var exportCmd = &cobra.Command{
	Use:   "export [-a] [-o FILE] [IDS|TAGS...]",
	Short: "Export credentials as JSON",
	Long: `Export credentials, with their secrets in plain text, as a JSON document
that 'safeword import --from safeword' reads back.

Arguments that are ids select those credentials; the other arguments form a
tag set and select the credentials carrying all of them. Both may be mixed.

Examples:
  safeword export -a -o vault.json
  safeword export 3,7
  safeword export work email`,
	RunE: executeExport,
}

func executeExport(cmd *cobra.Command, args []string) error {
	var ids []int64
	var patterns []string
	for _, arg := range cli.SplitList(args...) {
		if id, err := cli.ParseID(arg); err == nil {
			ids = append(ids, id)
		} else {
			patterns = append(patterns, arg)
		}
	}
	if exportAll == (len(ids)+len(patterns) > 0) {
		return fmt.Errorf("give either --all or credential ids and tags")
	}
	if exportOutput != "" {
		if err := checkOutput(exportOutput, exportForce); err != nil {
			return err
		}
	}

	doc := importer.Document{Version: importer.DocumentVersion, ExportedAt: time.Now().UTC().Truncate(time.Second)}
	err := withVault(func(v *vault.Vault) error {
		selected, err := selectForExport(v, ids, patterns)
		if err != nil {
			return err
		}

		used := make(map[string]bool)
		for _, id := range selected {
			c, err := v.ReadCredential(id)
			if err != nil {
				return err
			}
			doc.Credentials = append(doc.Credentials, importer.NewRecord(c))
			for _, tag := range c.Tags {
				used[tag] = true
			}
		}

		tags, err := v.ListTags()
		if err != nil {
			return err
		}
		for _, t := range tags {
			if t.Wiki != nil && (exportAll || used[t.Name]) {
				doc.Tags = append(doc.Tags, importer.NewTagRecord(t))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	data = append(data, '\n')

	caution.Fprintln(cmd.ErrOrStderr(), "WARNING: the export contains plain-text passwords")
	recordAudit(audit.OpCredentialExport, exportOutput, nil, map[string]string{"credentials": strconv.Itoa(len(doc.Credentials))})
	if exportOutput == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := writeSecureFile(exportOutput, data); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d credential(s) to %s\n", len(doc.Credentials), exportOutput)
	return nil
}

// selectForExport returns the ids to export in ascending order: every
// credential with --all, otherwise the named ids followed by the
// credentials matching the tag set.
func selectForExport(v *vault.Vault, ids []int64, patterns []string) ([]int64, error) {
	if exportAll {
		list, err := v.ListCredentials(vault.AllCredentials())
		if err != nil {
			return nil, err
		}
		return summaryIDs(list), nil
	}

	seen := make(map[int64]bool)
	var selected []int64
	add := func(id int64) {
		if !seen[id] {
			seen[id] = true
			selected = append(selected, id)
		}
	}
	for _, id := range ids {
		if _, err := v.ReadCredential(id); err != nil {
			return nil, err
		}
		add(id)
	}
	if len(patterns) > 0 {
		tags, err := expandTags(v, patterns)
		if err != nil {
			return nil, err
		}
		list, err := v.ListCredentials(vault.TaggedWith(tags...))
		if err != nil {
			return nil, err
		}
		for _, id := range summaryIDs(list) {
			add(id)
		}
	}
	return selected, nil
}

func summaryIDs(list []vault.CredentialSummary) []int64 {
	ids := make([]int64, len(list))
	for i, s := range list {
		ids[i] = s.ID
	}
	return ids
}

// writeSecureFile atomically replaces path with data, readable by the owner
// only.
func writeSecureFile(path string, data []byte) error {
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(path, vault.FileMode); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	return nil
}
