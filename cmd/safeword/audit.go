package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/forest6511/safeword/internal/config"
	"github.com/forest6511/safeword/pkg/audit"
)

var (
	auditLimit int
	auditSince string

	auditVerifyJSON bool

	auditExportFormat string
	auditExportSince  string
	auditExportUntil  string
	auditExportOutput string
	auditExportForce  bool

	auditPruneOlderThan string
	auditPruneDryRun    bool
	auditPruneForce     bool
)

// auditLog is opened on first use for the current vault.
var auditLog *audit.Logger

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd, auditVerifyCmd, auditExportCmd, auditPruneCmd)

	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum number of events to show")
	auditListCmd.Flags().StringVar(&auditSince, "since", "", "Show events since duration (e.g., 24h, 7d)")

	auditVerifyCmd.Flags().BoolVar(&auditVerifyJSON, "json", false, "Print the result as JSON")

	auditExportCmd.Flags().StringVar(&auditExportFormat, "format", audit.FormatJSON, "Output format: json, csv")
	auditExportCmd.Flags().StringVar(&auditExportSince, "since", "", "Export events since duration (e.g., 30d)")
	auditExportCmd.Flags().StringVar(&auditExportUntil, "until", "", "Export events until date (RFC 3339)")
	auditExportCmd.Flags().StringVarP(&auditExportOutput, "output", "o", "", "Output file (default: stdout)")
	auditExportCmd.Flags().BoolVarP(&auditExportForce, "force", "f", false, "Overwrite an existing output file")

	auditPruneCmd.Flags().StringVar(&auditPruneOlderThan, "older-than", "", "Delete events older than duration (e.g., 12m for 12 months)")
	auditPruneCmd.Flags().BoolVar(&auditPruneDryRun, "dry-run", false, "Show what would be deleted without deleting")
	auditPruneCmd.Flags().BoolVarP(&auditPruneForce, "force", "f", false, "Skip confirmation prompt")
	_ = auditPruneCmd.MarkFlagRequired("older-than")
}

// recordAudit appends an event for the current vault. A failure to write
// is logged and never fails the command.
func recordAudit(op, target string, err error, ctx map[string]string) {
	l := openAuditLog()
	if l == nil {
		return
	}
	if werr := l.Record(op, audit.SourceCLI, target, err, ctx); werr != nil {
		slog.Warn("failed to write audit log", "error", werr)
	}
}

func openAuditLog() *audit.Logger {
	if cfg == nil || !cfg.AuditEnabled() {
		return nil
	}
	dir := config.AuditDir(dbPath)
	if auditLog != nil && auditLog.Dir() == dir {
		return auditLog
	}
	l, err := audit.Open(dir)
	if err != nil {
		slog.Warn("audit log unavailable", "dir", dir, "error", err)
		return nil
	}
	auditLog = l
	return l
}

// existingAuditLog opens the audit log for reading commands, which must not
// create one.
func existingAuditLog() (*audit.Logger, error) {
	dir := config.AuditDir(dbPath)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no audit log at %s", dir)
	}
	return audit.Open(dir)
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit log of vault changes",
	Long: `Every change to the vault is appended to an audit log kept next to the
vault file (VAULT.audit/). Records are HMAC-chained so edits, removals and
reordering are detected by 'safeword audit verify'. Secret values are never
logged. Set "audit_log: false" in the config file to turn logging off.`,
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit log entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var since time.Time
		if auditSince != "" {
			d, err := parseDuration(auditSince)
			if err != nil {
				return fmt.Errorf("invalid since format: %w", err)
			}
			since = time.Now().Add(-d)
		}

		l, err := existingAuditLog()
		if err != nil {
			return err
		}
		events, err := l.List(auditLimit, since)
		if err != nil {
			return fmt.Errorf("failed to list audit events: %w", err)
		}

		w := cmd.OutOrStdout()
		if len(events) == 0 {
			fmt.Fprintln(w, "No audit events found")
			return nil
		}
		for _, e := range events {
			when := e.Timestamp
			if ts, err := e.Time(); err == nil {
				when = ts.Local().Format("2006-01-02 15:04:05")
			}
			line := fmt.Sprintf("%s %-18s %-7s %s", faint.Sprint(when), e.Operation, resultLabel(e.Result), e.Target)
			if e.Source != audit.SourceCLI {
				line += " " + faint.Sprint("via "+e.Source)
			}
			if e.Error != "" {
				line += " " + caution.Sprint(e.Error)
			}
			fmt.Fprintln(w, line)
		}
		fmt.Fprintf(w, "\nTotal: %d events\n", len(events))
		return nil
	},
}

func resultLabel(result string) string {
	switch result {
	case audit.ResultSuccess:
		return success.Sprint(result)
	case audit.ResultDenied, audit.ResultError:
		return caution.Sprint(result)
	}
	return result
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify audit log HMAC chain integrity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := existingAuditLog()
		if err != nil {
			return err
		}
		result, err := l.Verify()
		if err != nil {
			return fmt.Errorf("failed to verify audit log: %w", err)
		}

		w := cmd.OutOrStdout()
		if auditVerifyJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
		} else if result.Valid {
			success.Fprintf(w, "Audit log verified: %s records, chain intact\n", humanize.Comma(int64(result.RecordsTotal)))
		} else {
			caution.Fprintln(w, "Audit log verification FAILED")
			fmt.Fprintf(w, "  Records: %d\n", result.RecordsTotal)
			for _, e := range result.Errors {
				fmt.Fprintf(w, "  - %s\n", e)
			}
		}

		if !result.Valid {
			return errors.New("audit log integrity check failed")
		}
		return nil
	},
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit logs to JSON or CSV format",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var since, until time.Time
		if auditExportSince != "" {
			d, err := parseDuration(auditExportSince)
			if err != nil {
				return fmt.Errorf("invalid since format: %w", err)
			}
			since = time.Now().Add(-d)
		}
		if auditExportUntil != "" {
			var err error
			if until, err = time.Parse(time.RFC3339, auditExportUntil); err != nil {
				return fmt.Errorf("invalid until format (use RFC 3339): %w", err)
			}
		}
		if auditExportOutput != "" {
			if err := checkOutput(auditExportOutput, auditExportForce); err != nil {
				return err
			}
		}

		l, err := existingAuditLog()
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		if err := l.Export(&buf, auditExportFormat, since, until); err != nil {
			return fmt.Errorf("failed to export audit logs: %w", err)
		}
		if auditExportOutput == "" {
			_, err := cmd.OutOrStdout().Write(buf.Bytes())
			return err
		}
		if err := writeSecureFile(auditExportOutput, buf.Bytes()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Audit log exported to %s (%s)\n", auditExportOutput, humanize.Bytes(uint64(buf.Len())))
		return nil
	},
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune --older-than DURATION",
	Short: "Delete old audit log entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := parseDuration(auditPruneOlderThan)
		if err != nil {
			return fmt.Errorf("invalid older-than format: %w", err)
		}

		l, err := existingAuditLog()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()

		count, err := l.Prune(d, true)
		if err != nil {
			return fmt.Errorf("failed to preview prune: %w", err)
		}
		if auditPruneDryRun {
			fmt.Fprintf(w, "Would delete %d audit log entries older than %s\n", count, auditPruneOlderThan)
			return nil
		}
		if count == 0 {
			fmt.Fprintln(w, "No audit log entries to delete")
			return nil
		}

		if !auditPruneForce {
			ok, err := confirm(cmd, fmt.Sprintf("delete %d audit log entries older than %s? (y/N) ", count, auditPruneOlderThan))
			if errors.Is(err, errAborted) || (err == nil && !ok) {
				fmt.Fprintln(w, "Aborted")
				return nil
			}
			if err != nil {
				return err
			}
		}

		deleted, err := l.Prune(d, false)
		if err != nil {
			return fmt.Errorf("failed to prune audit logs: %w", err)
		}
		fmt.Fprintf(w, "Deleted %d audit log entries\n", deleted)
		return nil
	},
}

// parseDuration parses "30d", "2w", "12m" (months of 30 days), "1y" or
// anything time.ParseDuration accepts.
func parseDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("duration too short: %s", s)
	}

	day := 24 * time.Hour
	units := map[byte]time.Duration{'d': day, 'w': 7 * day, 'm': 30 * day, 'y': 365 * day}
	unit, ok := units[s[len(s)-1]]
	if !ok {
		return time.ParseDuration(s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid duration value: %s", s[:len(s)-1])
	}
	return time.Duration(n) * unit, nil
}
