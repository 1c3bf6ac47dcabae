package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
)

// Export formats
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Export writes the events within [since, until] to w. Zero bounds are open.
func (l *Logger) Export(w io.Writer, format string, since, until time.Time) error {
	if format != FormatJSON && format != FormatCSV {
		return fmt.Errorf("audit: unsupported format: %s", format)
	}
	events, err := l.events(since, until)
	if err != nil {
		return err
	}
	if events == nil {
		events = []Event{}
	}

	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "operation", "target", "source", "result", "error"}); err != nil {
		return err
	}
	for _, e := range events {
		row := []string{e.Timestamp, e.Operation, e.Target, e.Source, e.Result, e.Error}
		for i := range row {
			row[i] = defuseFormula(row[i])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// defuseFormula stops spreadsheets from evaluating a cell.
func defuseFormula(field string) string {
	if field == "" {
		return field
	}
	switch field[0] {
	case '=', '+', '-', '@':
		return "'" + field
	}
	return field
}

// Prune deletes events older than olderThan and returns how many went. With
// dryRun nothing is changed. The chain start recorded in the state file
// moves to the oldest kept event so Verify keeps passing.
func (l *Logger) Prune(olderThan time.Duration, dryRun bool) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-olderThan)
	files, err := l.logFiles()
	if err != nil {
		return 0, err
	}

	deleted := 0
	var first *Event
	for _, file := range files {
		events, err := readLogFile(file)
		if err != nil {
			return deleted, err
		}

		var kept []Event
		for _, event := range events {
			ts, err := event.Time()
			if err == nil && ts.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, event)
		}
		if first == nil && len(kept) > 0 {
			first = &kept[0]
		}
		if dryRun || len(kept) == len(events) {
			continue
		}

		if len(kept) == 0 {
			if err := os.Remove(file); err != nil {
				return deleted, fmt.Errorf("audit: failed to delete %s: %w", filepath.Base(file), err)
			}
			continue
		}
		if err := rewriteLogFile(file, kept); err != nil {
			return deleted, err
		}
	}

	if dryRun || deleted == 0 {
		return deleted, nil
	}
	if first != nil {
		l.state.FirstSequence, l.state.FirstPrev = first.Chain.Sequence, first.Chain.PrevHash
	} else {
		l.state.FirstSequence, l.state.FirstPrev = l.state.Sequence+1, l.state.PrevHash
	}
	return deleted, l.saveChainState()
}

func rewriteLogFile(path string, events []Event) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range events {
		if err := enc.Encode(&events[i]); err != nil {
			return fmt.Errorf("audit: failed to marshal event: %w", err)
		}
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("audit: failed to rewrite %s: %w", filepath.Base(path), err)
	}
	return os.Chmod(path, 0600)
}
