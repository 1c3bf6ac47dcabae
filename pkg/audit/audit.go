// Package audit keeps a tamper-evident log of vault activity.
//
// Each event is one JSON line in a monthly file (YYYY-MM.jsonl). Events are
// chained: every record carries the HMAC of the previous one, so a removed,
// reordered or edited line breaks verification. The HMAC key is derived from
// a random key file created next to the log on first use. Events name
// credentials by id and tags by name; secret values are never logged.
package audit

import (
	"bufio"
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// MinDiskSpace is the free space below which Log refuses to write.
const MinDiskSpace = 1024 * 1024

// Operation types
const (
	OpVaultInit    = "vault.init"
	OpVaultBackup  = "vault.backup"
	OpVaultRestore = "vault.restore"

	OpCredentialAdd    = "credential.add"
	OpCredentialUpdate = "credential.update"
	OpCredentialDelete = "credential.delete"
	OpCredentialCopy   = "credential.copy"
	OpCredentialImport = "credential.import"
	OpCredentialExport = "credential.export"

	OpTagLink   = "tag.link"
	OpTagUnlink = "tag.unlink"
	OpTagRename = "tag.rename"
	OpTagDelete = "tag.delete"
	OpTagWiki   = "tag.wiki"

	OpConfigSet = "config.set"
)

// Source identifies where the operation originated
const (
	SourceCLI = "cli"
	SourceMCP = "mcp"
)

// Result indicates the outcome of an operation
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultDenied  = "denied"
)

// File names inside the log directory
const (
	keyFileName   = "audit.key"
	stateFileName = "audit.meta"
	genesis       = "genesis"
	eventVersion  = 1
)

// Event is a single audit record.
type Event struct {
	Version   int    `json:"v"`
	ID        string `json:"id"` // UUIDv7, time ordered
	Timestamp string `json:"ts"` // RFC 3339, nanoseconds, UTC

	Operation string `json:"op"`
	// Target names the object acted on: "credential:12", "tag:work".
	Target  string `json:"target,omitempty"`
	Source  string `json:"source"`
	Session string `json:"session"`

	Result  string            `json:"result"`
	Error   string            `json:"error,omitempty"`
	Context map[string]string `json:"ctx,omitempty"`

	Chain Chain `json:"chain"`
}

// Time parses the event timestamp.
func (e *Event) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, e.Timestamp)
}

// Chain links a record to its predecessor.
type Chain struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	HMAC     string `json:"hmac"`
}

// Entry is what a caller supplies for one event.
type Entry struct {
	Operation string
	Target    string
	Source    string
	Result    string
	Error     string
	Context   map[string]string
}

// chainState is persisted after every write. First* describe where the
// retained chain begins, which moves forward when old records are pruned.
type chainState struct {
	Sequence      int64  `json:"seq"`
	PrevHash      string `json:"prev"`
	FirstSequence int64  `json:"first_seq"`
	FirstPrev     string `json:"first_prev"`
}

// Logger appends events to an audit directory.
type Logger struct {
	dir     string
	key     []byte
	session string
	now     func() time.Time

	mu    sync.Mutex
	state chainState
}

// CredentialTarget formats a credential id as an event target.
func CredentialTarget(id int64) string { return "credential:" + strconv.FormatInt(id, 10) }

// TagTarget formats a tag name as an event target.
func TagTarget(name string) string { return "tag:" + name }

// Open prepares dir for logging, creating it and its key on first use.
func Open(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("audit: failed to create directory: %w", err)
	}

	secret, err := loadOrCreateKey(filepath.Join(dir, keyFileName))
	if err != nil {
		return nil, err
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte("safeword-audit-v1")), key); err != nil {
		return nil, fmt.Errorf("audit: failed to derive HMAC key: %w", err)
	}

	l := &Logger{
		dir:     dir,
		key:     key,
		session: uuid.NewString(),
		now:     time.Now,
		state:   chainState{PrevHash: genesis, FirstSequence: 1, FirstPrev: genesis},
	}
	if err := l.loadChainState(); err != nil {
		return nil, err
	}
	return l, nil
}

func loadOrCreateKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != 32 {
			return nil, fmt.Errorf("audit: key file %s is corrupt", path)
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("audit: failed to read key: %w", err)
	}

	key = make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("audit: failed to generate key: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to create key: %w", err)
	}
	if _, err := f.Write(key); err != nil {
		f.Close()
		return nil, fmt.Errorf("audit: failed to write key: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("audit: failed to write key: %w", err)
	}
	return key, nil
}

// Dir returns the audit log directory path
func (l *Logger) Dir() string { return l.dir }

// Log appends one event to the chain.
func (l *Logger) Log(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := checkDiskSpace(l.dir); err != nil {
		return err
	}

	now := l.now().UTC()
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("audit: failed to generate event id: %w", err)
	}
	event := Event{
		Version:   eventVersion,
		ID:        id.String(),
		Timestamp: now.Format(time.RFC3339Nano),
		Operation: e.Operation,
		Target:    e.Target,
		Source:    e.Source,
		Session:   l.session,
		Result:    e.Result,
		Error:     e.Error,
		Context:   e.Context,
		Chain: Chain{
			Sequence: l.state.Sequence + 1,
			PrevHash: l.state.PrevHash,
		},
	}
	sum, err := l.sign(&event)
	if err != nil {
		return err
	}
	event.Chain.HMAC = sum

	if err := l.appendEvent(now, &event); err != nil {
		return err
	}
	l.state.Sequence = event.Chain.Sequence
	l.state.PrevHash = event.Chain.HMAC
	return l.saveChainState()
}

// Record logs op as a success, or as an error carrying err's message.
func (l *Logger) Record(op, source, target string, err error, ctx map[string]string) error {
	e := Entry{Operation: op, Target: target, Source: source, Result: ResultSuccess, Context: ctx}
	if err != nil {
		e.Result = ResultError
		e.Error = err.Error()
	}
	return l.Log(e)
}

// Denied logs op as refused by policy.
func (l *Logger) Denied(op, source, target, reason string) error {
	return l.Log(Entry{
		Operation: op,
		Target:    target,
		Source:    source,
		Result:    ResultDenied,
		Context:   map[string]string{"reason": reason},
	})
}

// sign returns the HMAC of the event with its own HMAC field empty. JSON
// encoding sorts map keys, so the input is deterministic.
func (l *Logger) sign(e *Event) (string, error) {
	unsigned := *e
	unsigned.Chain.HMAC = ""
	data, err := json.Marshal(&unsigned)
	if err != nil {
		return "", fmt.Errorf("audit: failed to marshal event: %w", err)
	}
	mac := hmac.New(sha256.New, l.key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func (l *Logger) appendEvent(now time.Time, e *Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}

	path := filepath.Join(l.dir, now.Format("2006-01")+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}
	return nil
}

func (l *Logger) loadChainState() error {
	data, err := os.ReadFile(filepath.Join(l.dir, stateFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("audit: failed to read chain state: %w", err)
	}
	var state chainState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("audit: chain state is corrupt: %w", err)
	}
	if state.FirstSequence == 0 {
		state.FirstSequence, state.FirstPrev = 1, genesis
	}
	l.state = state
	return nil
}

func (l *Logger) saveChainState() error {
	data, err := json.Marshal(l.state)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal chain state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.dir, stateFileName), data, 0600); err != nil {
		return fmt.Errorf("audit: failed to save chain state: %w", err)
	}
	return nil
}

// VerifyResult contains the results of chain verification
type VerifyResult struct {
	Valid        bool     `json:"valid"`
	RecordsTotal int      `json:"records_total"`
	Errors       []string `json:"errors,omitempty"`
}

// Verify walks every log file and checks sequence numbers, chain links and
// HMACs. A chain that ends before the persisted head is also an error.
func (l *Logger) Verify() (*VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	files, err := l.logFiles()
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Valid: true}
	fail := func(format string, args ...any) {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf(format, args...))
	}

	expectedSeq, expectedPrev := l.state.FirstSequence, l.state.FirstPrev
	for _, file := range files {
		events, err := readLogFile(file)
		if err != nil {
			return nil, err
		}
		for i := range events {
			event := &events[i]
			result.RecordsTotal++

			if event.Chain.Sequence != expectedSeq {
				fail("sequence gap at record %s: expected %d, got %d", event.ID, expectedSeq, event.Chain.Sequence)
			}
			if event.Chain.PrevHash != expectedPrev {
				fail("chain broken at record %s", event.ID)
			}
			sum, err := l.sign(event)
			if err != nil {
				return nil, err
			}
			if !hmac.Equal([]byte(sum), []byte(event.Chain.HMAC)) {
				fail("HMAC mismatch at record %s: possible tampering", event.ID)
			}

			expectedSeq = event.Chain.Sequence + 1
			expectedPrev = event.Chain.HMAC
		}
	}

	if expectedSeq-1 != l.state.Sequence {
		fail("log ends at sequence %d but %d records were written", expectedSeq-1, l.state.Sequence)
	}
	return result, nil
}

// List returns events newer than since (zero: all), keeping the most
// recent limit of them (0: all), oldest first.
func (l *Logger) List(limit int, since time.Time) ([]Event, error) {
	events, err := l.events(since, time.Time{})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// events returns the events within [since, until]; zero bounds are open.
func (l *Logger) events(since, until time.Time) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	files, err := l.logFiles()
	if err != nil {
		return nil, err
	}

	var out []Event
	for _, file := range files {
		events, err := readLogFile(file)
		if err != nil {
			return nil, err
		}
		for _, event := range events {
			ts, err := event.Time()
			if err != nil {
				continue
			}
			if !since.IsZero() && ts.Before(since) {
				continue
			}
			if !until.IsZero() && ts.After(until) {
				continue
			}
			out = append(out, event)
		}
	}
	return out, nil
}

// logFiles returns the monthly files in chronological order.
func (l *Logger) logFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(l.dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	slices.Sort(files)
	return files, nil
}

func readLogFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to read %s: %w", path, err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("audit: %s line %d: %w", filepath.Base(path), line, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: failed to read %s: %w", path, err)
	}
	return events, nil
}
