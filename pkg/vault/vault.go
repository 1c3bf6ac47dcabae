// Package vault implements the credential store: deduplicated username and
// password pools, a tag registry with many-to-many links to credentials,
// a small persisted config table and the tag-set queries over them.
//
// A vault is a single SQLite file. Every mutating operation is one statement
// or one transaction; nothing is buffered in memory except the typed config
// cache. The package never logs or prints.
package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// Constants
const (
	DriverName = "sqlite"
	FileMode   = 0600 // Owner read/write only
	DirMode    = 0700 // Owner read/write/execute only

	BusyTimeoutMillis = 5000
)

// Vault is an open credential store backed by one SQLite file.
// It is safe for concurrent use by multiple goroutines.
type Vault struct {
	path string
	db   *sql.DB
	mu   sync.RWMutex // guards db against Close

	cfgMu sync.Mutex
	cfg   Config
}

// Init creates a new, empty vault at path and returns it open.
// It fails with ErrVaultAlreadyExists if anything already exists at path.
func Init(path string) (*Vault, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, DirMode); err != nil {
			return nil, fmt.Errorf("vault: failed to create directory: %w: %w", ErrStorage, err)
		}
	}

	// O_EXCL makes the existence check and the creation one step.
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, FileMode)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, ErrVaultAlreadyExists
		}
		return nil, fmt.Errorf("vault: failed to create file: %w: %w", ErrStorage, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("vault: failed to create file: %w: %w", ErrStorage, err)
	}

	v, err := open(path)
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return v, nil
}

// Open opens an existing vault. The file must already exist; Open never
// creates one. Pending schema migrations are applied and the config table
// is loaded into the typed cache.
func Open(path string) (*Vault, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrVaultNotFound
		}
		return nil, fmt.Errorf("vault: failed to stat database: %w: %w", ErrStorage, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("vault: %s is a directory: %w", path, ErrInvalidArgument)
	}
	return open(path)
}

// With opens the vault at path, runs fn and closes the vault on every exit
// path. A close failure is reported only when fn itself succeeded.
func With(path string, fn func(*Vault) error) (err error) {
	v, err := Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := v.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(v)
}

func open(path string) (*Vault, error) {
	db, err := sql.Open(DriverName, dsn(path))
	if err != nil {
		return nil, storageError("open database", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storageError("open database", err)
	}

	if err := migrateSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	v := &Vault{path: path, db: db}
	if err := v.loadConfig(); err != nil {
		db.Close()
		return nil, err
	}
	return v, nil
}

// dsn enables foreign keys on every pooled connection and makes write
// transactions take the database lock up front, so a read-then-write inside
// one transaction can never fail halfway with SQLITE_BUSY.
func dsn(path string) string {
	escaped := (&url.URL{Path: path}).EscapedPath()
	return fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_txlock=immediate",
		escaped, BusyTimeoutMillis,
	)
}

// Close releases the database handle. Calling Close more than once is a no-op.
func (v *Vault) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.db == nil {
		return nil
	}
	err := v.db.Close()
	v.db = nil
	if err != nil {
		return storageError("close database", err)
	}
	return nil
}

// Path returns the vault file path
func (v *Vault) Path() string {
	return v.path
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// handle returns the open database or ErrVaultClosed. Callers must hold v.mu.
func (v *Vault) handle() (*sql.DB, error) {
	if v.db == nil {
		return nil, ErrVaultClosed
	}
	return v.db, nil
}

// update runs fn inside a write transaction. Nothing fn did is kept unless it
// returns nil and the commit succeeds.
func (v *Vault) update(fn func(tx *sql.Tx) error) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	db, err := v.handle()
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return storageError("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storageError("commit transaction", err)
	}
	return nil
}

// view runs fn inside a read-only transaction so multi-statement reads see
// one consistent snapshot.
func (v *Vault) view(fn func(tx *sql.Tx) error) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	db, err := v.handle()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(context.Background(), &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return storageError("begin transaction", err)
	}
	defer tx.Rollback()

	return fn(tx)
}

// Snapshot writes a consistent copy of the whole vault to dest, which must
// not exist yet. The copy is compacted and usable as a standalone vault.
func (v *Vault) Snapshot(dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("vault: snapshot target %s: %w", dest, ErrVaultAlreadyExists)
	}
	if err := v.checkDiskSpaceForSnapshot(); err != nil {
		return err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	db, err := v.handle()
	if err != nil {
		return err
	}
	if _, err := db.Exec("VACUUM INTO ?", dest); err != nil {
		return storageError("write snapshot", err)
	}
	if err := os.Chmod(dest, FileMode); err != nil {
		return fmt.Errorf("vault: failed to set snapshot permissions: %w: %w", ErrStorage, err)
	}
	return nil
}

// nullString converts an optional field into its column value.
func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// optional converts a nullable column into an optional field.
func optional(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
