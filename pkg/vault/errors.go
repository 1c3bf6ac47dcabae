package vault

import (
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Error kinds. Every error returned by this package matches exactly one of
// these with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrStorage           = errors.New("storage failure")
	ErrResourceExhausted = errors.New("resource exhausted")
)

// Errors
var (
	ErrVaultAlreadyExists = fmt.Errorf("vault: file already exists: %w", ErrInvalidArgument)
	ErrVaultNotFound      = fmt.Errorf("vault: database %w", ErrNotFound)
	ErrVaultClosed        = fmt.Errorf("vault: store is closed: %w", ErrInvalidArgument)
	ErrCredentialNotFound = fmt.Errorf("vault: credential %w", ErrNotFound)
	ErrTagNotFound        = fmt.Errorf("vault: tag %w", ErrNotFound)
	ErrValueNotFound      = fmt.Errorf("vault: pooled value %w", ErrNotFound)
	ErrEmptyTagName       = fmt.Errorf("vault: tag name is empty: %w", ErrInvalidArgument)
	ErrTagExists          = fmt.Errorf("vault: tag name already in use: %w", ErrInvalidArgument)
	ErrNotTagged          = fmt.Errorf("vault: credential does not carry this tag: %w", ErrInvalidArgument)
	ErrEmptyTagSet        = fmt.Errorf("vault: tag set is empty: %w", ErrInvalidArgument)
	ErrInvalidConfigValue = fmt.Errorf("vault: invalid config value: %w", ErrInvalidArgument)
	ErrInsufficientDisk   = fmt.Errorf("vault: insufficient disk space: %w", ErrResourceExhausted)
)

// storageError wraps an engine error with the operation that produced it.
// Allocation and disk-full conditions reported by SQLite are classified as
// ErrResourceExhausted, everything else as ErrStorage.
func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := ErrStorage
	switch sqliteCode(err) & 0xff {
	case sqlite3.SQLITE_NOMEM, sqlite3.SQLITE_FULL:
		kind = ErrResourceExhausted
	}
	return fmt.Errorf("vault: failed to %s: %w: %w", op, kind, err)
}

// sqliteCode returns the extended SQLite result code carried by err, or 0.
func sqliteCode(err error) int {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		return serr.Code()
	}
	return 0
}

func isUniqueViolation(err error) bool {
	code := sqliteCode(err)
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func isForeignKeyViolation(err error) bool {
	return sqliteCode(err) == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}
