package backup

import "errors"

// Backup/Restore errors
var (
	// ErrNotABackup indicates the envelope holds something other than a vault backup.
	ErrNotABackup = errors.New("backup: file is not a vault backup")

	// ErrTargetExists indicates the restore target exists and overwrite was not requested.
	ErrTargetExists = errors.New("backup: restore target already exists")

	// ErrInvalidKeyFile indicates the key file is invalid or wrong size.
	ErrInvalidKeyFile = errors.New("backup: invalid key file: must be exactly 32 bytes")

	// ErrNoSecret indicates neither a password nor a key file was given.
	ErrNoSecret = errors.New("backup: password or key file is required")

	// ErrSizeMismatch indicates the decrypted database does not match the recorded size.
	ErrSizeMismatch = errors.New("backup: decrypted size does not match header")
)
