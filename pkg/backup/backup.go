// Package backup provides vault backup and restore.
//
// A backup is a consistent snapshot of the vault database sealed in a
// crypto envelope of kind vault-backup. Restore decrypts it, checks that
// the result opens as a vault, and only then moves it into place.
package backup

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"

	"github.com/forest6511/safeword/pkg/crypto"
	"github.com/forest6511/safeword/pkg/vault"
)

// Header meta keys
const (
	MetaCredentials   = "credentials"
	MetaSchemaVersion = "schema_version"
)

// Options selects the secret a backup is sealed with.
type Options struct {
	// Password for encryption.
	Password []byte
	// KeyFile path for a 32-byte key (overrides Password).
	KeyFile string
	// KDF overrides the Argon2id cost on Backup. Zero means the default.
	KDF crypto.KDFParams
}

// secret returns the bytes to stretch and a function that wipes them when
// they were read from a key file.
func (o Options) secret() ([]byte, func(), error) {
	if o.KeyFile != "" {
		key, err := ReadKeyFile(o.KeyFile)
		if err != nil {
			return nil, nil, err
		}
		return key, func() { crypto.SecureWipe(key) }, nil
	}
	if len(o.Password) == 0 {
		return nil, nil, ErrNoSecret
	}
	return o.Password, func() {}, nil
}

// RestoreOptions configures the restore operation.
type RestoreOptions struct {
	Options
	// Target is the vault file to create.
	Target string
	// Force replaces an existing vault at Target.
	Force bool
}

// Backup writes an encrypted snapshot of v to w and returns the header
// that was written.
func Backup(v *vault.Vault, w io.Writer, opts Options) (*crypto.Header, error) {
	secret, wipe, err := opts.secret()
	if err != nil {
		return nil, err
	}
	defer wipe()

	tempDir, err := os.MkdirTemp("", "safeword-backup-*")
	if err != nil {
		return nil, fmt.Errorf("backup: failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	snapshot := filepath.Join(tempDir, "snapshot.db")
	if err := v.Snapshot(snapshot); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(snapshot)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to read snapshot: %w", err)
	}
	defer crypto.SecureWipe(data)

	creds, err := v.ListCredentials(vault.AllCredentials())
	if err != nil {
		return nil, err
	}
	version, _, err := v.SchemaVersion()
	if err != nil {
		return nil, err
	}

	header := &crypto.Header{
		Kind: crypto.KindVaultBackup,
		Name: filepath.Base(v.Path()),
		KDF:  opts.KDF,
		Meta: map[string]string{
			MetaCredentials:   strconv.Itoa(len(creds)),
			MetaSchemaVersion: strconv.Itoa(version),
		},
	}
	if err := crypto.Seal(w, secret, data, header); err != nil {
		return nil, err
	}
	return header, nil
}

// Verify checks that r holds a vault backup that decrypts with opts.
func Verify(r io.Reader, opts Options) (*crypto.Header, error) {
	header, data, err := open(r, opts)
	if err != nil {
		return nil, err
	}
	crypto.SecureWipe(data)
	return header, nil
}

// Restore decrypts a backup into opts.Target. The decrypted database is
// written next to the target, opened once as a vault to prove it is usable,
// and then atomically renamed over the target.
func Restore(r io.Reader, opts RestoreOptions) (*crypto.Header, error) {
	if opts.Target == "" {
		return nil, errors.New("backup: restore target is required")
	}
	if _, err := os.Stat(opts.Target); err == nil && !opts.Force {
		return nil, fmt.Errorf("%w: %s", ErrTargetExists, opts.Target)
	}

	header, data, err := open(r, opts.Options)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureWipe(data)

	dir := filepath.Dir(opts.Target)
	if err := os.MkdirAll(dir, vault.DirMode); err != nil {
		return nil, fmt.Errorf("backup: failed to create directory: %w", err)
	}

	staged := filepath.Join(dir, fmt.Sprintf(".%s.restore-%s", filepath.Base(opts.Target), uuid.NewString()))
	if err := os.WriteFile(staged, data, vault.FileMode); err != nil {
		return nil, fmt.Errorf("backup: failed to stage database: %w", err)
	}
	defer os.Remove(staged)

	if err := vault.With(staged, func(*vault.Vault) error { return nil }); err != nil {
		return nil, fmt.Errorf("backup: restored database does not open: %w", err)
	}

	// Leftover WAL files belong to the database being replaced.
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(opts.Target + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("backup: failed to remove %s: %w", opts.Target+suffix, err)
		}
	}

	if err := atomic.ReplaceFile(staged, opts.Target); err != nil {
		return nil, fmt.Errorf("backup: failed to move restored vault into place: %w", err)
	}
	return header, nil
}

func open(r io.Reader, opts Options) (*crypto.Header, []byte, error) {
	secret, wipe, err := opts.secret()
	if err != nil {
		return nil, nil, err
	}
	defer wipe()

	header, data, err := crypto.Open(r, secret)
	if err != nil {
		return nil, nil, err
	}
	if header.Kind != crypto.KindVaultBackup {
		crypto.SecureWipe(data)
		return nil, nil, fmt.Errorf("%w: kind is %q", ErrNotABackup, header.Kind)
	}
	if int64(len(data)) != header.Size {
		crypto.SecureWipe(data)
		return nil, nil, ErrSizeMismatch
	}
	if !bytes.HasPrefix(data, []byte("SQLite format 3\x00")) {
		crypto.SecureWipe(data)
		return nil, nil, fmt.Errorf("%w: payload is not an SQLite database", ErrNotABackup)
	}
	return header, data, nil
}
