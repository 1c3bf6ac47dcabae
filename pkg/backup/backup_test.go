package backup

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest6511/safeword/pkg/crypto"
	"github.com/forest6511/safeword/pkg/vault"
)

var cheapKDF = crypto.KDFParams{Memory: 1024, Iterations: 1, Parallelism: 1}

func ptr(s string) *string { return &s }

func setupVault(t *testing.T) *vault.Vault {
	t.Helper()

	v, err := vault.Init(filepath.Join(t.TempDir(), "safeword.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })

	id, err := v.AddCredential(vault.CredentialFields{
		Username:    ptr("nikola"),
		Password:    ptr("tesla"),
		Description: ptr("Nikola Tesla"),
	})
	require.NoError(t, err)
	require.NoError(t, v.TagCredential(id, "inventor"))
	_, err = v.AddCredential(vault.CredentialFields{Note: ptr("loose note")})
	require.NoError(t, err)

	return v
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	v := setupVault(t)
	password := []byte("backup-password")

	var buf bytes.Buffer
	header, err := Backup(v, &buf, Options{Password: password, KDF: cheapKDF})
	require.NoError(t, err)
	assert.Equal(t, crypto.KindVaultBackup, header.Kind)
	assert.Equal(t, "2", header.Meta[MetaCredentials])
	assert.Equal(t, "3", header.Meta[MetaSchemaVersion])
	assert.NotContains(t, buf.String(), "tesla")

	target := filepath.Join(t.TempDir(), "restored", "safeword.db")
	restored, err := Restore(bytes.NewReader(buf.Bytes()), RestoreOptions{
		Options: Options{Password: password},
		Target:  target,
	})
	require.NoError(t, err)
	assert.Equal(t, header.ID, restored.ID)

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(vault.FileMode), info.Mode().Perm())

	err = vault.With(target, func(r *vault.Vault) error {
		list, err := r.ListCredentials(vault.TaggedWith("inventor"))
		require.NoError(t, err)
		require.Len(t, list, 1)

		cred, err := r.ReadCredential(list[0].ID)
		require.NoError(t, err)
		assert.Equal(t, "tesla", *cred.Password)
		return nil
	})
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".restore-", "staged file left behind")
	}
}

func TestRestoreRefusesExistingTarget(t *testing.T) {
	v := setupVault(t)
	password := []byte("pw")

	var buf bytes.Buffer
	_, err := Backup(v, &buf, Options{Password: password, KDF: cheapKDF})
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "existing.db")
	require.NoError(t, os.WriteFile(target, []byte("precious"), 0600))

	_, err = Restore(bytes.NewReader(buf.Bytes()), RestoreOptions{Options: Options{Password: password}, Target: target})
	assert.ErrorIs(t, err, ErrTargetExists)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "precious", string(data))

	_, err = Restore(bytes.NewReader(buf.Bytes()), RestoreOptions{Options: Options{Password: password}, Target: target, Force: true})
	require.NoError(t, err)
	require.NoError(t, vault.With(target, func(*vault.Vault) error { return nil }))
}

func TestRestoreWrongPassword(t *testing.T) {
	v := setupVault(t)

	var buf bytes.Buffer
	_, err := Backup(v, &buf, Options{Password: []byte("right"), KDF: cheapKDF})
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "safeword.db")
	_, err = Restore(&buf, RestoreOptions{Options: Options{Password: []byte("wrong")}, Target: target})
	assert.ErrorIs(t, err, crypto.ErrIntegrityFailed)

	_, statErr := os.Stat(target)
	assert.True(t, os.IsNotExist(statErr))
}

func TestVerifyRejectsPlainFileEnvelope(t *testing.T) {
	password := []byte("pw")
	var buf bytes.Buffer
	require.NoError(t, crypto.Seal(&buf, password, []byte("not a database"), &crypto.Header{KDF: cheapKDF}))

	_, err := Verify(&buf, Options{Password: password})
	assert.ErrorIs(t, err, ErrNotABackup)
}

func TestVerify(t *testing.T) {
	v := setupVault(t)
	password := []byte("pw")

	var buf bytes.Buffer
	_, err := Backup(v, &buf, Options{Password: password, KDF: cheapKDF})
	require.NoError(t, err)

	header, err := Verify(bytes.NewReader(buf.Bytes()), Options{Password: password})
	require.NoError(t, err)
	assert.Equal(t, "safeword.db", header.Name)
}

func TestBackupRequiresSecret(t *testing.T) {
	v := setupVault(t)

	_, err := Backup(v, &bytes.Buffer{}, Options{})
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestKeyFileBackup(t *testing.T) {
	v := setupVault(t)
	keyPath := filepath.Join(t.TempDir(), "backup.key")
	require.NoError(t, GenerateKeyFile(keyPath))
	assert.Error(t, GenerateKeyFile(keyPath), "must not overwrite an existing key file")

	var buf bytes.Buffer
	_, err := Backup(v, &buf, Options{KeyFile: keyPath, KDF: cheapKDF})
	require.NoError(t, err)

	_, err = Verify(bytes.NewReader(buf.Bytes()), Options{KeyFile: keyPath})
	require.NoError(t, err)

	_, err = Verify(bytes.NewReader(buf.Bytes()), Options{Password: []byte("guess")})
	assert.ErrorIs(t, err, crypto.ErrIntegrityFailed)
}

func TestReadKeyFileWrongSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.key")
	require.NoError(t, os.WriteFile(path, []byte("short"), 0600))

	_, err := ReadKeyFile(path)
	assert.ErrorIs(t, err, ErrInvalidKeyFile)
}
