package vault

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "safeword.db")

	v, err := Init(path)
	require.NoError(t, err)
	require.NoError(t, v.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FileMode), info.Mode().Perm())

	_, err = Init(path)
	assert.ErrorIs(t, err, ErrVaultAlreadyExists)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestInitRefusesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("keep me"), 0600))

	_, err := Init(path)
	require.ErrorIs(t, err, ErrVaultAlreadyExists)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data))
}

func TestOpenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.db")

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrVaultNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "Open must not create the file")
}

func TestOpenDirectory(t *testing.T) {
	_, err := Open(t.TempDir())
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "safeword.db")
	v, err := Init(path)
	require.NoError(t, err)

	id, err := v.AddCredential(CredentialFields{Description: ptr("bank")})
	require.NoError(t, err)
	require.NoError(t, v.TagCredential(id, "money"))
	require.NoError(t, v.Close())

	err = With(path, func(v *Vault) error {
		cred, err := v.ReadCredential(id)
		require.NoError(t, err)
		assert.Equal(t, "bank", *cred.Description)
		assert.Equal(t, []string{"money"}, cred.Tags)
		return nil
	})
	require.NoError(t, err)
}

func TestWithClosesOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "safeword.db")
	v, err := Init(path)
	require.NoError(t, err)
	require.NoError(t, v.Close())

	boom := errors.New("boom")
	var inner *Vault
	err = With(path, func(v *Vault) error {
		inner = v
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = inner.ReadCredential(1)
	assert.ErrorIs(t, err, ErrVaultClosed)
}

func TestWithMissingVault(t *testing.T) {
	called := false
	err := With(filepath.Join(t.TempDir(), "absent.db"), func(*Vault) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrVaultNotFound)
	assert.False(t, called)
}

func TestCloseIsIdempotent(t *testing.T) {
	v := setupTestVault(t)

	require.NoError(t, v.Close())
	require.NoError(t, v.Close())

	_, err := v.AddCredential(CredentialFields{})
	assert.ErrorIs(t, err, ErrVaultClosed)
	_, err = v.ListTags()
	assert.ErrorIs(t, err, ErrVaultClosed)
	_, err = v.Usernames().GetOrCreate("x")
	assert.ErrorIs(t, err, ErrVaultClosed)
}

func TestSchemaVersion(t *testing.T) {
	v := setupTestVault(t)

	version, dirty, err := v.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
	assert.False(t, dirty)
}

func TestForeignKeysEnforced(t *testing.T) {
	v := setupTestVault(t)

	var on int
	require.NoError(t, v.db.QueryRow("PRAGMA foreign_keys").Scan(&on))
	assert.Equal(t, 1, on)
}

func TestSnapshot(t *testing.T) {
	v := setupTestVault(t)
	ids := addScientists(t, v)

	dest := filepath.Join(t.TempDir(), "copy.db")
	require.NoError(t, v.Snapshot(dest))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FileMode), info.Mode().Perm())

	err = With(dest, func(c *Vault) error {
		cred, err := c.ReadCredential(ids[2])
		require.NoError(t, err)
		assert.Equal(t, "tyson", *cred.Password)
		return nil
	})
	require.NoError(t, err)

	assert.ErrorIs(t, v.Snapshot(dest), ErrVaultAlreadyExists)
}

func TestCheckDiskSpace(t *testing.T) {
	v := setupTestVault(t)

	info, err := v.CheckDiskSpace()
	require.NoError(t, err)
	assert.NotZero(t, info.Total)
	assert.LessOrEqual(t, info.UsedPct, 100)
}
