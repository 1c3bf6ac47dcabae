package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	v := setupTestVault(t)

	assert.False(t, v.Config().CopyOnce)

	value, err := v.GetConfig(KeyCopyOnce)
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, "0", *value)
}

func TestConfigSetWithoutPersist(t *testing.T) {
	v := setupTestVault(t)

	require.NoError(t, v.SetConfig(KeyCopyOnce, ptr("1"), false))
	assert.True(t, v.Config().CopyOnce)

	value, err := v.GetConfig(KeyCopyOnce)
	require.NoError(t, err)
	assert.Equal(t, "1", *value)

	require.NoError(t, v.Close())
	reopened, err := Open(v.Path())
	require.NoError(t, err)
	defer reopened.Close()
	assert.False(t, reopened.Config().CopyOnce, "unpersisted value must not survive reopen")
}

func TestConfigSetPersist(t *testing.T) {
	v := setupTestVault(t)

	require.NoError(t, v.SetConfig(KeyCopyOnce, ptr("true"), true))
	require.NoError(t, v.Close())

	reopened, err := Open(v.Path())
	require.NoError(t, err)
	defer reopened.Close()
	assert.True(t, reopened.Config().CopyOnce)
}

func TestConfigSetNilRestoresDefault(t *testing.T) {
	v := setupTestVault(t)

	require.NoError(t, v.SetConfig(KeyCopyOnce, ptr("1"), true))
	require.NoError(t, v.SetConfig(KeyCopyOnce, nil, true))
	assert.False(t, v.Config().CopyOnce)
}

func TestConfigSetInvalidValue(t *testing.T) {
	v := setupTestVault(t)

	err := v.SetConfig(KeyCopyOnce, ptr("sometimes"), true)
	assert.ErrorIs(t, err, ErrInvalidConfigValue)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.False(t, v.Config().CopyOnce)
}

func TestConfigUnknownKey(t *testing.T) {
	v := setupTestVault(t)

	value, err := v.GetConfig("this_should_not_exist")
	require.NoError(t, err)
	assert.Nil(t, value)

	require.NoError(t, v.SetConfig("this_should_not_exist", ptr("1"), false))
	require.NoError(t, v.SetConfig("this_should_not_exist", ptr("1"), true))

	value, err = v.GetConfig("this_should_not_exist")
	require.NoError(t, err)
	assert.Nil(t, value, "unknown keys are never inserted")
}

func TestConfigUnknownKeyExistingRow(t *testing.T) {
	v := setupTestVault(t)
	_, err := v.db.Exec("INSERT INTO config (key, value) VALUES ('future_option', 'a')")
	require.NoError(t, err)

	value, err := v.GetConfig("future_option")
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, "a", *value)

	require.NoError(t, v.SetConfig("future_option", ptr("b"), false))
	value, err = v.GetConfig("future_option")
	require.NoError(t, err)
	assert.Equal(t, "b", *value)
}

func TestConfigLoadIgnoresBadValues(t *testing.T) {
	v := setupTestVault(t)
	_, err := v.db.Exec("UPDATE config SET value = 'garbage' WHERE key = ?", KeyCopyOnce)
	require.NoError(t, err)
	require.NoError(t, v.Close())

	reopened, err := Open(v.Path())
	require.NoError(t, err)
	defer reopened.Close()
	assert.False(t, reopened.Config().CopyOnce)
	assert.True(t, IsConfigKey(KeyCopyOnce))
	assert.False(t, IsConfigKey("garbage"))
}
