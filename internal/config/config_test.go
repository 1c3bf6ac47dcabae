package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad(t *testing.T) {
	t.Setenv("SAFEWORD_TEST_DIR", "/srv/vaults")
	path := writeConfig(t, `
database: ${SAFEWORD_TEST_DIR}/main.db
clipboard_timeout: 10s
editor: vim
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/vaults/main.db", cfg.Database)
	assert.Equal(t, 10*time.Second, cfg.ClipboardTimeout)
	assert.Equal(t, "vim", cfg.Editor)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.AuditEnabled())
}

func TestAuditEnabled(t *testing.T) {
	cfg, err := Load(writeConfig(t, "audit_log: false\n"))
	require.NoError(t, err)
	assert.False(t, cfg.AuditEnabled())

	cfg, err = Load(writeConfig(t, "audit_log: true\n"))
	require.NoError(t, err)
	assert.True(t, cfg.AuditEnabled())

	assert.Equal(t, "/srv/main.db.audit", AuditDir("/srv/main.db"))
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"bad duration":  "clipboard_timeout: soon\n",
		"negative":      "clipboard_timeout: -1s\n",
		"bad log level": "log_level: loud\n",
		"bad yaml":      "database: [\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("info")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)

	level, err = ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)
}

func TestDatabasePathPrecedence(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvDatabase, "")

	cfg := &Config{}
	path, err := cfg.DatabasePath("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, DefaultDatabaseName), path)

	cfg.Database = "~/file.db"
	path, err = cfg.DatabasePath("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "file.db"), path)

	t.Setenv(EnvDatabase, "/env.db")
	path, err = cfg.DatabasePath("")
	require.NoError(t, err)
	assert.Equal(t, "/env.db", path)

	path, err = cfg.DatabasePath("/flag.db")
	require.NoError(t, err)
	assert.Equal(t, "/flag.db", path)
}
