package vault

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// Config keys
const (
	KeyCopyOnce = "copy_once"
)

// Config is the typed view of the config table, loaded once at open.
type Config struct {
	// CopyOnce makes a clipboard delivery single-use: the first paste
	// consumes it.
	CopyOnce bool
}

// configField binds a known key to its Config field.
type configField struct {
	def    string
	format func(c *Config) string
	parse  func(c *Config, value string) error
}

var configFields = map[string]configField{
	KeyCopyOnce: {
		def:    "0",
		format: func(c *Config) string { return formatBool(c.CopyOnce) },
		parse: func(c *Config, value string) error {
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("%w: %s must be a boolean, got %q", ErrInvalidConfigValue, KeyCopyOnce, value)
			}
			c.CopyOnce = b
			return nil
		},
	},
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// IsConfigKey reports whether key is one the typed config understands.
func IsConfigKey(key string) bool {
	_, ok := configFields[key]
	return ok
}

// loadConfig reads every config row into the cache. Unknown keys are
// ignored; a known key whose stored value does not parse keeps its default.
func (v *Vault) loadConfig() error {
	cfg := defaultConfig()

	rows, err := v.db.Query("SELECT key, value FROM config")
	if err != nil {
		return storageError("load config", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return storageError("scan config", err)
		}
		field, ok := configFields[key]
		if !ok || !value.Valid {
			continue
		}
		_ = field.parse(&cfg, value.String)
	}
	if err := rows.Err(); err != nil {
		return storageError("iterate config", err)
	}

	v.cfgMu.Lock()
	v.cfg = cfg
	v.cfgMu.Unlock()
	return nil
}

func defaultConfig() Config {
	var cfg Config
	for _, field := range configFields {
		_ = field.parse(&cfg, field.def)
	}
	return cfg
}

// Config returns a copy of the cached config.
func (v *Vault) Config() Config {
	v.cfgMu.Lock()
	defer v.cfgMu.Unlock()
	return v.cfg
}

// GetConfig returns the value of key. Known keys come from the cache and are
// always present. Unknown keys are looked up in storage; a missing row is
// reported as an absent value, not an error.
func (v *Vault) GetConfig(key string) (*string, error) {
	if field, ok := configFields[key]; ok {
		v.cfgMu.Lock()
		s := field.format(&v.cfg)
		v.cfgMu.Unlock()
		return &s, nil
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	db, err := v.handle()
	if err != nil {
		return nil, err
	}

	var value sql.NullString
	err = db.QueryRow("SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("read config", err)
	}
	return optional(value), nil
}

// SetConfig sets key to value. For a known key the cache is always updated
// and the value is written to storage, in its canonical form, only when
// persist is true; a nil value restores the default. For an unknown key an
// existing row is updated whatever persist says, and a missing row makes the
// call a no-op.
func (v *Vault) SetConfig(key string, value *string, persist bool) error {
	field, known := configFields[key]
	if !known {
		return v.updateConfigRow(key, value)
	}

	v.cfgMu.Lock()
	next := v.cfg
	raw := field.def
	if value != nil {
		raw = *value
	}
	if err := field.parse(&next, raw); err != nil {
		v.cfgMu.Unlock()
		return err
	}
	v.cfg = next
	v.cfgMu.Unlock()

	if !persist {
		return nil
	}
	var stored *string
	if value != nil {
		formatted := field.format(&next)
		stored = &formatted
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	db, err := v.handle()
	if err != nil {
		return err
	}
	_, err = db.Exec(
		"INSERT INTO config (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value",
		key, nullString(stored),
	)
	if err != nil {
		return storageError("write config", err)
	}
	return nil
}

func (v *Vault) updateConfigRow(key string, value *string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	db, err := v.handle()
	if err != nil {
		return err
	}
	if _, err := db.Exec("UPDATE config SET value = ? WHERE key = ?", nullString(value), key); err != nil {
		return storageError("write config", err)
	}
	return nil
}
