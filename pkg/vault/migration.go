package vault

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// CurrentSchemaVersion is the version of the newest embedded migration.
const CurrentSchemaVersion = 3

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrateSchema applies every pending embedded migration. Already-applied
// migrations are skipped, so it runs on every open.
func migrateSchema(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("vault: failed to create migration source: %w: %w", ErrStorage, err)
	}

	dbDriver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return storageError("create migration driver", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("vault: failed to create migrator: %w: %w", ErrStorage, err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("vault: failed to run migrations: %w: %w", ErrStorage, err)
	}
	return nil
}

// SchemaVersion reports the applied schema version and whether the last
// migration was left half-applied.
func (v *Vault) SchemaVersion() (version int, dirty bool, err error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	db, err := v.handle()
	if err != nil {
		return 0, false, err
	}

	err = db.QueryRow("SELECT version, dirty FROM schema_migrations LIMIT 1").Scan(&version, &dirty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storageError("read schema version", err)
	}
	return version, dirty, nil
}
