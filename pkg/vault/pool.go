package vault

import (
	"database/sql"
	"errors"
	"fmt"
)

// Pool is a deduplicating string table. Each distinct text is stored once
// and referenced by id; credentials that share a username or password share
// the same row. Rows are never deleted, even when no credential points at
// them any more.
type Pool struct {
	v     *Vault
	table string
}

// Usernames returns the username pool.
func (v *Vault) Usernames() *Pool {
	return &Pool{v: v, table: "usernames"}
}

// Passwords returns the password pool.
func (v *Vault) Passwords() *Pool {
	return &Pool{v: v, table: "passwords"}
}

// GetOrCreate returns the id of text, inserting it first if the pool does
// not contain it yet. Concurrent callers with the same text all receive the
// same id and exactly one row is created.
func (p *Pool) GetOrCreate(text string) (int64, error) {
	var id int64
	err := p.v.update(func(tx *sql.Tx) error {
		var err error
		id, err = getOrCreate(tx, p.table, "text", text)
		return err
	})
	return id, err
}

// Lookup returns the id of text, or ErrValueNotFound.
func (p *Pool) Lookup(text string) (int64, error) {
	p.v.mu.RLock()
	defer p.v.mu.RUnlock()

	db, err := p.v.handle()
	if err != nil {
		return 0, err
	}

	var id int64
	err = db.QueryRow(fmt.Sprintf("SELECT id FROM %s WHERE text = ?", p.table), text).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrValueNotFound
	}
	if err != nil {
		return 0, storageError("look up "+p.table, err)
	}
	return id, nil
}

// getOrCreate performs the insert-if-absent against a UNIQUE column and
// reads back the row id. The UNIQUE constraint, not a prior SELECT, decides
// which writer creates the row. table and column are never caller input.
func getOrCreate(q querier, table, column, value string) (int64, error) {
	_, err := q.Exec(
		fmt.Sprintf("INSERT INTO %s (%s) VALUES (?) ON CONFLICT (%s) DO NOTHING", table, column, column),
		value,
	)
	if err != nil {
		return 0, storageError("insert into "+table, err)
	}

	var id int64
	err = q.QueryRow(fmt.Sprintf("SELECT id FROM %s WHERE %s = ?", table, column), value).Scan(&id)
	if err != nil {
		return 0, storageError("read back "+table, err)
	}
	return id, nil
}
