package vault

import (
	"database/sql"
	"errors"
	"strings"
)

// CredentialFields holds the optional parts of a credential. A nil field is
// absent, which is distinct from a present empty string.
type CredentialFields struct {
	Username    *string
	Password    *string
	Description *string
	Note        *string
}

// Empty reports whether no field is present.
func (f CredentialFields) Empty() bool {
	return f.Username == nil && f.Password == nil && f.Description == nil && f.Note == nil
}

// Credential is a fully resolved credential: pooled values replaced by their
// text, and the names of every tag linked to it in ascending order.
type Credential struct {
	ID int64
	CredentialFields
	Tags []string
}

// AddCredential stores a new credential and returns its id. Present username
// and password values are resolved through their pools, creating pool rows
// as needed.
func (v *Vault) AddCredential(fields CredentialFields) (int64, error) {
	var id int64
	err := v.update(func(tx *sql.Tx) error {
		res, err := tx.Exec(
			"INSERT INTO credentials (description, note) VALUES (?, ?)",
			nullString(fields.Description), nullString(fields.Note),
		)
		if err != nil {
			return storageError("insert credential", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return storageError("read credential id", err)
		}

		return setPooledRefs(tx, id, fields)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// setPooledRefs points the credential at pool rows for every present identity field.
func setPooledRefs(tx *sql.Tx, id int64, fields CredentialFields) error {
	if fields.Username != nil {
		uid, err := getOrCreate(tx, "usernames", "text", *fields.Username)
		if err != nil {
			return err
		}
		if _, err := tx.Exec("UPDATE credentials SET username_id = ? WHERE id = ?", uid, id); err != nil {
			return storageError("update credential username", err)
		}
	}
	if fields.Password != nil {
		pid, err := getOrCreate(tx, "passwords", "text", *fields.Password)
		if err != nil {
			return err
		}
		if _, err := tx.Exec("UPDATE credentials SET password_id = ? WHERE id = ?", pid, id); err != nil {
			return storageError("update credential password", err)
		}
	}
	return nil
}

// ReadCredential returns the credential with the given id, or
// ErrCredentialNotFound. The result is never partially populated.
func (v *Vault) ReadCredential(id int64) (*Credential, error) {
	var cred *Credential
	err := v.view(func(tx *sql.Tx) error {
		var username, password, description, note sql.NullString
		err := tx.QueryRow(`
			SELECT u.text, p.text, c.description, c.note
			FROM credentials c
			LEFT JOIN usernames u ON u.id = c.username_id
			LEFT JOIN passwords p ON p.id = c.password_id
			WHERE c.id = ?`, id,
		).Scan(&username, &password, &description, &note)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrCredentialNotFound
		}
		if err != nil {
			return storageError("read credential", err)
		}

		tags, err := credentialTags(tx, id)
		if err != nil {
			return err
		}

		cred = &Credential{
			ID: id,
			CredentialFields: CredentialFields{
				Username:    optional(username),
				Password:    optional(password),
				Description: optional(description),
				Note:        optional(note),
			},
			Tags: tags,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cred, nil
}

func credentialTags(q querier, id int64) ([]string, error) {
	rows, err := q.Query(`
		SELECT t.name FROM tag_links l
		JOIN tags t ON t.id = l.tag_id
		WHERE l.credential_id = ?
		ORDER BY t.name`, id)
	if err != nil {
		return nil, storageError("query credential tags", err)
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, storageError("scan tag", err)
		}
		tags = append(tags, name)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate tags", err)
	}
	return tags, nil
}

// UpdateCredential applies patch to the credential with the given id. Absent
// patch fields are left untouched; there is no way to clear a field through
// a patch. Updating a credential that does not exist returns
// ErrCredentialNotFound.
func (v *Vault) UpdateCredential(id int64, patch CredentialFields) error {
	return v.update(func(tx *sql.Tx) error {
		if err := requireCredential(tx, id); err != nil {
			return err
		}

		var sets []string
		var args []any
		if patch.Description != nil {
			sets = append(sets, "description = ?")
			args = append(args, *patch.Description)
		}
		if patch.Note != nil {
			sets = append(sets, "note = ?")
			args = append(args, *patch.Note)
		}
		if len(sets) > 0 {
			args = append(args, id)
			if _, err := tx.Exec("UPDATE credentials SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...); err != nil {
				return storageError("update credential", err)
			}
		}

		return setPooledRefs(tx, id, patch)
	})
}

// DeleteCredential removes the credential and its tag links. Pooled values it
// referenced are kept. Deleting an id that does not exist is not an error.
func (v *Vault) DeleteCredential(id int64) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	db, err := v.handle()
	if err != nil {
		return err
	}
	if _, err := db.Exec("DELETE FROM credentials WHERE id = ?", id); err != nil {
		return storageError("delete credential", err)
	}
	return nil
}

// CredentialExists reports whether a credential with the given id exists.
func (v *Vault) CredentialExists(id int64) (bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	db, err := v.handle()
	if err != nil {
		return false, err
	}
	return credentialExists(db, id)
}

func credentialExists(q querier, id int64) (bool, error) {
	var one int
	err := q.QueryRow("SELECT 1 FROM credentials WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storageError("check credential", err)
	}
	return true, nil
}

func requireCredential(q querier, id int64) error {
	ok, err := credentialExists(q, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCredentialNotFound
	}
	return nil
}
