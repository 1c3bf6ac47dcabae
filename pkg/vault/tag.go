package vault

import (
	"database/sql"
	"errors"
)

// Tag is a named label with an optional free-text annotation, called its wiki.
type Tag struct {
	ID   int64
	Name string
	Wiki *string
}

// TagCredential links the named tag to a credential, creating the tag if it
// does not exist yet. Linking an already linked pair is a no-op. If the
// credential does not exist nothing is created and ErrCredentialNotFound is
// returned.
func (v *Vault) TagCredential(credentialID int64, name string) error {
	if name == "" {
		return ErrEmptyTagName
	}
	return v.update(func(tx *sql.Tx) error {
		tagID, err := getOrCreate(tx, "tags", "name", name)
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			"INSERT INTO tag_links (credential_id, tag_id) VALUES (?, ?) ON CONFLICT DO NOTHING",
			credentialID, tagID,
		)
		if isForeignKeyViolation(err) {
			return ErrCredentialNotFound
		}
		if err != nil {
			return storageError("link tag", err)
		}
		return nil
	})
}

// UntagCredential removes the link between a credential and the named tag.
// It returns ErrTagNotFound if no such tag exists and ErrNotTagged if the
// tag exists but is not linked to the credential. The tag itself is kept.
func (v *Vault) UntagCredential(credentialID int64, name string) error {
	if name == "" {
		return ErrEmptyTagName
	}
	return v.update(func(tx *sql.Tx) error {
		tag, err := lookupTag(tx, name)
		if err != nil {
			return err
		}
		res, err := tx.Exec("DELETE FROM tag_links WHERE credential_id = ? AND tag_id = ?", credentialID, tag.ID)
		if err != nil {
			return storageError("unlink tag", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return storageError("unlink tag", err)
		}
		if n == 0 {
			return ErrNotTagged
		}
		return nil
	})
}

// CreateTag returns the id of the named tag, creating it without any links
// if needed. A non-nil wiki replaces the tag's annotation.
func (v *Vault) CreateTag(name string, wiki *string) (int64, error) {
	if name == "" {
		return 0, ErrEmptyTagName
	}
	var id int64
	err := v.update(func(tx *sql.Tx) error {
		var err error
		id, err = getOrCreate(tx, "tags", "name", name)
		if err != nil {
			return err
		}
		if wiki == nil {
			return nil
		}
		if _, err := tx.Exec("UPDATE tags SET wiki = ? WHERE id = ?", *wiki, id); err != nil {
			return storageError("update tag wiki", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// LookupTag returns the named tag, or ErrTagNotFound.
func (v *Vault) LookupTag(name string) (*Tag, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	db, err := v.handle()
	if err != nil {
		return nil, err
	}
	return lookupTag(db, name)
}

func lookupTag(q querier, name string) (*Tag, error) {
	var tag Tag
	var wiki sql.NullString
	err := q.QueryRow("SELECT id, name, wiki FROM tags WHERE name = ?", name).Scan(&tag.ID, &tag.Name, &wiki)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTagNotFound
	}
	if err != nil {
		return nil, storageError("look up tag", err)
	}
	tag.Wiki = optional(wiki)
	return &tag, nil
}

// RenameTag gives a tag a new name. Links follow the tag. The new name must
// not be in use by another tag; renaming a tag to its own name is a no-op.
func (v *Vault) RenameTag(oldName, newName string) error {
	if oldName == "" || newName == "" {
		return ErrEmptyTagName
	}
	return v.update(func(tx *sql.Tx) error {
		tag, err := lookupTag(tx, oldName)
		if err != nil {
			return err
		}
		if oldName == newName {
			return nil
		}
		_, err = tx.Exec("UPDATE tags SET name = ? WHERE id = ?", newName, tag.ID)
		if isUniqueViolation(err) {
			return ErrTagExists
		}
		if err != nil {
			return storageError("rename tag", err)
		}
		return nil
	})
}

// DeleteTag removes the named tag and every link to it, or returns
// ErrTagNotFound. Credentials are not affected.
func (v *Vault) DeleteTag(name string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	db, err := v.handle()
	if err != nil {
		return err
	}

	res, err := db.Exec("DELETE FROM tags WHERE name = ?", name)
	if err != nil {
		return storageError("delete tag", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageError("delete tag", err)
	}
	if n == 0 {
		return ErrTagNotFound
	}
	return nil
}

// ReadTagAnnotation returns the wiki of the named tag, which may be absent.
func (v *Vault) ReadTagAnnotation(name string) (*string, error) {
	tag, err := v.LookupTag(name)
	if err != nil {
		return nil, err
	}
	return tag.Wiki, nil
}

// UpdateTagAnnotation sets the wiki of the named tag; nil clears it.
// Nothing happens if the tag does not exist.
func (v *Vault) UpdateTagAnnotation(name string, wiki *string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	db, err := v.handle()
	if err != nil {
		return err
	}
	if _, err := db.Exec("UPDATE tags SET wiki = ? WHERE name = ?", nullString(wiki), name); err != nil {
		return storageError("update tag wiki", err)
	}
	return nil
}

// TagLinkCount returns how many credentials carry the named tag.
func (v *Vault) TagLinkCount(name string) (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	db, err := v.handle()
	if err != nil {
		return 0, err
	}

	tag, err := lookupTag(db, name)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM tag_links WHERE tag_id = ?", tag.ID).Scan(&n); err != nil {
		return 0, storageError("count tag links", err)
	}
	return n, nil
}
