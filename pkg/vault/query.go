package vault

import (
	"database/sql"
	"fmt"
	"strings"
)

// ListMode selects which credentials ListCredentials returns.
type ListMode int

const (
	ListAll      ListMode = iota // every credential
	ListUntagged                 // credentials with no tag links
	ListByTags                   // credentials carrying every tag in the set
)

// CredentialQuery is a ListCredentials filter.
type CredentialQuery struct {
	Mode ListMode
	Tags []string // used by ListByTags only
}

// AllCredentials matches every credential.
func AllCredentials() CredentialQuery { return CredentialQuery{Mode: ListAll} }

// UntaggedCredentials matches credentials with no tags.
func UntaggedCredentials() CredentialQuery { return CredentialQuery{Mode: ListUntagged} }

// TaggedWith matches credentials whose tag set is a superset of tags.
func TaggedWith(tags ...string) CredentialQuery {
	return CredentialQuery{Mode: ListByTags, Tags: tags}
}

// CredentialSummary is a list entry. Secrets are not loaded.
type CredentialSummary struct {
	ID          int64
	Description *string
}

// ListCredentials returns the credentials matching q in ascending id order.
// ByTags with an empty tag set is rejected with ErrEmptyTagSet; a tag that
// does not exist simply matches nothing.
func (v *Vault) ListCredentials(q CredentialQuery) ([]CredentialSummary, error) {
	var query string
	var args []any

	switch q.Mode {
	case ListAll:
		query = "SELECT id, description FROM credentials ORDER BY id"
	case ListUntagged:
		query = `
			SELECT c.id, c.description FROM credentials c
			WHERE NOT EXISTS (SELECT 1 FROM tag_links l WHERE l.credential_id = c.id)
			ORDER BY c.id`
	case ListByTags:
		tags, err := tagSet(q.Tags)
		if err != nil {
			return nil, err
		}
		query = fmt.Sprintf(`
			SELECT c.id, c.description FROM credentials c
			JOIN tag_links l ON l.credential_id = c.id
			JOIN tags t ON t.id = l.tag_id
			WHERE t.name IN (%s)
			GROUP BY c.id
			HAVING COUNT(DISTINCT t.id) = ?
			ORDER BY c.id`, placeholders(len(tags)))
		args = append(stringArgs(tags), len(tags))
	default:
		return nil, fmt.Errorf("vault: unknown list mode %d: %w", q.Mode, ErrInvalidArgument)
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	db, err := v.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, storageError("query credentials", err)
	}
	defer rows.Close()

	list := []CredentialSummary{}
	for rows.Next() {
		var s CredentialSummary
		var description sql.NullString
		if err := rows.Scan(&s.ID, &description); err != nil {
			return nil, storageError("scan credential", err)
		}
		s.Description = optional(description)
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate credentials", err)
	}
	return list, nil
}

// ListTags returns tags in ascending name order. With no filter it returns
// every tag. Otherwise it returns the tags that appear, on at least one
// credential, together with every filter tag; the filter tags themselves are
// excluded.
func (v *Vault) ListTags(filter ...string) ([]Tag, error) {
	query := "SELECT id, name, wiki FROM tags ORDER BY name"
	var args []any

	if len(filter) > 0 {
		tags, err := tagSet(filter)
		if err != nil {
			return nil, err
		}
		ph := placeholders(len(tags))
		query = fmt.Sprintf(`
			WITH matched AS (
				SELECT l.credential_id FROM tag_links l
				JOIN tags t ON t.id = l.tag_id
				WHERE t.name IN (%s)
				GROUP BY l.credential_id
				HAVING COUNT(DISTINCT t.id) = ?
			)
			SELECT DISTINCT t.id, t.name, t.wiki FROM tag_links l
			JOIN tags t ON t.id = l.tag_id
			WHERE l.credential_id IN (SELECT credential_id FROM matched)
			AND t.name NOT IN (%s)
			ORDER BY t.name`, ph, ph)
		args = append(stringArgs(tags), len(tags))
		args = append(args, stringArgs(tags)...)
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	db, err := v.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, storageError("query tags", err)
	}
	defer rows.Close()

	list := []Tag{}
	for rows.Next() {
		var tag Tag
		var wiki sql.NullString
		if err := rows.Scan(&tag.ID, &tag.Name, &wiki); err != nil {
			return nil, storageError("scan tag", err)
		}
		tag.Wiki = optional(wiki)
		list = append(list, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate tags", err)
	}
	return list, nil
}

// ReuseGroup lists the credentials that share one pooled password.
type ReuseGroup struct {
	PasswordID    int64
	CredentialIDs []int64
}

// PasswordReuse returns every pooled password referenced by more than one
// credential, ordered by password id, with credential ids ascending.
func (v *Vault) PasswordReuse() ([]ReuseGroup, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	db, err := v.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`
		SELECT password_id, id FROM credentials
		WHERE password_id IN (
			SELECT password_id FROM credentials
			WHERE password_id IS NOT NULL
			GROUP BY password_id
			HAVING COUNT(*) > 1
		)
		ORDER BY password_id, id`)
	if err != nil {
		return nil, storageError("query password reuse", err)
	}
	defer rows.Close()

	groups := []ReuseGroup{}
	for rows.Next() {
		var pid, cid int64
		if err := rows.Scan(&pid, &cid); err != nil {
			return nil, storageError("scan password reuse", err)
		}
		if n := len(groups); n == 0 || groups[n-1].PasswordID != pid {
			groups = append(groups, ReuseGroup{PasswordID: pid})
		}
		last := &groups[len(groups)-1]
		last.CredentialIDs = append(last.CredentialIDs, cid)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate password reuse", err)
	}
	return groups, nil
}

// tagSet validates and deduplicates a required tag set, keeping first-seen order.
func tagSet(tags []string) ([]string, error) {
	if len(tags) == 0 {
		return nil, ErrEmptyTagSet
	}
	seen := make(map[string]struct{}, len(tags))
	set := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag == "" {
			return nil, ErrEmptyTagName
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		set = append(set, tag)
	}
	return set, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, s := range values {
		args[i] = s
	}
	return args
}
