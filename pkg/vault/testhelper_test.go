package vault

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestVault creates a fresh vault file in a per-test directory and
// closes it on cleanup.
func setupTestVault(t *testing.T) *Vault {
	t.Helper()

	v, err := Init(filepath.Join(t.TempDir(), "safeword.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })

	return v
}

func ptr(s string) *string { return &s }

// scientist is a fixture credential and the tags it carries.
type scientist struct {
	fields CredentialFields
	tags   []string
}

var scientists = []scientist{
	{
		fields: CredentialFields{Username: ptr("nikola"), Password: ptr("tesla"), Description: ptr("Nikola Tesla")},
		tags:   []string{"genius", "inventor"},
	},
	{
		fields: CredentialFields{Username: ptr("albert"), Password: ptr("einstein"), Description: ptr("Albert Einstein")},
		tags:   []string{"genius", "scientist"},
	},
	{
		fields: CredentialFields{Username: ptr("neil"), Password: ptr("tyson"), Description: ptr("Neil deGrasse Tyson")},
		tags:   []string{"genius", "writer", "scientist", "astrophysicist"},
	},
}

// addScientists stores the fixtures and returns their ids in fixture order.
func addScientists(t *testing.T, v *Vault) []int64 {
	t.Helper()

	ids := make([]int64, 0, len(scientists))
	for _, s := range scientists {
		id, err := v.AddCredential(s.fields)
		require.NoError(t, err)
		for _, tag := range s.tags {
			require.NoError(t, v.TagCredential(id, tag))
		}
		ids = append(ids, id)
	}
	return ids
}

func countRows(t *testing.T, v *Vault, table string) int {
	t.Helper()

	var n int
	require.NoError(t, v.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func tagNames(tags []Tag) []string {
	names := make([]string, len(tags))
	for i, tag := range tags {
		names[i] = tag.Name
	}
	return names
}

func summaryIDs(list []CredentialSummary) []int64 {
	ids := make([]int64, len(list))
	for i, s := range list {
		ids[i] = s.ID
	}
	return ids
}
