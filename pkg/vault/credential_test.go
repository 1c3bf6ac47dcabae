package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialRoundTrip(t *testing.T) {
	v := setupTestVault(t)

	fields := CredentialFields{
		Username:    ptr("nikola"),
		Password:    ptr("tesla"),
		Description: ptr("Nikola Tesla"),
		Note:        ptr("AC > DC"),
	}
	id, err := v.AddCredential(fields)
	require.NoError(t, err)

	cred, err := v.ReadCredential(id)
	require.NoError(t, err)
	assert.Equal(t, id, cred.ID)
	assert.Equal(t, fields, cred.CredentialFields)
	assert.Empty(t, cred.Tags)
	assert.NotNil(t, cred.Tags)
}

func TestCredentialAbsentAndEmptyAreDistinct(t *testing.T) {
	v := setupTestVault(t)

	tests := []struct {
		name   string
		fields CredentialFields
	}{
		{"all absent", CredentialFields{}},
		{"all empty", CredentialFields{Username: ptr(""), Password: ptr(""), Description: ptr(""), Note: ptr("")}},
		{"empty username only", CredentialFields{Username: ptr("")}},
		{"note only", CredentialFields{Note: ptr("just a note")}},
		{"password without username", CredentialFields{Password: ptr("p4ss")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := v.AddCredential(tt.fields)
			require.NoError(t, err)

			cred, err := v.ReadCredential(id)
			require.NoError(t, err)
			assert.Equal(t, tt.fields, cred.CredentialFields)
		})
	}
}

func TestReadCredentialMissing(t *testing.T) {
	v := setupTestVault(t)

	_, err := v.ReadCredential(42)
	assert.ErrorIs(t, err, ErrCredentialNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCredentialsSharePooledValues(t *testing.T) {
	v := setupTestVault(t)

	for range 3 {
		_, err := v.AddCredential(CredentialFields{Username: ptr("admin"), Password: ptr("admin")})
		require.NoError(t, err)
	}

	assert.Equal(t, 3, countRows(t, v, "credentials"))
	assert.Equal(t, 1, countRows(t, v, "usernames"))
	assert.Equal(t, 1, countRows(t, v, "passwords"))
}

func TestUpdateCredentialPartial(t *testing.T) {
	v := setupTestVault(t)

	id, err := v.AddCredential(CredentialFields{
		Username:    ptr("albert"),
		Password:    ptr("einstein"),
		Description: ptr("Albert Einstein"),
	})
	require.NoError(t, err)

	require.NoError(t, v.UpdateCredential(id, CredentialFields{Password: ptr("relativity"), Note: ptr("")}))

	cred, err := v.ReadCredential(id)
	require.NoError(t, err)
	assert.Equal(t, "albert", *cred.Username)
	assert.Equal(t, "relativity", *cred.Password)
	assert.Equal(t, "Albert Einstein", *cred.Description)
	require.NotNil(t, cred.Note)
	assert.Equal(t, "", *cred.Note)

	// The old password stays pooled.
	_, err = v.Passwords().Lookup("einstein")
	assert.NoError(t, err)
}

func TestUpdateCredentialEmptyPatch(t *testing.T) {
	v := setupTestVault(t)

	fields := CredentialFields{Username: ptr("neil"), Description: ptr("Neil")}
	id, err := v.AddCredential(fields)
	require.NoError(t, err)

	require.NoError(t, v.UpdateCredential(id, CredentialFields{}))

	cred, err := v.ReadCredential(id)
	require.NoError(t, err)
	assert.Equal(t, fields, cred.CredentialFields)
}

func TestUpdateCredentialMissing(t *testing.T) {
	v := setupTestVault(t)

	err := v.UpdateCredential(7, CredentialFields{Password: ptr("nope")})
	assert.ErrorIs(t, err, ErrCredentialNotFound)

	// A failed update leaves nothing behind in the pools.
	assert.Equal(t, 0, countRows(t, v, "passwords"))
}

func TestDeleteCredentialCascadesLinks(t *testing.T) {
	v := setupTestVault(t)
	ids := addScientists(t, v)

	require.NoError(t, v.DeleteCredential(ids[2]))

	exists, err := v.CredentialExists(ids[2])
	require.NoError(t, err)
	assert.False(t, exists)

	var links int
	require.NoError(t, v.db.QueryRow("SELECT COUNT(*) FROM tag_links WHERE credential_id = ?", ids[2]).Scan(&links))
	assert.Zero(t, links)

	// Tags and pooled values outlive the credential.
	_, err = v.LookupTag("astrophysicist")
	assert.NoError(t, err)
	_, err = v.Passwords().Lookup("tyson")
	assert.NoError(t, err)

	tagged, err := v.ListCredentials(TaggedWith("astrophysicist"))
	require.NoError(t, err)
	assert.Empty(t, tagged)
}

func TestDeleteCredentialMissing(t *testing.T) {
	v := setupTestVault(t)

	assert.NoError(t, v.DeleteCredential(99))
}

func TestDeletedIDsAreNotReused(t *testing.T) {
	v := setupTestVault(t)

	first, err := v.AddCredential(CredentialFields{})
	require.NoError(t, err)
	require.NoError(t, v.DeleteCredential(first))

	second, err := v.AddCredential(CredentialFields{})
	require.NoError(t, err)
	assert.Greater(t, second, first)
}

func TestCredentialExists(t *testing.T) {
	v := setupTestVault(t)

	id, err := v.AddCredential(CredentialFields{})
	require.NoError(t, err)

	ok, err := v.CredentialExists(id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.CredentialExists(id + 1)
	require.NoError(t, err)
	assert.False(t, ok)
}
