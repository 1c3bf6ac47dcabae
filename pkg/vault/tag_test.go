package vault

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagCredentialIsIdempotent(t *testing.T) {
	v := setupTestVault(t)

	id, err := v.AddCredential(CredentialFields{Description: ptr("mail")})
	require.NoError(t, err)

	require.NoError(t, v.TagCredential(id, "work"))
	require.NoError(t, v.TagCredential(id, "work"))

	cred, err := v.ReadCredential(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"work"}, cred.Tags)
	assert.Equal(t, 1, countRows(t, v, "tags"))
	assert.Equal(t, 1, countRows(t, v, "tag_links"))
}

func TestTagCredentialRejectsEmptyName(t *testing.T) {
	v := setupTestVault(t)

	id, err := v.AddCredential(CredentialFields{})
	require.NoError(t, err)

	err = v.TagCredential(id, "")
	assert.ErrorIs(t, err, ErrEmptyTagName)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestTagCredentialMissingCredential(t *testing.T) {
	v := setupTestVault(t)

	err := v.TagCredential(404, "orphan")
	assert.ErrorIs(t, err, ErrCredentialNotFound)

	_, err = v.LookupTag("orphan")
	assert.ErrorIs(t, err, ErrTagNotFound, "a failed link must not leave the tag behind")
}

func TestCredentialTagsAreSorted(t *testing.T) {
	v := setupTestVault(t)
	ids := addScientists(t, v)

	cred, err := v.ReadCredential(ids[2])
	require.NoError(t, err)
	assert.Equal(t, []string{"astrophysicist", "genius", "scientist", "writer"}, cred.Tags)
}

func TestUntagCredential(t *testing.T) {
	v := setupTestVault(t)
	ids := addScientists(t, v)

	require.NoError(t, v.UntagCredential(ids[0], "inventor"))

	cred, err := v.ReadCredential(ids[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"genius"}, cred.Tags)

	// The tag survives without links.
	n, err := v.TagLinkCount("inventor")
	require.NoError(t, err)
	assert.Zero(t, n)

	err = v.UntagCredential(ids[0], "inventor")
	assert.ErrorIs(t, err, ErrNotTagged)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	err = v.UntagCredential(ids[0], "never-seen")
	assert.ErrorIs(t, err, ErrTagNotFound)
}

func TestCreateTag(t *testing.T) {
	v := setupTestVault(t)

	id, err := v.CreateTag("finance", ptr("Banks and brokers"))
	require.NoError(t, err)

	again, err := v.CreateTag("finance", nil)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	wiki, err := v.ReadTagAnnotation("finance")
	require.NoError(t, err)
	require.NotNil(t, wiki)
	assert.Equal(t, "Banks and brokers", *wiki)

	_, err = v.CreateTag("", nil)
	assert.ErrorIs(t, err, ErrEmptyTagName)
}

func TestRenameTag(t *testing.T) {
	v := setupTestVault(t)
	ids := addScientists(t, v)

	require.NoError(t, v.RenameTag("inventor", "engineer"))

	cred, err := v.ReadCredential(ids[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"engineer", "genius"}, cred.Tags)

	_, err = v.LookupTag("inventor")
	assert.ErrorIs(t, err, ErrTagNotFound)
}

func TestRenameTagErrors(t *testing.T) {
	v := setupTestVault(t)
	addScientists(t, v)

	tests := []struct {
		name     string
		from, to string
		want     error
	}{
		{"target in use", "writer", "genius", ErrTagExists},
		{"missing source", "alchemist", "chemist", ErrTagNotFound},
		{"empty target", "writer", "", ErrEmptyTagName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, v.RenameTag(tt.from, tt.to), tt.want)
		})
	}

	assert.NoError(t, v.RenameTag("writer", "writer"))
	_, err := v.LookupTag("writer")
	assert.NoError(t, err)
}

func TestDeleteTagCascadesLinks(t *testing.T) {
	v := setupTestVault(t)
	ids := addScientists(t, v)

	require.NoError(t, v.DeleteTag("genius"))

	for _, id := range ids {
		cred, err := v.ReadCredential(id)
		require.NoError(t, err)
		assert.NotContains(t, cred.Tags, "genius")
	}
	assert.Equal(t, 3, countRows(t, v, "credentials"))

	assert.ErrorIs(t, v.DeleteTag("genius"), ErrTagNotFound)
}

func TestTagAnnotation(t *testing.T) {
	v := setupTestVault(t)
	addScientists(t, v)

	wiki, err := v.ReadTagAnnotation("genius")
	require.NoError(t, err)
	assert.Nil(t, wiki)

	require.NoError(t, v.UpdateTagAnnotation("genius", ptr("People who changed physics")))
	wiki, err = v.ReadTagAnnotation("genius")
	require.NoError(t, err)
	require.NotNil(t, wiki)
	assert.Equal(t, "People who changed physics", *wiki)

	require.NoError(t, v.UpdateTagAnnotation("genius", ptr("")))
	wiki, err = v.ReadTagAnnotation("genius")
	require.NoError(t, err)
	require.NotNil(t, wiki)
	assert.Empty(t, *wiki)

	require.NoError(t, v.UpdateTagAnnotation("genius", nil))
	wiki, err = v.ReadTagAnnotation("genius")
	require.NoError(t, err)
	assert.Nil(t, wiki)
}

func TestUpdateTagAnnotationMissingTag(t *testing.T) {
	v := setupTestVault(t)

	require.NoError(t, v.UpdateTagAnnotation("nobody", ptr("text")))
	assert.Equal(t, 0, countRows(t, v, "tags"))

	_, err := v.ReadTagAnnotation("nobody")
	assert.ErrorIs(t, err, ErrTagNotFound)
}

func TestTagLinkCount(t *testing.T) {
	v := setupTestVault(t)
	addScientists(t, v)

	n, err := v.TagLinkCount("genius")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = v.TagLinkCount("scientist")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = v.TagLinkCount("nope")
	assert.ErrorIs(t, err, ErrTagNotFound)
}

func TestTagCredentialConcurrent(t *testing.T) {
	a := setupTestVault(t)
	b, err := Open(a.Path())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	id, err := a.AddCredential(CredentialFields{Description: ptr("shared")})
	require.NoError(t, err)

	const rounds = 16
	var wg sync.WaitGroup
	failures := make(chan error, 4*rounds)
	for _, h := range []*Vault{a, b} {
		for range rounds {
			wg.Add(2)
			go func(h *Vault) {
				defer wg.Done()
				failures <- h.TagCredential(id, "shared")
			}(h)
			go func(h *Vault) {
				defer wg.Done()
				_, err := h.CreateTag("other", nil)
				failures <- err
			}(h)
		}
	}
	wg.Wait()
	close(failures)

	for err := range failures {
		require.NoError(t, err)
	}
	assert.Equal(t, 2, countRows(t, a, "tags"))
	assert.Equal(t, 1, countRows(t, a, "tag_links"))
}
