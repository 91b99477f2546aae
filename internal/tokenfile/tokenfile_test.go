package tokenfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestLoad_FileNotFound(t *testing.T) {
	tok, meta, err := Load(filepath.Join(t.TempDir(), "token.json"))
	assert.Nil(t, tok)
	assert.Nil(t, meta)
	assert.NoError(t, err)
}

func TestSaveLoad_PreservesTokenAndMeta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")

	expiry := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, Save(path, &oauth2.Token{
		AccessToken:  "access-123",
		RefreshToken: "refresh-456",
		TokenType:    "Bearer",
		Expiry:       expiry,
	}, map[string]string{MetaAccount: "alice@example.com"}))

	tok, meta, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "access-123", tok.AccessToken)
	assert.Equal(t, "refresh-456", tok.RefreshToken)
	assert.True(t, tok.Expiry.Equal(expiry))
	assert.Equal(t, "alice@example.com", meta[MetaAccount])
}

func TestLoad_MissingTokenField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"access_token":"bare"}`), 0o600))

	_, _, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing token field")
}

func TestLoad_EmptyCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"token":{"token_type":"Bearer"}}`), 0o600))

	_, _, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty credentials")
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))

	_, _, err := Load(path)
	assert.Error(t, err)
}

func TestSave_CreatesDirectoryWithOwnerOnlyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "token.json")
	require.NoError(t, Save(path, &oauth2.Token{AccessToken: "a"}, nil))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestSave_NilToken(t *testing.T) {
	err := Save(filepath.Join(t.TempDir(), "token.json"), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refusing to save nil token")
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")

	removed, err := Remove(path)
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, Save(path, &oauth2.Token{AccessToken: "a"}, nil))

	removed, err = Remove(path)
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
