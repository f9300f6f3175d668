package pundict

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `
[fr]
faim = ["j'ai les crocs", "on passe à table ?"]
soif = ["à la tienne"]

[en]
hungry = ["grab a bite"]
`

func writeDictionary(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "puns.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAndLookup(t *testing.T) {
	dict, err := Load(writeDictionary(t, fixture))
	require.NoError(t, err)

	replies, ok := dict.Lookup("fr", "faim")
	require.True(t, ok)
	assert.Equal(t, []string{"j'ai les crocs", "on passe à table ?"}, replies)

	_, ok = dict.Lookup("fr", "sommeil")
	assert.False(t, ok)

	_, ok = dict.Lookup("de", "hunger")
	assert.False(t, ok)
}

func TestLookupFoldsCase(t *testing.T) {
	dict, err := Load(writeDictionary(t, fixture))
	require.NoError(t, err)

	replies, ok := dict.Lookup("FR", "Faim")
	require.True(t, ok)
	assert.Len(t, replies, 2)
}

func TestHasLanguageAndLanguages(t *testing.T) {
	dict, err := Load(writeDictionary(t, fixture))
	require.NoError(t, err)

	assert.True(t, dict.HasLanguage("fr"))
	assert.True(t, dict.HasLanguage("EN"))
	assert.False(t, dict.HasLanguage("xx"))
	assert.Equal(t, []string{"en", "fr"}, dict.Languages())
	assert.Equal(t, 2, dict.TriggerCount("fr"))
}

func TestReloadOnFileChange(t *testing.T) {
	path := writeDictionary(t, fixture)
	dict, err := Load(path)
	require.NoError(t, err)

	_, ok := dict.Lookup("fr", "dodo")
	require.False(t, ok)

	updated := "[fr]\nfaim = [\"j'ai les crocs\"]\ndodo = [\"au lit\"]\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))
	// Push the mtime forward in case the filesystem's resolution is coarse.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	replies, ok := dict.Lookup("fr", "dodo")
	require.True(t, ok)
	assert.Equal(t, []string{"au lit"}, replies)
}

func TestLoadRejectsMalformedDocument(t *testing.T) {
	_, err := Load(writeDictionary(t, "not toml ["))
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}
