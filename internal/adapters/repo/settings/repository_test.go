package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calembot/calembot/internal/domain"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	repo, err := NewRepository(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)
	return repo
}

func TestRepositorySetAndGetLanguage(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.SetLanguage(context.Background(), "thread-9", "en"))

	lang, err := repo.Language(context.Background(), "thread-9")
	require.NoError(t, err)
	assert.Equal(t, "en", lang)
}

func TestRepositoryLanguageMissing(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.Language(context.Background(), "thread-9")
	require.ErrorIs(t, err, domain.ErrPreferenceNotFound)
}

func TestRepositorySurvivesReopen(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.SetLanguage(context.Background(), "user-4", "fr"))
	require.NoError(t, repo.SetLanguage(context.Background(), "thread-9", "en"))

	reopened, err := NewRepository(repo.path)
	require.NoError(t, err)

	prefs, err := reopened.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.LanguagePreferences{"user-4": "fr", "thread-9": "en"}, prefs)
}

func TestRepositoryRejectsEmptyInputs(t *testing.T) {
	repo := newTestRepository(t)

	assert.Error(t, repo.SetLanguage(context.Background(), "", "fr"))
	assert.Error(t, repo.SetLanguage(context.Background(), "user-4", ""))
}

func TestRepositoryRejectsNewerSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99, "languages": {}}`), 0o600))

	repo, err := NewRepository(path)
	require.NoError(t, err)

	_, err = repo.All(context.Background())
	require.Error(t, err)
}
