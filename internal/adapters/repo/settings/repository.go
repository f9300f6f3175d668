package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/calembot/calembot/internal/domain"
	"github.com/calembot/calembot/internal/ports"
)

const (
	settingsFileMode = 0o600
	settingsDirMode  = 0o700
	tempFilePattern  = ".settings-*.json.tmp"
	schemaVersion    = 1
)

// Repository keeps the global settings document: one JSON file holding the
// per-entity language preferences. The whole document is read into memory and
// rewritten in full on each mutation.
type Repository struct {
	path string
	mu   *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.PreferenceRepository = (*Repository)(nil)

func NewRepository(path string) (*Repository, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve settings path: %w", err)
	}
	absPath = filepath.Clean(absPath)

	return &Repository{path: absPath, mu: lockForPath(absPath)}, nil
}

type fileSchema struct {
	Version   int               `json:"version"`
	Languages map[string]string `json:"languages"`
}

func (f *fileSchema) applyDefaults() {
	if f.Version == 0 {
		f.Version = schemaVersion
	}
	if f.Languages == nil {
		f.Languages = map[string]string{}
	}
}

func (r *Repository) Language(ctx context.Context, entityID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return "", err
	}

	lang, ok := file.Languages[entityID]
	if !ok || lang == "" {
		return "", domain.ErrPreferenceNotFound
	}
	return lang, nil
}

func (r *Repository) SetLanguage(ctx context.Context, entityID, lang string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entityID == "" {
		return errors.New("preference entity id is empty")
	}
	if lang == "" {
		return errors.New("preference language is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}
	file.Languages[entityID] = lang

	return r.writeSchema(file)
}

func (r *Repository) All(ctx context.Context) (domain.LanguagePreferences, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return nil, err
	}

	prefs := make(domain.LanguagePreferences, len(file.Languages))
	for id, lang := range file.Languages {
		prefs[id] = lang
	}
	return prefs, nil
}

func (r *Repository) readSchema() (fileSchema, error) {
	var file fileSchema

	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			file.applyDefaults()
			return file, nil
		}
		return fileSchema{}, fmt.Errorf("read settings file: %w", err)
	}

	if err := json.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode settings file: %w", err)
	}
	if file.Version > schemaVersion {
		return fileSchema{}, fmt.Errorf("unsupported settings file version %d", file.Version)
	}
	file.applyDefaults()

	return file, nil
}

func (r *Repository) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(r.path), settingsDirMode); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings file: %w", err)
	}
	data = append(data, '\n')

	tempFile, err := os.CreateTemp(filepath.Dir(r.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp settings file: %w", err)
	}

	if err := tempFile.Chmod(settingsFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp settings file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp settings file: %w", err)
	}

	if err := os.Rename(tempName, r.path); err != nil {
		return fmt.Errorf("replace settings file: %w", err)
	}

	cleanup = false
	return nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}
