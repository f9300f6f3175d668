package sessionfile

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/calembot/calembot/internal/domain"
	"github.com/calembot/calembot/internal/ports"
)

const (
	sessionFileMode = 0o600
	sessionDirMode  = 0o700
	tempFilePattern = ".session-*.bin.tmp"
	schemaVersion   = 1
)

// Repository stores one binary state blob per account under a sessions
// directory. Each write rewrites the whole blob; there is no partial-update
// format.
type Repository struct {
	dir string
	mu  *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	dirLockMap     = map[string]*sync.RWMutex{}
)

var _ ports.SessionRepository = (*Repository)(nil)

func NewRepository(dir string) (*Repository, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve sessions directory: %w", err)
	}
	absDir = filepath.Clean(absDir)

	return &Repository{dir: absDir, mu: lockForDir(absDir)}, nil
}

type sessionSchema struct {
	Version             int
	Username            string
	DeviceID            string
	APISettings         []byte
	PushAuth            []byte
	PushAuthReceivedAt  time.Time
	PushToken           string
	PushTokenReceivedAt time.Time
}

func (r *Repository) Load(ctx context.Context, username domain.Username) (domain.SessionState, error) {
	if err := ctx.Err(); err != nil {
		return domain.SessionState{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := os.ReadFile(r.pathFor(username))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.SessionState{}, domain.ErrSessionNotFound
		}
		return domain.SessionState{}, fmt.Errorf("read session file: %w", err)
	}

	var file sessionSchema
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&file); err != nil {
		return domain.SessionState{}, fmt.Errorf("decode session file: %w", err)
	}
	if file.Version != schemaVersion {
		return domain.SessionState{}, fmt.Errorf("unsupported session file version %d", file.Version)
	}

	return domain.SessionState{
		Username:            domain.Username(file.Username),
		DeviceID:            file.DeviceID,
		APISettings:         file.APISettings,
		PushAuth:            file.PushAuth,
		PushAuthReceivedAt:  file.PushAuthReceivedAt,
		PushToken:           file.PushToken,
		PushTokenReceivedAt: file.PushTokenReceivedAt,
	}, nil
}

func (r *Repository) Save(ctx context.Context, state domain.SessionState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state.Username == "" {
		return errors.New("session username is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file := sessionSchema{
		Version:             schemaVersion,
		Username:            string(state.Username),
		DeviceID:            state.DeviceID,
		APISettings:         state.APISettings,
		PushAuth:            state.PushAuth,
		PushAuthReceivedAt:  state.PushAuthReceivedAt,
		PushToken:           state.PushToken,
		PushTokenReceivedAt: state.PushTokenReceivedAt,
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(file); err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}

	return r.writeAtomic(r.pathFor(state.Username), buf.Bytes())
}

func (r *Repository) pathFor(username domain.Username) string {
	return filepath.Join(r.dir, string(username)+".bin")
}

func (r *Repository) writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), sessionDirMode); err != nil {
		return fmt.Errorf("create sessions directory: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
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
		return fmt.Errorf("write temp session file: %w", err)
	}

	if err := tempFile.Chmod(sessionFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp session file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp session file: %w", err)
	}

	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}

	cleanup = false
	return nil
}

func lockForDir(dir string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := dirLockMap[dir]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	dirLockMap[dir] = mu
	return mu
}
