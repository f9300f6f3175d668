package ports

import (
	"context"

	"github.com/calembot/calembot/internal/domain"
)

// SessionRepository persists the per-account session state blob. Load returns
// domain.ErrSessionNotFound when no state has been written yet.
type SessionRepository interface {
	Load(ctx context.Context, username domain.Username) (domain.SessionState, error)
	Save(ctx context.Context, state domain.SessionState) error
}
