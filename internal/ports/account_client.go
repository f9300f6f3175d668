package ports

import (
	"context"

	"github.com/calembot/calembot/internal/domain"
)

// AccountClient is the narrow capability surface the core needs from the
// account-API collaborator: push registration, direct-message send, and the
// diagnostic thread fetch.
type AccountClient interface {
	RegisterPushToken(ctx context.Context, reg domain.PushRegistration) error
	SendDirectMessage(ctx context.Context, msg domain.DirectMessage) error
	FetchThread(ctx context.Context, threadID, cursor string, maxItems int) (domain.ThreadPage, error)

	// UserID is the authenticated account identity.
	UserID() string
	// DeviceIdentity returns the identifiers carried by the registration call.
	DeviceIdentity() (phoneID, guid, deviceID string)
	// SessionMaterial is the opaque session blob to persist after login.
	SessionMaterial() []byte
}

// LoginRequest carries the inputs of a fresh login. DeviceID may be empty on
// a first login; it is set on the stale-session fallback path.
type LoginRequest struct {
	Username domain.Username
	Password string
	DeviceID string
}

// AccountClientFactory builds authenticated clients. Restore returns
// domain.ErrSessionStale when the stored material is expired or invalid, in
// which case the caller falls back to Login.
type AccountClientFactory interface {
	Restore(ctx context.Context, username domain.Username, settings []byte) (AccountClient, error)
	Login(ctx context.Context, req LoginRequest) (AccountClient, error)
}

// Messenger sends replies through the account client. It exists so the
// dispatcher and responder do not deal with client construction.
type Messenger interface {
	SendText(ctx context.Context, threadID, text string) error
}
