package domain

import "time"

type Username string

// PushTokenRegistrationInterval is the minimum time between two registrations
// of an unchanged device push token.
const PushTokenRegistrationInterval = 24 * time.Hour

// SessionState is the durable per-account state that must survive restarts:
// the account-client session material, the push-channel auth material, and
// the device push token, each with its receipt timestamp.
type SessionState struct {
	Username Username
	DeviceID string

	// APISettings is the account-client session blob. It is written after a
	// successful login and handed back verbatim when restoring a client; the
	// core never interprets it.
	APISettings []byte

	PushAuth           []byte
	PushAuthReceivedAt time.Time

	PushToken           string
	PushTokenReceivedAt time.Time
}

// NeedsTokenRegistration reports whether a freshly issued token must be
// registered with the remote push service: always when the token changed,
// otherwise only when the last registration is at least 24 hours old.
func (s SessionState) NeedsTokenRegistration(token string, now time.Time) bool {
	if s.PushToken != token {
		return true
	}
	if s.PushTokenReceivedAt.IsZero() {
		return true
	}
	return !s.PushTokenReceivedAt.After(now.Add(-PushTokenRegistrationInterval))
}

// PushRegistration carries the parameters of the push/register call.
type PushRegistration struct {
	DeviceType        string
	IsMainPushChannel bool
	PhoneID           string
	DeviceToken       string
	GUID              string
	UserID            string
}
