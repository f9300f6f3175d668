package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/calembot/calembot/internal/domain"
	"github.com/calembot/calembot/internal/ports"
)

const registrationDeviceType = "android_mqtt"

// TokenService reacts to push-auth and device-token events and keeps the
// persisted session state consistent: it re-authenticates the account client
// when stored material is stale and throttles push-token re-registration to
// once per 24 hours for an unchanged token.
//
// All mutations go through a single mutex, so handlers may be invoked from
// the channel's dispatch goroutine and from CLI paths without extra
// coordination. Timestamp fields are last-write-wins.
type TokenService struct {
	sessions ports.SessionRepository
	factory  ports.AccountClientFactory
	clock    ports.Clock
	logger   *slog.Logger

	username domain.Username
	password string

	mu     sync.Mutex
	client ports.AccountClient
}

func NewTokenService(username domain.Username, password string, sessions ports.SessionRepository, factory ports.AccountClientFactory, clock ports.Clock, logger *slog.Logger) *TokenService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &TokenService{
		sessions: sessions,
		factory:  factory,
		clock:    clock,
		logger:   logger,
		username: username,
		password: password,
	}
}

// HandleAuthRenewed stores renewed push-auth material with the current
// timestamp. Pure state update, no network side effect.
func (s *TokenService) HandleAuthRenewed(ctx context.Context, material []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.loadOrInit(ctx)
	if err != nil {
		return err
	}

	state.PushAuth = material
	state.PushAuthReceivedAt = s.clock.Now()

	if err := s.sessions.Save(ctx, state); err != nil {
		return fmt.Errorf("persist push auth: %w", err)
	}

	s.logger.Info("push_auth_stored", "received_at", state.PushAuthReceivedAt)
	return nil
}

// HandleTokenIssued registers a freshly issued device token with the remote
// push service, unless the unchanged token was already registered within the
// last 24 hours. Registration failures are returned to the caller and leave
// the channel open; the next token event retries.
func (s *TokenService) HandleTokenIssued(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.loadOrInit(ctx)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	if !state.NeedsTokenRegistration(token, now) {
		s.logger.Debug("push_register_throttled", "received_at", state.PushTokenReceivedAt)
		return nil
	}

	client, err := s.ensureClientLocked(ctx, &state)
	if err != nil {
		return fmt.Errorf("obtain account client: %w", err)
	}

	phoneID, guid, _ := client.DeviceIdentity()
	reg := domain.PushRegistration{
		DeviceType:        registrationDeviceType,
		IsMainPushChannel: true,
		PhoneID:           phoneID,
		DeviceToken:       token,
		GUID:              guid,
		UserID:            client.UserID(),
	}

	if err := client.RegisterPushToken(ctx, reg); err != nil {
		if errors.Is(err, domain.ErrSessionStale) {
			s.discardClientLocked(ctx, &state)
		}
		return fmt.Errorf("register push token: %w", err)
	}

	state.PushToken = token
	state.PushTokenReceivedAt = s.clock.Now()
	if err := s.sessions.Save(ctx, state); err != nil {
		return fmt.Errorf("persist push token: %w", err)
	}

	s.logger.Info("push_token_registered", "user_id", client.UserID())
	return nil
}

// HandleLoginSucceeded captures and persists the client's session material.
func (s *TokenService) HandleLoginSucceeded(ctx context.Context, client ports.AccountClient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.loadOrInit(ctx)
	if err != nil {
		return err
	}

	return s.captureLoginLocked(ctx, &state, client)
}

// Client returns an authenticated account client, constructing one from
// stored session material or logging in when necessary. Used by the outbound
// messenger and diagnostics.
func (s *TokenService) Client(ctx context.Context) (ports.AccountClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.loadOrInit(ctx)
	if err != nil {
		return nil, err
	}
	return s.ensureClientLocked(ctx, &state)
}

// DiscardClient drops the cached account client after a caller observed a
// stale-session error on it, forcing the restore-or-login path on the next
// use. Without this a session expiring mid-run would fail every later call.
func (s *TokenService) DiscardClient(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.loadOrInit(ctx)
	if err != nil {
		s.client = nil
		s.logger.Warn("session_discard_error", "error", err.Error())
		return
	}
	s.discardClientLocked(ctx, &state)
}

// discardClientLocked clears the cached client and the persisted session
// material the remote service rejected. The device id is kept so the fallback
// login reuses a known device. The caller holds s.mu.
func (s *TokenService) discardClientLocked(ctx context.Context, state *domain.SessionState) {
	s.client = nil
	state.APISettings = nil

	if err := s.sessions.Save(ctx, *state); err != nil {
		s.logger.Warn("session_discard_error", "error", err.Error())
		return
	}
	s.logger.Warn("session_discarded", "reason", "stale")
}

func (s *TokenService) loadOrInit(ctx context.Context) (domain.SessionState, error) {
	state, err := s.sessions.Load(ctx, s.username)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return domain.SessionState{Username: s.username}, nil
		}
		return domain.SessionState{}, fmt.Errorf("load session state: %w", err)
	}
	return state, nil
}

// ensureClientLocked restores the client from stored material when present,
// falling back to a fresh login with the stored device id when the material
// is stale. The caller holds s.mu.
func (s *TokenService) ensureClientLocked(ctx context.Context, state *domain.SessionState) (ports.AccountClient, error) {
	if s.client != nil {
		return s.client, nil
	}

	if len(state.APISettings) > 0 {
		client, err := s.factory.Restore(ctx, s.username, state.APISettings)
		if err == nil {
			s.client = client
			return client, nil
		}
		if !errors.Is(err, domain.ErrSessionStale) {
			return nil, fmt.Errorf("restore account client: %w", err)
		}
		s.logger.Warn("session_restore_stale", "error", err.Error())
	}

	client, err := s.factory.Login(ctx, ports.LoginRequest{
		Username: s.username,
		Password: s.password,
		DeviceID: state.DeviceID,
	})
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	if err := s.captureLoginLocked(ctx, state, client); err != nil {
		return nil, err
	}
	return client, nil
}

func (s *TokenService) captureLoginLocked(ctx context.Context, state *domain.SessionState, client ports.AccountClient) error {
	_, _, deviceID := client.DeviceIdentity()
	state.APISettings = client.SessionMaterial()
	state.DeviceID = deviceID

	if err := s.sessions.Save(ctx, *state); err != nil {
		return fmt.Errorf("persist session material: %w", err)
	}

	s.client = client
	s.logger.Info("login_session_stored", "user_id", client.UserID())
	return nil
}
