package instagram

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/calembot/calembot/internal/domain"
	"github.com/calembot/calembot/internal/ports"
)

const (
	defaultBaseURL   = "https://i.instagram.com/api/v1/"
	defaultUserAgent = "Instagram 121.0.0.29.119 Android"
	loginEndpoint    = "accounts/login/"
	sigKeyVersion    = "4"
)

// Factory builds authenticated clients, either by restoring persisted session
// material or by running a fresh login.
type Factory struct {
	baseURL      string
	userAgent    string
	signatureKey string
	httpClient   *http.Client
	clock        ports.Clock
}

var _ ports.AccountClientFactory = (*Factory)(nil)

type FactoryOption func(*Factory)

func WithBaseURL(baseURL string) FactoryOption {
	return func(f *Factory) { f.baseURL = baseURL }
}

func WithHTTPClient(client *http.Client) FactoryOption {
	return func(f *Factory) { f.httpClient = client }
}

func WithClock(clock ports.Clock) FactoryOption {
	return func(f *Factory) { f.clock = clock }
}

func NewFactory(signatureKey string, opts ...FactoryOption) *Factory {
	f := &Factory{
		baseURL:      defaultBaseURL,
		userAgent:    defaultUserAgent,
		signatureKey: signatureKey,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		clock:        ports.SystemClock{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type deviceIdentity struct {
	PhoneID  string `json:"phone_id"`
	GUID     string `json:"guid"`
	DeviceID string `json:"device_id"`
}

type storedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Expires time.Time `json:"expires"`
}

// sessionBlob is the serialized form of the account session. It is the
// apiSettings payload the session repository persists.
type sessionBlob struct {
	Version      int            `json:"version"`
	Username     string         `json:"username"`
	UserID       string         `json:"user_id"`
	Device       deviceIdentity `json:"device"`
	SignatureKey string         `json:"signature_key"`
	Cookies      []storedCookie `json:"cookies"`
}

// Restore rebuilds a client from persisted session material. Expired or
// unusable material yields domain.ErrSessionStale so the caller can fall back
// to a fresh login.
func (f *Factory) Restore(ctx context.Context, username domain.Username, settings []byte) (ports.AccountClient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var blob sessionBlob
	if err := json.Unmarshal(settings, &blob); err != nil {
		return nil, fmt.Errorf("%w: undecodable session material", domain.ErrSessionStale)
	}
	if blob.UserID == "" || len(blob.Cookies) == 0 {
		return nil, fmt.Errorf("%w: incomplete session material", domain.ErrSessionStale)
	}
	if blob.Username != "" && blob.Username != string(username) {
		return nil, fmt.Errorf("%w: session material belongs to %q", domain.ErrSessionStale, blob.Username)
	}

	now := f.clock.Now()
	for _, cookie := range blob.Cookies {
		if cookie.Name == "sessionid" && !cookie.Expires.IsZero() && cookie.Expires.Before(now) {
			return nil, fmt.Errorf("%w: session cookie expired", domain.ErrSessionStale)
		}
	}

	return &Client{
		httpClient: f.httpClient,
		baseURL:    f.baseURL,
		userAgent:  f.userAgent,
		userID:     blob.UserID,
		device:     blob.Device,
		session:    blob,
	}, nil
}

// Login performs a fresh username/password login. When req.DeviceID is set
// (the stale-session fallback path) the stored device identity is reused so
// the service sees a known device.
func (f *Factory) Login(ctx context.Context, req ports.LoginRequest) (ports.AccountClient, error) {
	device := deviceIdentity{
		PhoneID:  uuid.NewString(),
		GUID:     uuid.NewString(),
		DeviceID: req.DeviceID,
	}
	if device.DeviceID == "" {
		device.DeviceID = "android-" + hex.EncodeToString([]byte(uuid.NewString()))[:16]
	}

	params := url.Values{}
	params.Set("username", string(req.Username))
	params.Set("password", req.Password)
	params.Set("phone_id", device.PhoneID)
	params.Set("guid", device.GUID)
	params.Set("device_id", device.DeviceID)
	params.Set("login_attempt_count", "0")

	body := signBody(params.Encode(), f.signatureKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+loginEndpoint, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build login request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		apiResponse
		LoggedInUser struct {
			PK json.Number `json:"pk"`
		} `json:"logged_in_user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}
	if payload.Status != "ok" {
		return nil, fmt.Errorf("login failed: %s", payload.Message)
	}

	blob := sessionBlob{
		Version:      1,
		Username:     string(req.Username),
		UserID:       payload.LoggedInUser.PK.String(),
		Device:       device,
		SignatureKey: f.signatureKey,
	}
	for _, cookie := range resp.Cookies() {
		blob.Cookies = append(blob.Cookies, storedCookie{
			Name:    cookie.Name,
			Value:   cookie.Value,
			Expires: cookie.Expires,
		})
	}

	return &Client{
		httpClient: f.httpClient,
		baseURL:    f.baseURL,
		userAgent:  f.userAgent,
		userID:     blob.UserID,
		device:     device,
		session:    blob,
	}, nil
}

func signBody(body, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(body))
	digest := hex.EncodeToString(mac.Sum(nil))

	signed := url.Values{}
	signed.Set("signed_body", digest+"."+body)
	signed.Set("ig_sig_key_version", sigKeyVersion)
	return signed.Encode()
}

// DeviceIdentity exposes the device identifiers for push registration.
func (c *Client) DeviceIdentity() (phoneID, guid, deviceID string) {
	return c.device.PhoneID, c.device.GUID, c.device.DeviceID
}
