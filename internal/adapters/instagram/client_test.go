package instagram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calembot/calembot/internal/domain"
	"github.com/calembot/calembot/internal/ports"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func newTestFactory(t *testing.T, handler http.Handler) (*Factory, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	factory := NewFactory("test-sig-key",
		WithBaseURL(server.URL+"/"),
		WithHTTPClient(server.Client()),
		WithClock(fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}),
	)
	return factory, server
}

func loginTestClient(t *testing.T, factory *Factory) ports.AccountClient {
	t.Helper()

	client, err := factory.Login(context.Background(), ports.LoginRequest{
		Username: "marcel",
		Password: "hunter2",
	})
	require.NoError(t, err)
	return client
}

func TestFactoryLoginAndRestoreRoundTrip(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /accounts/login/", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.NotEmpty(t, r.PostForm.Get("signed_body"))

		http.SetCookie(w, &http.Cookie{
			Name:    "sessionid",
			Value:   "opaque-session",
			Expires: time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		})
		_, _ = w.Write([]byte(`{"status":"ok","logged_in_user":{"pk":4242}}`))
	})

	factory, _ := newTestFactory(t, mux)
	client := loginTestClient(t, factory)

	assert.Equal(t, "4242", client.UserID())
	phoneID, guid, deviceID := client.DeviceIdentity()
	assert.NotEmpty(t, phoneID)
	assert.NotEmpty(t, guid)
	assert.NotEmpty(t, deviceID)

	restored, err := factory.Restore(context.Background(), "marcel", client.SessionMaterial())
	require.NoError(t, err)
	assert.Equal(t, "4242", restored.UserID())
}

func TestFactoryLoginFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /accounts/login/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"fail","message":"bad password"}`))
	})

	factory, _ := newTestFactory(t, mux)
	_, err := factory.Login(context.Background(), ports.LoginRequest{Username: "marcel", Password: "nope"})
	require.ErrorContains(t, err, "bad password")
}

func TestFactoryRestoreStaleMaterial(t *testing.T) {
	factory, _ := newTestFactory(t, http.NewServeMux())

	_, err := factory.Restore(context.Background(), "marcel", []byte("not json"))
	require.ErrorIs(t, err, domain.ErrSessionStale)

	_, err = factory.Restore(context.Background(), "marcel", []byte(`{"version":1}`))
	require.ErrorIs(t, err, domain.ErrSessionStale)

	expired := `{
		"version": 1, "user_id": "4242",
		"cookies": [{"name": "sessionid", "value": "x", "expires": "2026-01-01T00:00:00Z"}]
	}`
	_, err = factory.Restore(context.Background(), "marcel", []byte(expired))
	require.ErrorIs(t, err, domain.ErrSessionStale)

	otherAccount := `{
		"version": 1, "user_id": "4242", "username": "georgette",
		"cookies": [{"name": "sessionid", "value": "x"}]
	}`
	_, err = factory.Restore(context.Background(), "marcel", []byte(otherAccount))
	require.ErrorIs(t, err, domain.ErrSessionStale)
}

func TestClientRegisterPushToken(t *testing.T) {
	var got url.Values
	mux := http.NewServeMux()
	mux.HandleFunc("POST /accounts/login/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","logged_in_user":{"pk":4242}}`))
	})
	mux.HandleFunc("POST /push/register/", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r.PostForm
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	factory, _ := newTestFactory(t, mux)
	client := loginTestClient(t, factory)

	err := client.RegisterPushToken(context.Background(), domain.PushRegistration{
		DeviceType:        "android_mqtt",
		IsMainPushChannel: true,
		PhoneID:           "phone-1",
		DeviceToken:       "fbns-token-1",
		GUID:              "guid-1",
		UserID:            client.UserID(),
	})
	require.NoError(t, err)

	assert.Equal(t, "android_mqtt", got.Get("device_type"))
	assert.Equal(t, "true", got.Get("is_main_push_channel"))
	assert.Equal(t, "phone-1", got.Get("phone_id"))
	assert.Equal(t, "fbns-token-1", got.Get("device_token"))
	assert.Equal(t, "guid-1", got.Get("guid"))
	assert.Equal(t, "4242", got.Get("users"))
}

func TestClientRegisterPushTokenStaleSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /accounts/login/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","logged_in_user":{"pk":4242}}`))
	})
	mux.HandleFunc("POST /push/register/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"fail","error_type":"login_required","message":"login required"}`))
	})

	factory, _ := newTestFactory(t, mux)
	client := loginTestClient(t, factory)

	err := client.RegisterPushToken(context.Background(), domain.PushRegistration{DeviceToken: "t"})
	require.ErrorIs(t, err, domain.ErrSessionStale)
}

func TestClientSendDirectMessage(t *testing.T) {
	var endpoint string
	var got url.Values
	mux := http.NewServeMux()
	mux.HandleFunc("POST /accounts/login/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","logged_in_user":{"pk":4242}}`))
	})
	mux.HandleFunc("POST /direct_v2/threads/broadcast/{method}/", func(w http.ResponseWriter, r *http.Request) {
		endpoint = r.URL.Path
		require.NoError(t, r.ParseForm())
		got = r.PostForm
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	factory, _ := newTestFactory(t, mux)
	client := loginTestClient(t, factory)

	require.NoError(t, client.SendDirectMessage(context.Background(), domain.DirectMessage{
		Text:      "j'ai les crocs",
		ThreadIDs: []string{"thread-9"},
	}))
	assert.Equal(t, "/direct_v2/threads/broadcast/text/", endpoint)
	assert.Contains(t, got.Get("signed_body"), "thread-9")

	require.NoError(t, client.SendDirectMessage(context.Background(), domain.DirectMessage{
		Text:    "regarde https://example.com",
		UserIDs: []string{"user-4"},
	}))
	assert.Equal(t, "/direct_v2/threads/broadcast/link/", endpoint)
}

func TestClientSendDirectMessageValidatesRecipients(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /accounts/login/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","logged_in_user":{"pk":4242}}`))
	})
	factory, _ := newTestFactory(t, mux)
	client := loginTestClient(t, factory)

	err := client.SendDirectMessage(context.Background(), domain.DirectMessage{
		Text:      "salut",
		ThreadIDs: []string{"t"},
		UserIDs:   []string{"u"},
	})
	require.Error(t, err)
}

func TestClientFetchThread(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /accounts/login/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","logged_in_user":{"pk":4242}}`))
	})
	mux.HandleFunc("GET /direct_v2/threads/thread-9/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "cur-1", r.URL.Query().Get("cursor"))
		_, _ = w.Write([]byte(`{
			"status": "ok",
			"thread": {
				"items": [{"item_id": "i-1", "user_id": "user-4", "text": "salut", "timestamp": 1767225600000000}],
				"oldest_cursor": "cur-2",
				"has_older": true
			}
		}`))
	})

	factory, _ := newTestFactory(t, mux)
	client := loginTestClient(t, factory)

	page, err := client.FetchThread(context.Background(), "thread-9", "cur-1", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "salut", page.Items[0].Text)
	assert.Equal(t, "cur-2", page.Cursor)
	assert.True(t, page.MoreAvailable)
}
