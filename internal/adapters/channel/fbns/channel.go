package fbns

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/calembot/calembot/internal/ports"
)

// FBNS topics carrying the three inbound event types.
const (
	topicAuth    = "/fbns_auth"
	topicRegResp = "/fbns_reg_resp"
	topicMessage = "/fbns_msg"
	subscribeQoS = 1
	disconnectMs = 250
	connectWait  = 30 * time.Second
)

// Credentials identify this device to the push broker. They are derived from
// previously received push-auth material; zero values mean an anonymous first
// connect, after which the broker issues fresh auth material on topicAuth.
type Credentials struct {
	ClientID string
	Username string
	Password string
}

// CredentialsFunc supplies the latest credentials at (re)connect time, so a
// reconnect after an auth renewal uses the renewed material.
type CredentialsFunc func() Credentials

// Channel is the persistent push channel over MQTT. It performs a single
// connect per Connect call; reconnect policy belongs to the caller.
type Channel struct {
	credentials CredentialsFunc
	logger      *slog.Logger
}

var _ ports.PushChannel = (*Channel)(nil)

func New(credentials CredentialsFunc, logger *slog.Logger) *Channel {
	if credentials == nil {
		credentials = func() Credentials { return Credentials{} }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{credentials: credentials, logger: logger}
}

// CredentialsFromAuth derives broker credentials from opaque push-auth
// material. Material that does not decode yields anonymous credentials.
func CredentialsFromAuth(auth []byte) Credentials {
	var decoded struct {
		ClientID string `json:"client_id"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if len(auth) == 0 || json.Unmarshal(auth, &decoded) != nil {
		return Credentials{}
	}
	return Credentials{
		ClientID: decoded.ClientID,
		Username: decoded.Username,
		Password: decoded.Password,
	}
}

// Connect establishes the channel, wires the three handlers, and blocks until
// the context is cancelled (graceful close, nil return) or the peer drops the
// connection (non-nil return). Handlers are subscribed before Connect returns
// control to the broker's dispatch loop, so no event is dropped.
func (c *Channel) Connect(ctx context.Context, cfg ports.ChannelConfig, handlers ports.ChannelHandlers) error {
	creds := c.credentials()
	clientID := creds.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	lost := make(chan error, 1)

	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL(cfg)).
		SetClientID(clientID).
		SetUsername(creds.Username).
		SetPassword(creds.Password).
		SetKeepAlive(cfg.Keepalive).
		SetCleanSession(false).
		SetAutoReconnect(false).
		SetConnectTimeout(connectWait)
	if cfg.Secure {
		opts.SetTLSConfig(&tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12})
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		select {
		case lost <- err:
		default:
		}
	})

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(connectWait) {
		return errors.New("connect timed out")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	subscriptions := map[string]mqtt.MessageHandler{
		topicAuth: func(_ mqtt.Client, m mqtt.Message) {
			if handlers.OnAuthRenewed != nil {
				handlers.OnAuthRenewed(m.Payload())
			}
		},
		topicRegResp: func(_ mqtt.Client, m mqtt.Message) {
			token, err := decodeTokenPayload(m.Payload())
			if err != nil {
				c.logger.Warn("channel_token_decode_error", "error", err.Error())
				return
			}
			if handlers.OnTokenIssued != nil {
				handlers.OnTokenIssued(token)
			}
		},
		topicMessage: func(_ mqtt.Client, m mqtt.Message) {
			if handlers.OnMessage != nil {
				handlers.OnMessage(m.Payload())
			}
		},
	}
	for topic, handler := range subscriptions {
		sub := client.Subscribe(topic, subscribeQoS, handler)
		if !sub.WaitTimeout(connectWait) || sub.Error() != nil {
			client.Disconnect(disconnectMs)
			if sub.Error() != nil {
				return fmt.Errorf("subscribe %s: %w", topic, sub.Error())
			}
			return fmt.Errorf("subscribe %s: timed out", topic)
		}
	}

	c.logger.Info("channel_connected", "broker", brokerURL(cfg), "keepalive", cfg.Keepalive.String())
	if handlers.OnConnected != nil {
		handlers.OnConnected()
	}

	select {
	case <-ctx.Done():
		client.Disconnect(disconnectMs)
		c.logger.Info("channel_closed", "reason", "shutdown")
		return nil
	case err := <-lost:
		if err == nil {
			err = errors.New("connection lost")
		}
		return fmt.Errorf("connection dropped: %w", err)
	}
}

func decodeTokenPayload(payload []byte) (string, error) {
	var decoded struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", fmt.Errorf("decode token payload: %w", err)
	}
	if decoded.Token == "" {
		return "", errors.New("token payload missing token")
	}
	return decoded.Token, nil
}

func brokerURL(cfg ports.ChannelConfig) string {
	scheme := "tcp"
	if cfg.Secure {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port)
}
