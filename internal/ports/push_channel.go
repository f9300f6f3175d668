package ports

import (
	"context"
	"time"
)

// ChannelConfig describes the persistent push channel endpoint.
type ChannelConfig struct {
	Host      string
	Port      int
	Secure    bool
	Keepalive time.Duration
}

// ChannelHandlers are the three inbound event callbacks. They must be wired
// before the connect call so no event is dropped once the channel is live.
// Handlers run on the channel's dispatch goroutine, one event at a time.
type ChannelHandlers struct {
	OnAuthRenewed func(auth []byte)
	OnTokenIssued func(token string)
	OnMessage     func(payload []byte)

	// OnConnected fires once per established session, after the three event
	// subscriptions are in place. Optional.
	OnConnected func()
}

// PushChannel is the persistent notification transport. Connect blocks while
// the channel is live: a nil return means the context was cancelled and the
// channel was closed gracefully, a non-nil return means the connection failed
// or was dropped by the peer.
type PushChannel interface {
	Connect(ctx context.Context, cfg ChannelConfig, handlers ChannelHandlers) error
}
