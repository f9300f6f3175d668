package application

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/calembot/calembot/internal/ports"
)

// ConnectionState is the lifecycle position of the persistent channel.
type ConnectionState int32

const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateReconnecting
	StateClosing
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	defaultInitialBackoff = 2 * time.Second
	defaultMaxBackoff     = 5 * time.Minute
)

// ConnectionManager owns the persistent channel: it connects, stays blocked
// while the channel is live, and reconnects with capped exponential backoff
// when the peer drops the connection. Cancelling the context closes the
// channel gracefully and stops reconnecting.
//
// Handlers are registered once, before the first connect, and reused across
// reconnects; callers never re-register.
type ConnectionManager struct {
	channel  ports.PushChannel
	cfg      ports.ChannelConfig
	handlers ports.ChannelHandlers
	logger   *slog.Logger

	initialBackoff time.Duration
	maxBackoff     time.Duration

	// backoffReset receives one signal per established session; the run loop
	// drains it to reset the retry delay.
	backoffReset chan struct{}

	state atomic.Int32
}

type ConnectionOption func(*ConnectionManager)

func WithBackoff(initial, max time.Duration) ConnectionOption {
	return func(m *ConnectionManager) {
		m.initialBackoff = initial
		m.maxBackoff = max
	}
}

func NewConnectionManager(channel ports.PushChannel, cfg ports.ChannelConfig, handlers ports.ChannelHandlers, logger *slog.Logger, opts ...ConnectionOption) *ConnectionManager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &ConnectionManager{
		channel:        channel,
		cfg:            cfg,
		logger:         logger,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(m)
	}

	backoffReset := make(chan struct{}, 1)
	m.handlers = handlers
	m.handlers.OnConnected = func() {
		m.setState(StateConnected)
		select {
		case backoffReset <- struct{}{}:
		default:
		}
		if handlers.OnConnected != nil {
			handlers.OnConnected()
		}
	}
	m.backoffReset = backoffReset

	return m
}

// Run drives the connect/reconnect loop until ctx is cancelled. It returns
// nil on graceful shutdown; connection errors never escape the loop.
func (m *ConnectionManager) Run(ctx context.Context) error {
	backoff := m.initialBackoff

	for {
		m.setState(StateConnecting)
		m.logger.Info("channel_connecting", "host", m.cfg.Host, "port", m.cfg.Port)

		err := m.channel.Connect(ctx, m.cfg, m.handlers)

		select {
		case <-m.backoffReset:
			backoff = m.initialBackoff
		default:
		}

		if ctx.Err() != nil {
			m.setState(StateClosing)
			m.logger.Info("channel_shutdown")
			m.setState(StateClosed)
			return nil
		}

		if err == nil {
			err = errors.New("channel closed by peer")
		}
		m.setState(StateDisconnected)
		m.setState(StateReconnecting)
		m.logger.Warn("channel_dropped", "error", err.Error(), "retry_in", backoff.String())

		select {
		case <-ctx.Done():
			m.setState(StateClosed)
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > m.maxBackoff {
			backoff = m.maxBackoff
		}
	}
}

// State reports the current lifecycle state, for status and diagnostics.
func (m *ConnectionManager) State() ConnectionState {
	return ConnectionState(m.state.Load())
}

func (m *ConnectionManager) setState(s ConnectionState) {
	m.state.Store(int32(s))
}
