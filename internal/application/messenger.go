package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/calembot/calembot/internal/domain"
	"github.com/calembot/calembot/internal/ports"
)

// ClientProvider hands out an authenticated account client on demand.
// DiscardClient is called back when a caller observed a stale-session error
// on the provided client, so the provider stops reusing it.
type ClientProvider interface {
	Client(ctx context.Context) (ports.AccountClient, error)
	DiscardClient(ctx context.Context)
}

// Messenger sends replies through the account client, targeting a thread.
type Messenger struct {
	clients ClientProvider
}

var _ ports.Messenger = (*Messenger)(nil)

func NewMessenger(clients ClientProvider) *Messenger {
	return &Messenger{clients: clients}
}

func (m *Messenger) SendText(ctx context.Context, threadID, text string) error {
	client, err := m.clients.Client(ctx)
	if err != nil {
		return fmt.Errorf("obtain account client: %w", err)
	}

	err = client.SendDirectMessage(ctx, domain.DirectMessage{
		Text:      text,
		ThreadIDs: []string{threadID},
	})
	if errors.Is(err, domain.ErrSessionStale) {
		m.clients.DiscardClient(ctx)
	}
	return err
}
