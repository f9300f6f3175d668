package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/calembot/calembot/internal/domain"
	"github.com/calembot/calembot/internal/ports"
)

// activationGreeting is sent when a pending (not yet accepted) conversation
// notification arrives.
const activationGreeting = "Salut ! Je suis un bot à calembours : envoie un message qui se termine par un mot que je connais et je réponds. /setlang pour changer de langue."

const diagnosticFetchLimit = 5

// Dispatcher classifies each inbound push by collapse key and push category
// and routes it to exactly one handler. It never fails the channel: malformed
// payloads are dropped and handler errors are logged.
type Dispatcher struct {
	responder *Responder
	messenger ports.Messenger
	clients   ClientProvider
	logger    *slog.Logger
}

func NewDispatcher(responder *Responder, messenger ports.Messenger, clients ClientProvider, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		responder: responder,
		messenger: messenger,
		clients:   clients,
		logger:    logger,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte) {
	notification, err := domain.ParseNotification(payload)
	if err != nil {
		if !errors.Is(err, domain.ErrEmptyNotification) {
			d.logger.Warn("notification_decode_error", "error", err.Error())
		}
		return
	}

	switch notification.CollapseKey {
	case domain.CollapseKeyComment:
		// Comment notifications are intentionally not handled yet.
	case domain.CollapseKeyDirectMessage:
		d.dispatchDirectMessage(ctx, notification)
	default:
		d.logger.Debug("notification_unhandled", "collapse_key", notification.CollapseKey)
	}
}

func (d *Dispatcher) dispatchDirectMessage(ctx context.Context, n domain.Notification) {
	switch n.PushCategory {
	case domain.PushCategoryText:
		d.responder.Handle(ctx, n)
	case domain.PushCategoryPending:
		threadID := n.ThreadID()
		if threadID == "" {
			d.logger.Warn("notification_pending_missing_thread")
			return
		}
		if err := d.messenger.SendText(ctx, threadID, activationGreeting); err != nil {
			d.logger.Warn("activation_reply_error", "thread_id", threadID, "error", err.Error())
		}
	case "":
		// Activity notification (a like, a reaction): no reply.
		d.logger.Debug("notification_activity", "source_user_id", n.SourceUserID)
	default:
		d.logger.Warn("notification_category_unhandled", "push_category", n.PushCategory)
		d.logThreadDiagnostics(ctx, n.ThreadID())
	}
}

// logThreadDiagnostics fetches a few recent thread items to give unhandled
// categories some context in debug logs. Best effort only.
func (d *Dispatcher) logThreadDiagnostics(ctx context.Context, threadID string) {
	if threadID == "" || d.clients == nil || !d.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}

	client, err := d.clients.Client(ctx)
	if err != nil {
		d.logger.Debug("thread_diagnostics_error", "thread_id", threadID, "error", err.Error())
		return
	}

	page, err := client.FetchThread(ctx, threadID, "", diagnosticFetchLimit)
	if err != nil {
		d.logger.Debug("thread_diagnostics_error", "thread_id", threadID, "error", err.Error())
		return
	}

	d.logger.Debug("thread_diagnostics",
		"thread_id", threadID,
		"items", len(page.Items),
		"more_available", page.MoreAvailable,
	)
}
