package application

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/calembot/calembot/internal/domain"
	"github.com/calembot/calembot/internal/ports"
)

const (
	setLangCommand = "/setlang"

	replyLanguageNotSupported = "Désolé, je ne parle pas encore cette langue. Tu peux proposer des calembours sur le dépôt du projet !"
	replyUnknownCommand       = "Je ne connais que /setlang <code>."
)

func replyLanguageSet(code string) string {
	return fmt.Sprintf("C'est noté, je réponds en %s ici.", strings.ToUpper(code))
}

// trailing punctuation stripped before extracting the trigger word.
const punctuationCutset = ".,!?;:…'\"»)"

// Responder handles text-category direct messages: the /setlang preference
// command, or a keyword-triggered pun lookup on the message's last word.
type Responder struct {
	prefs     ports.PreferenceRepository
	dict      ports.PunDictionary
	messenger ports.Messenger
	logger    *slog.Logger
	randIndex func(n int) int
}

func NewResponder(prefs ports.PreferenceRepository, dict ports.PunDictionary, messenger ports.Messenger, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{
		prefs:     prefs,
		dict:      dict,
		messenger: messenger,
		logger:    logger,
		randIndex: rand.IntN,
	}
}

func (r *Responder) Handle(ctx context.Context, n domain.Notification) {
	threadID := n.ThreadID()
	authorID := n.SourceUserID
	body := strings.TrimSpace(n.MessageBody())
	if threadID == "" || body == "" {
		return
	}

	if strings.HasPrefix(body, "/") {
		r.handleCommand(ctx, n, threadID, authorID, body)
		return
	}

	r.handleTrigger(ctx, threadID, authorID, body)
}

func (r *Responder) handleCommand(ctx context.Context, n domain.Notification, threadID, authorID, body string) {
	fields := strings.Fields(body)

	if !strings.EqualFold(fields[0], setLangCommand) {
		r.logger.Debug("command_unknown", "command", fields[0])
		r.reply(ctx, threadID, replyUnknownCommand)
		return
	}

	if len(fields) < 2 {
		r.reply(ctx, threadID, replyUnknownCommand)
		return
	}

	code := strings.ToLower(fields[1])
	if !r.dict.HasLanguage(code) {
		r.reply(ctx, threadID, replyLanguageNotSupported)
		return
	}

	var key string
	switch n.NetworkClassification {
	case domain.NetworkDirectGroup:
		key = threadID
	case domain.NetworkDirect:
		key = authorID
	default:
		r.logger.Error("scope_unknown",
			"network_classification", string(n.NetworkClassification),
			"thread_id", threadID,
		)
		return
	}

	// Persist before confirming, so the stored preference and the delivered
	// confirmation never disagree on success.
	if err := r.prefs.SetLanguage(ctx, key, code); err != nil {
		r.logger.Warn("preference_persist_error", "entity_id", key, "error", err.Error())
		return
	}

	r.reply(ctx, threadID, replyLanguageSet(code))
}

func (r *Responder) handleTrigger(ctx context.Context, threadID, authorID, body string) {
	trigger := triggerWord(body)
	if trigger == "" {
		return
	}

	lang := r.resolveLanguage(ctx, threadID, authorID)
	replies, ok := r.dict.Lookup(lang, trigger)
	if !ok {
		return
	}

	r.reply(ctx, threadID, replies[r.randIndex(len(replies))])
}

// resolveLanguage looks up the active language: thread preference first, then
// the author's, then the default.
func (r *Responder) resolveLanguage(ctx context.Context, threadID, authorID string) string {
	prefs, err := r.prefs.All(ctx)
	if err != nil {
		r.logger.Warn("preference_lookup_error", "error", err.Error())
		return domain.DefaultLanguage
	}
	return prefs.Resolve(threadID, authorID)
}

func (r *Responder) reply(ctx context.Context, threadID, text string) {
	if err := r.messenger.SendText(ctx, threadID, text); err != nil {
		r.logger.Warn("reply_send_error", "thread_id", threadID, "error", err.Error())
	}
}

// triggerWord extracts the case-folded last whitespace-delimited token of the
// body, with surrounding punctuation stripped.
func triggerWord(body string) string {
	trimmed := strings.TrimRight(body, punctuationCutset+" ")
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return ""
	}
	last := strings.Trim(fields[len(fields)-1], punctuationCutset)
	return strings.ToLower(last)
}
