package domain

import (
	"errors"
	"strings"
	"time"
)

// DirectMessage is an outbound direct message. Exactly one of ThreadIDs or
// UserIDs must be set; supplying both or neither is a caller error.
type DirectMessage struct {
	Text      string
	ThreadIDs []string
	UserIDs   []string
}

func (m DirectMessage) Validate() error {
	if strings.TrimSpace(m.Text) == "" {
		return errors.New("direct message text is empty")
	}
	if len(m.ThreadIDs) > 0 && len(m.UserIDs) > 0 {
		return errors.New("direct message recipients: thread ids and user ids are mutually exclusive")
	}
	if len(m.ThreadIDs) == 0 && len(m.UserIDs) == 0 {
		return errors.New("direct message recipients: thread ids or user ids required")
	}
	return nil
}

// ContainsLink reports whether the body carries a URL, which switches the
// send call to the link item type.
func (m DirectMessage) ContainsLink() bool {
	return strings.Contains(m.Text, "http://") || strings.Contains(m.Text, "https://")
}

// ThreadItem is one item of a fetched thread, used only for diagnostics on
// unhandled notification categories.
type ThreadItem struct {
	ItemID string
	UserID string
	Text   string
	SentAt time.Time
}

type ThreadPage struct {
	Items         []ThreadItem
	Cursor        string
	MoreAvailable bool
}
