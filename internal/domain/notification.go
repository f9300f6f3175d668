package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Collapse keys and push categories carried by inbound push payloads. The
// values are the wire values of the upstream service.
const (
	CollapseKeyComment       = "comment"
	CollapseKeyDirectMessage = "direct_v2_message"

	PushCategoryText    = "direct_v2_text"
	PushCategoryPending = "direct_v2_pending"
)

// NetworkClassification distinguishes the scope a direct-message notification
// belongs to: a 1:1 conversation or a group thread.
type NetworkClassification string

const (
	NetworkDirect      NetworkClassification = "ig_direct"
	NetworkDirectGroup NetworkClassification = "ig_direct_group"
)

// Notification is one inbound push, decoded at receipt time and discarded
// after handling. It is never persisted.
type Notification struct {
	CollapseKey           string
	PushCategory          string
	ActionParams          map[string]string
	Message               string
	SourceUserID          string
	NetworkClassification NetworkClassification
}

type notificationPayload struct {
	CollapseKey           string            `json:"collapseKey"`
	PushCategory          string            `json:"pushCategory"`
	ActionParams          map[string]string `json:"actionParams"`
	Message               string            `json:"message"`
	SourceUserID          string            `json:"sourceUserId"`
	NetworkClassification string            `json:"networkClassification"`
}

// ParseNotification decodes a raw push payload. An empty payload returns
// ErrEmptyNotification so the caller can drop it silently.
func ParseNotification(payload []byte) (Notification, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return Notification{}, ErrEmptyNotification
	}

	var raw notificationPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Notification{}, fmt.Errorf("decode notification payload: %w", err)
	}

	return Notification{
		CollapseKey:           raw.CollapseKey,
		PushCategory:          raw.PushCategory,
		ActionParams:          raw.ActionParams,
		Message:               raw.Message,
		SourceUserID:          raw.SourceUserID,
		NetworkClassification: NetworkClassification(raw.NetworkClassification),
	}, nil
}

// ThreadID returns the thread/object id referenced by the notification's
// action parameters, or "" when absent.
func (n Notification) ThreadID() string {
	return n.ActionParams["id"]
}

// MessageBody strips the leading "author: " prefix from the human-readable
// message text. Messages without a prefix are returned unchanged.
func (n Notification) MessageBody() string {
	if _, body, ok := strings.Cut(n.Message, ": "); ok {
		return body
	}
	return n.Message
}
