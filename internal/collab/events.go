package collab

import (
	"encoding/json"
	"time"
)

// Kind names an outbound realtime event.
type Kind string

const (
	KindJoin          Kind = "JOIN"
	KindLeave         Kind = "LEAVE"
	KindDraftEdit     Kind = "DRAFT_EDIT"
	KindSaveConfirmed Kind = "SAVE_CONFIRMED"
	KindSaveRejected  Kind = "SAVE_REJECTED"
	KindCursor        Kind = "CURSOR"
	KindChat          Kind = "CHAT"
	KindOnlineUsers   Kind = "ONLINE_USERS"
	KindNotification  Kind = "NOTIFICATION"
)

// Event is the envelope for every broadcast or point-to-point message the
// controller emits. UserID is nil for system notifications; Timestamp is
// milliseconds since the epoch.
type Event struct {
	Kind       Kind    `json:"kind"`
	DocumentID int64   `json:"documentId"`
	UserID     *int64  `json:"userId"`
	Payload    Payload `json:"payload"`
	Timestamp  int64   `json:"timestamp"`
}

// Payload is a closed set of per-kind payload shapes. Each event kind carries
// exactly one of these instead of a free-form map.
type Payload interface {
	isPayload()
}

// PresencePayload accompanies JOIN, LEAVE and ONLINE_USERS events.
type PresencePayload struct {
	Users []int64 `json:"users"`
}

// ContentPayload accompanies DRAFT_EDIT and SAVE_CONFIRMED events.
type ContentPayload struct {
	Content string `json:"content"`
}

// RejectionPayload accompanies the private SAVE_REJECTED event.
type RejectionPayload struct {
	Reason string `json:"reason"`
}

// CursorPayload carries the sender's cursor position untouched.
type CursorPayload struct {
	Position json.RawMessage `json:"position"`
}

// ChatPayload accompanies CHAT events once the message has been persisted.
type ChatPayload struct {
	MessageID int64  `json:"messageId"`
	Content   string `json:"content"`
}

// NotificationPayload carries cross-cutting notifications unrelated to a
// document session.
type NotificationPayload struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (PresencePayload) isPayload()     {}
func (ContentPayload) isPayload()      {}
func (RejectionPayload) isPayload()    {}
func (CursorPayload) isPayload()       {}
func (ChatPayload) isPayload()         {}
func (NotificationPayload) isPayload() {}

func newEvent(kind Kind, docID int64, userID *int64, payload Payload) Event {
	return Event{
		Kind:       kind,
		DocumentID: docID,
		UserID:     userID,
		Payload:    payload,
		Timestamp:  time.Now().UnixMilli(),
	}
}

func actor(userID int64) *int64 {
	return &userID
}
