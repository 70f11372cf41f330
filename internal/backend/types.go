package backend

import "encoding/json"

// Identity is the authenticated user as reported by the auth oracle.
type Identity struct {
	UserID          string `json:"id"`
	DisplayName     string `json:"display_name"`
	Role            string `json:"role"` // member, moderator, admin
	ProfileComplete bool   `json:"profile_complete"`
}

// Moderator reports whether the identity may delete other users' messages.
func (i *Identity) Moderator() bool {
	return i.Role == "moderator" || i.Role == "admin"
}

// DeviceInfo is the device snapshot recorded on session start.
type DeviceInfo struct {
	Platform  string `json:"platform"`
	UserAgent string `json:"user_agent"`
	Viewport  string `json:"viewport"`
}

// EventRecord is one analytics event as delivered to the backend. EventID is
// the client-generated idempotency key; the backend insert ignores duplicates.
type EventRecord struct {
	EventID    string          `json:"event_id"`
	Kind       string          `json:"kind"`
	UserID     string          `json:"user_id"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt int64           `json:"occurred_at"`
}

// OutMessage is a message write as sent to the backend. The id is
// client-generated, so the feed echo reconciles onto the optimistic row.
type OutMessage struct {
	MsgID         string `json:"id"`
	ChatID        string `json:"chat_id"`
	SenderID      string `json:"sender_id"`
	Body          string `json:"content"`
	MessageType   string `json:"message_type"`
	AttachmentURL string `json:"attachment_url,omitempty"`
	ReplyToID     string `json:"reply_to_id,omitempty"`
	CreatedAt     int64  `json:"created_at"`
}

// Report is an immutable chat report record.
type Report struct {
	ChatID      string `json:"chat_id"`
	MsgID       string `json:"message_id,omitempty"`
	ReporterID  string `json:"reporter_id"`
	Reason      string `json:"reason"`
	Description string `json:"description"`
}

// Delta is one row-level change from the realtime feed.
type Delta struct {
	Table string          `json:"table"`
	Op    string          `json:"op"` // insert, update, delete
	Row   json.RawMessage `json:"row"`
}

// Feed row shapes, decoded by the chat engine from Delta.Row.

// MessageRow mirrors a messages-table row on the wire.
type MessageRow struct {
	MsgID         string `json:"id"`
	ChatID        string `json:"chat_id"`
	SenderID      string `json:"sender_id"`
	SenderName    string `json:"sender_name"`
	Body          string `json:"content"`
	MessageType   string `json:"message_type"`
	AttachmentURL string `json:"attachment_url"`
	ReplyToID     string `json:"reply_to_id"`
	Edited        bool   `json:"is_edited"`
	CreatedAt     int64  `json:"created_at"`
}

// ReactionRow mirrors a message_reactions-table row on the wire.
type ReactionRow struct {
	MsgID     string `json:"message_id"`
	ChatID    string `json:"chat_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji"`
	CreatedAt int64  `json:"created_at"`
}

// ChatRow mirrors a chats-table row on the wire.
type ChatRow struct {
	ChatID    string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	IsGroup   bool   `json:"is_group"`
}

// MemberRow mirrors a chat_members-table row on the wire. Muted and Pinned
// are the per-member chat preferences SetMemberFlag patches; they only
// matter for the self member's row.
type MemberRow struct {
	ChatID      string `json:"chat_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	LastReadAt  int64  `json:"last_read_at"`
	Muted       bool   `json:"muted"`
	Pinned      bool   `json:"pinned"`
}

// TypingRow is an ephemeral typing broadcast frame.
type TypingRow struct {
	ChatID      string `json:"chat_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Typing      bool   `json:"typing"`
}
