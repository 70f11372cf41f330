package store

// Message delivery statuses. Feed-delivered rows carry "received" (peer
// messages) or "sent" (own messages echoed back by the backend).
const (
	StatusPending  = "pending"
	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusReceived = "received"
)

// Chat member roles.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Chat represents a synced chat.
type Chat struct {
	ChatID             string
	Name               string
	AvatarURL          string
	IsGroup            bool
	Muted              bool
	Pinned             bool
	UnreadCount        int
	LastMessageAt      int64
	LastMessagePreview string
}

// Message represents a synced or locally pending message.
type Message struct {
	ID            int64
	ChatID        string
	MsgID         string
	SenderID      string
	SenderName    string
	Body          string
	MessageType   string // text, image, file
	AttachmentURL string
	ReplyToID     string
	Edited        bool
	FromMe        bool
	Status        string // pending, sent, failed, received
	ErrorMessage  string
	CreatedAt     int64
}

// Reaction is a single (message, user, emoji) reaction row.
type Reaction struct {
	MsgID     string
	ChatID    string
	UserID    string
	Emoji     string
	CreatedAt int64
}

// ReactionSummary aggregates reactions on a message by emoji.
type ReactionSummary struct {
	Emoji   string
	Count   int
	Reacted bool // the viewing user has this reaction
}

// Member is a chat membership row with the per-member read watermark.
type Member struct {
	ChatID      string
	UserID      string
	DisplayName string
	Role        string
	LastReadAt  int64
}

// QueueEntry is one offline analytics event awaiting delivery.
type QueueEntry struct {
	ID         int64
	EventID    string
	Kind       string
	UserID     string
	Payload    string // JSON, shape depends on Kind
	OccurredAt int64
	EnqueuedAt int64
	Attempts   int
	LastError  string
	Status     string // queued, delivering
}
