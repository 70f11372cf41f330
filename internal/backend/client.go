package backend

import (
	"context"
	"time"
)

// Rows is the row-store surface of the hosted platform. Every method maps to
// an insert/update/delete on a backend table; querying and durability belong
// to the platform, not this client.
type Rows interface {
	// StartSession creates a session row and returns the backend-assigned id.
	StartSession(ctx context.Context, userID string, device DeviceInfo) (string, error)
	// EndSession stamps ended_at on an open session.
	EndSession(ctx context.Context, sessionID string) error
	// BeaconSessionEnd fires an end-session request without awaiting the
	// response. Used on background/hide transitions where the process may be
	// terminated before a reply arrives.
	BeaconSessionEnd(sessionID string)

	// InsertEvent writes one analytics event. The backend deduplicates on
	// EventID, so retrying a delivered event is harmless.
	InsertEvent(ctx context.Context, e EventRecord) error

	SendMessage(ctx context.Context, m OutMessage) error
	UpdateMessageBody(ctx context.Context, msgID, body string) error
	DeleteMessage(ctx context.Context, msgID string) error

	InsertReaction(ctx context.Context, chatID, msgID, userID, emoji string) error
	DeleteReaction(ctx context.Context, msgID, userID, emoji string) error

	SetLastRead(ctx context.Context, chatID, userID string, readAt time.Time) error
	BroadcastTyping(ctx context.Context, t TypingRow) error

	InsertReport(ctx context.Context, r Report) error
	SetMemberFlag(ctx context.Context, chatID, userID, flag string, value bool) error
	LeaveChat(ctx context.Context, chatID, userID string) error
	UpdateGroupName(ctx context.Context, chatID, name string) error
	AddMembers(ctx context.Context, chatID string, userIDs []string) error
	RemoveMember(ctx context.Context, chatID, userID string) error

	// UploadAttachment stores a blob in the object store and returns its URL.
	UploadAttachment(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// Auth is the auth oracle: who is signed in right now.
type Auth interface {
	Current(ctx context.Context) (*Identity, error)
}
