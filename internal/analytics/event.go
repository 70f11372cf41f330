package analytics

import (
	"time"

	"github.com/google/uuid"
)

// Kind names an analytics event variant.
type Kind string

const (
	KindSessionStart      Kind = "session_start"
	KindSessionEnd        Kind = "session_end"
	KindScreenView        Kind = "screen_view"
	KindAssetEvent        Kind = "asset_event"
	KindAIQuery           Kind = "ai_query"
	KindProfileView       Kind = "profile_view"
	KindDirectorySearch   Kind = "directory_search"
	KindNotificationClick Kind = "notification_click"
)

// Payload is the kind-specific body of an event. One struct per kind keeps
// payload completeness a compile-time property instead of an untyped map.
type Payload interface {
	Kind() Kind
}

// SessionStartPayload records a new session with its device snapshot.
type SessionStartPayload struct {
	SessionID string `json:"session_id"`
	Platform  string `json:"platform"`
	UserAgent string `json:"user_agent"`
	Viewport  string `json:"viewport"`
}

func (SessionStartPayload) Kind() Kind { return KindSessionStart }

// SessionEndPayload records a closed session and its duration.
type SessionEndPayload struct {
	SessionID  string `json:"session_id"`
	DurationMs int64  `json:"duration_ms"`
}

func (SessionEndPayload) Kind() Kind { return KindSessionEnd }

// ScreenViewPayload records one canonical screen view.
type ScreenViewPayload struct {
	Screen string `json:"screen"`
	Path   string `json:"path"`
}

func (ScreenViewPayload) Kind() Kind { return KindScreenView }

// AssetEventPayload records an interaction with a sales asset.
type AssetEventPayload struct {
	AssetID string `json:"asset_id"`
	Action  string `json:"action"` // view, download, share
}

func (AssetEventPayload) Kind() Kind { return KindAssetEvent }

// AIQueryPayload records a product Q&A exchange.
type AIQueryPayload struct {
	Query     string `json:"query"`
	Answered  bool   `json:"answered"`
	LatencyMs int64  `json:"latency_ms"`
}

func (AIQueryPayload) Kind() Kind { return KindAIQuery }

// ProfileViewPayload records a member profile view.
type ProfileViewPayload struct {
	ProfileID string `json:"profile_id"`
}

func (ProfileViewPayload) Kind() Kind { return KindProfileView }

// DirectorySearchPayload records a directory search and its hit count.
type DirectorySearchPayload struct {
	Query   string `json:"query"`
	Results int    `json:"results"`
}

func (DirectorySearchPayload) Kind() Kind { return KindDirectorySearch }

// NotificationClickPayload records a tapped notification.
type NotificationClickPayload struct {
	NotificationID string `json:"notification_id"`
	Category       string `json:"category"`
}

func (NotificationClickPayload) Kind() Kind { return KindNotificationClick }

// Event is one analytics event. ID is assigned at creation and doubles as
// the delivery idempotency key.
type Event struct {
	ID         string
	UserID     string
	OccurredAt time.Time
	Payload    Payload
}

// New creates an event with a fresh id and the current time.
func New(userID string, p Payload) Event {
	return Event{
		ID:         uuid.New().String(),
		UserID:     userID,
		OccurredAt: time.Now(),
		Payload:    p,
	}
}
