package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	resty "resty.dev/v3"

	"github.com/remedygo/remedyd/internal/config"
)

// ErrRemote marks failures that originated in the hosted backend (transport
// errors and non-2xx responses), as opposed to local state. Callers match it
// with errors.Is to attribute faults correctly.
var ErrRemote = errors.New("backend request failed")

// RestClient talks to the hosted platform's row-store and auth endpoints.
// It implements Rows and Auth.
type RestClient struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewRestClient creates a REST client for the configured backend.
func NewRestClient(cfg config.Backend, logger *zap.Logger) *RestClient {
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("apikey", cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second)
	if cfg.AccessToken != "" {
		c.SetAuthToken(cfg.AccessToken)
	}
	return &RestClient{http: c, logger: logger}
}

// Close releases the underlying HTTP client.
func (c *RestClient) Close() {
	_ = c.http.Close()
}

func (c *RestClient) check(res *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrRemote, err)
	}
	if res.IsError() {
		return fmt.Errorf("%s: %w: status %d: %s", op, ErrRemote, res.StatusCode(), res.String())
	}
	return nil
}

// Current implements Auth against the platform's user endpoint.
func (c *RestClient) Current(ctx context.Context) (*Identity, error) {
	var ident Identity
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&ident).
		Get("/auth/v1/user")
	if err := c.check(res, err, "auth user"); err != nil {
		return nil, err
	}
	return &ident, nil
}

type sessionRow struct {
	ID string `json:"id"`
}

// StartSession creates a session row and returns the backend-assigned id.
func (c *RestClient) StartSession(ctx context.Context, userID string, device DeviceInfo) (string, error) {
	body := map[string]any{
		"user_id":    userID,
		"platform":   device.Platform,
		"user_agent": device.UserAgent,
		"viewport":   device.Viewport,
		"started_at": time.Now().UnixMilli(),
	}
	var created []sessionRow
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=representation").
		SetBody(body).
		SetResult(&created).
		Post("/rest/v1/sessions")
	if err := c.check(res, err, "start session"); err != nil {
		return "", err
	}
	if len(created) == 0 || created[0].ID == "" {
		return "", fmt.Errorf("start session: %w: no session id in response", ErrRemote)
	}
	return created[0].ID, nil
}

// EndSession stamps ended_at on the session row.
func (c *RestClient) EndSession(ctx context.Context, sessionID string) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("id", "eq."+sessionID).
		SetBody(map[string]any{"ended_at": time.Now().UnixMilli()}).
		Patch("/rest/v1/sessions")
	return c.check(res, err, "end session")
}

// BeaconSessionEnd fires EndSession on a detached goroutine with its own
// deadline. The caller never waits; a lost response is acceptable.
func (c *RestClient) BeaconSessionEnd(sessionID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.EndSession(ctx, sessionID); err != nil {
			c.logger.Warn("beacon session end failed", zap.Error(err), zap.String("session_id", sessionID))
		}
	}()
}

// InsertEvent writes one analytics event, ignoring duplicates on event_id.
func (c *RestClient) InsertEvent(ctx context.Context, e EventRecord) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Prefer", "resolution=ignore-duplicates").
		SetBody(e).
		Post("/rest/v1/analytics_events")
	return c.check(res, err, "insert event")
}

// SendMessage inserts a message row with the client-generated id.
func (c *RestClient) SendMessage(ctx context.Context, m OutMessage) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(m).
		Post("/rest/v1/messages")
	return c.check(res, err, "send message")
}

// UpdateMessageBody replaces content and marks the message edited.
func (c *RestClient) UpdateMessageBody(ctx context.Context, msgID, body string) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("id", "eq."+msgID).
		SetBody(map[string]any{"content": body, "is_edited": true}).
		Patch("/rest/v1/messages")
	return c.check(res, err, "update message")
}

// DeleteMessage removes a message row.
func (c *RestClient) DeleteMessage(ctx context.Context, msgID string) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("id", "eq."+msgID).
		Delete("/rest/v1/messages")
	return c.check(res, err, "delete message")
}

// InsertReaction adds a (message, user, emoji) reaction row; duplicates are ignored.
func (c *RestClient) InsertReaction(ctx context.Context, chatID, msgID, userID, emoji string) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Prefer", "resolution=ignore-duplicates").
		SetBody(map[string]any{
			"chat_id":    chatID,
			"message_id": msgID,
			"user_id":    userID,
			"emoji":      emoji,
			"created_at": time.Now().UnixMilli(),
		}).
		Post("/rest/v1/message_reactions")
	return c.check(res, err, "insert reaction")
}

// DeleteReaction removes a (message, user, emoji) reaction row.
func (c *RestClient) DeleteReaction(ctx context.Context, msgID, userID, emoji string) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("message_id", "eq."+msgID).
		SetQueryParam("user_id", "eq."+userID).
		SetQueryParam("emoji", "eq."+emoji).
		Delete("/rest/v1/message_reactions")
	return c.check(res, err, "delete reaction")
}

// SetLastRead advances the member's read watermark.
func (c *RestClient) SetLastRead(ctx context.Context, chatID, userID string, readAt time.Time) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("chat_id", "eq."+chatID).
		SetQueryParam("user_id", "eq."+userID).
		SetBody(map[string]any{"last_read_at": readAt.UnixMilli()}).
		Patch("/rest/v1/chat_members")
	return c.check(res, err, "set last read")
}

// BroadcastTyping publishes an ephemeral typing presence frame.
func (c *RestClient) BroadcastTyping(ctx context.Context, t TypingRow) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(t).
		Post("/rest/v1/rpc/broadcast_typing")
	return c.check(res, err, "broadcast typing")
}

// InsertReport creates an immutable chat report record.
func (c *RestClient) InsertReport(ctx context.Context, r Report) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(r).
		Post("/rest/v1/chat_reports")
	return c.check(res, err, "insert report")
}

// SetMemberFlag updates a per-member chat preference (muted or pinned).
func (c *RestClient) SetMemberFlag(ctx context.Context, chatID, userID, flag string, value bool) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("chat_id", "eq."+chatID).
		SetQueryParam("user_id", "eq."+userID).
		SetBody(map[string]any{flag: value}).
		Patch("/rest/v1/chat_members")
	return c.check(res, err, "set member flag")
}

// LeaveChat removes the user's membership row.
func (c *RestClient) LeaveChat(ctx context.Context, chatID, userID string) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("chat_id", "eq."+chatID).
		SetQueryParam("user_id", "eq."+userID).
		Delete("/rest/v1/chat_members")
	return c.check(res, err, "leave chat")
}

// UpdateGroupName renames a group chat.
func (c *RestClient) UpdateGroupName(ctx context.Context, chatID, name string) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("id", "eq."+chatID).
		SetBody(map[string]any{"name": name}).
		Patch("/rest/v1/chats")
	return c.check(res, err, "update group name")
}

// AddMembers inserts membership rows for the given users.
func (c *RestClient) AddMembers(ctx context.Context, chatID string, userIDs []string) error {
	rows := make([]map[string]any, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, map[string]any{"chat_id": chatID, "user_id": id, "role": "member"})
	}
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Prefer", "resolution=ignore-duplicates").
		SetBody(rows).
		Post("/rest/v1/chat_members")
	return c.check(res, err, "add members")
}

// RemoveMember deletes another user's membership row.
func (c *RestClient) RemoveMember(ctx context.Context, chatID, userID string) error {
	return c.LeaveChat(ctx, chatID, userID)
}

type uploadResult struct {
	URL string `json:"url"`
}

// UploadAttachment stores a blob in the object store and returns its URL.
func (c *RestClient) UploadAttachment(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	var out uploadResult
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetBody(data).
		SetResult(&out).
		Post("/storage/v1/object/chat-attachments/" + name)
	if err := c.check(res, err, "upload attachment"); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", fmt.Errorf("upload attachment: backend returned no url")
	}
	return out.URL, nil
}
