package chat

import (
	"context"
	"time"

	"github.com/remedygo/remedyd/internal/backend"
)

// MarkRead advances the user's read watermark for a chat to now. The
// watermark is monotonic: a stale call, or a stale feed echo of this call,
// never moves it backward. Clears the local unread counter.
func (e *Engine) MarkRead(ctx context.Context, user *backend.Identity, chatID string) error {
	now := time.Now()

	member, err := e.db.GetMember(chatID, user.UserID)
	if err != nil {
		return err
	}
	if member == nil {
		return ErrNotMember
	}

	if err := e.db.AdvanceLastRead(chatID, user.UserID, now.UnixMilli()); err != nil {
		return err
	}
	if err := e.backend.SetLastRead(ctx, chatID, user.UserID, now); err != nil {
		// Local watermark already advanced; the next successful call or a
		// peer's feed upsert converges the backend.
		return err
	}
	e.publish("chat.read", map[string]string{"chat_id": chatID, "user_id": user.UserID})
	return nil
}

// IsReadBy reports whether the member's read watermark covers the given
// message, i.e. the member has read at least up to its creation time.
func (e *Engine) IsReadBy(chatID, userID, msgID string) (bool, error) {
	msg, err := e.db.GetMessage(chatID, msgID)
	if err != nil {
		return false, err
	}
	if msg == nil {
		return false, ErrMessageNotFound
	}
	member, err := e.db.GetMember(chatID, userID)
	if err != nil {
		return false, err
	}
	if member == nil {
		return false, nil
	}
	return member.LastReadAt >= msg.CreatedAt, nil
}
