package chat

import (
	"context"

	"github.com/remedygo/remedyd/internal/store"
)

// ToggleReaction adds the user's (emoji) reaction to a message if absent,
// removes it if present. Returns the resulting state: true when the
// reaction now exists. The local row is written first so the UI flips
// instantly; the feed echo of the remote write is idempotent on it.
func (e *Engine) ToggleReaction(ctx context.Context, userID, chatID, msgID, emoji string) (bool, error) {
	msg, err := e.db.GetMessage(chatID, msgID)
	if err != nil {
		return false, err
	}
	if msg == nil {
		return false, ErrMessageNotFound
	}

	has, err := e.db.HasReaction(msgID, userID, emoji)
	if err != nil {
		return false, err
	}

	if has {
		if err := e.db.RemoveReaction(msgID, userID, emoji); err != nil {
			return false, err
		}
		if err := e.backend.DeleteReaction(ctx, msgID, userID, emoji); err != nil {
			// Roll the optimistic removal back so local state keeps
			// matching the backend.
			_ = e.db.AddReaction(&store.Reaction{MsgID: msgID, ChatID: chatID, UserID: userID, Emoji: emoji})
			return true, err
		}
		e.publish("chat.reaction.toggled", map[string]any{
			"chat_id": chatID, "msg_id": msgID, "emoji": emoji, "reacted": false,
		})
		return false, nil
	}

	if err := e.db.AddReaction(&store.Reaction{MsgID: msgID, ChatID: chatID, UserID: userID, Emoji: emoji}); err != nil {
		return false, err
	}
	if err := e.backend.InsertReaction(ctx, chatID, msgID, userID, emoji); err != nil {
		_ = e.db.RemoveReaction(msgID, userID, emoji)
		return false, err
	}
	e.publish("chat.reaction.toggled", map[string]any{
		"chat_id": chatID, "msg_id": msgID, "emoji": emoji, "reacted": true,
	})
	return true, nil
}

// ReactionsFor aggregates the reactions on a message by emoji, flagging the
// entries that include the viewer.
func (e *Engine) ReactionsFor(msgID, viewerID string) ([]store.ReactionSummary, error) {
	return e.db.ReactionSummaries(msgID, viewerID)
}
