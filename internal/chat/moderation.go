package chat

import (
	"context"
	"strings"

	"github.com/remedygo/remedyd/internal/backend"
	"github.com/remedygo/remedyd/internal/store"
)

// requireAdmin checks that the actor holds the owner or admin role in the
// chat. Platform moderators pass regardless of chat role.
func (e *Engine) requireAdmin(actor *backend.Identity, chatID string) error {
	if actor.Moderator() {
		return nil
	}
	member, err := e.db.GetMember(chatID, actor.UserID)
	if err != nil {
		return err
	}
	if member == nil {
		return ErrNotMember
	}
	if member.Role != store.RoleOwner && member.Role != store.RoleAdmin {
		return ErrNotAdmin
	}
	return nil
}

// ReportChat files an immutable report against a chat or one of its
// messages. Reports are write-only from the client's side.
func (e *Engine) ReportChat(ctx context.Context, reporter *backend.Identity, chatID, msgID, reason, description string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrEmptyBody
	}
	if err := e.backend.InsertReport(ctx, backend.Report{
		ChatID:      chatID,
		MsgID:       msgID,
		ReporterID:  reporter.UserID,
		Reason:      reason,
		Description: description,
	}); err != nil {
		return err
	}
	e.publish("chat.reported", map[string]string{"chat_id": chatID, "reason": reason})
	return nil
}

// ToggleMute flips the user's mute flag on a chat and returns the new value.
func (e *Engine) ToggleMute(ctx context.Context, user *backend.Identity, chatID string) (bool, error) {
	c, err := e.db.GetChat(chatID)
	if err != nil {
		return false, err
	}
	if c == nil {
		return false, ErrChatNotFound
	}
	muted := !c.Muted
	if err := e.backend.SetMemberFlag(ctx, chatID, user.UserID, "muted", muted); err != nil {
		return c.Muted, err
	}
	if err := e.db.SetChatMuted(chatID, muted); err != nil {
		return c.Muted, err
	}
	e.publish("chat.muted", map[string]any{"chat_id": chatID, "muted": muted})
	return muted, nil
}

// TogglePin flips the user's pin flag on a chat and returns the new value.
// Pinned chats sort first in the chat list.
func (e *Engine) TogglePin(ctx context.Context, user *backend.Identity, chatID string) (bool, error) {
	c, err := e.db.GetChat(chatID)
	if err != nil {
		return false, err
	}
	if c == nil {
		return false, ErrChatNotFound
	}
	pinned := !c.Pinned
	if err := e.backend.SetMemberFlag(ctx, chatID, user.UserID, "pinned", pinned); err != nil {
		return c.Pinned, err
	}
	if err := e.db.SetChatPinned(chatID, pinned); err != nil {
		return c.Pinned, err
	}
	e.publish("chat.pinned", map[string]any{"chat_id": chatID, "pinned": pinned})
	return pinned, nil
}

// LeaveChat removes the user from a chat and drops the chat locally with
// all its messages.
func (e *Engine) LeaveChat(ctx context.Context, user *backend.Identity, chatID string) error {
	if err := e.backend.LeaveChat(ctx, chatID, user.UserID); err != nil {
		return err
	}
	if err := e.db.RemoveChat(chatID); err != nil {
		return err
	}
	e.publish("chat.removed", map[string]string{"chat_id": chatID})
	return nil
}

// UpdateGroupName renames a group chat. Admin only.
func (e *Engine) UpdateGroupName(ctx context.Context, actor *backend.Identity, chatID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyBody
	}
	if err := e.requireAdmin(actor, chatID); err != nil {
		return err
	}
	if err := e.backend.UpdateGroupName(ctx, chatID, name); err != nil {
		return err
	}
	if err := e.db.RenameChat(chatID, name); err != nil {
		return err
	}
	e.publish("chat.renamed", map[string]string{"chat_id": chatID, "name": name})
	return nil
}

// AddMembers invites users into a group chat. Admin only. The member rows
// arrive back through the feed.
func (e *Engine) AddMembers(ctx context.Context, actor *backend.Identity, chatID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return ErrEmptyBody
	}
	if err := e.requireAdmin(actor, chatID); err != nil {
		return err
	}
	return e.backend.AddMembers(ctx, chatID, userIDs)
}

// RemoveMember ejects a user from a group chat. Admin only.
func (e *Engine) RemoveMember(ctx context.Context, actor *backend.Identity, chatID, userID string) error {
	if err := e.requireAdmin(actor, chatID); err != nil {
		return err
	}
	if err := e.backend.RemoveMember(ctx, chatID, userID); err != nil {
		return err
	}
	if err := e.db.RemoveMember(chatID, userID); err != nil {
		return err
	}
	e.publish("chat.member.removed", map[string]string{"chat_id": chatID, "user_id": userID})
	return nil
}
