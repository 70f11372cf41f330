package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/remedygo/remedyd/internal/backend"
	"github.com/remedygo/remedyd/internal/store"
)

// SendInput describes one outgoing message.
type SendInput struct {
	ChatID        string
	Body          string
	MessageType   string // text, image, file; defaults to text
	AttachmentURL string
	ReplyToID     string
}

// SendMessage writes an optimistic pending row, then attempts remote
// delivery. The returned message reflects the final local state: status
// "sent" on success, "failed" with the error recorded on failure. The row
// survives either way so a failed send can be retried.
func (e *Engine) SendMessage(ctx context.Context, sender *backend.Identity, in SendInput) (*store.Message, error) {
	body := strings.TrimSpace(in.Body)
	if body == "" && in.AttachmentURL == "" {
		return nil, ErrEmptyBody
	}
	if in.MessageType == "" {
		in.MessageType = "text"
	}

	msg := &store.Message{
		ChatID:        in.ChatID,
		MsgID:         uuid.New().String(),
		SenderID:      sender.UserID,
		SenderName:    sender.DisplayName,
		Body:          body,
		MessageType:   in.MessageType,
		AttachmentURL: in.AttachmentURL,
		ReplyToID:     in.ReplyToID,
		FromMe:        true,
		Status:        store.StatusPending,
		CreatedAt:     time.Now().UnixMilli(),
	}
	if err := e.db.UpsertMessage(msg); err != nil {
		return nil, err
	}
	e.publish("chat.message.pending", *msg)

	return e.deliver(ctx, msg)
}

// RetrySend re-attempts delivery of a previously failed message, reusing
// its id so the backend and the feed echo see the same message.
func (e *Engine) RetrySend(ctx context.Context, sender *backend.Identity, chatID, msgID string) (*store.Message, error) {
	msg, err := e.db.GetMessage(chatID, msgID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrMessageNotFound
	}
	if msg.SenderID != sender.UserID {
		return nil, ErrNotOwner
	}
	if msg.Status != store.StatusFailed {
		return nil, ErrNotRetryable
	}

	if err := e.db.SetMessageStatus(chatID, msgID, store.StatusPending, ""); err != nil {
		return nil, err
	}
	msg.Status = store.StatusPending
	msg.ErrorMessage = ""
	e.publish("chat.message.pending", *msg)

	return e.deliver(ctx, msg)
}

// deliver pushes one pending message to the backend and records the outcome.
func (e *Engine) deliver(ctx context.Context, msg *store.Message) (*store.Message, error) {
	out := backend.OutMessage{
		MsgID:         msg.MsgID,
		ChatID:        msg.ChatID,
		SenderID:      msg.SenderID,
		Body:          msg.Body,
		MessageType:   msg.MessageType,
		AttachmentURL: msg.AttachmentURL,
		ReplyToID:     msg.ReplyToID,
		CreatedAt:     msg.CreatedAt,
	}
	if err := e.backend.SendMessage(ctx, out); err != nil {
		e.logger.Warn("message delivery failed",
			zap.Error(err), zap.String("chat_id", msg.ChatID), zap.String("msg_id", msg.MsgID))
		if dbErr := e.db.SetMessageStatus(msg.ChatID, msg.MsgID, store.StatusFailed, err.Error()); dbErr != nil {
			e.logger.Error("record send failure", zap.Error(dbErr), zap.String("msg_id", msg.MsgID))
		}
		msg.Status = store.StatusFailed
		msg.ErrorMessage = err.Error()
		e.publish("chat.message.failed", *msg)
		return msg, err
	}

	if err := e.db.SetMessageStatus(msg.ChatID, msg.MsgID, store.StatusSent, ""); err != nil {
		return nil, err
	}
	msg.Status = store.StatusSent
	e.publish("chat.message.sent", *msg)

	if err := e.db.BumpChat(msg.ChatID, msg.CreatedAt, msg.Body); err != nil {
		e.logger.Error("bump chat preview", zap.Error(err), zap.String("chat_id", msg.ChatID))
	}
	return msg, nil
}

// UploadAttachment stores a blob in the backend object store and returns
// its URL for use in a subsequent send.
func (e *Engine) UploadAttachment(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyBody
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	url, err := e.backend.UploadAttachment(ctx, name, data, contentType)
	if err != nil {
		return "", err
	}
	e.logger.Info("attachment uploaded", zap.String("name", name), zap.Int("bytes", len(data)))
	return url, nil
}

// EditMessage replaces a message body. Only the author may edit; moderators
// delete, they do not edit.
func (e *Engine) EditMessage(ctx context.Context, actor *backend.Identity, chatID, msgID, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return ErrEmptyBody
	}
	msg, err := e.db.GetMessage(chatID, msgID)
	if err != nil {
		return err
	}
	if msg == nil {
		return ErrMessageNotFound
	}
	if msg.SenderID != actor.UserID {
		return ErrNotOwner
	}

	if err := e.backend.UpdateMessageBody(ctx, msgID, body); err != nil {
		return err
	}
	if err := e.db.ApplyEdit(chatID, msgID, body); err != nil {
		return err
	}
	e.publish("chat.message.edited", map[string]string{"chat_id": chatID, "msg_id": msgID})
	return nil
}

// DeleteMessage removes a message. Allowed for the author and for
// moderators.
func (e *Engine) DeleteMessage(ctx context.Context, actor *backend.Identity, chatID, msgID string) error {
	msg, err := e.db.GetMessage(chatID, msgID)
	if err != nil {
		return err
	}
	if msg == nil {
		return ErrMessageNotFound
	}
	if msg.SenderID != actor.UserID && !actor.Moderator() {
		return ErrNotOwner
	}

	// Failed messages never reached the backend; delete locally only.
	if msg.Status != store.StatusFailed {
		if err := e.backend.DeleteMessage(ctx, msgID); err != nil {
			return err
		}
	}
	if err := e.db.DeleteMessage(chatID, msgID); err != nil {
		return err
	}
	e.publish("chat.message.deleted", map[string]string{"chat_id": chatID, "msg_id": msgID})
	return nil
}
