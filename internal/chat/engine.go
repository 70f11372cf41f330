// Package chat is the realtime sync engine: optimistic local writes
// reconciled against the backend change feed, plus reactions, typing
// leases, read receipts and moderation.
package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/remedygo/remedyd/internal/backend"
	"github.com/remedygo/remedyd/internal/bus"
	"github.com/remedygo/remedyd/internal/store"
)

// Backend is the row-store surface the engine writes through. Reads come
// from the local store; the feed brings remote writes back.
type Backend interface {
	SendMessage(ctx context.Context, m backend.OutMessage) error
	UpdateMessageBody(ctx context.Context, msgID, body string) error
	DeleteMessage(ctx context.Context, msgID string) error

	InsertReaction(ctx context.Context, chatID, msgID, userID, emoji string) error
	DeleteReaction(ctx context.Context, msgID, userID, emoji string) error

	SetLastRead(ctx context.Context, chatID, userID string, readAt time.Time) error
	BroadcastTyping(ctx context.Context, t backend.TypingRow) error

	InsertReport(ctx context.Context, r backend.Report) error
	SetMemberFlag(ctx context.Context, chatID, userID, flag string, value bool) error
	LeaveChat(ctx context.Context, chatID, userID string) error
	UpdateGroupName(ctx context.Context, chatID, name string) error
	AddMembers(ctx context.Context, chatID string, userIDs []string) error
	RemoveMember(ctx context.Context, chatID, userID string) error

	UploadAttachment(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// Engine applies chat operations locally first and reconciles against the
// backend feed. All exported methods are safe for concurrent use.
type Engine struct {
	db      *store.DB
	backend Backend
	bus     *bus.Bus
	logger  *zap.Logger

	mu     sync.RWMutex
	selfID string

	typing *typingTable
	cancel context.CancelFunc
}

// NewEngine creates a chat engine.
func NewEngine(db *store.DB, be Backend, b *bus.Bus, typingLease time.Duration, logger *zap.Logger) *Engine {
	return &Engine{
		db:      db,
		backend: be,
		bus:     b,
		logger:  logger,
		typing:  newTypingTable(typingLease),
	}
}

// SetSelf records the authenticated user so feed echoes of own messages are
// attributed correctly.
func (e *Engine) SetSelf(userID string) {
	e.mu.Lock()
	e.selfID = userID
	e.mu.Unlock()
}

func (e *Engine) self() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.selfID
}

// Start begins consuming feed deltas and running the typing lease janitor.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe(bus.NamespaceFeed, 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				delta, ok := evt.Payload.(backend.Delta)
				if !ok {
					continue
				}
				if err := e.applyDelta(delta); err != nil {
					e.logger.Error("apply feed delta",
						zap.Error(err), zap.String("table", delta.Table), zap.String("op", delta.Op))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go e.typingJanitor(ctx)
}

// Stop terminates the feed consumer and janitor.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) applyDelta(d backend.Delta) error {
	switch d.Table {
	case "messages":
		return e.applyMessageDelta(d)
	case "message_reactions":
		return e.applyReactionDelta(d)
	case "chats":
		return e.applyChatDelta(d)
	case "chat_members":
		return e.applyMemberDelta(d)
	case "typing":
		return e.applyTypingDelta(d)
	default:
		e.logger.Debug("ignoring delta for unknown table", zap.String("table", d.Table))
		return nil
	}
}

func (e *Engine) applyMessageDelta(d backend.Delta) error {
	var row backend.MessageRow
	if err := json.Unmarshal(d.Row, &row); err != nil {
		return err
	}
	if d.Op == "delete" {
		if err := e.db.DeleteMessage(row.ChatID, row.MsgID); err != nil {
			return err
		}
		e.publish("chat.message.deleted", map[string]string{"chat_id": row.ChatID, "msg_id": row.MsgID})
		return nil
	}

	fromMe := row.SenderID != "" && row.SenderID == e.self()
	status := store.StatusReceived
	if fromMe {
		// Feed echo of an own message lands on the optimistic row and
		// confirms delivery.
		status = store.StatusSent
	}
	msg := &store.Message{
		ChatID:        row.ChatID,
		MsgID:         row.MsgID,
		SenderID:      row.SenderID,
		SenderName:    row.SenderName,
		Body:          row.Body,
		MessageType:   row.MessageType,
		AttachmentURL: row.AttachmentURL,
		ReplyToID:     row.ReplyToID,
		Edited:        row.Edited,
		FromMe:        fromMe,
		Status:        status,
		CreatedAt:     row.CreatedAt,
	}
	if err := e.db.UpsertMessage(msg); err != nil {
		return err
	}
	if err := e.db.BumpChat(row.ChatID, row.CreatedAt, row.Body); err != nil {
		return err
	}
	e.publish("chat.message.upserted", *msg)
	return nil
}

func (e *Engine) applyReactionDelta(d backend.Delta) error {
	var row backend.ReactionRow
	if err := json.Unmarshal(d.Row, &row); err != nil {
		return err
	}
	switch d.Op {
	case "delete":
		if err := e.db.RemoveReaction(row.MsgID, row.UserID, row.Emoji); err != nil {
			return err
		}
	default:
		if err := e.db.AddReaction(&store.Reaction{
			MsgID:     row.MsgID,
			ChatID:    row.ChatID,
			UserID:    row.UserID,
			Emoji:     row.Emoji,
			CreatedAt: row.CreatedAt,
		}); err != nil {
			return err
		}
	}
	e.publish("chat.reaction.changed", row)
	return nil
}

func (e *Engine) applyChatDelta(d backend.Delta) error {
	var row backend.ChatRow
	if err := json.Unmarshal(d.Row, &row); err != nil {
		return err
	}
	if d.Op == "delete" {
		if err := e.db.RemoveChat(row.ChatID); err != nil {
			return err
		}
		e.publish("chat.removed", map[string]string{"chat_id": row.ChatID})
		return nil
	}
	if err := e.db.UpsertChat(&store.Chat{
		ChatID:    row.ChatID,
		Name:      row.Name,
		AvatarURL: row.AvatarURL,
		IsGroup:   row.IsGroup,
	}); err != nil {
		return err
	}
	e.publish("chat.upserted", row)
	return nil
}

func (e *Engine) applyMemberDelta(d backend.Delta) error {
	var row backend.MemberRow
	if err := json.Unmarshal(d.Row, &row); err != nil {
		return err
	}
	if d.Op == "delete" {
		if err := e.db.RemoveMember(row.ChatID, row.UserID); err != nil {
			return err
		}
		// Being removed from a chat ourselves drops the whole chat locally.
		if row.UserID == e.self() {
			if err := e.db.RemoveChat(row.ChatID); err != nil {
				return err
			}
			e.publish("chat.removed", map[string]string{"chat_id": row.ChatID})
		}
		return nil
	}
	if err := e.db.UpsertMember(&store.Member{
		ChatID:      row.ChatID,
		UserID:      row.UserID,
		DisplayName: row.DisplayName,
		Role:        row.Role,
		LastReadAt:  row.LastReadAt,
	}); err != nil {
		return err
	}

	// The self member's row carries the chat preferences. A change made on
	// another device arrives here, so mirror it onto the local chat row.
	if row.UserID == e.self() {
		if err := e.db.SetChatMuted(row.ChatID, row.Muted); err != nil {
			return err
		}
		if err := e.db.SetChatPinned(row.ChatID, row.Pinned); err != nil {
			return err
		}
		e.publish("chat.prefs.changed", map[string]any{
			"chat_id": row.ChatID, "muted": row.Muted, "pinned": row.Pinned,
		})
	}
	return nil
}

func (e *Engine) applyTypingDelta(d backend.Delta) error {
	var row backend.TypingRow
	if err := json.Unmarshal(d.Row, &row); err != nil {
		return err
	}
	// Own broadcasts echo back through the feed; they carry no information.
	if row.UserID == e.self() {
		return nil
	}
	if row.Typing {
		e.typing.set(row.ChatID, row.UserID, row.DisplayName)
	} else {
		e.typing.clear(row.ChatID, row.UserID)
	}
	e.publish("chat.typing.changed", row)
	return nil
}

func (e *Engine) publish(kind string, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

// ListChats returns the local chat list, pinned first.
func (e *Engine) ListChats(limit, offset int) ([]store.Chat, error) {
	return e.db.ListChats(limit, offset)
}

// Messages returns a page of messages for a chat, newest first.
func (e *Engine) Messages(chatID string, beforeTs int64, limit int) ([]store.Message, error) {
	return e.db.ListMessages(chatID, beforeTs, limit)
}

// Members returns the membership rows of a chat.
func (e *Engine) Members(chatID string) ([]store.Member, error) {
	return e.db.Members(chatID)
}
