package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/remedygo/remedyd/internal/backend"
)

// DefaultTypingLease is how long a typing signal stays visible without a
// refresh. Senders re-broadcast while the user keeps typing; a crashed or
// disconnected peer simply expires.
const DefaultTypingLease = 6 * time.Second

// TypingUser is one peer currently typing in a chat.
type TypingUser struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type typingLease struct {
	displayName string
	expires     time.Time
}

// typingTable holds per-chat typing leases. Purely in-memory: typing state
// is ephemeral and never persisted.
type typingTable struct {
	mu    sync.Mutex
	lease time.Duration
	byID  map[string]map[string]typingLease // chat id -> user id -> lease
	now   func() time.Time
}

func newTypingTable(lease time.Duration) *typingTable {
	if lease <= 0 {
		lease = DefaultTypingLease
	}
	return &typingTable{
		lease: lease,
		byID:  make(map[string]map[string]typingLease),
		now:   time.Now,
	}
}

func (t *typingTable) set(chatID, userID, displayName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	users, ok := t.byID[chatID]
	if !ok {
		users = make(map[string]typingLease)
		t.byID[chatID] = users
	}
	users[userID] = typingLease{displayName: displayName, expires: t.now().Add(t.lease)}
}

func (t *typingTable) clear(chatID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if users, ok := t.byID[chatID]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(t.byID, chatID)
		}
	}
}

func (t *typingTable) active(chatID string) []TypingUser {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	var out []TypingUser
	for userID, l := range t.byID[chatID] {
		if l.expires.After(now) {
			out = append(out, TypingUser{UserID: userID, DisplayName: l.displayName})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// sweep drops expired leases and returns the chats that changed.
func (t *typingTable) sweep() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	var changed []string
	for chatID, users := range t.byID {
		for userID, l := range users {
			if !l.expires.After(now) {
				delete(users, userID)
				changed = append(changed, chatID)
			}
		}
		if len(users) == 0 {
			delete(t.byID, chatID)
		}
	}
	return changed
}

// SetTyping broadcasts that the user is typing in a chat and refreshes the
// lease. Callers throttle re-broadcasts; every call goes to the wire.
func (e *Engine) SetTyping(ctx context.Context, user *backend.Identity, chatID string) error {
	return e.backend.BroadcastTyping(ctx, backend.TypingRow{
		ChatID:      chatID,
		UserID:      user.UserID,
		DisplayName: user.DisplayName,
		Typing:      true,
	})
}

// ClearTyping broadcasts that the user stopped typing. Best effort: peers
// expire the lease on their own regardless.
func (e *Engine) ClearTyping(ctx context.Context, user *backend.Identity, chatID string) error {
	return e.backend.BroadcastTyping(ctx, backend.TypingRow{
		ChatID: chatID,
		UserID: user.UserID,
		Typing: false,
	})
}

// TypingIn returns the peers currently typing in a chat, expired leases
// excluded.
func (e *Engine) TypingIn(chatID string) []TypingUser {
	return e.typing.active(chatID)
}

// typingJanitor expires stale typing leases once a second so a peer that
// vanished mid-keystroke does not type forever.
func (e *Engine) typingJanitor(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, chatID := range e.typing.sweep() {
				e.logger.Debug("typing lease expired", zap.String("chat_id", chatID))
				e.publish("chat.typing.changed", backend.TypingRow{ChatID: chatID})
			}
		case <-ctx.Done():
			return
		}
	}
}
