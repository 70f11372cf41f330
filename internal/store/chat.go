package store

import (
	"database/sql"
	"time"
)

// UpsertChat inserts or updates a chat record.
func (db *DB) UpsertChat(c *Chat) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO chats (chat_id, name, avatar_url, is_group, muted, pinned, unread_count, last_message_at, last_message_preview, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE chats.name END,
			avatar_url = CASE WHEN excluded.avatar_url != '' THEN excluded.avatar_url ELSE chats.avatar_url END,
			is_group = excluded.is_group,
			unread_count = excluded.unread_count,
			last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
			last_message_preview = CASE WHEN excluded.last_message_at >= chats.last_message_at THEN excluded.last_message_preview ELSE chats.last_message_preview END,
			updated_at = excluded.updated_at`,
		c.ChatID, c.Name, c.AvatarURL, c.IsGroup, c.Muted, c.Pinned, c.UnreadCount, c.LastMessageAt, c.LastMessagePreview, now)
	return err
}

// BumpChat advances a chat's last-message ordering metadata only, creating a
// placeholder row when the chat is not yet synced. Unlike UpsertChat it never
// touches identity fields, so a message arriving before its chat row cannot
// clobber is_group or the name.
func (db *DB) BumpChat(chatID string, lastMessageAt int64, preview string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO chats (chat_id, name, avatar_url, is_group, muted, pinned, unread_count, last_message_at, last_message_preview, updated_at)
		VALUES (?, '', '', 0, 0, 0, 0, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
			last_message_preview = CASE WHEN excluded.last_message_at >= chats.last_message_at THEN excluded.last_message_preview ELSE chats.last_message_preview END,
			updated_at = excluded.updated_at`,
		chatID, lastMessageAt, preview, now)
	return err
}

// ListChats returns chats sorted pinned-first, then by last message timestamp descending.
func (db *DB) ListChats(limit, offset int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT chat_id, name, avatar_url, is_group, muted, pinned, unread_count, last_message_at, last_message_preview
		FROM chats
		ORDER BY pinned DESC, last_message_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ChatID, &c.Name, &c.AvatarURL, &c.IsGroup, &c.Muted, &c.Pinned, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetChat returns a single chat by id, or nil if absent.
func (db *DB) GetChat(chatID string) (*Chat, error) {
	var c Chat
	err := db.QueryRow(`
		SELECT chat_id, name, avatar_url, is_group, muted, pinned, unread_count, last_message_at, last_message_preview
		FROM chats WHERE chat_id = ?`, chatID).
		Scan(&c.ChatID, &c.Name, &c.AvatarURL, &c.IsGroup, &c.Muted, &c.Pinned, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SetChatMuted flips the local mute flag.
func (db *DB) SetChatMuted(chatID string, muted bool) error {
	_, err := db.Exec(`UPDATE chats SET muted = ?, updated_at = ? WHERE chat_id = ?`,
		muted, time.Now().UnixMilli(), chatID)
	return err
}

// SetChatPinned flips the local pin flag.
func (db *DB) SetChatPinned(chatID string, pinned bool) error {
	_, err := db.Exec(`UPDATE chats SET pinned = ?, updated_at = ? WHERE chat_id = ?`,
		pinned, time.Now().UnixMilli(), chatID)
	return err
}

// RenameChat sets the display name of a chat.
func (db *DB) RenameChat(chatID, name string) error {
	_, err := db.Exec(`UPDATE chats SET name = ?, updated_at = ? WHERE chat_id = ?`,
		name, time.Now().UnixMilli(), chatID)
	return err
}

// RemoveChat deletes a chat with its messages, reactions and members.
// Used when the user leaves a chat.
func (db *DB) RemoveChat(chatID string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM reactions WHERE chat_id = ?`,
		`DELETE FROM messages WHERE chat_id = ?`,
		`DELETE FROM members WHERE chat_id = ?`,
		`DELETE FROM chats WHERE chat_id = ?`,
	} {
		if _, err := tx.Exec(q, chatID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ChatCount returns the total number of chats.
func (db *DB) ChatCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&count)
	return count, err
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
