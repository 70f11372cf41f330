package store

import (
	"database/sql"
	"time"
)

// UpsertMessage inserts or updates a message (idempotent on chat_id + msg_id).
// The feed echo of an optimistic send lands on the same row, so a pending
// message converges to its delivered form instead of duplicating.
func (db *DB) UpsertMessage(m *Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (chat_id, msg_id, sender_id, sender_name, body, message_type, attachment_url, reply_to_id, edited, from_me, status, error_message, created_at, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, msg_id) DO UPDATE SET
			sender_name = excluded.sender_name,
			body = excluded.body,
			edited = excluded.edited,
			status = excluded.status,
			error_message = excluded.error_message`,
		m.ChatID, m.MsgID, m.SenderID, m.SenderName, m.Body, m.MessageType, m.AttachmentURL, m.ReplyToID, m.Edited, m.FromMe, m.Status, m.ErrorMessage, m.CreatedAt, now)
	return err
}

// ListMessages returns messages for a chat using keyset pagination by creation time.
func (db *DB) ListMessages(chatID string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT id, chat_id, msg_id, sender_id, sender_name, body, message_type, attachment_url, reply_to_id, edited, from_me, status, error_message, created_at
		FROM messages
		WHERE chat_id = ? AND created_at < ?
		ORDER BY created_at DESC
		LIMIT ?`, chatID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.MsgID, &m.SenderID, &m.SenderName, &m.Body, &m.MessageType, &m.AttachmentURL, &m.ReplyToID, &m.Edited, &m.FromMe, &m.Status, &m.ErrorMessage, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// GetMessage returns a single message, or nil if absent.
func (db *DB) GetMessage(chatID, msgID string) (*Message, error) {
	var m Message
	err := db.QueryRow(`
		SELECT id, chat_id, msg_id, sender_id, sender_name, body, message_type, attachment_url, reply_to_id, edited, from_me, status, error_message, created_at
		FROM messages WHERE chat_id = ? AND msg_id = ?`, chatID, msgID).
		Scan(&m.ID, &m.ChatID, &m.MsgID, &m.SenderID, &m.SenderName, &m.Body, &m.MessageType, &m.AttachmentURL, &m.ReplyToID, &m.Edited, &m.FromMe, &m.Status, &m.ErrorMessage, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SetMessageStatus updates delivery status and error text for a message.
func (db *DB) SetMessageStatus(chatID, msgID, status, errMsg string) error {
	_, err := db.Exec(`UPDATE messages SET status = ?, error_message = ? WHERE chat_id = ? AND msg_id = ?`,
		status, errMsg, chatID, msgID)
	return err
}

// ApplyEdit replaces a message body and sets the edited flag.
func (db *DB) ApplyEdit(chatID, msgID, body string) error {
	_, err := db.Exec(`UPDATE messages SET body = ?, edited = 1 WHERE chat_id = ? AND msg_id = ?`,
		body, chatID, msgID)
	return err
}

// DeleteMessage removes a message row and its reactions.
func (db *DB) DeleteMessage(chatID, msgID string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM reactions WHERE chat_id = ? AND msg_id = ?`, chatID, msgID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM messages WHERE chat_id = ? AND msg_id = ?`, chatID, msgID); err != nil {
		return err
	}
	return tx.Commit()
}
