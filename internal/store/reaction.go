package store

import "time"

// AddReaction inserts a (message, user, emoji) reaction row. Adding an
// already-present reaction is a no-op, keeping the at-most-one invariant.
func (db *DB) AddReaction(r *Reaction) error {
	now := time.Now().UnixMilli()
	if r.CreatedAt == 0 {
		r.CreatedAt = now
	}
	_, err := db.Exec(`
		INSERT INTO reactions (msg_id, chat_id, user_id, emoji, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(msg_id, user_id, emoji) DO NOTHING`,
		r.MsgID, r.ChatID, r.UserID, r.Emoji, r.CreatedAt)
	return err
}

// RemoveReaction deletes a (message, user, emoji) reaction row.
func (db *DB) RemoveReaction(msgID, userID, emoji string) error {
	_, err := db.Exec(`DELETE FROM reactions WHERE msg_id = ? AND user_id = ? AND emoji = ?`,
		msgID, userID, emoji)
	return err
}

// HasReaction reports whether the user already reacted with emoji on the message.
func (db *DB) HasReaction(msgID, userID, emoji string) (bool, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM reactions WHERE msg_id = ? AND user_id = ? AND emoji = ?`,
		msgID, userID, emoji).Scan(&count)
	return count > 0, err
}

// ReactionsByMessage returns all reaction rows on a message.
func (db *DB) ReactionsByMessage(msgID string) ([]Reaction, error) {
	rows, err := db.Query(`
		SELECT msg_id, chat_id, user_id, emoji, created_at
		FROM reactions WHERE msg_id = ? ORDER BY created_at ASC`, msgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var reactions []Reaction
	for rows.Next() {
		var r Reaction
		if err := rows.Scan(&r.MsgID, &r.ChatID, &r.UserID, &r.Emoji, &r.CreatedAt); err != nil {
			return nil, err
		}
		reactions = append(reactions, r)
	}
	return reactions, rows.Err()
}

// ReactionSummaries aggregates reactions on a message by emoji, marking
// which entries include viewerID.
func (db *DB) ReactionSummaries(msgID, viewerID string) ([]ReactionSummary, error) {
	rows, err := db.Query(`
		SELECT emoji, COUNT(*) AS cnt,
			MAX(CASE WHEN user_id = ? THEN 1 ELSE 0 END) AS reacted
		FROM reactions WHERE msg_id = ?
		GROUP BY emoji
		ORDER BY MIN(created_at) ASC`, viewerID, msgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var summaries []ReactionSummary
	for rows.Next() {
		var s ReactionSummary
		var reacted int
		if err := rows.Scan(&s.Emoji, &s.Count, &reacted); err != nil {
			return nil, err
		}
		s.Reacted = reacted == 1
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
