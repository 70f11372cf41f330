package store

import "database/sql"

// UpsertMember inserts or updates a chat membership row. The read watermark
// only ever advances, even when an upsert carries an older value.
func (db *DB) UpsertMember(m *Member) error {
	_, err := db.Exec(`
		INSERT INTO members (chat_id, user_id, display_name, role, last_read_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, user_id) DO UPDATE SET
			display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE members.display_name END,
			role = excluded.role,
			last_read_at = MAX(members.last_read_at, excluded.last_read_at)`,
		m.ChatID, m.UserID, m.DisplayName, m.Role, m.LastReadAt)
	return err
}

// Members returns all membership rows for a chat.
func (db *DB) Members(chatID string) ([]Member, error) {
	rows, err := db.Query(`
		SELECT chat_id, user_id, display_name, role, last_read_at
		FROM members WHERE chat_id = ? ORDER BY display_name ASC`, chatID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ChatID, &m.UserID, &m.DisplayName, &m.Role, &m.LastReadAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// GetMember returns a membership row, or nil if the user is not a member.
func (db *DB) GetMember(chatID, userID string) (*Member, error) {
	var m Member
	err := db.QueryRow(`
		SELECT chat_id, user_id, display_name, role, last_read_at
		FROM members WHERE chat_id = ? AND user_id = ?`, chatID, userID).
		Scan(&m.ChatID, &m.UserID, &m.DisplayName, &m.Role, &m.LastReadAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// AdvanceLastRead moves the member's read watermark forward, never backward.
func (db *DB) AdvanceLastRead(chatID, userID string, readAt int64) error {
	_, err := db.Exec(`
		UPDATE members SET last_read_at = MAX(last_read_at, ?)
		WHERE chat_id = ? AND user_id = ?`, readAt, chatID, userID)
	return err
}

// RemoveMember deletes a membership row.
func (db *DB) RemoveMember(chatID, userID string) error {
	_, err := db.Exec(`DELETE FROM members WHERE chat_id = ? AND user_id = ?`, chatID, userID)
	return err
}
