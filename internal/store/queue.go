package store

import "time"

// EnqueueEvent appends an analytics event to the offline queue. Each event is
// its own row, so concurrent enqueues during a drain can never be lost to a
// whole-queue overwrite. Re-enqueueing the same event_id is a no-op.
func (db *DB) EnqueueEvent(e *QueueEntry) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO event_queue (event_id, kind, user_id, payload, occurred_at, enqueued_at, status)
		VALUES (?, ?, ?, ?, ?, ?, 'queued')
		ON CONFLICT(event_id) DO NOTHING`,
		e.EventID, e.Kind, e.UserID, e.Payload, e.OccurredAt, now)
	return err
}

// PendingEvents returns queued entries in enqueue order.
func (db *DB) PendingEvents() ([]QueueEntry, error) {
	rows, err := db.Query(`
		SELECT id, event_id, kind, user_id, payload, occurred_at, enqueued_at, attempts, last_error, status
		FROM event_queue WHERE status = 'queued' ORDER BY enqueued_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []QueueEntry
	for rows.Next() {
		var e QueueEntry
		if err := rows.Scan(&e.ID, &e.EventID, &e.Kind, &e.UserID, &e.Payload, &e.OccurredAt, &e.EnqueuedAt, &e.Attempts, &e.LastError, &e.Status); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkEventDelivering moves a queue entry to 'delivering' so a concurrent
// drain pass skips it.
func (db *DB) MarkEventDelivering(id int64) error {
	_, err := db.Exec(`UPDATE event_queue SET status = 'delivering' WHERE id = ?`, id)
	return err
}

// RecoverDeliveringEvents returns entries stuck in 'delivering' to 'queued'.
// A process killed between marking an entry and settling it leaves the row
// in 'delivering', which PendingEvents skips; run once at startup so those
// entries become eligible again. The backend's idempotency key absorbs the
// case where the crash happened after a successful remote write.
func (db *DB) RecoverDeliveringEvents() (int64, error) {
	res, err := db.Exec(`UPDATE event_queue SET status = 'queued' WHERE status = 'delivering'`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteQueueEntry removes a delivered entry.
func (db *DB) DeleteQueueEntry(id int64) error {
	_, err := db.Exec(`DELETE FROM event_queue WHERE id = ?`, id)
	return err
}

// RequeueEvent puts a failed entry back in 'queued' state, recording the error.
// The entry stays eligible for the next drain pass, not the current one.
func (db *DB) RequeueEvent(id int64, errMsg string) error {
	_, err := db.Exec(`
		UPDATE event_queue SET status = 'queued', attempts = attempts + 1, last_error = ?
		WHERE id = ?`, errMsg, id)
	return err
}

// QueueDepth returns the number of undelivered events.
func (db *DB) QueueDepth() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM event_queue`).Scan(&count)
	return count, err
}
