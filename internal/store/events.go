package store

import (
	"context"
	"time"
)

// EventRow is one serialized entry in a topic log.
type EventRow struct {
	Seq       int64
	Body      []byte
	CreatedAt time.Time
}

// AppendEvent adds body to the tail of topic and trims the log in the same
// transaction: entries older than olderThan and entries more than maxEntries
// sequence numbers behind the new one are dropped. A zero olderThan or non-positive maxEntries skips
// that bound.
func (s *DB) AppendEvent(ctx context.Context, topic string, body []byte, olderThan time.Time, maxEntries int) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var seq int64
	if err := tx.QueryRowContext(ctx, s.dialect.rebind(
		`INSERT INTO events (topic, body, created_at) VALUES (?, ?, ?) RETURNING seq`),
		topic, string(body), time.Now().UnixMilli(),
	).Scan(&seq); err != nil {
		return 0, err
	}
	if !olderThan.IsZero() {
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(
			`DELETE FROM events WHERE topic = ? AND created_at < ?`),
			topic, olderThan.UnixMilli(),
		); err != nil {
			return 0, err
		}
	}
	if maxEntries > 0 {
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(
			`DELETE FROM events WHERE topic = ? AND seq <= ?`),
			topic, seq-int64(maxEntries),
		); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return seq, nil
}

// EventsAfter returns up to limit entries of topic with seq greater than cursor,
// oldest first.
func (s *DB) EventsAfter(ctx context.Context, topic string, cursor int64, limit int) ([]EventRow, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT seq, body, created_at FROM events
       WHERE topic = ? AND seq > ? ORDER BY seq ASC LIMIT ?`),
		topic, cursor, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var (
			row       EventRow
			body      string
			createdMs int64
		)
		if err := rows.Scan(&row.Seq, &body, &createdMs); err != nil {
			return nil, err
		}
		row.Body = []byte(body)
		row.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, row)
	}
	return out, rows.Err()
}

// EventHead returns the newest seq in topic, or 0 when the topic is empty.
func (s *DB) EventHead(ctx context.Context, topic string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT COALESCE(MAX(seq), 0) FROM events WHERE topic = ?`), topic).Scan(&seq)
	return seq, err
}

// TrimEvents drops entries of topic created before olderThan.
func (s *DB) TrimEvents(ctx context.Context, topic string, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`DELETE FROM events WHERE topic = ? AND created_at < ?`),
		topic, olderThan.UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
