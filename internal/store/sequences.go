package store

import "context"

// BumpSequence advances the named counter and returns the new value. The
// result is max(current+1, floor), computed by the store in one upsert, so
// concurrent callers always observe distinct values.
func (s *DB) BumpSequence(ctx context.Context, name string, floor int64) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`INSERT INTO sequences (name, value) VALUES (?, ?)
         ON CONFLICT (name) DO UPDATE
         SET value = `+s.dialect.greatest+`(sequences.value + 1, excluded.value)
         RETURNING value`),
		name, floor,
	).Scan(&v)
	return v, err
}

// CurrentSequence reports the last value handed out, or 0 when unused.
func (s *DB) CurrentSequence(ctx context.Context, name string) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT COALESCE(MAX(value), 0) FROM sequences WHERE name = ?`), name).Scan(&v)
	return v, err
}
