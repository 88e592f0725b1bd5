package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Rate-limit windows
// ---------------------------------------------------------------------------

// IncrementWindow creates or increments the (key, windowStart) counter and
// returns the post-increment count. The increment and the read are one
// atomic statement on every dialect, so concurrent callers always observe
// distinct, gap-free counts.
func (s *Store) IncrementWindow(ctx context.Context, keyID int64, windowStart time.Time) (int64, error) {
	windowStart = windowStart.UTC()
	var count int64

	switch s.dialect.name {
	case DriverMySQL:
		// LAST_INSERT_ID is connection scoped, so both statements must run on
		// the same pooled connection.
		conn, err := s.db.Connx(ctx)
		if err != nil {
			return 0, fmt.Errorf("increment window: acquire conn: %w", err)
		}
		defer conn.Close()

		if _, err := conn.ExecContext(ctx, mysqlUpsertSQL, keyID, windowStart); err != nil {
			return 0, fmt.Errorf("increment window: %w", err)
		}
		if err := conn.QueryRowxContext(ctx, "SELECT LAST_INSERT_ID()").Scan(&count); err != nil {
			return 0, fmt.Errorf("increment window: read count: %w", err)
		}
	case DriverSQLServer:
		if err := s.db.QueryRowxContext(ctx, s.db.Rebind(sqlserverMergeSQL), keyID, windowStart).Scan(&count); err != nil {
			return 0, fmt.Errorf("increment window: %w", err)
		}
	default:
		if err := s.db.QueryRowxContext(ctx, s.db.Rebind(upsertReturningSQL), keyID, windowStart).Scan(&count); err != nil {
			return 0, fmt.Errorf("increment window: %w", err)
		}
	}
	return count, nil
}

// WindowCount returns the current count for (key, windowStart), or 0 when no
// request has been gated in that window yet.
func (s *Store) WindowCount(ctx context.Context, keyID int64, windowStart time.Time) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count,
		s.db.Rebind("SELECT request_count FROM rate_limit_windows WHERE api_key_id = ? AND window_start = ?"),
		keyID, windowStart.UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get window count: %w", err)
	}
	return count, nil
}

// DeleteWindowsBefore removes windows that started before cutoff.
func (s *Store) DeleteWindowsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("DELETE FROM rate_limit_windows WHERE window_start < ?"), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete old windows: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete old windows rows affected: %w", err)
	}
	return n, nil
}
