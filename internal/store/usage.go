package store

import (
	"context"
	"fmt"
	"time"

	"github.com/leadrelay/keygate/internal/model"
)

// ---------------------------------------------------------------------------
// Usage logs
// ---------------------------------------------------------------------------

// InsertUsage appends one usage entry. A zero CreatedAt is set to now.
func (s *Store) InsertUsage(ctx context.Context, e *model.UsageLogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Outcome == "" {
		e.Outcome = model.OutcomeCompleted
	}
	id, err := s.dialect.insertReturningID(ctx, s.db, "api_key_usage_logs",
		[]string{"api_key_id", "endpoint", "method", "status_code", "response_time_ms",
			"ip_address", "user_agent", "error_message", "outcome", "created_at"},
		e.APIKeyID, e.Endpoint, e.Method, e.StatusCode, e.ResponseTimeMs,
		e.IPAddress, e.UserAgent, e.ErrorMessage, string(e.Outcome), e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert usage log: %w", err)
	}
	e.ID = id
	return nil
}

// ListUsage returns the most recent usage entries for a key.
func (s *Store) ListUsage(ctx context.Context, keyID int64, limit int) ([]model.UsageLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []model.UsageLogEntry
	query := s.db.Rebind(`SELECT id, api_key_id, endpoint, method, status_code, response_time_ms,
		ip_address, user_agent, error_message, outcome, created_at
		FROM api_key_usage_logs WHERE api_key_id = ?
		ORDER BY created_at DESC, id DESC` + s.dialect.limitClause(limit))
	if err := s.db.SelectContext(ctx, &entries, query, keyID); err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}
	return entries, nil
}

// CountUsage returns the number of usage entries recorded for a key.
func (s *Store) CountUsage(ctx context.Context, keyID int64) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n,
		s.db.Rebind("SELECT COUNT(*) FROM api_key_usage_logs WHERE api_key_id = ?"), keyID); err != nil {
		return 0, fmt.Errorf("count usage: %w", err)
	}
	return n, nil
}

// DailyUsage aggregates a key's usage per UTC day since the given time.
func (s *Store) DailyUsage(ctx context.Context, keyID int64, since time.Time) ([]model.DailyUsage, error) {
	day := s.dialect.dayExpr("created_at")
	query := s.db.Rebind(`SELECT ` + day + ` AS day,
		COUNT(*) AS total_requests,
		SUM(CASE WHEN status_code >= 200 AND status_code < 300 THEN 1 ELSE 0 END) AS successful_requests,
		SUM(CASE WHEN status_code >= 400 THEN 1 ELSE 0 END) AS failed_requests,
		AVG(response_time_ms * 1.0) AS avg_response_time
		FROM api_key_usage_logs
		WHERE api_key_id = ? AND created_at >= ?
		GROUP BY ` + day + `
		ORDER BY day DESC`)

	var rows []model.DailyUsage
	if err := s.db.SelectContext(ctx, &rows, query, keyID, since.UTC()); err != nil {
		return nil, fmt.Errorf("daily usage: %w", err)
	}
	return rows, nil
}

// EndpointUsage counts a key's requests per endpoint and method since the
// given time, busiest first.
func (s *Store) EndpointUsage(ctx context.Context, keyID int64, since time.Time, limit int) ([]model.EndpointUsage, error) {
	query := s.db.Rebind(`SELECT endpoint, method, COUNT(*) AS request_count
		FROM api_key_usage_logs
		WHERE api_key_id = ? AND created_at >= ?
		GROUP BY endpoint, method
		ORDER BY request_count DESC, endpoint, method` + s.dialect.limitClause(limit))

	var rows []model.EndpointUsage
	if err := s.db.SelectContext(ctx, &rows, query, keyID, since.UTC()); err != nil {
		return nil, fmt.Errorf("endpoint usage: %w", err)
	}
	return rows, nil
}

// DeleteUsageBefore removes usage entries created before cutoff.
func (s *Store) DeleteUsageBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("DELETE FROM api_key_usage_logs WHERE created_at < ?"), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete old usage logs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete old usage logs rows affected: %w", err)
	}
	return n, nil
}
