package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/leadrelay/keygate/internal/model"
)

// NewKey is the insert payload for an API key. KeyHash and KeyPrefix come
// from a freshly generated secret; the secret itself never reaches the store.
type NewKey struct {
	AccountID   int64
	CreatedBy   int64
	Name        string
	KeyHash     string
	KeyPrefix   string
	Permissions []string
	RateLimit   int
	ExpiresAt   *time.Time
}

// KeyCredential is what the gateway needs to validate a presented secret:
// the masked key plus the state of its owning account.
type KeyCredential struct {
	Key           model.KeyRecord `json:"key"`
	AccountName   string          `json:"account_name"`
	AccountActive bool            `json:"account_active"`
}

// keyRow maps 1:1 to the api_keys table. Permissions are stored as a JSON
// array in a text column.
type keyRow struct {
	ID              int64      `db:"id"`
	AccountID       int64      `db:"account_id"`
	CreatedBy       int64      `db:"created_by"`
	Name            string     `db:"name"`
	KeyPrefix       string     `db:"key_prefix"`
	PermissionsJSON string     `db:"permissions"`
	RateLimit       int        `db:"rate_limit"`
	ExpiresAt       *time.Time `db:"expires_at"`
	IsActive        bool       `db:"is_active"`
	LastUsedAt      *time.Time `db:"last_used_at"`
	RequestCount    int64      `db:"request_count"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

func (r keyRow) toModel() (model.KeyRecord, error) {
	rec := model.KeyRecord{
		ID:           r.ID,
		AccountID:    r.AccountID,
		CreatedBy:    r.CreatedBy,
		Name:         r.Name,
		KeyPrefix:    r.KeyPrefix,
		RateLimit:    r.RateLimit,
		ExpiresAt:    utcPtr(r.ExpiresAt),
		IsActive:     r.IsActive,
		LastUsedAt:   utcPtr(r.LastUsedAt),
		RequestCount: r.RequestCount,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(r.PermissionsJSON), &rec.Permissions); err != nil {
		return rec, fmt.Errorf("unmarshal permissions for key %d: %w", r.ID, err)
	}
	if rec.Permissions == nil {
		rec.Permissions = []string{}
	}
	return rec, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func encodePermissions(perms []string) (string, error) {
	if perms == nil {
		perms = []string{}
	}
	b, err := json.Marshal(perms)
	if err != nil {
		return "", fmt.Errorf("marshal permissions: %w", err)
	}
	return string(b), nil
}

const keyColumns = `id, account_id, created_by, name, key_prefix, permissions, rate_limit,
	expires_at, is_active, last_used_at, request_count, created_at, updated_at`

// ---------------------------------------------------------------------------
// API key CRUD
// ---------------------------------------------------------------------------

// CreateAPIKey inserts a new key and returns its masked record.
func (s *Store) CreateAPIKey(ctx context.Context, k NewKey) (*model.KeyRecord, error) {
	return s.createAPIKey(ctx, s.db, k)
}

func (s *Store) createAPIKey(ctx context.Context, q sqlx.ExtContext, k NewKey) (*model.KeyRecord, error) {
	perms, err := encodePermissions(k.Permissions)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	id, err := s.dialect.insertReturningID(ctx, q, "api_keys",
		[]string{"account_id", "created_by", "name", "key_hash", "key_prefix", "permissions",
			"rate_limit", "expires_at", "is_active", "request_count", "created_at", "updated_at"},
		k.AccountID, k.CreatedBy, k.Name, k.KeyHash, k.KeyPrefix, perms,
		k.RateLimit, utcPtr(k.ExpiresAt), true, 0, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert api key: %w", err)
	}

	return &model.KeyRecord{
		ID:          id,
		AccountID:   k.AccountID,
		CreatedBy:   k.CreatedBy,
		Name:        k.Name,
		KeyPrefix:   k.KeyPrefix,
		Permissions: append([]string{}, k.Permissions...),
		RateLimit:   k.RateLimit,
		ExpiresAt:   utcPtr(k.ExpiresAt),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// GetAPIKey returns the key only if it belongs to accountID.
func (s *Store) GetAPIKey(ctx context.Context, id, accountID int64) (*model.KeyRecord, error) {
	return s.getAPIKey(ctx, s.db, id, accountID)
}

func (s *Store) getAPIKey(ctx context.Context, q sqlx.QueryerContext, id, accountID int64) (*model.KeyRecord, error) {
	var row keyRow
	query := s.db.Rebind("SELECT " + keyColumns + " FROM api_keys WHERE id = ? AND account_id = ?")
	if err := sqlx.GetContext(ctx, q, &row, query, id, accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	rec, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListAPIKeys returns every key owned by accountID, newest first.
func (s *Store) ListAPIKeys(ctx context.Context, accountID int64) ([]model.KeyRecord, error) {
	var rows []keyRow
	query := s.db.Rebind("SELECT " + keyColumns + " FROM api_keys WHERE account_id = ? ORDER BY created_at DESC, id DESC")
	if err := s.db.SelectContext(ctx, &rows, query, accountID); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	keys := make([]model.KeyRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.toModel()
		if err != nil {
			return nil, err
		}
		keys = append(keys, rec)
	}
	return keys, nil
}

// GetCredentialByHash resolves a hashed secret to its key and account state.
// It is not scoped to an account: the hash is the credential.
func (s *Store) GetCredentialByHash(ctx context.Context, hash string) (*KeyCredential, error) {
	var row struct {
		keyRow
		AccountName   string `db:"account_name"`
		AccountActive bool   `db:"account_active"`
	}
	query := s.db.Rebind(`SELECT k.id, k.account_id, k.created_by, k.name, k.key_prefix, k.permissions,
		k.rate_limit, k.expires_at, k.is_active, k.last_used_at, k.request_count, k.created_at, k.updated_at,
		a.name AS account_name, a.is_active AS account_active
		FROM api_keys k JOIN accounts a ON a.id = k.account_id
		WHERE k.key_hash = ?`)
	if err := s.db.GetContext(ctx, &row, query, hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key by hash: %w", err)
	}
	rec, err := row.keyRow.toModel()
	if err != nil {
		return nil, err
	}
	return &KeyCredential{Key: rec, AccountName: row.AccountName, AccountActive: row.AccountActive}, nil
}

// APIKeyHash returns the stored hash of a key owned by accountID. Callers use
// it to invalidate cached resolutions; it is never sent to clients.
func (s *Store) APIKeyHash(ctx context.Context, id, accountID int64) (string, error) {
	var hash string
	query := s.db.Rebind("SELECT key_hash FROM api_keys WHERE id = ? AND account_id = ?")
	if err := s.db.GetContext(ctx, &hash, query, id, accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get api key hash: %w", err)
	}
	return hash, nil
}

// UpdateAPIKey applies the non-nil fields of u and returns the updated record.
func (s *Store) UpdateAPIKey(ctx context.Context, id, accountID int64, u model.KeyUpdate) (*model.KeyRecord, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if u.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *u.Name)
	}
	if u.Permissions != nil {
		perms, err := encodePermissions(*u.Permissions)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "permissions = ?")
		args = append(args, perms)
	}
	if u.RateLimit != nil {
		sets = append(sets, "rate_limit = ?")
		args = append(args, *u.RateLimit)
	}
	switch {
	case u.ClearExpiry:
		sets = append(sets, "expires_at = NULL")
	case u.ExpiresAt != nil:
		sets = append(sets, "expires_at = ?")
		args = append(args, u.ExpiresAt.UTC())
	}
	if u.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *u.IsActive)
	}

	args = append(args, id, accountID)
	query := s.db.Rebind("UPDATE api_keys SET " + strings.Join(sets, ", ") + " WHERE id = ? AND account_id = ?")
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update api key: %w", err)
	}
	if err := requireRows(result, "update api key"); err != nil {
		return nil, err
	}
	return s.GetAPIKey(ctx, id, accountID)
}

// RevokeAPIKey marks a key inactive. History and windows are kept.
func (s *Store) RevokeAPIKey(ctx context.Context, id, accountID int64) error {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE api_keys SET is_active = ?, updated_at = ? WHERE id = ? AND account_id = ?"),
		false, time.Now().UTC(), id, accountID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	return requireRows(result, "revoke api key")
}

// DeleteAPIKey hard-deletes a key and, by cascade, its windows and usage
// history. It reports whether a row was removed.
func (s *Store) DeleteAPIKey(ctx context.Context, id, accountID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("DELETE FROM api_keys WHERE id = ? AND account_id = ?"), id, accountID)
	if err != nil {
		return false, fmt.Errorf("delete api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete api key rows affected: %w", err)
	}
	return n > 0, nil
}

// RotateAPIKey revokes key id and inserts its replacement in one
// transaction, so a failed insert leaves the old key usable.
func (s *Store) RotateAPIKey(ctx context.Context, id, accountID int64, replacement NewKey) (*model.KeyRecord, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		tx.Rebind("UPDATE api_keys SET is_active = ?, updated_at = ? WHERE id = ? AND account_id = ?"),
		false, time.Now().UTC(), id, accountID)
	if err != nil {
		return nil, fmt.Errorf("revoke rotated key: %w", err)
	}
	if err := requireRows(result, "revoke rotated key"); err != nil {
		return nil, err
	}

	rec, err := s.createAPIKey(ctx, tx, replacement)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit rotate: %w", err)
	}
	return rec, nil
}

// TouchAPIKey records a successful use of the key.
func (s *Store) TouchAPIKey(ctx context.Context, id int64, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE api_keys SET last_used_at = ?, request_count = request_count + 1 WHERE id = ?"),
		at.UTC(), id)
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return requireRows(result, "touch api key")
}

func requireRows(result sql.Result, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
