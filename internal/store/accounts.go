package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leadrelay/keygate/internal/model"
)

// ---------------------------------------------------------------------------
// Accounts
// ---------------------------------------------------------------------------

// CreateAccount inserts a tenant. ID and CreatedAt are populated after insert.
func (s *Store) CreateAccount(ctx context.Context, acct *model.Account) error {
	acct.CreatedAt = time.Now().UTC()
	id, err := s.dialect.insertReturningID(ctx, s.db, "accounts",
		[]string{"name", "is_active", "created_at"},
		acct.Name, acct.IsActive, acct.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	acct.ID = id
	return nil
}

// GetAccount returns a single account by id.
func (s *Store) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	var acct model.Account
	err := s.db.GetContext(ctx, &acct,
		s.db.Rebind("SELECT id, name, is_active, created_at FROM accounts WHERE id = ?"), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	acct.CreatedAt = acct.CreatedAt.UTC()
	return &acct, nil
}

// ListAccounts returns all accounts ordered by id.
func (s *Store) ListAccounts(ctx context.Context) ([]model.Account, error) {
	var accts []model.Account
	if err := s.db.SelectContext(ctx, &accts,
		"SELECT id, name, is_active, created_at FROM accounts ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accts, nil
}

// SetAccountActive activates or deactivates an account. Keys of an inactive
// account fail validation without being revoked individually.
func (s *Store) SetAccountActive(ctx context.Context, id int64, active bool) error {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE accounts SET is_active = ? WHERE id = ?"), active, id)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return requireRows(result, "update account")
}

// ListAPIKeyHashes returns the hashes of every key owned by an account, for
// cache invalidation when the account's state changes.
func (s *Store) ListAPIKeyHashes(ctx context.Context, accountID int64) ([]string, error) {
	var hashes []string
	if err := s.db.SelectContext(ctx, &hashes,
		s.db.Rebind("SELECT key_hash FROM api_keys WHERE account_id = ?"), accountID); err != nil {
		return nil, fmt.Errorf("list api key hashes: %w", err)
	}
	return hashes, nil
}
