package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/leadrelay/keygate/internal/model"
	"github.com/leadrelay/keygate/internal/store"
)

// ErrInvalidKey covers every reason a presented secret is refused: unknown,
// revoked, expired, or owned by an inactive account. The reason is appended
// for server logs but callers only ever branch on errors.Is.
var ErrInvalidKey = errors.New("invalid api key")

func invalidKey(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidKey, reason)
}

// KeyManager issues, resolves and administers API keys.
type KeyManager struct {
	store  KeyStore
	cache  KeyCache
	now    Clock
	logger *logrus.Logger
}

// KeyManagerOption configures a KeyManager.
type KeyManagerOption func(*KeyManager)

// WithKeyCache enables read-through caching of key resolutions.
func WithKeyCache(c KeyCache) KeyManagerOption {
	return func(m *KeyManager) {
		if c != nil {
			m.cache = c
		}
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(c Clock) KeyManagerOption {
	return func(m *KeyManager) { m.now = c }
}

// NewKeyManager creates a KeyManager backed by the given store.
func NewKeyManager(s KeyStore, logger *logrus.Logger, opts ...KeyManagerOption) *KeyManager {
	m := &KeyManager{store: s, cache: noopCache{}, now: SystemClock, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Now exposes the manager's clock to collaborators that must agree with it.
func (m *KeyManager) Now() time.Time { return m.now() }

// CreateKey validates the input, generates a secret and persists the key.
// The returned CreatedKeySecret is the only place the plaintext ever exists.
func (m *KeyManager) CreateKey(ctx context.Context, in CreateKeyInput) (*model.CreatedKeySecret, error) {
	if in.AccountID == 0 {
		return nil, errors.New("create key: account id is required")
	}
	in = in.withDefaults()
	if err := in.Validate(m.now()); err != nil {
		return nil, err
	}

	secret, err := GenerateSecret()
	if err != nil {
		return nil, err
	}
	rec, err := m.store.CreateAPIKey(ctx, store.NewKey{
		AccountID:   in.AccountID,
		CreatedBy:   in.CreatedBy,
		Name:        in.Name,
		KeyHash:     secret.Hash,
		KeyPrefix:   secret.Prefix,
		Permissions: in.Permissions,
		RateLimit:   in.RateLimit,
		ExpiresAt:   in.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("create key: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"key_id":     rec.ID,
		"key_prefix": rec.KeyPrefix,
		"account_id": rec.AccountID,
	}).Info("api key created")

	return &model.CreatedKeySecret{KeyRecord: *rec, Secret: secret.Full}, nil
}

// ListKeys returns the account's keys in masked form.
func (m *KeyManager) ListKeys(ctx context.Context, accountID int64) ([]model.KeyRecord, error) {
	return m.store.ListAPIKeys(ctx, accountID)
}

// GetKey returns one masked key, or store.ErrNotFound when the account does
// not own it.
func (m *KeyManager) GetKey(ctx context.Context, id, accountID int64) (*model.KeyRecord, error) {
	return m.store.GetAPIKey(ctx, id, accountID)
}

// UpdateKey applies a partial update after validating it.
func (m *KeyManager) UpdateKey(ctx context.Context, id, accountID int64, u model.KeyUpdate) (*model.KeyRecord, error) {
	if err := ValidateUpdate(u, m.now()); err != nil {
		return nil, err
	}
	hash, err := m.store.APIKeyHash(ctx, id, accountID)
	if err != nil {
		return nil, err
	}
	rec, err := m.store.UpdateAPIKey(ctx, id, accountID, u)
	if err != nil {
		return nil, err
	}
	m.invalidate(ctx, hash)
	return rec, nil
}

// RevokeKey deactivates a key without deleting its history.
func (m *KeyManager) RevokeKey(ctx context.Context, id, accountID int64) error {
	hash, err := m.store.APIKeyHash(ctx, id, accountID)
	if err != nil {
		return err
	}
	if err := m.store.RevokeAPIKey(ctx, id, accountID); err != nil {
		return err
	}
	m.invalidate(ctx, hash)
	m.logger.WithFields(logrus.Fields{"key_id": id, "account_id": accountID}).Info("api key revoked")
	return nil
}

// DeleteKey hard-deletes a key. It reports whether a row was removed; a key
// owned by another account is reported as not removed.
func (m *KeyManager) DeleteKey(ctx context.Context, id, accountID int64) (bool, error) {
	hash, err := m.store.APIKeyHash(ctx, id, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	deleted, err := m.store.DeleteAPIKey(ctx, id, accountID)
	if err != nil {
		return false, err
	}
	m.invalidate(ctx, hash)
	if deleted {
		m.logger.WithFields(logrus.Fields{"key_id": id, "account_id": accountID}).Info("api key deleted")
	}
	return deleted, nil
}

// RegenerateKey revokes a key and issues a replacement carrying the same
// name, permissions, rate limit and expiry.
func (m *KeyManager) RegenerateKey(ctx context.Context, id, accountID, createdBy int64) (*model.CreatedKeySecret, error) {
	old, err := m.store.GetAPIKey(ctx, id, accountID)
	if err != nil {
		return nil, err
	}
	hash, err := m.store.APIKeyHash(ctx, id, accountID)
	if err != nil {
		return nil, err
	}

	secret, err := GenerateSecret()
	if err != nil {
		return nil, err
	}
	if createdBy == 0 {
		createdBy = old.CreatedBy
	}
	rec, err := m.store.RotateAPIKey(ctx, id, accountID, store.NewKey{
		AccountID:   accountID,
		CreatedBy:   createdBy,
		Name:        old.Name,
		KeyHash:     secret.Hash,
		KeyPrefix:   secret.Prefix,
		Permissions: old.Permissions,
		RateLimit:   old.RateLimit,
		ExpiresAt:   old.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("regenerate key: %w", err)
	}
	m.invalidate(ctx, hash)

	m.logger.WithFields(logrus.Fields{
		"old_key_id": id,
		"key_id":     rec.ID,
		"key_prefix": rec.KeyPrefix,
		"account_id": accountID,
	}).Info("api key regenerated")

	return &model.CreatedKeySecret{KeyRecord: *rec, Secret: secret.Full}, nil
}

// SetAccountActive toggles an account and drops cached resolutions of all
// its keys so the change applies within the current request.
func (m *KeyManager) SetAccountActive(ctx context.Context, accountID int64, active bool) error {
	if err := m.store.SetAccountActive(ctx, accountID, active); err != nil {
		return err
	}
	hashes, err := m.store.ListAPIKeyHashes(ctx, accountID)
	if err != nil {
		return err
	}
	m.invalidate(ctx, hashes...)
	return nil
}

// ResolveKey maps a presented secret to its credential and validates it.
// Every refusal is an ErrInvalidKey; any other error is an internal failure.
func (m *KeyManager) ResolveKey(ctx context.Context, presented string) (*store.KeyCredential, error) {
	hash := HashSecret(presented)

	cred, err := m.lookup(ctx, hash)
	if errors.Is(err, store.ErrNotFound) {
		return nil, invalidKey("not found")
	}
	if err != nil {
		return nil, fmt.Errorf("resolve api key: %w", err)
	}

	switch {
	case !cred.Key.IsActive:
		return nil, invalidKey("revoked")
	case cred.Key.Expired(m.now()):
		return nil, invalidKey("expired")
	case !cred.AccountActive:
		return nil, invalidKey("account inactive")
	}
	return cred, nil
}

// TouchKey records a successful use of the key.
func (m *KeyManager) TouchKey(ctx context.Context, id int64) error {
	return m.store.TouchAPIKey(ctx, id, m.now())
}

func (m *KeyManager) lookup(ctx context.Context, hash string) (*store.KeyCredential, error) {
	if cred, ok, err := m.cache.Get(ctx, hash); err != nil {
		m.logger.WithError(err).Warn("key cache read failed, falling back to store")
	} else if ok {
		return cred, nil
	}

	cred, err := m.store.GetCredentialByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if err := m.cache.Set(ctx, hash, cred); err != nil {
		m.logger.WithError(err).Warn("key cache write failed")
	}
	return cred, nil
}

func (m *KeyManager) invalidate(ctx context.Context, hashes ...string) {
	if len(hashes) == 0 {
		return
	}
	if err := m.cache.Delete(ctx, hashes...); err != nil {
		m.logger.WithError(err).Warn("key cache invalidation failed; entries expire with their TTL")
	}
}
