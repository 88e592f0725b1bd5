package service

import (
	"context"
	"time"

	"github.com/leadrelay/keygate/internal/model"
	"github.com/leadrelay/keygate/internal/store"
)

// KeyStore is the persistence contract the KeyManager depends on.
type KeyStore interface {
	CreateAPIKey(ctx context.Context, k store.NewKey) (*model.KeyRecord, error)
	GetAPIKey(ctx context.Context, id, accountID int64) (*model.KeyRecord, error)
	ListAPIKeys(ctx context.Context, accountID int64) ([]model.KeyRecord, error)
	GetCredentialByHash(ctx context.Context, hash string) (*store.KeyCredential, error)
	APIKeyHash(ctx context.Context, id, accountID int64) (string, error)
	ListAPIKeyHashes(ctx context.Context, accountID int64) ([]string, error)
	UpdateAPIKey(ctx context.Context, id, accountID int64, u model.KeyUpdate) (*model.KeyRecord, error)
	RevokeAPIKey(ctx context.Context, id, accountID int64) error
	DeleteAPIKey(ctx context.Context, id, accountID int64) (bool, error)
	RotateAPIKey(ctx context.Context, id, accountID int64, replacement store.NewKey) (*model.KeyRecord, error)
	TouchAPIKey(ctx context.Context, id int64, at time.Time) error
	SetAccountActive(ctx context.Context, id int64, active bool) error
}

// WindowStore is the persistence contract of the RateLimiter.
type WindowStore interface {
	IncrementWindow(ctx context.Context, keyID int64, windowStart time.Time) (int64, error)
	WindowCount(ctx context.Context, keyID int64, windowStart time.Time) (int64, error)
	DeleteWindowsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// UsageStore is the persistence contract of the UsageRecorder.
type UsageStore interface {
	InsertUsage(ctx context.Context, e *model.UsageLogEntry) error
	DailyUsage(ctx context.Context, keyID int64, since time.Time) ([]model.DailyUsage, error)
	EndpointUsage(ctx context.Context, keyID int64, since time.Time, limit int) ([]model.EndpointUsage, error)
	DeleteUsageBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Clock returns the current time. Services take one so tests can cross
// window and expiry boundaries deterministically.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time { return time.Now().UTC() }

var (
	_ KeyStore    = (*store.Store)(nil)
	_ WindowStore = (*store.Store)(nil)
	_ UsageStore  = (*store.Store)(nil)
)
