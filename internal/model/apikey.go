package model

import "time"

// SecretTag is the literal prefix carried by every issued secret.
const SecretTag = "lr_live_"

// KeyRecord is the masked view of an API key. It has no field that can hold
// the plaintext secret or its hash, so it is safe to return from any listing.
type KeyRecord struct {
	ID           int64      `json:"id"`
	AccountID    int64      `json:"account_id"`
	CreatedBy    int64      `json:"created_by"`
	Name         string     `json:"name"`
	KeyPrefix    string     `json:"key_prefix"` // First 12 chars for identification
	Permissions  []string   `json:"permissions"`
	RateLimit    int        `json:"rate_limit"`
	IsActive     bool       `json:"is_active"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	RequestCount int64      `json:"request_count"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Preview returns the display form of the key, e.g. "lr_live_AbCd...".
func (k KeyRecord) Preview() string {
	return k.KeyPrefix + "..."
}

// Expired reports whether the key has an expiry at or before now.
func (k KeyRecord) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

// CreatedKeySecret is returned exactly once, when a key is issued or
// regenerated. Secret is the only copy of the plaintext credential.
type CreatedKeySecret struct {
	KeyRecord
	Secret string `json:"key"`
}

// Account is the tenant that owns API keys.
type Account struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// KeyContext is the authorization context attached to a request once the
// gateway has accepted its API key.
type KeyContext struct {
	KeyID       int64    `json:"key_id"`
	KeyName     string   `json:"key_name"`
	AccountID   int64    `json:"account_id"`
	AccountName string   `json:"account_name"`
	Permissions []string `json:"permissions"`
	RateLimit   int      `json:"rate_limit"`
}

// KeyUpdate is a partial update. Nil fields are left untouched; ClearExpiry
// removes an existing expiry and wins over ExpiresAt.
type KeyUpdate struct {
	Name        *string    `json:"name,omitempty"`
	Permissions *[]string  `json:"permissions,omitempty"`
	RateLimit   *int       `json:"rate_limit,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ClearExpiry bool       `json:"clear_expiry,omitempty"`
	IsActive    *bool      `json:"is_active,omitempty"`
}

// Empty reports whether the update would change nothing.
func (u KeyUpdate) Empty() bool {
	return u.Name == nil && u.Permissions == nil && u.RateLimit == nil &&
		u.ExpiresAt == nil && !u.ClearExpiry && u.IsActive == nil
}
