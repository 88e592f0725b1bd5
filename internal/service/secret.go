package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/leadrelay/keygate/internal/model"
)

const (
	secretBytes = 32 // 256 bits of entropy
	// PrefixLen is how much of the plaintext is kept for display.
	PrefixLen = 12
)

// Secret is a freshly generated credential. Full must be handed to the
// caller once and then dropped; only Prefix and Hash are persisted.
type Secret struct {
	Full   string
	Prefix string
	Hash   string
}

// GenerateSecret returns a new random secret of the form lr_live_<base64url>.
func GenerateSecret() (Secret, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return Secret{}, fmt.Errorf("generate secret: %w", err)
	}
	full := model.SecretTag + base64.RawURLEncoding.EncodeToString(b)
	return Secret{
		Full:   full,
		Prefix: full[:PrefixLen],
		Hash:   HashSecret(full),
	}, nil
}

// HashSecret returns the hex-encoded SHA-256 of a presented secret. Lookups
// compare hashes, never plaintext.
func HashSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}
