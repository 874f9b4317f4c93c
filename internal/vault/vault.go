// Package vault holds scan credentials for the short window between scan
// start and scan execution. Credentials are never written to the scan store.
package vault

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
)

// DefaultTTL is how long a stored credential stays retrievable.
const DefaultTTL = 900 * time.Second

// Vault stores credentials under opaque keys with an expiry. Retrieve
// reports ok=false for unknown, revoked and expired keys alike.
type Vault interface {
	Store(ctx context.Context, cred models.Credential, ttl time.Duration) (string, error)
	Retrieve(ctx context.Context, key string) (*models.Credential, bool, error)
	Revoke(ctx context.Context, key string) error
}

type entry struct {
	Credential models.Credential `json:"credential"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

func (e entry) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// newKey returns 16 random bytes, URL-safe base64 encoded.
func newKey() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate vault key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
