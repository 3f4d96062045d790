// Package cache provides verdict caching for token validation.
//
// Caching reduces the number of round trips to the auth service. Entries are
// keyed by a non-reversible digest of the raw token, never the token itself,
// so credentials do not leak through memory dumps or logs. The package
// provides pluggable backends (memory, Redis) through the Cache interface.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Cache stores token validation verdicts with TTL-based expiry.
// Implementations must be safe for concurrent use; the last writer for a
// given key wins.
type Cache interface {
	// Get retrieves a cached verdict.
	// Returns nil if the verdict doesn't exist or has expired.
	Get(ctx context.Context, key string) (*Verdict, error)

	// Set stores a verdict in the cache with the given TTL.
	Set(ctx context.Context, key string, verdict *Verdict, ttl time.Duration) error

	// Delete removes a verdict from the cache.
	Delete(ctx context.Context, key string) error

	// Close closes the cache and releases resources.
	Close() error
}

// Verdict is a cached token validation outcome. Negative verdicts carry only
// Valid=false; positive verdicts carry the user claims needed to rebuild a
// user context without a remote call.
type Verdict struct {
	// Valid reports whether the auth service accepted the token.
	Valid bool `json:"valid"`

	// UserID is the authenticated user (positive verdicts only).
	UserID uuid.UUID `json:"user_id,omitempty"`

	// TenantID is the user's tenant (positive verdicts only).
	TenantID uuid.UUID `json:"tenant_id,omitempty"`

	// Permissions are the granted permission tokens.
	Permissions []string `json:"permissions,omitempty"`

	// RateLimit is the user's requests-per-hour quota.
	RateLimit int `json:"rate_limit,omitempty"`

	// ExpiresAt is when this verdict must no longer be consulted.
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired checks if the verdict has expired.
func (v *Verdict) IsExpired() bool {
	return time.Now().After(v.ExpiresAt)
}

// Key derives the cache key for a raw token: the hex-encoded SHA-256 digest.
func Key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
