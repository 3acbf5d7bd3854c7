// Package apikey holds the IDE API key entity. Keys are opaque tokens;
// only a SHA-256 hash and a short display prefix are ever stored.
package apikey

import (
	"fmt"
	"time"

	"github.com/vexguard/api/pkg/domain/shared"
)

// ID is a type alias for shared.ID.
type ID = shared.ID

// PrefixDisplayLen is how many leading characters of the raw key are kept
// for identification in listings.
const PrefixDisplayLen = 12

// APIKey authenticates IDE clients for a team.
type APIKey struct {
	id         ID
	teamID     ID
	name       string
	keyHash    string // hex SHA-256 of the full raw key
	keyPrefix  string // first PrefixDisplayLen chars, display only
	isActive   bool
	expiresAt  *time.Time
	lastUsedAt *time.Time
	revokedAt  *time.Time
	createdAt  time.Time
	updatedAt  time.Time
}

// NewAPIKey creates an active key record from a freshly generated key.
func NewAPIKey(id, teamID ID, name, keyHash, keyPrefix string, expiresAt *time.Time) (*APIKey, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: key name is required", shared.ErrValidation)
	}
	if keyHash == "" {
		return nil, fmt.Errorf("%w: key hash is required", shared.ErrValidation)
	}
	now := time.Now()
	return &APIKey{
		id:        id,
		teamID:    teamID,
		name:      name,
		keyHash:   keyHash,
		keyPrefix: keyPrefix,
		isActive:  true,
		expiresAt: expiresAt,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// Reconstruct creates an APIKey from stored data.
func Reconstruct(
	id, teamID ID,
	name, keyHash, keyPrefix string,
	isActive bool,
	expiresAt, lastUsedAt, revokedAt *time.Time,
	createdAt, updatedAt time.Time,
) *APIKey {
	return &APIKey{
		id:         id,
		teamID:     teamID,
		name:       name,
		keyHash:    keyHash,
		keyPrefix:  keyPrefix,
		isActive:   isActive,
		expiresAt:  expiresAt,
		lastUsedAt: lastUsedAt,
		revokedAt:  revokedAt,
		createdAt:  createdAt,
		updatedAt:  updatedAt,
	}
}

func (k *APIKey) ID() ID                 { return k.id }
func (k *APIKey) TeamID() ID             { return k.teamID }
func (k *APIKey) Name() string           { return k.name }
func (k *APIKey) KeyHash() string        { return k.keyHash }
func (k *APIKey) KeyPrefix() string      { return k.keyPrefix }
func (k *APIKey) IsActive() bool         { return k.isActive }
func (k *APIKey) ExpiresAt() *time.Time  { return k.expiresAt }
func (k *APIKey) LastUsedAt() *time.Time { return k.lastUsedAt }
func (k *APIKey) RevokedAt() *time.Time  { return k.revokedAt }
func (k *APIKey) CreatedAt() time.Time   { return k.createdAt }
func (k *APIKey) UpdatedAt() time.Time   { return k.updatedAt }

// IsExpired reports whether the key's expiry, if any, has passed.
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.expiresAt != nil && k.expiresAt.Before(now)
}

// Revoke disables the key. Idempotent: re-revoking keeps the first
// revoked_at.
func (k *APIKey) Revoke() {
	if k.revokedAt != nil {
		k.isActive = false
		return
	}
	now := time.Now()
	k.isActive = false
	k.revokedAt = &now
	k.updatedAt = now
}

// TouchLastUsed records a successful authentication. Best effort; the
// caller ignores persistence errors.
func (k *APIKey) TouchLastUsed(now time.Time) {
	k.lastUsedAt = &now
}

var (
	ErrAPIKeyNotFound = fmt.Errorf("%w: api key not found", shared.ErrNotFound)
	ErrAPIKeyExpired  = fmt.Errorf("%w: api key has expired", shared.ErrUnauthorized)
	ErrAPIKeyDisabled = fmt.Errorf("%w: api key is disabled", shared.ErrForbidden)
)
