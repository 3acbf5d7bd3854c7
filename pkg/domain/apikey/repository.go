package apikey

import "context"

// Repository defines API key persistence. GetByHash is the hot path of
// every IDE request and is backed by the unique key_hash index.
type Repository interface {
	Create(ctx context.Context, key *APIKey) error
	GetByID(ctx context.Context, id, teamID ID) (*APIKey, error)
	GetByHash(ctx context.Context, hash string) (*APIKey, error)
	// ListActive returns non-revoked keys for a team.
	ListActive(ctx context.Context, teamID ID) ([]*APIKey, error)
	Update(ctx context.Context, key *APIKey) error
	// UpdateLastUsed writes last_used_at without touching updated_at.
	UpdateLastUsed(ctx context.Context, key *APIKey) error
}
