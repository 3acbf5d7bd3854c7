package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vexguard/api/pkg/domain/apikey"
	"github.com/vexguard/api/pkg/domain/shared"
)

// APIKeyRepository is the PostgreSQL implementation of apikey.Repository.
type APIKeyRepository struct {
	db *DB
}

// NewAPIKeyRepository creates a new APIKeyRepository.
func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

var _ apikey.Repository = (*APIKeyRepository)(nil)

const apiKeyColumns = `id, team_id, name, key_hash, key_prefix, is_active,
	expires_at, last_used_at, revoked_at, created_at, updated_at`

// Create inserts a new API key.
func (r *APIKeyRepository) Create(ctx context.Context, key *apikey.APIKey) error {
	query := `
		INSERT INTO api_keys (
			id, team_id, name, key_hash, key_prefix, is_active,
			expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		key.ID().String(),
		key.TeamID().String(),
		key.Name(),
		key.KeyHash(),
		key.KeyPrefix(),
		key.IsActive(),
		nullTime(key.ExpiresAt()),
		key.CreatedAt(),
		key.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// GetByID retrieves a key by id scoped to a team.
func (r *APIKeyRepository) GetByID(ctx context.Context, id, teamID apikey.ID) (*apikey.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1 AND team_id = $2`
	row := r.db.QueryRowContext(ctx, query, id.String(), teamID.String())
	return scanAPIKey(row)
}

// GetByHash retrieves a key by its SHA-256 hash. The unique index on
// key_hash makes this the O(1) authentication lookup.
func (r *APIKeyRepository) GetByHash(ctx context.Context, hash string) (*apikey.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_hash = $1`
	row := r.db.QueryRowContext(ctx, query, hash)
	return scanAPIKey(row)
}

// ListActive returns non-revoked keys for a team, newest first.
func (r *APIKeyRepository) ListActive(ctx context.Context, teamID apikey.ID) ([]*apikey.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE team_id = $1 AND revoked_at IS NULL
		ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, teamID.String())
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	keys := make([]*apikey.APIKey, 0)
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Update persists mutable key fields.
func (r *APIKeyRepository) Update(ctx context.Context, key *apikey.APIKey) error {
	query := `
		UPDATE api_keys
		SET name = $2, is_active = $3, expires_at = $4, revoked_at = $5, updated_at = $6
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		key.ID().String(),
		key.Name(),
		key.IsActive(),
		nullTime(key.ExpiresAt()),
		nullTime(key.RevokedAt()),
		key.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("update api key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apikey.ErrAPIKeyNotFound
	}
	return nil
}

// UpdateLastUsed writes last_used_at only. Kept separate from Update so
// the hot authentication path does not touch updated_at.
func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, key *apikey.APIKey) error {
	query := `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, key.ID().String(), nullTime(key.LastUsedAt()))
	if err != nil {
		return fmt.Errorf("update api key last_used_at: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAPIKey(row rowScanner) (*apikey.APIKey, error) {
	var (
		idStr, teamIDStr                 string
		name, keyHash, keyPrefix         string
		isActive                         bool
		expiresAt, lastUsedAt, revokedAt sql.NullTime
		createdAt, updatedAt             sql.NullTime
	)

	err := row.Scan(&idStr, &teamIDStr, &name, &keyHash, &keyPrefix, &isActive,
		&expiresAt, &lastUsedAt, &revokedAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apikey.ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("scan api key: %w", err)
	}

	id, err := shared.IDFromString(idStr)
	if err != nil {
		return nil, fmt.Errorf("scan api key id: %w", err)
	}
	teamID, err := shared.IDFromString(teamIDStr)
	if err != nil {
		return nil, fmt.Errorf("scan api key team_id: %w", err)
	}

	return apikey.Reconstruct(
		id, teamID,
		name, keyHash, keyPrefix,
		isActive,
		nullTimeValue(expiresAt), nullTimeValue(lastUsedAt), nullTimeValue(revokedAt),
		createdAt.Time, updatedAt.Time,
	), nil
}
