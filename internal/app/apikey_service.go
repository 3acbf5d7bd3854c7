package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vexguard/api/pkg/crypto"
	"github.com/vexguard/api/pkg/domain/apikey"
	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/logger"
)

// APIKeyService issues, authenticates, and revokes IDE API keys. Only
// the SHA-256 digest of a key is ever stored; the raw key crosses the
// wire exactly once, in the create response.
type APIKeyService struct {
	repo   apikey.Repository
	logger *logger.Logger
}

// NewAPIKeyService creates a new APIKeyService.
func NewAPIKeyService(repo apikey.Repository, log *logger.Logger) *APIKeyService {
	return &APIKeyService{
		repo:   repo,
		logger: log.With("service", "apikey"),
	}
}

// CreateAPIKeyInput represents input for creating an API key.
type CreateAPIKeyInput struct {
	TeamID        string `json:"team_id" validate:"required,uuid"`
	Name          string `json:"name" validate:"required,min=1,max=255"`
	ExpiresInDays int    `json:"expires_in_days" validate:"min=0,max=3650"`
}

// CreateAPIKeyResult holds the created key and its raw form, shown only
// once.
type CreateAPIKeyResult struct {
	Key    *apikey.APIKey
	RawKey string
}

// CreateAPIKey generates and stores a new API key.
func (s *APIKeyService) CreateAPIKey(ctx context.Context, input CreateAPIKeyInput) (*CreateAPIKeyResult, error) {
	teamID, err := shared.IDFromString(input.TeamID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid team ID", shared.ErrValidation)
	}

	raw, hash, err := crypto.GenerateAPIKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	var expiresAt *time.Time
	if input.ExpiresInDays > 0 {
		t := time.Now().AddDate(0, 0, input.ExpiresInDays)
		expiresAt = &t
	}

	key, err := apikey.NewAPIKey(
		shared.NewID(),
		teamID,
		input.Name,
		hash,
		raw[:apikey.PrefixDisplayLen],
		expiresAt,
	)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, key); err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}

	s.logger.Info("api key created",
		"key_id", key.ID().String(),
		"team_id", input.TeamID,
		"name", input.Name,
	)
	return &CreateAPIKeyResult{Key: key, RawKey: raw}, nil
}

// Authenticate resolves a raw key to its record. Revoked keys fail with
// ErrAPIKeyDisabled, expired keys with ErrAPIKeyExpired. On success
// last_used_at is updated best effort.
func (s *APIKeyService) Authenticate(ctx context.Context, rawKey string) (*apikey.APIKey, error) {
	if !strings.HasPrefix(rawKey, crypto.APIKeyPrefix) {
		return nil, apikey.ErrAPIKeyNotFound
	}

	key, err := s.repo.GetByHash(ctx, crypto.HashAPIKey(rawKey))
	if err != nil {
		return nil, err
	}

	if !key.IsActive() {
		return nil, apikey.ErrAPIKeyDisabled
	}
	if key.IsExpired(time.Now()) {
		return nil, apikey.ErrAPIKeyExpired
	}

	key.TouchLastUsed(time.Now())
	if err := s.repo.UpdateLastUsed(ctx, key); err != nil {
		s.logger.Debug("failed to update last_used_at", "key_id", key.ID().String(), "error", err)
	}
	return key, nil
}

// RevokeAPIKey disables a key. Revoking an already revoked key succeeds.
func (s *APIKeyService) RevokeAPIKey(ctx context.Context, keyID, teamID string) error {
	id, err := shared.IDFromString(keyID)
	if err != nil {
		return fmt.Errorf("%w: invalid key ID", shared.ErrValidation)
	}
	tid, err := shared.IDFromString(teamID)
	if err != nil {
		return fmt.Errorf("%w: invalid team ID", shared.ErrValidation)
	}

	key, err := s.repo.GetByID(ctx, id, tid)
	if err != nil {
		return err
	}

	key.Revoke()
	if err := s.repo.Update(ctx, key); err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}

	s.logger.Info("api key revoked", "key_id", keyID, "team_id", teamID)
	return nil
}

// ListAPIKeys returns the team's non-revoked keys.
func (s *APIKeyService) ListAPIKeys(ctx context.Context, teamID string) ([]*apikey.APIKey, error) {
	tid, err := shared.IDFromString(teamID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid team ID", shared.ErrValidation)
	}
	return s.repo.ListActive(ctx, tid)
}
