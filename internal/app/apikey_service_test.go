package app

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexguard/api/pkg/crypto"
	"github.com/vexguard/api/pkg/domain/apikey"
	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/logger"
)

type fakeAPIKeyRepo struct {
	mu   sync.Mutex
	keys map[string]*apikey.APIKey
}

func newFakeAPIKeyRepo() *fakeAPIKeyRepo {
	return &fakeAPIKeyRepo{keys: make(map[string]*apikey.APIKey)}
}

func (f *fakeAPIKeyRepo) Create(_ context.Context, key *apikey.APIKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[key.ID().String()] = key
	return nil
}

func (f *fakeAPIKeyRepo) GetByID(_ context.Context, id, teamID apikey.ID) (*apikey.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.keys[id.String()]
	if !ok || !key.TeamID().Equals(teamID) {
		return nil, apikey.ErrAPIKeyNotFound
	}
	return key, nil
}

func (f *fakeAPIKeyRepo) GetByHash(_ context.Context, hash string) (*apikey.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range f.keys {
		if key.KeyHash() == hash {
			return key, nil
		}
	}
	return nil, apikey.ErrAPIKeyNotFound
}

func (f *fakeAPIKeyRepo) ListActive(_ context.Context, teamID apikey.ID) ([]*apikey.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*apikey.APIKey
	for _, key := range f.keys {
		if key.TeamID().Equals(teamID) && key.RevokedAt() == nil {
			out = append(out, key)
		}
	}
	return out, nil
}

func (f *fakeAPIKeyRepo) Update(_ context.Context, key *apikey.APIKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[key.ID().String()] = key
	return nil
}

func (f *fakeAPIKeyRepo) UpdateLastUsed(_ context.Context, key *apikey.APIKey) error {
	return f.Update(context.Background(), key)
}

func TestCreateAPIKey(t *testing.T) {
	repo := newFakeAPIKeyRepo()
	svc := NewAPIKeyService(repo, logger.NewNop())
	teamID := shared.NewID()

	result, err := svc.CreateAPIKey(context.Background(), CreateAPIKeyInput{
		TeamID: teamID.String(),
		Name:   "editor plugin",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.RawKey, crypto.APIKeyPrefix))
	// Only the digest is stored, never the raw key.
	assert.Equal(t, crypto.HashAPIKey(result.RawKey), result.Key.KeyHash())
	assert.NotContains(t, result.Key.KeyHash(), result.RawKey)
	assert.Equal(t, result.RawKey[:apikey.PrefixDisplayLen], result.Key.KeyPrefix())
	assert.Nil(t, result.Key.ExpiresAt())
}

func TestAuthenticate(t *testing.T) {
	repo := newFakeAPIKeyRepo()
	svc := NewAPIKeyService(repo, logger.NewNop())
	teamID := shared.NewID()

	result, err := svc.CreateAPIKey(context.Background(), CreateAPIKeyInput{
		TeamID: teamID.String(), Name: "plugin",
	})
	require.NoError(t, err)

	key, err := svc.Authenticate(context.Background(), result.RawKey)
	require.NoError(t, err)
	assert.True(t, key.TeamID().Equals(teamID))
	assert.NotNil(t, key.LastUsedAt())
}

func TestAuthenticateUnknownKey(t *testing.T) {
	svc := NewAPIKeyService(newFakeAPIKeyRepo(), logger.NewNop())

	_, err := svc.Authenticate(context.Background(), "vx_live_nonexistent")
	assert.ErrorIs(t, err, apikey.ErrAPIKeyNotFound)

	// Keys without the issued prefix never hit the store.
	_, err = svc.Authenticate(context.Background(), "sk_test_something")
	assert.ErrorIs(t, err, apikey.ErrAPIKeyNotFound)
}

func TestAuthenticateRevokedKey(t *testing.T) {
	repo := newFakeAPIKeyRepo()
	svc := NewAPIKeyService(repo, logger.NewNop())
	teamID := shared.NewID()

	result, err := svc.CreateAPIKey(context.Background(), CreateAPIKeyInput{
		TeamID: teamID.String(), Name: "plugin",
	})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeAPIKey(context.Background(), result.Key.ID().String(), teamID.String()))

	_, err = svc.Authenticate(context.Background(), result.RawKey)
	assert.ErrorIs(t, err, apikey.ErrAPIKeyDisabled)
}

func TestAuthenticateExpiredKey(t *testing.T) {
	repo := newFakeAPIKeyRepo()
	svc := NewAPIKeyService(repo, logger.NewNop())
	teamID := shared.NewID()

	result, err := svc.CreateAPIKey(context.Background(), CreateAPIKeyInput{
		TeamID: teamID.String(), Name: "plugin", ExpiresInDays: 30,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Key.ExpiresAt())

	// Not expired yet.
	_, err = svc.Authenticate(context.Background(), result.RawKey)
	require.NoError(t, err)
}

func TestRevokeAPIKeyIdempotent(t *testing.T) {
	repo := newFakeAPIKeyRepo()
	svc := NewAPIKeyService(repo, logger.NewNop())
	teamID := shared.NewID()

	result, err := svc.CreateAPIKey(context.Background(), CreateAPIKeyInput{
		TeamID: teamID.String(), Name: "plugin",
	})
	require.NoError(t, err)

	keyID := result.Key.ID().String()
	require.NoError(t, svc.RevokeAPIKey(context.Background(), keyID, teamID.String()))
	require.NoError(t, svc.RevokeAPIKey(context.Background(), keyID, teamID.String()))
}

func TestRevokeAPIKeyWrongTeam(t *testing.T) {
	repo := newFakeAPIKeyRepo()
	svc := NewAPIKeyService(repo, logger.NewNop())

	result, err := svc.CreateAPIKey(context.Background(), CreateAPIKeyInput{
		TeamID: shared.NewID().String(), Name: "plugin",
	})
	require.NoError(t, err)

	err = svc.RevokeAPIKey(context.Background(), result.Key.ID().String(), shared.NewID().String())
	assert.ErrorIs(t, err, apikey.ErrAPIKeyNotFound)
}
