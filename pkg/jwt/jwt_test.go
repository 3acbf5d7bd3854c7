package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGenerator() *Generator {
	return NewGenerator(Config{
		Secret:   "test-secret-test-secret-test-secret!",
		Issuer:   "vexguard-test",
		Duration: time.Hour,
	})
}

func TestGenerateAndValidate(t *testing.T) {
	gen := testGenerator()

	token, expiresAt, err := gen.Generate("user-1", "dev@example.com", "Dev", []TeamMembership{
		{TeamID: "team-a", Role: "owner"},
		{TeamID: "team-b", Role: "viewer"},
	})
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := gen.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "dev@example.com", claims.Email)
	assert.True(t, claims.HasTeamAccess("team-a"))
	assert.True(t, claims.HasTeamAccess("team-b"))
	assert.False(t, claims.HasTeamAccess("team-c"))
}

func TestGenerateEmptyUserID(t *testing.T) {
	_, _, err := testGenerator().Generate("", "dev@example.com", "Dev", nil)
	assert.ErrorIs(t, err, ErrEmptyUserID)
}

func TestValidateWrongSecret(t *testing.T) {
	token, _, err := testGenerator().Generate("user-1", "dev@example.com", "Dev", nil)
	require.NoError(t, err)

	other := NewGenerator(Config{Secret: "a completely different secret value", Issuer: "vexguard-test", Duration: time.Hour})
	_, err = other.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateGarbage(t *testing.T) {
	_, err := testGenerator().Validate("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTeamRoleHierarchy(t *testing.T) {
	claims := &Claims{Teams: []TeamMembership{{TeamID: "team-a", Role: "admin"}}}

	assert.Equal(t, "admin", claims.TeamRole("team-a"))
	assert.True(t, claims.HasTeamRole("team-a", "member"))
	assert.True(t, claims.HasTeamRole("team-a", "admin"))
	assert.False(t, claims.HasTeamRole("team-a", "owner"))
	assert.False(t, claims.HasTeamRole("team-b", "viewer"))
}
