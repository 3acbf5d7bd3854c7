// Package jwt validates and issues the HS256 user tokens that guard the
// management API. Login itself happens in an external identity service;
// this package only needs to agree on the claim shape and secret.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when the token fails verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
	// ErrEmptyUserID is returned when user_id is empty.
	ErrEmptyUserID = errors.New("user_id cannot be empty")
)

// TeamMembership is a user's membership in one team.
type TeamMembership struct {
	TeamID string `json:"team_id"`
	Role   string `json:"role"` // owner, admin, member, viewer
}

// Claims is the JWT claim set shared with the identity service.
type Claims struct {
	UserID string           `json:"id"`
	Email  string           `json:"email,omitempty"`
	Name   string           `json:"name,omitempty"`
	Teams  []TeamMembership `json:"teams,omitempty"`

	jwt.RegisteredClaims
}

// HasTeamAccess reports whether the user belongs to the given team.
func (c *Claims) HasTeamAccess(teamID string) bool {
	for _, t := range c.Teams {
		if t.TeamID == teamID {
			return true
		}
	}
	return false
}

// TeamRole returns the user's role in the given team, or "".
func (c *Claims) TeamRole(teamID string) string {
	for _, t := range c.Teams {
		if t.TeamID == teamID {
			return t.Role
		}
	}
	return ""
}

// roleLevels orders roles for HasTeamRole comparisons.
var roleLevels = map[string]int{
	"viewer": 1,
	"member": 2,
	"admin":  3,
	"owner":  4,
}

// HasTeamRole reports whether the user holds requiredRole or higher in the team.
func (c *Claims) HasTeamRole(teamID, requiredRole string) bool {
	role := c.TeamRole(teamID)
	if role == "" {
		return false
	}
	return roleLevels[role] >= roleLevels[requiredRole]
}

// Config holds token signing configuration.
type Config struct {
	Secret   string
	Issuer   string
	Duration time.Duration
}

// Generator signs and verifies tokens.
type Generator struct {
	config Config
}

// NewGenerator creates a token generator.
func NewGenerator(config Config) *Generator {
	return &Generator{config: config}
}

// Generate signs a token for the given user and memberships. Used by
// internal tooling and tests; production tokens come from the identity
// service with the same secret.
func (g *Generator) Generate(userID, email, name string, teams []TeamMembership) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, ErrEmptyUserID
	}

	now := time.Now()
	expiresAt := now.Add(g.config.Duration)

	claims := Claims{
		UserID: userID,
		Email:  email,
		Name:   name,
		Teams:  teams,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    g.config.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(g.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate verifies a token and returns its claims.
func (g *Generator) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(g.config.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
