// Package team holds the tenant boundary entity. Every scoped entity in
// the system references exactly one team.
package team

import (
	"fmt"
	"time"

	"github.com/vexguard/api/pkg/domain/shared"
)

// ID is a type alias for shared.ID.
type ID = shared.ID

// Team is the tenant boundary. Deleting a team cascades to everything
// scoped under it.
type Team struct {
	id        ID
	name      string
	slug      string
	createdAt time.Time
	updatedAt time.Time
}

// NewTeam creates a new team.
func NewTeam(id ID, name, slug string) (*Team, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: team name is required", shared.ErrValidation)
	}
	if slug == "" {
		return nil, fmt.Errorf("%w: team slug is required", shared.ErrValidation)
	}
	now := time.Now()
	return &Team{
		id:        id,
		name:      name,
		slug:      slug,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// Reconstruct creates a Team from stored data.
func Reconstruct(id ID, name, slug string, createdAt, updatedAt time.Time) *Team {
	return &Team{
		id:        id,
		name:      name,
		slug:      slug,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

func (t *Team) ID() ID               { return t.id }
func (t *Team) Name() string         { return t.name }
func (t *Team) Slug() string         { return t.slug }
func (t *Team) CreatedAt() time.Time { return t.createdAt }
func (t *Team) UpdatedAt() time.Time { return t.updatedAt }

// Rename changes the team's display name.
func (t *Team) Rename(name string) error {
	if name == "" {
		return fmt.Errorf("%w: team name is required", shared.ErrValidation)
	}
	t.name = name
	t.updatedAt = time.Now()
	return nil
}

var (
	ErrTeamNotFound   = fmt.Errorf("%w: team not found", shared.ErrNotFound)
	ErrTeamSlugExists = fmt.Errorf("%w: team slug already exists", shared.ErrAlreadyExists)
)
