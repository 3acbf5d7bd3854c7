package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/domain/team"
)

// TeamRepository is the PostgreSQL implementation of team.Repository.
type TeamRepository struct {
	db *DB
}

// NewTeamRepository creates a new TeamRepository.
func NewTeamRepository(db *DB) *TeamRepository {
	return &TeamRepository{db: db}
}

var _ team.Repository = (*TeamRepository)(nil)

// Create inserts a new team.
func (r *TeamRepository) Create(ctx context.Context, t *team.Team) error {
	query := `
		INSERT INTO teams (id, name, slug, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID().String(), t.Name(), t.Slug(), t.CreatedAt(), t.UpdatedAt())
	if err != nil {
		if isUniqueViolation(err) {
			return team.ErrTeamSlugExists
		}
		return fmt.Errorf("create team: %w", err)
	}
	return nil
}

// GetByID retrieves a team by id.
func (r *TeamRepository) GetByID(ctx context.Context, id team.ID) (*team.Team, error) {
	query := `SELECT id, name, slug, created_at, updated_at FROM teams WHERE id = $1`
	return scanTeam(r.db.QueryRowContext(ctx, query, id.String()))
}

// GetBySlug retrieves a team by slug.
func (r *TeamRepository) GetBySlug(ctx context.Context, slug string) (*team.Team, error) {
	query := `SELECT id, name, slug, created_at, updated_at FROM teams WHERE slug = $1`
	return scanTeam(r.db.QueryRowContext(ctx, query, slug))
}

// Update persists team changes.
func (r *TeamRepository) Update(ctx context.Context, t *team.Team) error {
	query := `UPDATE teams SET name = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, t.ID().String(), t.Name(), t.UpdatedAt())
	if err != nil {
		return fmt.Errorf("update team: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return team.ErrTeamNotFound
	}
	return nil
}

// Delete removes the team. Scoped entities cascade via foreign keys.
func (r *TeamRepository) Delete(ctx context.Context, id team.ID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM teams WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("delete team: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return team.ErrTeamNotFound
	}
	return nil
}

func scanTeam(row rowScanner) (*team.Team, error) {
	var (
		idStr, name, slug    string
		createdAt, updatedAt sql.NullTime
	)
	if err := row.Scan(&idStr, &name, &slug, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, team.ErrTeamNotFound
		}
		return nil, fmt.Errorf("scan team: %w", err)
	}
	id, err := shared.IDFromString(idStr)
	if err != nil {
		return nil, fmt.Errorf("scan team id: %w", err)
	}
	return team.Reconstruct(id, name, slug, createdAt.Time, updatedAt.Time), nil
}
