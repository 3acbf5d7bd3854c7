package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vexguard/api/pkg/domain/patchpr"
	"github.com/vexguard/api/pkg/domain/shared"
)

// PatchPRRepository is the PostgreSQL implementation of patchpr.Repository.
type PatchPRRepository struct {
	db *DB
}

// NewPatchPRRepository creates a new PatchPRRepository.
func NewPatchPRRepository(db *DB) *PatchPRRepository {
	return &PatchPRRepository{db: db}
}

var _ patchpr.Repository = (*PatchPRRepository)(nil)

const patchPRColumns = `id, vulnerability_id, repo_id, pr_number, pr_url,
	branch_name, patch_diff, description, state, created_at, updated_at`

// Create inserts a patch PR record. The unique index on vulnerability_id
// enforces the 1:1 constraint.
func (r *PatchPRRepository) Create(ctx context.Context, p *patchpr.PatchPR) error {
	query := `
		INSERT INTO patch_prs (
			id, vulnerability_id, repo_id, pr_number, pr_url, branch_name,
			patch_diff, description, state, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID().String(),
		p.VulnerabilityID().String(),
		p.RepoID().String(),
		p.PRNumber(),
		p.PRURL(),
		p.BranchName(),
		p.PatchDiff(),
		p.Description(),
		string(p.State()),
		p.CreatedAt(),
		p.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return patchpr.ErrPatchPRExists
		}
		return fmt.Errorf("create patch pr: %w", err)
	}
	return nil
}

// GetByID retrieves a patch PR by id.
func (r *PatchPRRepository) GetByID(ctx context.Context, id patchpr.ID) (*patchpr.PatchPR, error) {
	query := `SELECT ` + patchPRColumns + ` FROM patch_prs WHERE id = $1`
	return scanPatchPR(r.db.QueryRowContext(ctx, query, id.String()))
}

// GetByVulnerability retrieves the patch PR for a vulnerability.
func (r *PatchPRRepository) GetByVulnerability(ctx context.Context, vulnerabilityID patchpr.ID) (*patchpr.PatchPR, error) {
	query := `SELECT ` + patchPRColumns + ` FROM patch_prs WHERE vulnerability_id = $1`
	return scanPatchPR(r.db.QueryRowContext(ctx, query, vulnerabilityID.String()))
}

// ListByRepo returns patch PRs for a repository, newest first.
func (r *PatchPRRepository) ListByRepo(ctx context.Context, repoID patchpr.ID) ([]*patchpr.PatchPR, error) {
	query := `SELECT ` + patchPRColumns + `
		FROM patch_prs WHERE repo_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, repoID.String())
	if err != nil {
		return nil, fmt.Errorf("query patch prs: %w", err)
	}
	defer rows.Close()

	prs := make([]*patchpr.PatchPR, 0)
	for rows.Next() {
		p, err := scanPatchPR(rows)
		if err != nil {
			return nil, err
		}
		prs = append(prs, p)
	}
	return prs, rows.Err()
}

// Update persists state changes.
func (r *PatchPRRepository) Update(ctx context.Context, p *patchpr.PatchPR) error {
	query := `UPDATE patch_prs SET state = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, p.ID().String(), string(p.State()), p.UpdatedAt())
	if err != nil {
		return fmt.Errorf("update patch pr: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return patchpr.ErrPatchPRNotFound
	}
	return nil
}

func scanPatchPR(row rowScanner) (*patchpr.PatchPR, error) {
	var (
		idStr, vulnIDStr, repoIDStr               string
		prNumber                                  int
		prURL, branchName, patchDiff, description string
		state                                     string
		createdAt, updatedAt                      sql.NullTime
	)

	err := row.Scan(&idStr, &vulnIDStr, &repoIDStr, &prNumber, &prURL,
		&branchName, &patchDiff, &description, &state, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, patchpr.ErrPatchPRNotFound
		}
		return nil, fmt.Errorf("scan patch pr: %w", err)
	}

	id, err := shared.IDFromString(idStr)
	if err != nil {
		return nil, fmt.Errorf("scan patch pr id: %w", err)
	}
	vulnID, err := shared.IDFromString(vulnIDStr)
	if err != nil {
		return nil, fmt.Errorf("scan patch pr vulnerability_id: %w", err)
	}
	repoID, err := shared.IDFromString(repoIDStr)
	if err != nil {
		return nil, fmt.Errorf("scan patch pr repo_id: %w", err)
	}

	return patchpr.Reconstruct(
		id, vulnID, repoID,
		prNumber,
		prURL, branchName, patchDiff, description,
		patchpr.State(state),
		createdAt.Time, updatedAt.Time,
	), nil
}
