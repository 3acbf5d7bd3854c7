package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vexguard/api/pkg/domain/repo"
	"github.com/vexguard/api/pkg/domain/shared"
)

// RepoRepository is the PostgreSQL implementation of repo.Repo.
type RepoRepository struct {
	db *DB
}

// NewRepoRepository creates a new RepoRepository.
func NewRepoRepository(db *DB) *RepoRepository {
	return &RepoRepository{db: db}
}

var _ repo.Repo = (*RepoRepository)(nil)

const repoColumns = `id, team_id, platform, platform_repo_id, name, clone_url,
	default_branch, base_url, installation_id, access_token_enc,
	webhook_secret_enc, is_active, is_initial_scan_done, created_at, updated_at`

// Create inserts a repository. The partial unique index over
// (platform, platform_repo_id) rejects duplicate registrations.
func (r *RepoRepository) Create(ctx context.Context, rep *repo.Repository) error {
	query := `
		INSERT INTO repositories (
			id, team_id, platform, platform_repo_id, name, clone_url,
			default_branch, base_url, installation_id, access_token_enc,
			webhook_secret_enc, is_active, is_initial_scan_done,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := r.db.ExecContext(ctx, query,
		rep.ID().String(),
		rep.TeamID().String(),
		string(rep.Platform()),
		nullString(rep.PlatformRepoID()),
		rep.Name(),
		rep.CloneURL(),
		rep.DefaultBranch(),
		nullString(rep.BaseURL()),
		rep.InstallationID(),
		nullString(rep.AccessTokenEnc()),
		nullString(rep.WebhookSecretEnc()),
		rep.IsActive(),
		rep.IsInitialScanDone(),
		rep.CreatedAt(),
		rep.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repo.ErrRepositoryExists
		}
		return fmt.Errorf("create repository: %w", err)
	}
	return nil
}

// GetByID retrieves a repository by id.
func (r *RepoRepository) GetByID(ctx context.Context, id repo.ID) (*repo.Repository, error) {
	query := `SELECT ` + repoColumns + ` FROM repositories WHERE id = $1`
	return scanRepo(r.db.QueryRowContext(ctx, query, id.String()))
}

// GetByPlatformID resolves the repository a webhook event refers to.
func (r *RepoRepository) GetByPlatformID(ctx context.Context, platform repo.Platform, platformRepoID string) (*repo.Repository, error) {
	query := `SELECT ` + repoColumns + `
		FROM repositories WHERE platform = $1 AND platform_repo_id = $2`
	return scanRepo(r.db.QueryRowContext(ctx, query, string(platform), platformRepoID))
}

// ListByInstallation returns repositories bound to a GitHub App installation.
func (r *RepoRepository) ListByInstallation(ctx context.Context, installationID int64) ([]*repo.Repository, error) {
	query := `SELECT ` + repoColumns + `
		FROM repositories WHERE installation_id = $1 ORDER BY created_at`
	return r.queryRepos(ctx, query, installationID)
}

// ListActive returns every active repository. Used by the scan scheduler.
func (r *RepoRepository) ListActive(ctx context.Context) ([]*repo.Repository, error) {
	query := `SELECT ` + repoColumns + `
		FROM repositories WHERE is_active ORDER BY created_at`
	return r.queryRepos(ctx, query)
}

// List retrieves a paginated, filtered repository listing.
func (r *RepoRepository) List(ctx context.Context, filter repo.Filter) (repo.ListResult, error) {
	page, perPage := normalizePage(filter.Page, filter.PerPage)
	result := repo.ListResult{Data: make([]*repo.Repository, 0), Page: page, PerPage: perPage}

	conditions := make([]string, 0, 4)
	args := make([]any, 0, 4)
	argIdx := 1

	if filter.TeamID != nil {
		conditions = append(conditions, fmt.Sprintf("team_id = $%d", argIdx))
		args = append(args, filter.TeamID.String())
		argIdx++
	}
	if filter.Platform != nil {
		conditions = append(conditions, fmt.Sprintf("platform = $%d", argIdx))
		args = append(args, string(*filter.Platform))
		argIdx++
	}
	if filter.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", argIdx))
		args = append(args, *filter.IsActive)
		argIdx++
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", argIdx))
		args = append(args, "%"+filter.Search+"%")
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := `SELECT COUNT(*) FROM repositories` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&result.Total); err != nil {
		return result, fmt.Errorf("count repositories: %w", err)
	}
	result.TotalPages = totalPages(result.Total, perPage)

	query := `SELECT ` + repoColumns + ` FROM repositories` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, perPage, (page-1)*perPage)

	repos, err := r.queryRepos(ctx, query, args...)
	if err != nil {
		return result, err
	}
	result.Data = repos
	return result, nil
}

// Update persists repository changes.
func (r *RepoRepository) Update(ctx context.Context, rep *repo.Repository) error {
	query := `
		UPDATE repositories
		SET name = $2, clone_url = $3, default_branch = $4, base_url = $5,
			installation_id = $6, access_token_enc = $7, webhook_secret_enc = $8,
			is_active = $9, is_initial_scan_done = $10, updated_at = $11
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		rep.ID().String(),
		rep.Name(),
		rep.CloneURL(),
		rep.DefaultBranch(),
		nullString(rep.BaseURL()),
		rep.InstallationID(),
		nullString(rep.AccessTokenEnc()),
		nullString(rep.WebhookSecretEnc()),
		rep.IsActive(),
		rep.IsInitialScanDone(),
		rep.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("update repository: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repo.ErrRepositoryNotFound
	}
	return nil
}

// Delete hard-deletes the repository; scans, findings, and patch PRs
// cascade via foreign keys.
func (r *RepoRepository) Delete(ctx context.Context, id repo.ID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM repositories WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("delete repository: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repo.ErrRepositoryNotFound
	}
	return nil
}

func (r *RepoRepository) queryRepos(ctx context.Context, query string, args ...any) ([]*repo.Repository, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query repositories: %w", err)
	}
	defer rows.Close()

	repos := make([]*repo.Repository, 0)
	for rows.Next() {
		rep, err := scanRepo(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, rep)
	}
	return repos, rows.Err()
}

func scanRepo(row rowScanner) (*repo.Repository, error) {
	var (
		idStr, teamIDStr, platform           string
		platformRepoID, baseURL              sql.NullString
		name, cloneURL, defaultBranch        string
		installationID                       int64
		accessTokenEnc, webhookSecretEnc     sql.NullString
		isActive, isInitialScanDone          bool
		createdAt, updatedAt                 sql.NullTime
	)

	err := row.Scan(&idStr, &teamIDStr, &platform, &platformRepoID, &name,
		&cloneURL, &defaultBranch, &baseURL, &installationID, &accessTokenEnc,
		&webhookSecretEnc, &isActive, &isInitialScanDone, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repo.ErrRepositoryNotFound
		}
		return nil, fmt.Errorf("scan repository: %w", err)
	}

	id, err := shared.IDFromString(idStr)
	if err != nil {
		return nil, fmt.Errorf("scan repository id: %w", err)
	}
	teamID, err := shared.IDFromString(teamIDStr)
	if err != nil {
		return nil, fmt.Errorf("scan repository team_id: %w", err)
	}

	return repo.Reconstruct(
		id, teamID,
		repo.Platform(platform),
		nullStringValue(platformRepoID),
		name, cloneURL, defaultBranch,
		nullStringValue(baseURL),
		installationID,
		nullStringValue(accessTokenEnc),
		nullStringValue(webhookSecretEnc),
		isActive, isInitialScanDone,
		createdAt.Time, updatedAt.Time,
	), nil
}
