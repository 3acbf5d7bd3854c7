package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/domain/vulnerability"
)

// VulnerabilityRepository is the PostgreSQL implementation of
// vulnerability.Repository.
type VulnerabilityRepository struct {
	db *DB
}

// NewVulnerabilityRepository creates a new VulnerabilityRepository.
func NewVulnerabilityRepository(db *DB) *VulnerabilityRepository {
	return &VulnerabilityRepository{db: db}
}

var _ vulnerability.Repository = (*VulnerabilityRepository)(nil)

const vulnColumns = `id, repo_id, scan_job_id, rule_id, severity, vuln_type,
	cwe_ids, file_path, start_line, end_line, code_snippet, message, status,
	detected_at, resolved_at, created_at, updated_at`

// GetByID retrieves a vulnerability by id.
func (r *VulnerabilityRepository) GetByID(ctx context.Context, id vulnerability.ID) (*vulnerability.Vulnerability, error) {
	query := `SELECT ` + vulnColumns + ` FROM vulnerabilities WHERE id = $1`
	return scanVulnerability(r.db.QueryRowContext(ctx, query, id.String()))
}

// ListByScanJob returns all findings recorded by one scan.
func (r *VulnerabilityRepository) ListByScanJob(ctx context.Context, scanJobID vulnerability.ID) ([]*vulnerability.Vulnerability, error) {
	query := `SELECT ` + vulnColumns + `
		FROM vulnerabilities WHERE scan_job_id = $1
		ORDER BY file_path, start_line`
	rows, err := r.db.QueryContext(ctx, query, scanJobID.String())
	if err != nil {
		return nil, fmt.Errorf("query vulnerabilities: %w", err)
	}
	defer rows.Close()

	vulns := make([]*vulnerability.Vulnerability, 0)
	for rows.Next() {
		v, err := scanVulnerability(rows)
		if err != nil {
			return nil, err
		}
		vulns = append(vulns, v)
	}
	return vulns, rows.Err()
}

// List retrieves a paginated, filtered vulnerability listing.
func (r *VulnerabilityRepository) List(ctx context.Context, filter vulnerability.Filter) (vulnerability.ListResult, error) {
	page, perPage := normalizePage(filter.Page, filter.PerPage)
	result := vulnerability.ListResult{Data: make([]*vulnerability.Vulnerability, 0), Page: page, PerPage: perPage}

	conditions := make([]string, 0, 4)
	args := make([]any, 0, 4)
	argIdx := 1

	if filter.RepoID != nil {
		conditions = append(conditions, fmt.Sprintf("repo_id = $%d", argIdx))
		args = append(args, filter.RepoID.String())
		argIdx++
	}
	if filter.ScanJobID != nil {
		conditions = append(conditions, fmt.Sprintf("scan_job_id = $%d", argIdx))
		args = append(args, filter.ScanJobID.String())
		argIdx++
	}
	if filter.Severity != nil {
		conditions = append(conditions, fmt.Sprintf("severity = $%d", argIdx))
		args = append(args, string(*filter.Severity))
		argIdx++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(*filter.Status))
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := `SELECT COUNT(*) FROM vulnerabilities` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&result.Total); err != nil {
		return result, fmt.Errorf("count vulnerabilities: %w", err)
	}
	result.TotalPages = totalPages(result.Total, perPage)

	query := `SELECT ` + vulnColumns + ` FROM vulnerabilities` + where +
		fmt.Sprintf(" ORDER BY detected_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return result, fmt.Errorf("query vulnerabilities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		v, err := scanVulnerability(rows)
		if err != nil {
			return result, err
		}
		result.Data = append(result.Data, v)
	}
	return result, rows.Err()
}

// Update persists status and resolution changes.
func (r *VulnerabilityRepository) Update(ctx context.Context, v *vulnerability.Vulnerability) error {
	query := `
		UPDATE vulnerabilities
		SET status = $2, resolved_at = $3, updated_at = $4
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		v.ID().String(),
		string(v.Status()),
		nullTime(v.ResolvedAt()),
		v.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("update vulnerability: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return vulnerability.ErrVulnerabilityNotFound
	}
	return nil
}

func scanVulnerability(row rowScanner) (*vulnerability.Vulnerability, error) {
	var (
		idStr, repoIDStr, scanJobIDStr     string
		ruleID, severity, vulnType         string
		cweIDs                             pq.StringArray
		filePath                           string
		startLine, endLine                 int
		codeSnippet, message, status       string
		detectedAt                         sql.NullTime
		resolvedAt                         sql.NullTime
		createdAt, updatedAt               sql.NullTime
	)

	err := row.Scan(&idStr, &repoIDStr, &scanJobIDStr, &ruleID, &severity,
		&vulnType, &cweIDs, &filePath, &startLine, &endLine, &codeSnippet,
		&message, &status, &detectedAt, &resolvedAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, vulnerability.ErrVulnerabilityNotFound
		}
		return nil, fmt.Errorf("scan vulnerability: %w", err)
	}

	id, err := shared.IDFromString(idStr)
	if err != nil {
		return nil, fmt.Errorf("scan vulnerability id: %w", err)
	}
	repoID, err := shared.IDFromString(repoIDStr)
	if err != nil {
		return nil, fmt.Errorf("scan vulnerability repo_id: %w", err)
	}
	scanJobID, err := shared.IDFromString(scanJobIDStr)
	if err != nil {
		return nil, fmt.Errorf("scan vulnerability scan_job_id: %w", err)
	}

	return vulnerability.Reconstruct(
		id, repoID, scanJobID,
		ruleID,
		vulnerability.Severity(severity),
		vulnType,
		[]string(cweIDs),
		filePath,
		startLine, endLine,
		codeSnippet, message,
		vulnerability.Status(status),
		detectedAt.Time,
		nullTimeValue(resolvedAt),
		createdAt.Time, updatedAt.Time,
	), nil
}
