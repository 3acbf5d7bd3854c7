package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vexguard/api/pkg/domain/fppattern"
	"github.com/vexguard/api/pkg/domain/shared"
)

// FPPatternRepository is the PostgreSQL implementation of
// fppattern.Repository.
type FPPatternRepository struct {
	db *DB
}

// NewFPPatternRepository creates a new FPPatternRepository.
func NewFPPatternRepository(db *DB) *FPPatternRepository {
	return &FPPatternRepository{db: db}
}

var _ fppattern.Repository = (*FPPatternRepository)(nil)

const patternColumns = `id, team_id, rule_id, file_glob, description,
	is_active, matched_count, last_matched_at, created_at, updated_at`

// Create inserts a pattern. The partial unique index over
// (team_id, rule_id, coalesce(file_glob, '')) where is_active rejects
// duplicate active patterns.
func (r *FPPatternRepository) Create(ctx context.Context, p *fppattern.Pattern) error {
	query := `
		INSERT INTO false_positive_patterns (
			id, team_id, rule_id, file_glob, description, is_active,
			matched_count, last_matched_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID().String(),
		p.TeamID().String(),
		p.RuleID(),
		nullString(p.FileGlob()),
		p.Description(),
		p.IsActive(),
		p.MatchedCount(),
		nullTime(p.LastMatchedAt()),
		p.CreatedAt(),
		p.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fppattern.ErrPatternExists
		}
		return fmt.Errorf("create pattern: %w", err)
	}
	return nil
}

// GetByID retrieves a pattern scoped to a team.
func (r *FPPatternRepository) GetByID(ctx context.Context, id, teamID fppattern.ID) (*fppattern.Pattern, error) {
	query := `SELECT ` + patternColumns + `
		FROM false_positive_patterns WHERE id = $1 AND team_id = $2`
	return scanPattern(r.db.QueryRowContext(ctx, query, id.String(), teamID.String()))
}

// ListActive returns a team's active patterns in insertion order. The
// filter walks them in this order and stops on first match.
func (r *FPPatternRepository) ListActive(ctx context.Context, teamID fppattern.ID) ([]*fppattern.Pattern, error) {
	query := `SELECT ` + patternColumns + `
		FROM false_positive_patterns
		WHERE team_id = $1 AND is_active
		ORDER BY created_at`
	return r.queryPatterns(ctx, query, teamID.String())
}

// List returns a team's patterns, optionally including soft-deleted ones.
func (r *FPPatternRepository) List(ctx context.Context, teamID fppattern.ID, includeInactive bool) ([]*fppattern.Pattern, error) {
	query := `SELECT ` + patternColumns + `
		FROM false_positive_patterns
		WHERE team_id = $1`
	if !includeInactive {
		query += ` AND is_active`
	}
	query += ` ORDER BY created_at`
	return r.queryPatterns(ctx, query, teamID.String())
}

// Update persists pattern changes, including soft delete and restore.
func (r *FPPatternRepository) Update(ctx context.Context, p *fppattern.Pattern) error {
	query := `
		UPDATE false_positive_patterns
		SET file_glob = $2, description = $3, is_active = $4,
			matched_count = $5, last_matched_at = $6, updated_at = $7
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		p.ID().String(),
		nullString(p.FileGlob()),
		p.Description(),
		p.IsActive(),
		p.MatchedCount(),
		nullTime(p.LastMatchedAt()),
		p.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fppattern.ErrPatternExists
		}
		return fmt.Errorf("update pattern: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fppattern.ErrPatternNotFound
	}
	return nil
}

// ListLogsByScanJob returns filter log rows recorded by one scan.
func (r *FPPatternRepository) ListLogsByScanJob(ctx context.Context, scanJobID fppattern.ID) ([]*fppattern.Log, error) {
	query := `
		SELECT id, pattern_id, scan_job_id, rule_id, file_path, start_line, filtered_at
		FROM false_positive_logs
		WHERE scan_job_id = $1
		ORDER BY filtered_at
	`
	rows, err := r.db.QueryContext(ctx, query, scanJobID.String())
	if err != nil {
		return nil, fmt.Errorf("query filter logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*fppattern.Log, 0)
	for rows.Next() {
		var (
			idStr, patternIDStr, jobIDStr string
			ruleID, filePath              string
			startLine                     int
			filteredAt                    sql.NullTime
		)
		if err := rows.Scan(&idStr, &patternIDStr, &jobIDStr, &ruleID, &filePath, &startLine, &filteredAt); err != nil {
			return nil, fmt.Errorf("scan filter log: %w", err)
		}
		id, err := shared.IDFromString(idStr)
		if err != nil {
			return nil, fmt.Errorf("scan filter log id: %w", err)
		}
		patternID, err := shared.IDFromString(patternIDStr)
		if err != nil {
			return nil, fmt.Errorf("scan filter log pattern_id: %w", err)
		}
		jobID, err := shared.IDFromString(jobIDStr)
		if err != nil {
			return nil, fmt.Errorf("scan filter log scan_job_id: %w", err)
		}
		logs = append(logs, fppattern.ReconstructLog(id, patternID, jobID, ruleID, filePath, startLine, filteredAt.Time))
	}
	return logs, rows.Err()
}

// DeleteLogsOlderThan prunes filter log rows past the retention window.
func (r *FPPatternRepository) DeleteLogsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM false_positive_logs WHERE filtered_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune filter logs: %w", err)
	}
	return res.RowsAffected()
}

func (r *FPPatternRepository) queryPatterns(ctx context.Context, query string, args ...any) ([]*fppattern.Pattern, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	patterns := make([]*fppattern.Pattern, 0)
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

func scanPattern(row rowScanner) (*fppattern.Pattern, error) {
	var (
		idStr, teamIDStr, ruleID string
		fileGlob                 sql.NullString
		description              string
		isActive                 bool
		matchedCount             int64
		lastMatchedAt            sql.NullTime
		createdAt, updatedAt     sql.NullTime
	)

	err := row.Scan(&idStr, &teamIDStr, &ruleID, &fileGlob, &description,
		&isActive, &matchedCount, &lastMatchedAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fppattern.ErrPatternNotFound
		}
		return nil, fmt.Errorf("scan pattern: %w", err)
	}

	id, err := shared.IDFromString(idStr)
	if err != nil {
		return nil, fmt.Errorf("scan pattern id: %w", err)
	}
	teamID, err := shared.IDFromString(teamIDStr)
	if err != nil {
		return nil, fmt.Errorf("scan pattern team_id: %w", err)
	}

	return fppattern.Reconstruct(
		id, teamID,
		ruleID,
		nullStringValue(fileGlob),
		description,
		isActive,
		matchedCount,
		nullTimeValue(lastMatchedAt),
		createdAt.Time, updatedAt.Time,
	), nil
}
