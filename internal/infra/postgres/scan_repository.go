package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/vexguard/api/pkg/domain/scan"
	"github.com/vexguard/api/pkg/domain/shared"
)

// ScanRepository is the PostgreSQL implementation of scan.Repository.
type ScanRepository struct {
	db *DB
}

// NewScanRepository creates a new ScanRepository.
func NewScanRepository(db *DB) *ScanRepository {
	return &ScanRepository{db: db}
}

var _ scan.Repository = (*ScanRepository)(nil)

const scanColumns = `id, repo_id, team_id, trigger_type, scan_type, status,
	commit_sha, branch, pr_number, changed_files, retry_count,
	findings_count, true_positives_count, false_positives_count,
	auto_filtered_count, error_message, started_at, completed_at,
	duration_seconds, created_at, updated_at`

// Create inserts a queued scan job.
func (r *ScanRepository) Create(ctx context.Context, job *scan.Job) error {
	return createScanJob(ctx, r.db.DB, job)
}

// createScanJob is shared with the enqueue transaction in jobs wiring.
func createScanJob(ctx context.Context, execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, job *scan.Job) error {
	query := `
		INSERT INTO scan_jobs (
			id, repo_id, team_id, trigger_type, scan_type, status,
			commit_sha, branch, pr_number, changed_files, retry_count,
			findings_count, true_positives_count, false_positives_count,
			auto_filtered_count, error_message, started_at, completed_at,
			duration_seconds, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21)
	`
	_, err := execer.ExecContext(ctx, query,
		job.ID().String(),
		job.RepoID().String(),
		job.TeamID().String(),
		string(job.Trigger()),
		string(job.ScanType()),
		string(job.Status()),
		nullString(job.CommitSHA()),
		nullString(job.Branch()),
		nullInt(job.PRNumber()),
		pq.Array(job.ChangedFiles()),
		job.RetryCount(),
		job.FindingsCount(),
		job.TruePositivesCount(),
		job.FalsePositivesCount(),
		job.AutoFilteredCount(),
		nullString(job.ErrorMessage()),
		nullTime(job.StartedAt()),
		nullTime(job.CompletedAt()),
		nullInt(job.DurationSeconds()),
		job.CreatedAt(),
		job.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return scan.ErrActiveScanExists
		}
		return fmt.Errorf("create scan job: %w", err)
	}
	return nil
}

// GetByID retrieves a scan job by id.
func (r *ScanRepository) GetByID(ctx context.Context, id scan.ID) (*scan.Job, error) {
	query := `SELECT ` + scanColumns + ` FROM scan_jobs WHERE id = $1`
	return scanJobRow(r.db.QueryRowContext(ctx, query, id.String()))
}

// List retrieves a paginated, filtered scan listing.
func (r *ScanRepository) List(ctx context.Context, filter scan.Filter) (scan.ListResult, error) {
	page, perPage := normalizePage(filter.Page, filter.PerPage)
	result := scan.ListResult{Data: make([]*scan.Job, 0), Page: page, PerPage: perPage}

	conditions := make([]string, 0, 3)
	args := make([]any, 0, 3)
	argIdx := 1

	if filter.RepoID != nil {
		conditions = append(conditions, fmt.Sprintf("repo_id = $%d", argIdx))
		args = append(args, filter.RepoID.String())
		argIdx++
	}
	if filter.TeamID != nil {
		conditions = append(conditions, fmt.Sprintf("team_id = $%d", argIdx))
		args = append(args, filter.TeamID.String())
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

	countQuery := `SELECT COUNT(*) FROM scan_jobs` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&result.Total); err != nil {
		return result, fmt.Errorf("count scan jobs: %w", err)
	}
	result.TotalPages = totalPages(result.Total, perPage)

	query := `SELECT ` + scanColumns + ` FROM scan_jobs` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return result, fmt.Errorf("query scan jobs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		job, err := scanJobRow(rows)
		if err != nil {
			return result, err
		}
		result.Data = append(result.Data, job)
	}
	return result, rows.Err()
}

// Update persists job state, counters, and timestamps.
func (r *ScanRepository) Update(ctx context.Context, job *scan.Job) error {
	return updateScanJob(ctx, r.db.DB, job)
}

func updateScanJob(ctx context.Context, execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, job *scan.Job) error {
	query := `
		UPDATE scan_jobs
		SET status = $2, commit_sha = $3, branch = $4, pr_number = $5,
			changed_files = $6, retry_count = $7, findings_count = $8,
			true_positives_count = $9, false_positives_count = $10,
			auto_filtered_count = $11, error_message = $12, started_at = $13,
			completed_at = $14, duration_seconds = $15, updated_at = $16
		WHERE id = $1
	`
	res, err := execer.ExecContext(ctx, query,
		job.ID().String(),
		string(job.Status()),
		nullString(job.CommitSHA()),
		nullString(job.Branch()),
		nullInt(job.PRNumber()),
		pq.Array(job.ChangedFiles()),
		job.RetryCount(),
		job.FindingsCount(),
		job.TruePositivesCount(),
		job.FalsePositivesCount(),
		job.AutoFilteredCount(),
		nullString(job.ErrorMessage()),
		nullTime(job.StartedAt()),
		nullTime(job.CompletedAt()),
		nullInt(job.DurationSeconds()),
		job.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("update scan job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return scan.ErrScanNotFound
	}
	return nil
}

// HasActiveScan answers the admission check for non-PR triggers. Backed
// by the partial index over status IN ('queued','running').
func (r *ScanRepository) HasActiveScan(ctx context.Context, repoID scan.ID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM scan_jobs
			WHERE repo_id = $1 AND pr_number IS NULL
				AND status IN ('queued', 'running')
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, repoID.String()).Scan(&exists); err != nil {
		return false, fmt.Errorf("check active scan: %w", err)
	}
	return exists, nil
}

// ListActiveForPR returns non-terminal jobs for one pull request.
func (r *ScanRepository) ListActiveForPR(ctx context.Context, repoID scan.ID, prNumber int) ([]*scan.Job, error) {
	query := `SELECT ` + scanColumns + `
		FROM scan_jobs
		WHERE repo_id = $1 AND pr_number = $2 AND status IN ('queued', 'running')
		ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, repoID.String(), prNumber)
	if err != nil {
		return nil, fmt.Errorf("query active pr scans: %w", err)
	}
	defer rows.Close()

	jobs := make([]*scan.Job, 0)
	for rows.Next() {
		job, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// FailStuckRunning fails running jobs untouched since the cutoff. The
// worker heartbeats through updated_at, so a stale row means the worker
// is gone and the queue message with it.
func (r *ScanRepository) FailStuckRunning(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE scan_jobs
		SET status = 'failed', error_message = 'worker lost: no progress before deadline',
			completed_at = NOW(), updated_at = NOW()
		WHERE status = 'running' AND updated_at < $1
	`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("fail stuck scans: %w", err)
	}
	return res.RowsAffected()
}

// ExpireQueued fails jobs queued before the cutoff that never started.
func (r *ScanRepository) ExpireQueued(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE scan_jobs
		SET status = 'failed', error_message = 'expired: not picked up in time',
			completed_at = NOW(), updated_at = NOW()
		WHERE status = 'queued' AND created_at < $1
	`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire queued scans: %w", err)
	}
	return res.RowsAffected()
}

func scanJobRow(row rowScanner) (*scan.Job, error) {
	var (
		idStr, repoIDStr, teamIDStr                string
		triggerType, scanType, status              string
		commitSHA, branch, errorMessage            sql.NullString
		prNumber, durationSeconds                  sql.NullInt64
		changedFiles                               pq.StringArray
		retryCount, findingsCount                  int
		truePositivesCount, falsePositivesCount    int
		autoFilteredCount                          int
		startedAt, completedAt                     sql.NullTime
		createdAt, updatedAt                       sql.NullTime
	)

	err := row.Scan(&idStr, &repoIDStr, &teamIDStr, &triggerType, &scanType,
		&status, &commitSHA, &branch, &prNumber, &changedFiles, &retryCount,
		&findingsCount, &truePositivesCount, &falsePositivesCount,
		&autoFilteredCount, &errorMessage, &startedAt, &completedAt,
		&durationSeconds, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, scan.ErrScanNotFound
		}
		return nil, fmt.Errorf("scan scan job: %w", err)
	}

	id, err := shared.IDFromString(idStr)
	if err != nil {
		return nil, fmt.Errorf("scan job id: %w", err)
	}
	repoID, err := shared.IDFromString(repoIDStr)
	if err != nil {
		return nil, fmt.Errorf("scan job repo_id: %w", err)
	}
	teamID, err := shared.IDFromString(teamIDStr)
	if err != nil {
		return nil, fmt.Errorf("scan job team_id: %w", err)
	}

	return scan.Reconstruct(
		id, repoID, teamID,
		scan.TriggerType(triggerType),
		scan.Type(scanType),
		scan.Status(status),
		nullStringValue(commitSHA),
		nullStringValue(branch),
		nullIntValue(prNumber),
		[]string(changedFiles),
		retryCount, findingsCount, truePositivesCount, falsePositivesCount,
		autoFilteredCount,
		nullStringValue(errorMessage),
		nullTimeValue(startedAt), nullTimeValue(completedAt),
		nullIntValue(durationSeconds),
		createdAt.Time, updatedAt.Time,
	), nil
}
