package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/vexguard/api/pkg/domain/fppattern"
	"github.com/vexguard/api/pkg/domain/scan"
	"github.com/vexguard/api/pkg/domain/vulnerability"
)

// ScanResultStore commits a finished scan's output in one transaction:
// finding rows, filter log rows, the matched patterns' counters, and the
// job's denormalized counters. Either all filter effects become
// observable or none do.
type ScanResultStore struct {
	db *DB
}

// NewScanResultStore creates a new ScanResultStore.
func NewScanResultStore(db *DB) *ScanResultStore {
	return &ScanResultStore{db: db}
}

// PersistResults writes everything a completed analysis produced. The job
// entity must already carry its final counters; matchedPatterns are the
// patterns whose RecordMatch was called during filtering.
func (s *ScanResultStore) PersistResults(
	ctx context.Context,
	job *scan.Job,
	findings []*vulnerability.Vulnerability,
	filterLogs []*fppattern.Log,
	matchedPatterns []*fppattern.Pattern,
) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		for _, v := range findings {
			if err := insertVulnerability(ctx, tx, v); err != nil {
				return err
			}
		}
		for _, l := range filterLogs {
			if err := insertFilterLog(ctx, tx, l); err != nil {
				return err
			}
		}
		deltas := matchDeltas(filterLogs)
		for _, p := range matchedPatterns {
			if err := updatePatternCounters(ctx, tx, p, deltas[p.ID().String()]); err != nil {
				return err
			}
		}
		return updateScanJob(ctx, tx, job)
	})
}

// matchDeltas counts this scan's suppressions per pattern. The counter
// update must be relative so concurrent scans in the same team never
// overwrite each other's increments.
func matchDeltas(logs []*fppattern.Log) map[string]int64 {
	deltas := make(map[string]int64, len(logs))
	for _, l := range logs {
		deltas[l.PatternID().String()]++
	}
	return deltas
}

func insertVulnerability(ctx context.Context, tx *sql.Tx, v *vulnerability.Vulnerability) error {
	query := `
		INSERT INTO vulnerabilities (
			id, repo_id, scan_job_id, rule_id, severity, vuln_type, cwe_ids,
			file_path, start_line, end_line, code_snippet, message, status,
			detected_at, resolved_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17)
	`
	_, err := tx.ExecContext(ctx, query,
		v.ID().String(),
		v.RepoID().String(),
		v.ScanJobID().String(),
		v.RuleID(),
		string(v.Severity()),
		v.VulnType(),
		pq.Array(v.CWEIDs()),
		v.FilePath(),
		v.StartLine(),
		v.EndLine(),
		v.CodeSnippet(),
		v.Message(),
		string(v.Status()),
		v.DetectedAt(),
		nullTime(v.ResolvedAt()),
		v.CreatedAt(),
		v.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("insert vulnerability: %w", err)
	}
	return nil
}

func insertFilterLog(ctx context.Context, tx *sql.Tx, l *fppattern.Log) error {
	query := `
		INSERT INTO false_positive_logs (
			id, pattern_id, scan_job_id, rule_id, file_path, start_line, filtered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query,
		l.ID().String(),
		l.PatternID().String(),
		l.ScanJobID().String(),
		l.RuleID(),
		l.FilePath(),
		l.StartLine(),
		l.FilteredAt(),
	)
	if err != nil {
		return fmt.Errorf("insert false positive log: %w", err)
	}
	return nil
}

func updatePatternCounters(ctx context.Context, tx *sql.Tx, p *fppattern.Pattern, delta int64) error {
	query := `
		UPDATE false_positive_patterns
		SET matched_count = matched_count + $2, last_matched_at = $3, updated_at = $4
		WHERE id = $1
	`
	_, err := tx.ExecContext(ctx, query,
		p.ID().String(),
		delta,
		nullTime(p.LastMatchedAt()),
		p.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("update pattern counters: %w", err)
	}
	return nil
}
