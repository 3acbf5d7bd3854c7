// Package migrations applies versioned SQL migrations from a directory.
// Files are named NNNN_description.up.sql and applied in version order;
// each file runs in its own transaction and is recorded in
// schema_migrations.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

var migrationFileRe = regexp.MustCompile(`^(\d{4})_[a-z0-9_]+\.up\.sql$`)

// Record is one applied migration.
type Record struct {
	Version   string
	AppliedAt time.Time
}

// Runner applies pending migrations.
type Runner struct {
	db  *sql.DB
	dir string
}

// NewRunner creates a migration runner over the given directory.
func NewRunner(db *sql.DB, dir string) *Runner {
	return &Runner{db: db, dir: dir}
}

// Up applies all pending migrations in version order and returns how
// many ran.
func (r *Runner) Up(ctx context.Context) (int, error) {
	if err := r.ensureTable(ctx); err != nil {
		return 0, fmt.Errorf("ensure migration table: %w", err)
	}

	pending, err := r.Pending(ctx)
	if err != nil {
		return 0, err
	}

	for i, name := range pending {
		if err := r.apply(ctx, name); err != nil {
			return i, fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return len(pending), nil
}

// Pending returns migration file names not yet recorded as applied.
func (r *Runner) Pending(ctx context.Context) ([]string, error) {
	available, err := r.scanFiles()
	if err != nil {
		return nil, err
	}

	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}
	appliedSet := make(map[string]bool, len(applied))
	for _, rec := range applied {
		appliedSet[rec.Version] = true
	}

	var pending []string
	for _, name := range available {
		if !appliedSet[version(name)] {
			pending = append(pending, name)
		}
	}
	sort.Strings(pending)
	return pending, nil
}

// Applied returns recorded migrations in version order.
func (r *Runner) Applied(ctx context.Context) ([]Record, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT version, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Version, &rec.AppliedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *Runner) ensureTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(14) PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (r *Runner) scanFiles() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir %s: %w", r.dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !migrationFileRe.MatchString(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (r *Runner) apply(ctx context.Context, name string) error {
	content, err := os.ReadFile(filepath.Join(r.dir, name))
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version) VALUES ($1)`, version(name)); err != nil {
		return err
	}
	return tx.Commit()
}

// version extracts the numeric prefix from a migration file name.
func version(name string) string {
	return strings.SplitN(name, "_", 2)[0]
}
