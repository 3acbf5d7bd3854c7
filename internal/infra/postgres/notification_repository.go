package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vexguard/api/pkg/domain/notification"
	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/domain/vulnerability"
)

// NotificationRepository is the PostgreSQL implementation of
// notification.Repository.
type NotificationRepository struct {
	db *DB
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

var _ notification.Repository = (*NotificationRepository)(nil)

const notifyColumns = `id, team_id, platform, webhook_url, severity_threshold,
	weekly_report, is_active, created_at, updated_at`

// Create inserts a notification config.
func (r *NotificationRepository) Create(ctx context.Context, c *notification.Config) error {
	query := `
		INSERT INTO notification_configs (
			id, team_id, platform, webhook_url, severity_threshold,
			weekly_report, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID().String(),
		c.TeamID().String(),
		string(c.Platform()),
		c.WebhookURL(),
		string(c.SeverityThreshold()),
		c.WeeklyReport(),
		c.IsActive(),
		c.CreatedAt(),
		c.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("create notification config: %w", err)
	}
	return nil
}

// GetByID retrieves a config scoped to a team.
func (r *NotificationRepository) GetByID(ctx context.Context, id, teamID notification.ID) (*notification.Config, error) {
	query := `SELECT ` + notifyColumns + `
		FROM notification_configs WHERE id = $1 AND team_id = $2`
	return scanNotificationConfig(r.db.QueryRowContext(ctx, query, id.String(), teamID.String()))
}

// ListActiveByTeam returns a team's active notification targets.
func (r *NotificationRepository) ListActiveByTeam(ctx context.Context, teamID notification.ID) ([]*notification.Config, error) {
	query := `SELECT ` + notifyColumns + `
		FROM notification_configs
		WHERE team_id = $1 AND is_active
		ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, teamID.String())
	if err != nil {
		return nil, fmt.Errorf("query notification configs: %w", err)
	}
	defer rows.Close()

	configs := make([]*notification.Config, 0)
	for rows.Next() {
		c, err := scanNotificationConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// Update persists config changes.
func (r *NotificationRepository) Update(ctx context.Context, c *notification.Config) error {
	query := `
		UPDATE notification_configs
		SET webhook_url = $2, severity_threshold = $3, weekly_report = $4,
			is_active = $5, updated_at = $6
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		c.ID().String(),
		c.WebhookURL(),
		string(c.SeverityThreshold()),
		c.WeeklyReport(),
		c.IsActive(),
		c.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("update notification config: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notification.ErrConfigNotFound
	}
	return nil
}

// Delete removes a config.
func (r *NotificationRepository) Delete(ctx context.Context, id, teamID notification.ID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM notification_configs WHERE id = $1 AND team_id = $2`,
		id.String(), teamID.String())
	if err != nil {
		return fmt.Errorf("delete notification config: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notification.ErrConfigNotFound
	}
	return nil
}

func scanNotificationConfig(row rowScanner) (*notification.Config, error) {
	var (
		idStr, teamIDStr, platform string
		webhookURL, threshold      string
		weeklyReport, isActive     bool
		createdAt, updatedAt       sql.NullTime
	)

	err := row.Scan(&idStr, &teamIDStr, &platform, &webhookURL, &threshold,
		&weeklyReport, &isActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notification.ErrConfigNotFound
		}
		return nil, fmt.Errorf("scan notification config: %w", err)
	}

	id, err := shared.IDFromString(idStr)
	if err != nil {
		return nil, fmt.Errorf("scan notification config id: %w", err)
	}
	teamID, err := shared.IDFromString(teamIDStr)
	if err != nil {
		return nil, fmt.Errorf("scan notification config team_id: %w", err)
	}

	return notification.Reconstruct(
		id, teamID,
		notification.Platform(platform),
		webhookURL,
		vulnerability.Severity(threshold),
		weeklyReport, isActive,
		createdAt.Time, updatedAt.Time,
	), nil
}
