// Package notification holds team-scoped webhook notification targets.
package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/domain/vulnerability"
)

// ID is a type alias for shared.ID.
type ID = shared.ID

// Platform is the chat platform receiving scan notifications.
type Platform string

const (
	PlatformSlack Platform = "slack"
	PlatformTeams Platform = "teams"
)

// ParsePlatform parses a notification platform string.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PlatformSlack, PlatformTeams:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown notification platform %q", shared.ErrValidation, s)
}

// Config is one team's notification target. The webhook URL must pass the
// outbound URL guard before it is accepted.
type Config struct {
	id                ID
	teamID            ID
	platform          Platform
	webhookURL        string
	severityThreshold vulnerability.Severity
	weeklyReport      bool
	isActive          bool
	createdAt         time.Time
	updatedAt         time.Time
}

// NewConfig creates an active notification config.
func NewConfig(id, teamID ID, platform Platform, webhookURL string, threshold vulnerability.Severity, weeklyReport bool) (*Config, error) {
	if webhookURL == "" {
		return nil, fmt.Errorf("%w: webhook url is required", shared.ErrValidation)
	}
	now := time.Now()
	return &Config{
		id:                id,
		teamID:            teamID,
		platform:          platform,
		webhookURL:        webhookURL,
		severityThreshold: threshold,
		weeklyReport:      weeklyReport,
		isActive:          true,
		createdAt:         now,
		updatedAt:         now,
	}, nil
}

// Reconstruct creates a Config from stored data.
func Reconstruct(
	id, teamID ID,
	platform Platform,
	webhookURL string,
	threshold vulnerability.Severity,
	weeklyReport, isActive bool,
	createdAt, updatedAt time.Time,
) *Config {
	return &Config{
		id:                id,
		teamID:            teamID,
		platform:          platform,
		webhookURL:        webhookURL,
		severityThreshold: threshold,
		weeklyReport:      weeklyReport,
		isActive:          isActive,
		createdAt:         createdAt,
		updatedAt:         updatedAt,
	}
}

func (c *Config) ID() ID                                    { return c.id }
func (c *Config) TeamID() ID                                { return c.teamID }
func (c *Config) Platform() Platform                        { return c.platform }
func (c *Config) WebhookURL() string                        { return c.webhookURL }
func (c *Config) SeverityThreshold() vulnerability.Severity { return c.severityThreshold }
func (c *Config) WeeklyReport() bool                        { return c.weeklyReport }
func (c *Config) IsActive() bool                            { return c.isActive }
func (c *Config) CreatedAt() time.Time                      { return c.createdAt }
func (c *Config) UpdatedAt() time.Time                      { return c.updatedAt }

// ShouldNotify reports whether a finding of the given severity clears the
// configured threshold.
func (c *Config) ShouldNotify(severity vulnerability.Severity) bool {
	return c.isActive && severity.AtLeast(c.severityThreshold)
}

// Deactivate disables the target.
func (c *Config) Deactivate() {
	c.isActive = false
	c.updatedAt = time.Now()
}

var ErrConfigNotFound = fmt.Errorf("%w: notification config not found", shared.ErrNotFound)
