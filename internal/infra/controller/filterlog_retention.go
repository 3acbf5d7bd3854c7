package controller

import (
	"context"
	"time"

	"github.com/vexguard/api/pkg/domain/fppattern"
	"github.com/vexguard/api/pkg/logger"
)

// FilterLogRetentionControllerConfig configures the
// FilterLogRetentionController.
type FilterLogRetentionControllerConfig struct {
	// Interval is how often to run the retention check. Default: 24h.
	Interval time.Duration

	// RetentionDays is how long to keep filter log rows. Default: 90.
	RetentionDays int

	Logger *logger.Logger
}

// FilterLogRetentionController prunes filter log rows past the
// retention window. The logs exist so teams can audit what a pattern
// suppressed recently; they have no value once the scans they belong to
// have aged out of any review.
type FilterLogRetentionController struct {
	patterns fppattern.Repository
	config   *FilterLogRetentionControllerConfig
	logger   *logger.Logger
}

// NewFilterLogRetentionController creates a new
// FilterLogRetentionController.
func NewFilterLogRetentionController(
	patterns fppattern.Repository,
	config *FilterLogRetentionControllerConfig,
) *FilterLogRetentionController {
	if config == nil {
		config = &FilterLogRetentionControllerConfig{}
	}
	if config.Interval == 0 {
		config.Interval = 24 * time.Hour
	}
	if config.RetentionDays == 0 {
		config.RetentionDays = 90
	}
	if config.Logger == nil {
		config.Logger = logger.NewNop()
	}

	return &FilterLogRetentionController{
		patterns: patterns,
		config:   config,
		logger:   config.Logger,
	}
}

// Name returns the controller name.
func (c *FilterLogRetentionController) Name() string {
	return "filterlog-retention"
}

// Interval returns the reconciliation interval.
func (c *FilterLogRetentionController) Interval() time.Duration {
	return c.config.Interval
}

// Reconcile deletes filter logs older than the retention period.
func (c *FilterLogRetentionController) Reconcile(ctx context.Context) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -c.config.RetentionDays)

	deleted, err := c.patterns.DeleteLogsOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		c.logger.Info("pruned filter logs",
			"count", deleted,
			"retention_days", c.config.RetentionDays,
		)
	}
	return int(deleted), nil
}
