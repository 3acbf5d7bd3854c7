package controller

import (
	"context"
	"time"

	"github.com/vexguard/api/pkg/domain/scan"
	"github.com/vexguard/api/pkg/logger"
)

// ScanRecoveryControllerConfig configures the ScanRecoveryController.
type ScanRecoveryControllerConfig struct {
	// Interval is how often to run the recovery check. Default: 1 minute.
	Interval time.Duration

	// StuckThreshold is how long a running scan may go without a
	// progress write before it counts as abandoned. Default: 30 minutes.
	StuckThreshold time.Duration

	// MaxQueueAge is how long a job may wait in the queue before it
	// expires. Default: 1 hour.
	MaxQueueAge time.Duration

	Logger *logger.Logger
}

// ScanRecoveryController fails abandoned scan jobs. A repository admits
// one active scan at a time, so a row stuck in queued or running blocks
// every later scan of that repository until someone clears it.
type ScanRecoveryController struct {
	scans  scan.Repository
	config *ScanRecoveryControllerConfig
	logger *logger.Logger
}

// NewScanRecoveryController creates a new ScanRecoveryController.
func NewScanRecoveryController(
	scans scan.Repository,
	config *ScanRecoveryControllerConfig,
) *ScanRecoveryController {
	if config == nil {
		config = &ScanRecoveryControllerConfig{}
	}
	if config.Interval == 0 {
		config.Interval = time.Minute
	}
	if config.StuckThreshold == 0 {
		config.StuckThreshold = 30 * time.Minute
	}
	if config.MaxQueueAge == 0 {
		config.MaxQueueAge = time.Hour
	}
	if config.Logger == nil {
		config.Logger = logger.NewNop()
	}

	return &ScanRecoveryController{
		scans:  scans,
		config: config,
		logger: config.Logger,
	}
}

// Name returns the controller name.
func (c *ScanRecoveryController) Name() string {
	return "scan-recovery"
}

// Interval returns the reconciliation interval.
func (c *ScanRecoveryController) Interval() time.Duration {
	return c.config.Interval
}

// Reconcile fails stuck running scans, then expires stale queued ones.
func (c *ScanRecoveryController) Reconcile(ctx context.Context) (int, error) {
	total := 0

	failed, err := c.scans.FailStuckRunning(ctx, time.Now().Add(-c.config.StuckThreshold))
	if err != nil {
		return 0, err
	}
	if failed > 0 {
		c.logger.Warn("failed stuck running scans",
			"count", failed,
			"stuck_threshold", c.config.StuckThreshold,
		)
	}
	total += int(failed)

	expired, err := c.scans.ExpireQueued(ctx, time.Now().Add(-c.config.MaxQueueAge))
	if err != nil {
		return total, err
	}
	if expired > 0 {
		c.logger.Warn("expired stale queued scans",
			"count", expired,
			"max_queue_age", c.config.MaxQueueAge,
		)
	}
	total += int(expired)

	return total, nil
}
