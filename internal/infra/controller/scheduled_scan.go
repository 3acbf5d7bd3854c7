package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vexguard/api/internal/app"
	"github.com/vexguard/api/internal/metrics"
	"github.com/vexguard/api/pkg/domain/repo"
	"github.com/vexguard/api/pkg/domain/scan"
	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/logger"
)

// ScanEnqueuer admits scan jobs. Implemented by app.ScanService.
type ScanEnqueuer interface {
	EnqueueScan(ctx context.Context, input app.EnqueueScanInput) (*scan.Job, error)
}

// ScheduledScanControllerConfig configures the ScheduledScanController.
type ScheduledScanControllerConfig struct {
	// CronSpec decides when the sweep fires. Default: Sunday 03:00.
	CronSpec string

	// Interval is how often the controller checks whether the schedule
	// fired. Default: 1 minute.
	Interval time.Duration

	Logger *logger.Logger
}

// ScheduledScanController enqueues a full scan for every active
// repository whenever the cron schedule fires. Repositories that
// already have an active scan are skipped, not queued behind it.
type ScheduledScanController struct {
	repos    repo.Repo
	scans    ScanEnqueuer
	schedule cron.Schedule
	config   *ScheduledScanControllerConfig
	logger   *logger.Logger

	// lastCheck advances every reconcile; the sweep runs when the
	// schedule has a fire time inside (lastCheck, now].
	lastCheck time.Time
}

// NewScheduledScanController creates a new ScheduledScanController.
func NewScheduledScanController(
	repos repo.Repo,
	scans ScanEnqueuer,
	config *ScheduledScanControllerConfig,
) (*ScheduledScanController, error) {
	if config == nil {
		config = &ScheduledScanControllerConfig{}
	}
	if config.CronSpec == "" {
		config.CronSpec = "0 3 * * 0"
	}
	if config.Interval == 0 {
		config.Interval = time.Minute
	}
	if config.Logger == nil {
		config.Logger = logger.NewNop()
	}

	schedule, err := cron.ParseStandard(config.CronSpec)
	if err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", config.CronSpec, err)
	}

	return &ScheduledScanController{
		repos:     repos,
		scans:     scans,
		schedule:  schedule,
		config:    config,
		logger:    config.Logger,
		lastCheck: time.Now(),
	}, nil
}

// Name returns the controller name.
func (c *ScheduledScanController) Name() string {
	return "scheduled-scan"
}

// Interval returns the reconciliation interval.
func (c *ScheduledScanController) Interval() time.Duration {
	return c.config.Interval
}

// Reconcile runs the sweep when the schedule fired since the last check.
func (c *ScheduledScanController) Reconcile(ctx context.Context) (int, error) {
	now := time.Now()
	fire := c.schedule.Next(c.lastCheck)
	c.lastCheck = now
	if fire.After(now) {
		return 0, nil
	}

	return c.sweep(ctx)
}

// sweep enqueues one full scheduled scan per active repository.
func (c *ScheduledScanController) sweep(ctx context.Context) (int, error) {
	repos, err := c.repos.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active repositories: %w", err)
	}

	metrics.SchedulerLastRun.SetToCurrentTime()

	enqueued := 0
	for _, r := range repos {
		_, err := c.scans.EnqueueScan(ctx, app.EnqueueScanInput{
			RepoID:   r.ID().String(),
			TeamID:   r.TeamID().String(),
			Trigger:  string(scan.TriggerSchedule),
			ScanType: string(scan.TypeFull),
			Branch:   r.DefaultBranch(),
		})
		switch {
		case err == nil:
			enqueued++
			metrics.ScheduledScansTotal.WithLabelValues("enqueued").Inc()
		case shared.IsConflict(err):
			// An earlier scan is still active; the weekly pass yields.
			metrics.ScheduledScansTotal.WithLabelValues("skipped").Inc()
		default:
			metrics.ScheduledScansTotal.WithLabelValues("error").Inc()
			c.logger.Error("scheduled scan enqueue failed",
				"repo_id", r.ID().String(),
				"error", err,
			)
		}
	}

	c.logger.Info("scheduled scan sweep completed",
		"repos", len(repos),
		"enqueued", enqueued,
	)
	return enqueued, nil
}
