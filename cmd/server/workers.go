package main

import (
	"context"
	"fmt"

	"github.com/vexguard/api/internal/config"
	"github.com/vexguard/api/internal/infra/controller"
	"github.com/vexguard/api/internal/infra/jobs"
	"github.com/vexguard/api/pkg/logger"
)

// WorkerDeps holds what the background workers are built from.
type WorkerDeps struct {
	Config   *config.Config
	Log      *logger.Logger
	Repos    *Repositories
	Services *Services
}

// Workers groups the queue consumer and the reconciliation controllers.
type Workers struct {
	scans       *jobs.Worker
	controllers *controller.Manager
}

// NewWorkers builds the scan worker (when enabled) and the controller
// set: scheduled scans, scan recovery, filter log retention.
func NewWorkers(deps *WorkerDeps) (*Workers, error) {
	cfg := deps.Config
	log := deps.Log

	w := &Workers{}

	if cfg.Worker.Enabled {
		scanWorker, err := jobs.NewWorker(jobs.WorkerConfig{
			RedisURL:    cfg.Redis.URL,
			Concurrency: cfg.Worker.Concurrency,
		}, deps.Services.Pipeline, log)
		if err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		w.scans = scanWorker
	}

	manager := controller.NewManager(controller.NewPrometheusMetrics(), log)

	if cfg.Scheduler.Enabled {
		scheduled, err := controller.NewScheduledScanController(
			deps.Repos.Repos,
			deps.Services.Scans,
			&controller.ScheduledScanControllerConfig{
				CronSpec: cfg.Scheduler.CronSpec,
				Logger:   log,
			},
		)
		if err != nil {
			return nil, fmt.Errorf("scheduled scan controller: %w", err)
		}
		manager.Register(scheduled)
	}

	manager.Register(controller.NewScanRecoveryController(deps.Repos.Scans,
		&controller.ScanRecoveryControllerConfig{Logger: log}))
	manager.Register(controller.NewFilterLogRetentionController(deps.Repos.Patterns,
		&controller.FilterLogRetentionControllerConfig{Logger: log}))

	w.controllers = manager
	return w, nil
}

// Start starts the workers.
func (w *Workers) Start(ctx context.Context, log *logger.Logger) error {
	if w.scans != nil {
		if err := w.scans.Start(); err != nil {
			return fmt.Errorf("start scan worker: %w", err)
		}
		log.Info("scan worker started")
	}

	if err := w.controllers.Start(ctx); err != nil {
		return fmt.Errorf("start controllers: %w", err)
	}
	log.Info("controllers started")
	return nil
}

// Stop stops the workers, letting in-flight scans finish.
func (w *Workers) Stop(log *logger.Logger) {
	w.controllers.Stop()
	if w.scans != nil {
		w.scans.Stop()
	}
	log.Info("background workers stopped")
}
