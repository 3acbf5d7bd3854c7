package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/vexguard/api/internal/app"
	"github.com/vexguard/api/pkg/logger"
)

// WorkerConfig holds the configuration for the scan worker.
type WorkerConfig struct {
	RedisURL    string
	Concurrency int
}

// Worker consumes the scans queue and drives the scan pipeline.
type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	pipeline *app.ScanPipeline
	logger   *logger.Logger
}

// NewWorker creates a scan worker.
func NewWorker(cfg WorkerConfig, pipeline *app.ScanPipeline, log *logger.Logger) (*Worker, error) {
	if pipeline == nil {
		return nil, errors.New("scan pipeline is required")
	}

	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueScans: 10,
		},
		RetryDelayFunc: scanRetryDelay,
		Logger:         asynqLogger{log.With("component", "asynq")},
	})

	w := &Worker{
		server:   server,
		mux:      asynq.NewServeMux(),
		pipeline: pipeline,
		logger:   log.With("component", "scan_worker"),
	}
	w.mux.HandleFunc(TypeScanRun, w.handleScanRun)
	return w, nil
}

func (w *Worker) handleScanRun(ctx context.Context, t *asynq.Task) error {
	var payload ScanTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal scan payload: %v: %w", err, asynq.SkipRetry)
	}

	log := w.logger.With("job_id", payload.JobID, "repo_id", payload.RepoID)
	log.Info("scan attempt started", "trigger", payload.Trigger, "scan_type", payload.ScanType)

	err := w.pipeline.Run(ctx, payload.JobID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, app.ErrScanCancelled):
		// The job was superseded or cancelled; nothing to retry.
		log.Info("scan cancelled before or during execution")
		return nil
	case errors.Is(err, app.ErrScanNotRetryable):
		log.Error("scan failed permanently", "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	default:
		log.Warn("scan attempt failed", "error", err)
		return err
	}
}

// Start starts the worker asynchronously.
func (w *Worker) Start() error {
	w.logger.Info("starting scan worker")
	return w.server.Start(w.mux)
}

// Stop stops the worker gracefully, letting in-flight scans finish.
func (w *Worker) Stop() {
	w.logger.Info("stopping scan worker")
	w.server.Shutdown()
}

// Run runs the worker until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Start(w.mux)
	}()

	select {
	case <-ctx.Done():
		w.Stop()
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("worker error: %w", err)
		}
		return nil
	}
}

// asynqLogger adapts our logger to asynq's logging interface.
type asynqLogger struct {
	log *logger.Logger
}

func (l asynqLogger) Debug(args ...any) { l.log.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.log.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.log.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.log.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.log.Error(fmt.Sprint(args...)) }
