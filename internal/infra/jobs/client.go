package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/vexguard/api/pkg/logger"
)

// Client enqueues scan tasks.
type Client struct {
	client *asynq.Client
	logger *logger.Logger
}

// NewClient creates a queue client from a redis URL.
func NewClient(redisURL string, log *logger.Logger) (*Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	return &Client{
		client: asynq.NewClient(opt),
		logger: log.With("component", "job_client"),
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueScan publishes a scan task. Enqueuing the same job id twice
// while the first task is still pending is reported as a conflict by
// asynq and treated as success here; the job is already on its way.
func (c *Client) EnqueueScan(ctx context.Context, payload ScanTaskPayload) error {
	task, err := NewScanTask(payload)
	if err != nil {
		return err
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			c.logger.Warn("scan task already queued", "job_id", payload.JobID)
			return nil
		}
		c.logger.Error("failed to enqueue scan",
			"job_id", payload.JobID,
			"repo_id", payload.RepoID,
			"error", err,
		)
		return fmt.Errorf("enqueue scan task: %w", err)
	}

	c.logger.Info("scan queued",
		"task_id", info.ID,
		"job_id", payload.JobID,
		"repo_id", payload.RepoID,
		"trigger", payload.Trigger,
		"queue", info.Queue,
	)
	return nil
}
