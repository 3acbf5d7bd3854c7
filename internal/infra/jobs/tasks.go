// Package jobs wires scan execution onto the durable task queue.
package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/vexguard/api/pkg/domain/scan"
)

const (
	// TypeScanRun is the task type for one scan job execution.
	TypeScanRun = "scan:run"

	// QueueScans is the named queue all scan tasks land on.
	QueueScans = "scans"

	// scanTaskTimeout caps one attempt's wall clock.
	scanTaskTimeout = 10 * time.Minute
)

// retryBackoff is the fixed delay schedule between scan attempts.
var retryBackoff = []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second}

// ScanTaskPayload is the message published for a queued scan job. The
// worker reloads the job row before running, so the payload mostly
// serves logging and queue introspection.
type ScanTaskPayload struct {
	JobID        string    `json:"job_id"`
	RepoID       string    `json:"repo_id"`
	Trigger      string    `json:"trigger"`
	ScanType     string    `json:"scan_type"`
	CommitSHA    string    `json:"commit_sha,omitempty"`
	Branch       string    `json:"branch,omitempty"`
	PRNumber     *int      `json:"pr_number,omitempty"`
	ChangedFiles []string  `json:"changed_files,omitempty"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

// NewScanTask builds the asynq task for a scan job. The task id equals
// the job id so a job can never be queued twice concurrently.
func NewScanTask(payload ScanTaskPayload) (*asynq.Task, error) {
	if payload.JobID == "" {
		return nil, fmt.Errorf("scan task requires a job id")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal scan payload: %w", err)
	}

	return asynq.NewTask(TypeScanRun, data,
		asynq.Queue(QueueScans),
		asynq.TaskID(payload.JobID),
		asynq.MaxRetry(scan.MaxRetries),
		asynq.Timeout(scanTaskTimeout),
	), nil
}

// scanRetryDelay returns the backoff before retry n (zero-based count of
// completed attempts). Retries beyond the schedule reuse its last entry.
func scanRetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n < 0 {
		n = 0
	}
	if n >= len(retryBackoff) {
		n = len(retryBackoff) - 1
	}
	return retryBackoff[n]
}
