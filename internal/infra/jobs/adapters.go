package jobs

import (
	"context"
	"time"

	"github.com/vexguard/api/internal/app"
)

// ScanEnqueuerAdapter wraps the queue Client to implement
// app.ScanEnqueuer.
type ScanEnqueuerAdapter struct {
	client *Client
}

// NewScanEnqueuerAdapter creates a new adapter.
func NewScanEnqueuerAdapter(client *Client) *ScanEnqueuerAdapter {
	return &ScanEnqueuerAdapter{client: client}
}

// EnqueueScan converts the app message to a queue payload and enqueues it.
func (a *ScanEnqueuerAdapter) EnqueueScan(ctx context.Context, msg app.ScanMessage) error {
	return a.client.EnqueueScan(ctx, ScanTaskPayload{
		JobID:        msg.JobID,
		RepoID:       msg.RepoID,
		Trigger:      msg.Trigger,
		ScanType:     msg.ScanType,
		CommitSHA:    msg.CommitSHA,
		Branch:       msg.Branch,
		PRNumber:     msg.PRNumber,
		ChangedFiles: msg.ChangedFiles,
		EnqueuedAt:   time.Now().UTC(),
	})
}

var _ app.ScanEnqueuer = (*ScanEnqueuerAdapter)(nil)
