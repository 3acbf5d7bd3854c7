// Package app provides the application services that sit between the
// HTTP layer and the domain. Services own orchestration and tenant
// scoping; entities own their own invariants.
package app

import (
	"context"
	"errors"
)

// ErrScanCancelled signals that a scan attempt found its job cancelled.
// The queue treats it as success; there is nothing left to do.
var ErrScanCancelled = errors.New("scan cancelled")

// ErrScanNotRetryable signals a failure that redelivery cannot fix, such
// as a revoked credential or a deleted repository.
var ErrScanNotRetryable = errors.New("scan not retryable")

// ScanMessage is the queue payload for one scan job. It duplicates the
// job's target so the worker can log context before loading the row.
type ScanMessage struct {
	JobID        string
	RepoID       string
	Trigger      string
	ScanType     string
	CommitSHA    string
	Branch       string
	PRNumber     *int
	ChangedFiles []string
}

// ScanEnqueuer publishes scan jobs to the durable queue.
type ScanEnqueuer interface {
	EnqueueScan(ctx context.Context, msg ScanMessage) error
}
