// Package scan holds the ScanJob entity and its state machine.
package scan

import (
	"fmt"
	"strings"
	"time"

	"github.com/vexguard/api/pkg/domain/shared"
)

// ID is a type alias for shared.ID.
type ID = shared.ID

// MaxRetries bounds how many times a failed scan is redelivered.
const MaxRetries = 3

// Status is a ScanJob state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsValid reports whether the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// TriggerType records what started the scan.
type TriggerType string

const (
	TriggerWebhook  TriggerType = "webhook"
	TriggerManual   TriggerType = "manual"
	TriggerSchedule TriggerType = "schedule"
)

// ParseTriggerType parses a trigger type string.
func ParseTriggerType(s string) (TriggerType, error) {
	t := TriggerType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TriggerWebhook, TriggerManual, TriggerSchedule:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown trigger type %q", shared.ErrValidation, s)
}

// Type is the scan scope.
type Type string

const (
	TypeFull        Type = "full"
	TypeIncremental Type = "incremental"
	TypePR          Type = "pr"
	TypeInitial     Type = "initial"
)

// ParseType parses a scan type string.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TypeFull, TypeIncremental, TypePR, TypeInitial:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown scan type %q", shared.ErrValidation, s)
}

// Job is one scheduled or executed scan of a repository.
type Job struct {
	id                  ID
	repoID              ID
	teamID              ID
	trigger             TriggerType
	scanType            Type
	status              Status
	commitSHA           string
	branch              string
	prNumber            *int
	changedFiles        []string
	retryCount          int
	findingsCount       int
	truePositivesCount  int
	falsePositivesCount int
	autoFilteredCount   int
	errorMessage        string
	startedAt           *time.Time
	completedAt         *time.Time
	durationSeconds     *int
	createdAt           time.Time
	updatedAt           time.Time
}

// NewJob creates a queued scan job.
func NewJob(id, repoID, teamID ID, trigger TriggerType, scanType Type) *Job {
	now := time.Now()
	return &Job{
		id:        id,
		repoID:    repoID,
		teamID:    teamID,
		trigger:   trigger,
		scanType:  scanType,
		status:    StatusQueued,
		createdAt: now,
		updatedAt: now,
	}
}

// Reconstruct creates a Job from stored data.
func Reconstruct(
	id, repoID, teamID ID,
	trigger TriggerType,
	scanType Type,
	status Status,
	commitSHA, branch string,
	prNumber *int,
	changedFiles []string,
	retryCount, findingsCount, truePositivesCount, falsePositivesCount, autoFilteredCount int,
	errorMessage string,
	startedAt, completedAt *time.Time,
	durationSeconds *int,
	createdAt, updatedAt time.Time,
) *Job {
	return &Job{
		id:                  id,
		repoID:              repoID,
		teamID:              teamID,
		trigger:             trigger,
		scanType:            scanType,
		status:              status,
		commitSHA:           commitSHA,
		branch:              branch,
		prNumber:            prNumber,
		changedFiles:        changedFiles,
		retryCount:          retryCount,
		findingsCount:       findingsCount,
		truePositivesCount:  truePositivesCount,
		falsePositivesCount: falsePositivesCount,
		autoFilteredCount:   autoFilteredCount,
		errorMessage:        errorMessage,
		startedAt:           startedAt,
		completedAt:         completedAt,
		durationSeconds:     durationSeconds,
		createdAt:           createdAt,
		updatedAt:           updatedAt,
	}
}

func (j *Job) ID() ID                   { return j.id }
func (j *Job) RepoID() ID               { return j.repoID }
func (j *Job) TeamID() ID               { return j.teamID }
func (j *Job) Trigger() TriggerType     { return j.trigger }
func (j *Job) ScanType() Type           { return j.scanType }
func (j *Job) Status() Status           { return j.status }
func (j *Job) CommitSHA() string        { return j.commitSHA }
func (j *Job) Branch() string           { return j.branch }
func (j *Job) PRNumber() *int           { return j.prNumber }
func (j *Job) ChangedFiles() []string   { return j.changedFiles }
func (j *Job) RetryCount() int          { return j.retryCount }
func (j *Job) FindingsCount() int       { return j.findingsCount }
func (j *Job) TruePositivesCount() int  { return j.truePositivesCount }
func (j *Job) FalsePositivesCount() int { return j.falsePositivesCount }
func (j *Job) AutoFilteredCount() int   { return j.autoFilteredCount }
func (j *Job) ErrorMessage() string     { return j.errorMessage }
func (j *Job) StartedAt() *time.Time    { return j.startedAt }
func (j *Job) CompletedAt() *time.Time  { return j.completedAt }
func (j *Job) DurationSeconds() *int    { return j.durationSeconds }
func (j *Job) CreatedAt() time.Time     { return j.createdAt }
func (j *Job) UpdatedAt() time.Time     { return j.updatedAt }

// SetTarget records what gets scanned.
func (j *Job) SetTarget(commitSHA, branch string, prNumber *int, changedFiles []string) {
	j.commitSHA = commitSHA
	j.branch = branch
	j.prNumber = prNumber
	j.changedFiles = changedFiles
	j.updatedAt = time.Now()
}

// Start transitions queued → running and stamps started_at.
func (j *Job) Start() error {
	if j.status != StatusQueued {
		return fmt.Errorf("%w: cannot start scan in status %q", ErrInvalidTransition, j.status)
	}
	now := time.Now()
	j.status = StatusRunning
	j.startedAt = &now
	j.updatedAt = now
	return nil
}

// Complete transitions running → completed and stamps completion fields.
func (j *Job) Complete() error {
	if j.status != StatusRunning {
		return fmt.Errorf("%w: cannot complete scan in status %q", ErrInvalidTransition, j.status)
	}
	j.finish(StatusCompleted)
	return nil
}

// Fail transitions running → failed, records the error, and increments
// the retry counter.
func (j *Job) Fail(errorMessage string) error {
	if j.status != StatusRunning {
		return fmt.Errorf("%w: cannot fail scan in status %q", ErrInvalidTransition, j.status)
	}
	j.errorMessage = errorMessage
	j.retryCount++
	j.finish(StatusFailed)
	return nil
}

// Cancel transitions queued/running → cancelled. Cancelling an already
// cancelled job is a no-op so supersede paths stay idempotent.
func (j *Job) Cancel() error {
	switch j.status {
	case StatusCancelled:
		return nil
	case StatusQueued, StatusRunning:
		now := time.Now()
		j.status = StatusCancelled
		j.completedAt = &now
		j.updatedAt = now
		return nil
	default:
		return fmt.Errorf("%w: cannot cancel scan in status %q", ErrInvalidTransition, j.status)
	}
}

// finish stamps completed_at and duration_seconds at the terminal
// transition instant, truncated to whole seconds.
func (j *Job) finish(status Status) {
	now := time.Now()
	j.status = status
	j.completedAt = &now
	if j.startedAt != nil {
		secs := int(now.Sub(*j.startedAt).Seconds())
		if secs < 0 {
			secs = 0
		}
		j.durationSeconds = &secs
	}
	j.updatedAt = now
}

// Retry transitions failed → running for a queue redelivery. The retry
// budget must not be exhausted. started_at is restamped so the next
// attempt's duration is measured on its own.
func (j *Job) Retry() error {
	if !j.CanRetry() {
		return fmt.Errorf("%w: cannot retry scan in status %q with %d retries", ErrInvalidTransition, j.status, j.retryCount)
	}
	now := time.Now()
	j.status = StatusRunning
	j.startedAt = &now
	j.completedAt = nil
	j.durationSeconds = nil
	j.updatedAt = now
	return nil
}

// CanRetry reports whether the queue may redeliver this job.
func (j *Job) CanRetry() bool {
	return j.status == StatusFailed && j.retryCount < MaxRetries
}

// SetCounters records the per-scan denormalized counters. Called within
// the same persistence unit that writes findings and filter logs.
func (j *Job) SetCounters(findings, truePositives, falsePositives, autoFiltered int) {
	j.findingsCount = findings
	j.truePositivesCount = truePositives
	j.falsePositivesCount = falsePositives
	j.autoFilteredCount = autoFiltered
	j.updatedAt = time.Now()
}

var (
	ErrScanNotFound      = fmt.Errorf("%w: scan not found", shared.ErrNotFound)
	ErrActiveScanExists  = fmt.Errorf("%w: repository already has an active scan", shared.ErrConflict)
	ErrInvalidTransition = fmt.Errorf("%w: invalid scan state transition", shared.ErrConflict)
)
