package app

import (
	"context"
	"fmt"

	"github.com/vexguard/api/pkg/domain/repo"
	"github.com/vexguard/api/pkg/domain/scan"
	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/logger"
)

// ScanService admits scan jobs into the queue and manages their
// lifecycle from the API side. Execution lives in ScanPipeline.
type ScanService struct {
	scans    scan.Repository
	repos    repo.Repo
	enqueuer ScanEnqueuer
	logger   *logger.Logger
}

// NewScanService creates a new ScanService.
func NewScanService(scans scan.Repository, repos repo.Repo, enqueuer ScanEnqueuer, log *logger.Logger) *ScanService {
	return &ScanService{
		scans:    scans,
		repos:    repos,
		enqueuer: enqueuer,
		logger:   log.With("service", "scan"),
	}
}

// EnqueueScanInput represents input for admitting a scan job.
type EnqueueScanInput struct {
	RepoID       string   `json:"repo_id" validate:"required,uuid"`
	TeamID       string   `json:"team_id" validate:"omitempty,uuid"`
	Trigger      string   `json:"trigger" validate:"required"`
	ScanType     string   `json:"scan_type" validate:"required"`
	CommitSHA    string   `json:"commit_sha" validate:"max=64"`
	Branch       string   `json:"branch" validate:"max=255"`
	PRNumber     *int     `json:"pr_number"`
	ChangedFiles []string `json:"changed_files"`
}

// EnqueueScan admits one scan job: it checks the single-active-scan
// rule, persists the queued row, and publishes the queue message. A
// repository may have at most one non-terminal non-PR scan, and at most
// one non-terminal scan per pull request.
func (s *ScanService) EnqueueScan(ctx context.Context, input EnqueueScanInput) (*scan.Job, error) {
	repoID, err := shared.IDFromString(input.RepoID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid repo ID", shared.ErrValidation)
	}
	trigger, err := scan.ParseTriggerType(input.Trigger)
	if err != nil {
		return nil, err
	}
	scanType, err := scan.ParseType(input.ScanType)
	if err != nil {
		return nil, err
	}
	if scanType == scan.TypePR && input.PRNumber == nil {
		return nil, fmt.Errorf("%w: pr scans require a pr number", shared.ErrValidation)
	}

	r, err := s.repos.GetByID(ctx, repoID)
	if err != nil {
		return nil, err
	}
	if input.TeamID != "" {
		teamID, err := shared.IDFromString(input.TeamID)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid team ID", shared.ErrValidation)
		}
		if !r.TeamID().Equals(teamID) {
			return nil, repo.ErrRepositoryNotFound
		}
	}
	if !r.IsActive() {
		return nil, repo.ErrRepositoryInactive
	}

	if input.PRNumber != nil {
		active, err := s.scans.ListActiveForPR(ctx, repoID, *input.PRNumber)
		if err != nil {
			return nil, fmt.Errorf("check active pr scans: %w", err)
		}
		if len(active) > 0 {
			return nil, scan.ErrActiveScanExists
		}
	} else {
		active, err := s.scans.HasActiveScan(ctx, repoID)
		if err != nil {
			return nil, fmt.Errorf("check active scans: %w", err)
		}
		if active {
			return nil, scan.ErrActiveScanExists
		}
	}

	branch := input.Branch
	if branch == "" && input.PRNumber == nil {
		branch = r.DefaultBranch()
	}

	job := scan.NewJob(shared.NewID(), repoID, r.TeamID(), trigger, scanType)
	job.SetTarget(input.CommitSHA, branch, input.PRNumber, input.ChangedFiles)

	if err := s.scans.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create scan job: %w", err)
	}

	msg := ScanMessage{
		JobID:        job.ID().String(),
		RepoID:       repoID.String(),
		Trigger:      string(trigger),
		ScanType:     string(scanType),
		CommitSHA:    input.CommitSHA,
		Branch:       branch,
		PRNumber:     input.PRNumber,
		ChangedFiles: input.ChangedFiles,
	}
	if err := s.enqueuer.EnqueueScan(ctx, msg); err != nil {
		// The row exists but no message made it out. Cancel so the
		// repository is not wedged behind a job nothing will run.
		if cancelErr := job.Cancel(); cancelErr == nil {
			if updErr := s.scans.Update(ctx, job); updErr != nil {
				s.logger.Error("failed to cancel unpublished scan", "job_id", job.ID().String(), "error", updErr)
			}
		}
		return nil, fmt.Errorf("enqueue scan: %w", err)
	}

	s.logger.Info("scan enqueued",
		"job_id", job.ID().String(),
		"repo_id", repoID.String(),
		"trigger", trigger,
		"scan_type", scanType,
	)
	return job, nil
}

// CancelScan cancels a queued or running scan. Cancelling a terminal
// scan is a conflict, cancelling an already cancelled one is a no-op.
func (s *ScanService) CancelScan(ctx context.Context, jobID, teamID string) (*scan.Job, error) {
	id, err := shared.IDFromString(jobID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid scan ID", shared.ErrValidation)
	}
	tid, err := shared.IDFromString(teamID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid team ID", shared.ErrValidation)
	}

	job, err := s.scans.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.TeamID().Equals(tid) {
		return nil, scan.ErrScanNotFound
	}

	if err := job.Cancel(); err != nil {
		return nil, err
	}
	if err := s.scans.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("update scan job: %w", err)
	}

	s.logger.Info("scan cancelled", "job_id", jobID, "team_id", teamID)
	return job, nil
}

// CancelActiveScansForPR cancels every non-terminal scan for one pull
// request. Used when a new push supersedes the commit under review.
func (s *ScanService) CancelActiveScansForPR(ctx context.Context, repoID scan.ID, prNumber int) (int, error) {
	active, err := s.scans.ListActiveForPR(ctx, repoID, prNumber)
	if err != nil {
		return 0, fmt.Errorf("list active pr scans: %w", err)
	}

	cancelled := 0
	for _, job := range active {
		if err := job.Cancel(); err != nil {
			continue
		}
		if err := s.scans.Update(ctx, job); err != nil {
			return cancelled, fmt.Errorf("update scan job: %w", err)
		}
		cancelled++
	}

	if cancelled > 0 {
		s.logger.Info("superseded pr scans cancelled",
			"repo_id", repoID.String(),
			"pr_number", prNumber,
			"count", cancelled,
		)
	}
	return cancelled, nil
}

// GetScan returns one scan job scoped to a team.
func (s *ScanService) GetScan(ctx context.Context, jobID, teamID string) (*scan.Job, error) {
	id, err := shared.IDFromString(jobID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid scan ID", shared.ErrValidation)
	}
	tid, err := shared.IDFromString(teamID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid team ID", shared.ErrValidation)
	}

	job, err := s.scans.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.TeamID().Equals(tid) {
		return nil, scan.ErrScanNotFound
	}
	return job, nil
}

// ListScansInput represents input for listing scans.
type ListScansInput struct {
	TeamID  string `json:"team_id" validate:"required,uuid"`
	RepoID  string `json:"repo_id" validate:"omitempty,uuid"`
	Status  string `json:"status"`
	Page    int    `json:"page" validate:"min=0"`
	PerPage int    `json:"per_page" validate:"min=0,max=100"`
}

// ListScans returns a page of scans for a team, newest first.
func (s *ScanService) ListScans(ctx context.Context, input ListScansInput) (scan.ListResult, error) {
	teamID, err := shared.IDFromString(input.TeamID)
	if err != nil {
		return scan.ListResult{}, fmt.Errorf("%w: invalid team ID", shared.ErrValidation)
	}

	filter := scan.Filter{
		TeamID:  &teamID,
		Page:    input.Page,
		PerPage: input.PerPage,
	}
	if input.RepoID != "" {
		repoID, err := shared.IDFromString(input.RepoID)
		if err != nil {
			return scan.ListResult{}, fmt.Errorf("%w: invalid repo ID", shared.ErrValidation)
		}
		filter.RepoID = &repoID
	}
	if input.Status != "" {
		status := scan.Status(input.Status)
		if !status.IsValid() {
			return scan.ListResult{}, fmt.Errorf("%w: unknown scan status %q", shared.ErrValidation, input.Status)
		}
		filter.Status = &status
	}

	return s.scans.List(ctx, filter)
}
