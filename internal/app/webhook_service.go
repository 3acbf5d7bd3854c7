package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/vexguard/api/pkg/crypto"
	"github.com/vexguard/api/pkg/domain/repo"
	"github.com/vexguard/api/pkg/domain/scan"
	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/logger"
)

// WebhookService translates platform webhook deliveries into scan jobs.
// Events for unknown or deactivated repositories are acknowledged and
// dropped; a webhook delivery must never surface an error the platform
// would retry forever.
type WebhookService struct {
	repos  repo.Repo
	scans  *ScanService
	cipher crypto.Encryptor
	logger *logger.Logger
}

// NewWebhookService creates a new WebhookService.
func NewWebhookService(repos repo.Repo, scans *ScanService, cipher crypto.Encryptor, log *logger.Logger) *WebhookService {
	return &WebhookService{
		repos:  repos,
		scans:  scans,
		cipher: cipher,
		logger: log.With("service", "webhook"),
	}
}

// PushEvent is a platform-neutral push notification.
type PushEvent struct {
	Platform       repo.Platform
	PlatformRepoID string
	Branch         string
	CommitSHA      string
	ChangedFiles   []string
}

// PREvent is a platform-neutral pull request notification.
type PREvent struct {
	Platform       repo.Platform
	PlatformRepoID string
	Action         PRAction
	PRNumber       int
	SourceBranch   string
	CommitSHA      string
	ChangedFiles   []string
}

// PRAction is the normalized pull request action.
type PRAction string

const (
	PRActionOpened       PRAction = "opened"
	PRActionSynchronized PRAction = "synchronized"
	PRActionClosed       PRAction = "closed"
)

// WebhookSecret returns the plaintext signing secret for a repository's
// webhook. Platforms without a per-repo secret get an empty string.
func (s *WebhookService) WebhookSecret(ctx context.Context, platform repo.Platform, platformRepoID string) (string, error) {
	r, err := s.repos.GetByPlatformID(ctx, platform, platformRepoID)
	if err != nil {
		return "", err
	}
	if r.WebhookSecretEnc() == "" {
		return "", nil
	}
	secret, err := s.cipher.DecryptString(r.WebhookSecretEnc())
	if err != nil {
		return "", fmt.Errorf("decrypt webhook secret: %w", err)
	}
	return secret, nil
}

// HandlePush enqueues a scan for a push to the default branch. Pushes to
// other branches, unknown repositories, and repositories with a scan
// already in flight are dropped. Returns the enqueued job, or nil when
// the event was a no-op.
func (s *WebhookService) HandlePush(ctx context.Context, event PushEvent) (*scan.Job, error) {
	r, err := s.repos.GetByPlatformID(ctx, event.Platform, event.PlatformRepoID)
	if err != nil {
		if shared.IsNotFound(err) {
			s.logger.Debug("push for unknown repository",
				"platform", string(event.Platform),
				"platform_repo_id", event.PlatformRepoID,
			)
			return nil, nil
		}
		return nil, err
	}
	if !r.IsActive() {
		return nil, nil
	}
	if event.Branch != "" && event.Branch != r.DefaultBranch() {
		return nil, nil
	}

	scanType := scan.TypeIncremental
	changed := event.ChangedFiles
	if !r.IsInitialScanDone() || len(changed) == 0 {
		// Without a completed baseline, or without a diff, scan everything.
		scanType = scan.TypeFull
		if !r.IsInitialScanDone() {
			scanType = scan.TypeInitial
		}
		changed = nil
	}

	job, err := s.scans.EnqueueScan(ctx, EnqueueScanInput{
		RepoID:       r.ID().String(),
		Trigger:      string(scan.TriggerWebhook),
		ScanType:     string(scanType),
		CommitSHA:    event.CommitSHA,
		Branch:       r.DefaultBranch(),
		ChangedFiles: changed,
	})
	if err != nil {
		if errors.Is(err, scan.ErrActiveScanExists) {
			s.logger.Info("push dropped, scan already active", "repo_id", r.ID().String())
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

// HandlePullRequest enqueues or supersedes a PR scan. A synchronize
// cancels any scan still running against the PR's previous head before
// enqueuing the new one; a close just cancels.
func (s *WebhookService) HandlePullRequest(ctx context.Context, event PREvent) (*scan.Job, error) {
	r, err := s.repos.GetByPlatformID(ctx, event.Platform, event.PlatformRepoID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if !r.IsActive() {
		return nil, nil
	}

	switch event.Action {
	case PRActionOpened:
		// Fall through to enqueue.
	case PRActionSynchronized:
		if _, err := s.scans.CancelActiveScansForPR(ctx, r.ID(), event.PRNumber); err != nil {
			return nil, err
		}
	case PRActionClosed:
		_, err := s.scans.CancelActiveScansForPR(ctx, r.ID(), event.PRNumber)
		return nil, err
	default:
		return nil, nil
	}

	pr := event.PRNumber
	job, err := s.scans.EnqueueScan(ctx, EnqueueScanInput{
		RepoID:       r.ID().String(),
		Trigger:      string(scan.TriggerWebhook),
		ScanType:     string(scan.TypePR),
		CommitSHA:    event.CommitSHA,
		Branch:       event.SourceBranch,
		PRNumber:     &pr,
		ChangedFiles: event.ChangedFiles,
	})
	if err != nil {
		if errors.Is(err, scan.ErrActiveScanExists) {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

// InstallationRepo identifies one repository named in an installation
// event.
type InstallationRepo struct {
	PlatformRepoID string
	FullName       string
}

// HandleInstallationCreated binds already-registered repositories to a
// GitHub App installation so app-auth clones start working.
func (s *WebhookService) HandleInstallationCreated(ctx context.Context, installationID int64, repos []InstallationRepo) error {
	bound := 0
	for _, ir := range repos {
		r, err := s.repos.GetByPlatformID(ctx, repo.PlatformGitHub, ir.PlatformRepoID)
		if err != nil {
			if shared.IsNotFound(err) {
				continue
			}
			return err
		}
		r.SetInstallationID(installationID)
		r.Activate()
		if err := s.repos.Update(ctx, r); err != nil {
			return fmt.Errorf("bind installation: %w", err)
		}
		bound++
	}
	s.logger.Info("installation created", "installation_id", installationID, "repos_bound", bound)
	return nil
}

// HandleInstallationDeleted deactivates every repository bound to the
// installation. Scan history stays; new scans stop.
func (s *WebhookService) HandleInstallationDeleted(ctx context.Context, installationID int64) error {
	bound, err := s.repos.ListByInstallation(ctx, installationID)
	if err != nil {
		return fmt.Errorf("list installation repos: %w", err)
	}
	for _, r := range bound {
		r.Deactivate()
		r.SetInstallationID(0)
		if err := s.repos.Update(ctx, r); err != nil {
			return fmt.Errorf("deactivate repository: %w", err)
		}
	}
	s.logger.Info("installation deleted", "installation_id", installationID, "repos_deactivated", len(bound))
	return nil
}
