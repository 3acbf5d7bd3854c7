package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/vexguard/api/pkg/crypto"
	"github.com/vexguard/api/pkg/domain/repo"
	"github.com/vexguard/api/pkg/domain/scan"
	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/logger"
)

// RepoService manages repository registrations: credential validation,
// webhook installation, and the onboarding scan.
type RepoService struct {
	repos       repo.Repo
	clients     SCMClients
	cipher      crypto.Encryptor
	scans       *ScanService
	callbackURL string
	logger      *logger.Logger
}

// NewRepoService creates a new RepoService. callbackURL is the public
// base URL webhooks are delivered to, without a trailing slash.
func NewRepoService(
	repos repo.Repo,
	clients SCMClients,
	cipher crypto.Encryptor,
	scans *ScanService,
	callbackURL string,
	log *logger.Logger,
) *RepoService {
	return &RepoService{
		repos:       repos,
		clients:     clients,
		cipher:      cipher,
		scans:       scans,
		callbackURL: strings.TrimRight(callbackURL, "/"),
		logger:      log.With("service", "repo"),
	}
}

// RegisterRepositoryInput represents input for connecting a repository.
type RegisterRepositoryInput struct {
	TeamID         string `json:"team_id" validate:"required,uuid"`
	Platform       string `json:"platform" validate:"required,oneof=github gitlab bitbucket"`
	PlatformRepoID string `json:"platform_repo_id" validate:"required,max=255"`
	Name           string `json:"name" validate:"required,max=255"`
	CloneURL       string `json:"clone_url" validate:"required,url"`
	DefaultBranch  string `json:"default_branch" validate:"max=255"`
	BaseURL        string `json:"base_url" validate:"omitempty,url"`
	InstallationID int64  `json:"installation_id"`
	AccessToken    string `json:"access_token"`
}

// RegisterRepository connects a repository: the credential is validated
// against the platform before anything is stored, then the webhook is
// installed and the onboarding scan enqueued.
func (s *RepoService) RegisterRepository(ctx context.Context, input RegisterRepositoryInput) (*repo.Repository, error) {
	teamID, err := shared.IDFromString(input.TeamID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid team ID", shared.ErrValidation)
	}
	platform, err := repo.ParsePlatform(input.Platform)
	if err != nil {
		return nil, err
	}

	if _, err := s.repos.GetByPlatformID(ctx, platform, input.PlatformRepoID); err == nil {
		return nil, repo.ErrRepositoryExists
	} else if !shared.IsNotFound(err) {
		return nil, err
	}

	r, err := repo.NewRepository(
		shared.NewID(),
		teamID,
		platform,
		input.PlatformRepoID,
		input.Name,
		input.CloneURL,
		input.DefaultBranch,
	)
	if err != nil {
		return nil, err
	}
	if input.BaseURL != "" {
		r.SetBaseURL(strings.TrimRight(input.BaseURL, "/"))
	}
	if input.InstallationID != 0 {
		r.SetInstallationID(input.InstallationID)
	}
	if input.AccessToken != "" {
		enc, err := s.cipher.EncryptString(input.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("encrypt access token: %w", err)
		}
		r.SetAccessTokenEnc(enc)
	}

	client, err := s.clients.NewClient(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if err := client.ValidateAccess(ctx); err != nil {
		return nil, fmt.Errorf("%w: credential cannot access %s: %v", shared.ErrValidation, input.Name, err)
	}

	if input.DefaultBranch == "" {
		if branch, err := client.DefaultBranch(ctx); err == nil {
			r.SetDefaultBranch(branch)
		}
	}

	secret, err := newWebhookSecret()
	if err != nil {
		return nil, err
	}
	encSecret, err := s.cipher.EncryptString(secret)
	if err != nil {
		return nil, fmt.Errorf("encrypt webhook secret: %w", err)
	}
	r.SetWebhookSecretEnc(encSecret)

	if err := client.RegisterWebhook(ctx, s.webhookEndpoint(platform), secret); err != nil {
		// The repository is usable without a webhook; scans just need
		// manual or scheduled triggers until one is installed.
		s.logger.Warn("webhook registration failed",
			"repo", input.Name,
			"platform", string(platform),
			"error", err,
		)
	}

	if err := s.repos.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create repository: %w", err)
	}

	s.logger.Info("repository registered",
		"repo_id", r.ID().String(),
		"team_id", input.TeamID,
		"platform", string(platform),
		"name", input.Name,
	)

	if _, err := s.scans.EnqueueScan(ctx, EnqueueScanInput{
		RepoID:   r.ID().String(),
		Trigger:  string(scan.TriggerManual),
		ScanType: string(scan.TypeInitial),
		Branch:   r.DefaultBranch(),
	}); err != nil {
		s.logger.Warn("onboarding scan not enqueued", "repo_id", r.ID().String(), "error", err)
	}

	return r, nil
}

// GetRepository returns one repository scoped to a team.
func (s *RepoService) GetRepository(ctx context.Context, repoID, teamID string) (*repo.Repository, error) {
	rid, err := shared.IDFromString(repoID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid repo ID", shared.ErrValidation)
	}
	tid, err := shared.IDFromString(teamID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid team ID", shared.ErrValidation)
	}

	r, err := s.repos.GetByID(ctx, rid)
	if err != nil {
		return nil, err
	}
	if !r.TeamID().Equals(tid) {
		return nil, repo.ErrRepositoryNotFound
	}
	return r, nil
}

// ListRepositoriesInput represents input for listing repositories.
type ListRepositoriesInput struct {
	TeamID   string `json:"team_id" validate:"required,uuid"`
	Platform string `json:"platform" validate:"omitempty,oneof=github gitlab bitbucket"`
	Search   string `json:"search" validate:"max=255"`
	Page     int    `json:"page" validate:"min=0"`
	PerPage  int    `json:"per_page" validate:"min=0,max=100"`
}

// ListRepositories returns a page of a team's repositories.
func (s *RepoService) ListRepositories(ctx context.Context, input ListRepositoriesInput) (repo.ListResult, error) {
	teamID, err := shared.IDFromString(input.TeamID)
	if err != nil {
		return repo.ListResult{}, fmt.Errorf("%w: invalid team ID", shared.ErrValidation)
	}

	filter := repo.Filter{
		TeamID:  &teamID,
		Search:  input.Search,
		Page:    input.Page,
		PerPage: input.PerPage,
	}
	if input.Platform != "" {
		platform, err := repo.ParsePlatform(input.Platform)
		if err != nil {
			return repo.ListResult{}, err
		}
		filter.Platform = &platform
	}
	return s.repos.List(ctx, filter)
}

// DeactivateRepository stops new scans without touching history.
func (s *RepoService) DeactivateRepository(ctx context.Context, repoID, teamID string) (*repo.Repository, error) {
	r, err := s.GetRepository(ctx, repoID, teamID)
	if err != nil {
		return nil, err
	}

	r.Deactivate()
	if err := s.repos.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("deactivate repository: %w", err)
	}

	s.logger.Info("repository deactivated", "repo_id", repoID, "team_id", teamID)
	return r, nil
}

// DeleteRepository hard-deletes the repository and everything scoped
// under it: scans, findings, filter logs, patch PRs.
func (s *RepoService) DeleteRepository(ctx context.Context, repoID, teamID string) error {
	r, err := s.GetRepository(ctx, repoID, teamID)
	if err != nil {
		return err
	}

	if err := s.repos.Delete(ctx, r.ID()); err != nil {
		return fmt.Errorf("delete repository: %w", err)
	}

	s.logger.Info("repository deleted", "repo_id", repoID, "team_id", teamID)
	return nil
}

func (s *RepoService) webhookEndpoint(platform repo.Platform) string {
	return s.callbackURL + "/api/v1/webhooks/" + string(platform)
}

// newWebhookSecret returns 32 bytes of entropy, hex encoded.
func newWebhookSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate webhook secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
