// Package scm provides clients for the source-control platforms a
// repository can live on. Each client normalizes its provider's API into
// the capability set the scan pipeline and patch PR flow need.
package scm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vexguard/api/pkg/crypto"
	"github.com/vexguard/api/pkg/domain/repo"
	"github.com/vexguard/api/pkg/logger"
)

const (
	defaultUserAgent = "vexguard-api"
	defaultTimeout   = 30 * time.Second
)

// CloneCredentials carry short-lived basic-auth material for git-over-HTTPS.
type CloneCredentials struct {
	Username string
	Password string
}

// CommitFileInput describes a single-file commit on a branch.
type CommitFileInput struct {
	Branch  string
	Path    string
	Content []byte
	Message string
}

// PullRequestInput describes a pull/merge request to open.
type PullRequestInput struct {
	Title        string
	Body         string
	SourceBranch string
	TargetBranch string
}

// PullRequest is the provider's view of an opened pull request.
type PullRequest struct {
	Number int
	URL    string
}

// RepositoryInfo is one repository as the provider lists it.
type RepositoryInfo struct {
	PlatformRepoID string
	FullName       string
	DefaultBranch  string
}

// changedFilesPageSize bounds one changed-files listing. PRs touching
// more files than this are scanned unscoped instead.
const changedFilesPageSize = 100

// Client is the capability surface every platform adapter implements.
// All methods return *Error on provider failures so callers can branch
// on the error kind rather than provider status codes.
type Client interface {
	// ValidateAccess verifies the stored credential can read the repository.
	ValidateAccess(ctx context.Context) error

	// DefaultBranch returns the repository's default branch name.
	DefaultBranch(ctx context.Context) (string, error)

	// ResolveRef resolves a branch, tag or SHA prefix to a full commit SHA.
	ResolveRef(ctx context.Context, ref string) (string, error)

	// CloneCredentials returns basic-auth material for cloning over HTTPS.
	CloneCredentials(ctx context.Context) (*CloneCredentials, error)

	// CreateBranch creates a branch pointing at fromSHA.
	CreateBranch(ctx context.Context, name, fromSHA string) error

	// CommitFile creates or updates one file on a branch.
	CommitFile(ctx context.Context, input CommitFileInput) error

	// OpenPullRequest opens a pull/merge request.
	OpenPullRequest(ctx context.Context, input PullRequestInput) (*PullRequest, error)

	// CommentOnPullRequest posts a comment on an existing pull request.
	CommentOnPullRequest(ctx context.Context, prNumber int, body string) error

	// ListChangedFiles returns the paths a pull request touches, up to
	// one provider page. An empty slice means the listing was truncated
	// or the PR is empty; callers fall back to an unscoped scan.
	ListChangedFiles(ctx context.Context, prNumber int) ([]string, error)

	// ListRepositories returns the repositories the stored credential
	// can see, one provider page.
	ListRepositories(ctx context.Context) ([]RepositoryInfo, error)

	// RegisterWebhook installs a webhook delivering push and PR events to
	// callbackURL. Providers whose webhooks arrive through an app
	// subscription implement this as a no-op.
	RegisterWebhook(ctx context.Context, callbackURL, secret string) error
}

// Factory builds platform clients from stored repository records,
// decrypting credentials on the way.
type Factory struct {
	cipher       crypto.Encryptor
	guard        *crypto.URLGuard
	githubAppID  int64
	githubAppKey []byte
	logger       *logger.Logger
}

// NewFactory creates a client factory. githubAppKey is the GitHub App
// private key in PEM form; pass nil when the GitHub integration is not
// configured.
func NewFactory(cipher crypto.Encryptor, guard *crypto.URLGuard, githubAppID int64, githubAppKey []byte, log *logger.Logger) (*Factory, error) {
	if cipher == nil {
		return nil, errors.New("cipher is required")
	}
	if guard == nil {
		return nil, errors.New("url guard is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	return &Factory{
		cipher:       cipher,
		guard:        guard,
		githubAppID:  githubAppID,
		githubAppKey: githubAppKey,
		logger:       log,
	}, nil
}

// NewClient creates the platform client for a repository record.
func (f *Factory) NewClient(ctx context.Context, r *repo.Repository) (Client, error) {
	switch r.Platform() {
	case repo.PlatformGitHub:
		return f.newGitHub(r)
	case repo.PlatformGitLab:
		return f.newGitLab(ctx, r)
	case repo.PlatformBitbucket:
		return f.newBitbucket(ctx, r)
	default:
		return nil, fmt.Errorf("unsupported platform %q", r.Platform())
	}
}

func (f *Factory) newGitHub(r *repo.Repository) (Client, error) {
	if len(f.githubAppKey) == 0 || f.githubAppID == 0 {
		return nil, errors.New("github app integration is not configured")
	}
	if r.InstallationID() == 0 {
		return nil, fmt.Errorf("repository %s has no github installation", r.Name())
	}
	return newGitHubClient(f.githubAppID, r.InstallationID(), f.githubAppKey, r.Name(), r.BaseURL())
}

func (f *Factory) newGitLab(ctx context.Context, r *repo.Repository) (Client, error) {
	token, err := f.decryptToken(r)
	if err != nil {
		return nil, err
	}
	baseURL := r.BaseURL()
	if baseURL != "" {
		// Self-hosted instances come from user input; keep them off
		// internal address space.
		if err := f.guard.Validate(ctx, baseURL); err != nil {
			return nil, fmt.Errorf("gitlab base url: %w", err)
		}
	}
	return newGitLabClient(token, r.Name(), baseURL)
}

func (f *Factory) newBitbucket(ctx context.Context, r *repo.Repository) (Client, error) {
	token, err := f.decryptToken(r)
	if err != nil {
		return nil, err
	}
	baseURL := r.BaseURL()
	if baseURL != "" {
		if err := f.guard.Validate(ctx, baseURL); err != nil {
			return nil, fmt.Errorf("bitbucket base url: %w", err)
		}
	}
	return newBitbucketClient(token, r.Name(), baseURL)
}

func (f *Factory) decryptToken(r *repo.Repository) (string, error) {
	enc := r.AccessTokenEnc()
	if enc == "" {
		return "", fmt.Errorf("repository %s has no stored credential", r.Name())
	}
	token, err := f.cipher.DecryptString(enc)
	if err != nil {
		return "", fmt.Errorf("decrypt access token: %w", err)
	}
	return token, nil
}

// splitFullName splits "owner/name" into its two parts.
func splitFullName(fullName string) (owner, name string, err error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository full name %q", fullName)
	}
	return parts[0], parts[1], nil
}
