// Package repo holds the connected repository entity and the platform
// taxonomy shared by the adapters.
package repo

import (
	"fmt"
	"strings"
	"time"

	"github.com/vexguard/api/pkg/domain/shared"
)

// ID is a type alias for shared.ID.
type ID = shared.ID

// Platform identifies the Git hosting platform a repository lives on.
type Platform string

const (
	PlatformGitHub    Platform = "github"
	PlatformGitLab    Platform = "gitlab"
	PlatformBitbucket Platform = "bitbucket"
)

// AllPlatforms returns every supported platform.
func AllPlatforms() []Platform {
	return []Platform{PlatformGitHub, PlatformGitLab, PlatformBitbucket}
}

// ParsePlatform parses a platform string.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PlatformGitHub, PlatformGitLab, PlatformBitbucket:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown platform %q", shared.ErrValidation, s)
}

// IsValid reports whether the platform is supported.
func (p Platform) IsValid() bool {
	_, err := ParsePlatform(string(p))
	return err == nil
}

// Repository is a connected source repository. The platform access token
// is held encrypted and only decrypted at the moment an adapter needs it.
type Repository struct {
	id                ID
	teamID            ID
	platform          Platform
	platformRepoID    string // numeric id (GitHub/GitLab) or workspace/slug (Bitbucket)
	name              string // owner/name or group/project path
	cloneURL          string
	defaultBranch     string
	baseURL           string // self-hosted instance base, empty for cloud
	installationID    int64  // GitHub App installation, 0 otherwise
	accessTokenEnc    string // authenticated ciphertext, may be empty for app auth
	webhookSecretEnc  string // per-repo webhook secret (GitLab/Bitbucket)
	isActive          bool
	isInitialScanDone bool
	createdAt         time.Time
	updatedAt         time.Time
}

// NewRepository creates a new repository registration.
func NewRepository(id, teamID ID, platform Platform, platformRepoID, name, cloneURL, defaultBranch string) (*Repository, error) {
	if !platform.IsValid() {
		return nil, fmt.Errorf("%w: invalid platform %q", shared.ErrValidation, platform)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: repository name is required", shared.ErrValidation)
	}
	if defaultBranch == "" {
		defaultBranch = "main"
	}
	now := time.Now()
	return &Repository{
		id:             id,
		teamID:         teamID,
		platform:       platform,
		platformRepoID: platformRepoID,
		name:           name,
		cloneURL:       cloneURL,
		defaultBranch:  defaultBranch,
		isActive:       true,
		createdAt:      now,
		updatedAt:      now,
	}, nil
}

// Reconstruct creates a Repository from stored data.
func Reconstruct(
	id, teamID ID,
	platform Platform,
	platformRepoID, name, cloneURL, defaultBranch, baseURL string,
	installationID int64,
	accessTokenEnc, webhookSecretEnc string,
	isActive, isInitialScanDone bool,
	createdAt, updatedAt time.Time,
) *Repository {
	return &Repository{
		id:                id,
		teamID:            teamID,
		platform:          platform,
		platformRepoID:    platformRepoID,
		name:              name,
		cloneURL:          cloneURL,
		defaultBranch:     defaultBranch,
		baseURL:           baseURL,
		installationID:    installationID,
		accessTokenEnc:    accessTokenEnc,
		webhookSecretEnc:  webhookSecretEnc,
		isActive:          isActive,
		isInitialScanDone: isInitialScanDone,
		createdAt:         createdAt,
		updatedAt:         updatedAt,
	}
}

func (r *Repository) ID() ID                  { return r.id }
func (r *Repository) TeamID() ID              { return r.teamID }
func (r *Repository) Platform() Platform      { return r.platform }
func (r *Repository) PlatformRepoID() string  { return r.platformRepoID }
func (r *Repository) Name() string            { return r.name }
func (r *Repository) CloneURL() string        { return r.cloneURL }
func (r *Repository) DefaultBranch() string   { return r.defaultBranch }
func (r *Repository) BaseURL() string         { return r.baseURL }
func (r *Repository) InstallationID() int64   { return r.installationID }
func (r *Repository) AccessTokenEnc() string  { return r.accessTokenEnc }
func (r *Repository) WebhookSecretEnc() string { return r.webhookSecretEnc }
func (r *Repository) IsActive() bool          { return r.isActive }
func (r *Repository) IsInitialScanDone() bool { return r.isInitialScanDone }
func (r *Repository) CreatedAt() time.Time    { return r.createdAt }
func (r *Repository) UpdatedAt() time.Time    { return r.updatedAt }

// SetAccessTokenEnc stores the encrypted platform credential.
func (r *Repository) SetAccessTokenEnc(ciphertext string) {
	r.accessTokenEnc = ciphertext
	r.updatedAt = time.Now()
}

// SetWebhookSecretEnc stores the encrypted per-repo webhook secret.
func (r *Repository) SetWebhookSecretEnc(ciphertext string) {
	r.webhookSecretEnc = ciphertext
	r.updatedAt = time.Now()
}

// SetBaseURL sets the self-hosted instance base URL.
func (r *Repository) SetBaseURL(baseURL string) {
	r.baseURL = baseURL
	r.updatedAt = time.Now()
}

// SetInstallationID binds the repository to a GitHub App installation.
func (r *Repository) SetInstallationID(installationID int64) {
	r.installationID = installationID
	r.updatedAt = time.Now()
}

// SetDefaultBranch updates the default branch.
func (r *Repository) SetDefaultBranch(branch string) {
	if branch != "" {
		r.defaultBranch = branch
		r.updatedAt = time.Now()
	}
}

// Deactivate soft-deletes the repository. Scans stop; history remains.
func (r *Repository) Deactivate() {
	r.isActive = false
	r.updatedAt = time.Now()
}

// Activate re-enables a deactivated repository.
func (r *Repository) Activate() {
	r.isActive = true
	r.updatedAt = time.Now()
}

// MarkInitialScanDone records that the onboarding full scan completed.
func (r *Repository) MarkInitialScanDone() {
	r.isInitialScanDone = true
	r.updatedAt = time.Now()
}

var (
	ErrRepositoryNotFound = fmt.Errorf("%w: repository not found", shared.ErrNotFound)
	ErrRepositoryExists   = fmt.Errorf("%w: repository already registered", shared.ErrAlreadyExists)
	ErrRepositoryInactive = fmt.Errorf("%w: repository is deactivated", shared.ErrValidation)
)
