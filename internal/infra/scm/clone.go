package scm

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/vexguard/api/pkg/logger"
)

// CloneInput describes a checkout the scan pipeline wants on disk.
type CloneInput struct {
	URL         string
	Credentials *CloneCredentials

	// Branch to clone. Empty means the remote default.
	Branch string

	// CommitSHA pins the checkout to an exact commit. Empty means the
	// branch tip.
	CommitSHA string
}

// Cloner materializes repository checkouts for analysis. Clones are
// shallow; when the pinned commit is not the branch tip it is fetched
// separately, which the major providers allow for reachable commits.
type Cloner struct {
	logger *logger.Logger
}

// NewCloner creates a Cloner.
func NewCloner(log *logger.Logger) *Cloner {
	return &Cloner{logger: log}
}

// Clone checks the repository out into dir. The caller owns dir and its
// cleanup.
func (c *Cloner) Clone(ctx context.Context, dir string, input CloneInput) error {
	var auth *githttp.BasicAuth
	if input.Credentials != nil {
		auth = &githttp.BasicAuth{
			Username: input.Credentials.Username,
			Password: input.Credentials.Password,
		}
	}

	opts := &git.CloneOptions{
		URL:          input.URL,
		Auth:         auth,
		SingleBranch: true,
		Depth:        1,
	}
	if input.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(input.Branch)
	}

	repository, err := git.PlainCloneContext(ctx, dir, false, opts)
	if err != nil {
		return fmt.Errorf("clone %s: %w", input.URL, err)
	}

	if input.CommitSHA == "" {
		return nil
	}

	head, err := repository.Head()
	if err != nil {
		return fmt.Errorf("read HEAD: %w", err)
	}

	target := plumbing.NewHash(input.CommitSHA)
	if head.Hash() == target {
		return nil
	}

	// The pinned commit predates the branch tip; fetch it explicitly.
	refSpec := gitconfig.RefSpec(fmt.Sprintf("%s:refs/heads/scan-target", input.CommitSHA))
	err = repository.FetchContext(ctx, &git.FetchOptions{
		Auth:     auth,
		RefSpecs: []gitconfig.RefSpec{refSpec},
		Depth:    1,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch commit %s: %w", input.CommitSHA, err)
	}

	worktree, err := repository.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: target}); err != nil {
		return fmt.Errorf("checkout %s: %w", input.CommitSHA, err)
	}

	c.logger.Debug("checked out pinned commit", "commit_sha", input.CommitSHA)
	return nil
}
