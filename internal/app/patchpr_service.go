package app

import (
	"context"
	"fmt"

	"github.com/vexguard/api/internal/infra/llm"
	"github.com/vexguard/api/internal/infra/scm"
	"github.com/vexguard/api/pkg/domain/patchpr"
	"github.com/vexguard/api/pkg/domain/repo"
	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/domain/vulnerability"
	"github.com/vexguard/api/pkg/logger"
)

// PatchPRService opens remediation pull requests on the origin platform.
// At most one patch PR exists per vulnerability; the branch carries the
// suggested patch as an artifact and the PR body carries the diff and
// explanation for human review.
type PatchPRService struct {
	patches patchpr.Repository
	vulns   vulnerability.Repository
	repos   repo.Repo
	clients SCMClients
	llm     llm.Provider
	logger  *logger.Logger
}

// NewPatchPRService creates a new PatchPRService.
func NewPatchPRService(
	patches patchpr.Repository,
	vulns vulnerability.Repository,
	repos repo.Repo,
	clients SCMClients,
	llmProvider llm.Provider,
	log *logger.Logger,
) *PatchPRService {
	return &PatchPRService{
		patches: patches,
		vulns:   vulns,
		repos:   repos,
		clients: clients,
		llm:     llmProvider,
		logger:  log.With("service", "patchpr"),
	}
}

// CreatePatchPR drafts a fix for one finding and opens a pull request
// with it against the repository's default branch.
func (s *PatchPRService) CreatePatchPR(ctx context.Context, teamID, vulnID string) (*patchpr.PatchPR, error) {
	if s.llm == nil {
		return nil, llm.ErrProviderNotConfigured
	}

	tid, err := shared.IDFromString(teamID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid team ID", shared.ErrValidation)
	}
	vid, err := shared.IDFromString(vulnID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid vulnerability ID", shared.ErrValidation)
	}

	v, err := s.vulns.GetByID(ctx, vid)
	if err != nil {
		return nil, err
	}
	r, err := s.repos.GetByID(ctx, v.RepoID())
	if err != nil {
		return nil, err
	}
	if !r.TeamID().Equals(tid) {
		return nil, vulnerability.ErrVulnerabilityNotFound
	}
	if !r.IsActive() {
		return nil, repo.ErrRepositoryInactive
	}

	if _, err := s.patches.GetByVulnerability(ctx, vid); err == nil {
		return nil, patchpr.ErrPatchPRExists
	} else if !shared.IsNotFound(err) {
		return nil, err
	}

	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: patchSystemPrompt,
		UserPrompt:   patchUserPrompt(v),
		MaxTokens:    2000,
	})
	if err != nil {
		return nil, fmt.Errorf("llm completion: %w", err)
	}
	patch, explanation := parsePatchResponse(resp.Content)
	if patch == "" {
		return nil, fmt.Errorf("%w: no patch in completion", llm.ErrInvalidResponse)
	}

	client, err := s.clients.NewClient(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("platform client: %w", err)
	}

	baseSHA, err := client.ResolveRef(ctx, r.DefaultBranch())
	if err != nil {
		return nil, fmt.Errorf("resolve default branch: %w", err)
	}

	branch := "vexguard/fix-" + shortID(vid)
	if err := client.CreateBranch(ctx, branch, baseSHA); err != nil {
		return nil, fmt.Errorf("create branch: %w", err)
	}

	commitInput := scm.CommitFileInput{
		Branch:  branch,
		Path:    ".vexguard/patches/" + vid.String() + ".patch",
		Content: []byte(patch),
		Message: fmt.Sprintf("Add suggested fix for %s in %s", v.RuleID(), v.FilePath()),
	}
	if err := client.CommitFile(ctx, commitInput); err != nil {
		if scm.KindOf(err) != scm.KindConflict {
			return nil, fmt.Errorf("commit patch: %w", err)
		}
		// Stale blob id: the file changed between read and write. The
		// client re-reads the current blob on each attempt, so retry once.
		s.logger.Info("commit conflict, retrying once", "vulnerability_id", vulnID)
		if err := client.CommitFile(ctx, commitInput); err != nil {
			return nil, fmt.Errorf("commit patch after conflict retry: %w", err)
		}
	}

	pr, err := client.OpenPullRequest(ctx, scm.PullRequestInput{
		Title:        fmt.Sprintf("Fix %s in %s", v.RuleID(), v.FilePath()),
		Body:         patchPRBody(v, patch, explanation),
		SourceBranch: branch,
		TargetBranch: r.DefaultBranch(),
	})
	if err != nil {
		return nil, fmt.Errorf("open pull request: %w", err)
	}

	record := patchpr.NewPatchPR(
		shared.NewID(),
		vid,
		r.ID(),
		pr.Number,
		pr.URL,
		branch,
		patch,
		explanation,
	)
	if err := s.patches.Create(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info("patch pr opened",
		"patch_pr_id", record.ID().String(),
		"vulnerability_id", vulnID,
		"repo_id", r.ID().String(),
		"pr_number", pr.Number,
	)
	return record, nil
}

// GetPatchPR returns the patch PR for one vulnerability.
func (s *PatchPRService) GetPatchPR(ctx context.Context, teamID, vulnID string) (*patchpr.PatchPR, error) {
	tid, err := shared.IDFromString(teamID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid team ID", shared.ErrValidation)
	}
	vid, err := shared.IDFromString(vulnID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid vulnerability ID", shared.ErrValidation)
	}

	record, err := s.patches.GetByVulnerability(ctx, vid)
	if err != nil {
		return nil, err
	}

	r, err := s.repos.GetByID(ctx, record.RepoID())
	if err != nil {
		return nil, err
	}
	if !r.TeamID().Equals(tid) {
		return nil, patchpr.ErrPatchPRNotFound
	}
	return record, nil
}

// ListPatchPRs returns the patch PRs opened for one repository.
func (s *PatchPRService) ListPatchPRs(ctx context.Context, teamID, repoID string) ([]*patchpr.PatchPR, error) {
	tid, err := shared.IDFromString(teamID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid team ID", shared.ErrValidation)
	}
	rid, err := shared.IDFromString(repoID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid repo ID", shared.ErrValidation)
	}

	r, err := s.repos.GetByID(ctx, rid)
	if err != nil {
		return nil, err
	}
	if !r.TeamID().Equals(tid) {
		return nil, repo.ErrRepositoryNotFound
	}
	return s.patches.ListByRepo(ctx, rid)
}

// SyncState records the platform-side PR state, and when the PR merged,
// marks the underlying finding patched.
func (s *PatchPRService) SyncState(ctx context.Context, teamID, patchID, state string) (*patchpr.PatchPR, error) {
	tid, err := shared.IDFromString(teamID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid team ID", shared.ErrValidation)
	}
	id, err := shared.IDFromString(patchID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid patch pr ID", shared.ErrValidation)
	}
	parsed, err := patchpr.ParseState(state)
	if err != nil {
		return nil, err
	}

	record, err := s.patches.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	owner, err := s.repos.GetByID(ctx, record.RepoID())
	if err != nil {
		return nil, err
	}
	if !owner.TeamID().Equals(tid) {
		return nil, patchpr.ErrPatchPRNotFound
	}

	if err := record.SetState(parsed); err != nil {
		return nil, err
	}
	if err := s.patches.Update(ctx, record); err != nil {
		return nil, fmt.Errorf("update patch pr: %w", err)
	}

	if parsed == patchpr.StateMerged {
		if v, err := s.vulns.GetByID(ctx, record.VulnerabilityID()); err == nil {
			if err := v.Resolve(vulnerability.StatusPatched); err == nil {
				if err := s.vulns.Update(ctx, v); err != nil {
					s.logger.Warn("failed to mark finding patched",
						"vulnerability_id", record.VulnerabilityID().String(),
						"error", err,
					)
				}
			}
		}
	}

	s.logger.Info("patch pr state synced", "patch_pr_id", patchID, "state", state)
	return record, nil
}

func patchPRBody(v *vulnerability.Vulnerability, patch, explanation string) string {
	body := fmt.Sprintf(
		"Automated fix suggestion for **%s** (%s) at `%s:%d`.\n\n",
		v.RuleID(), v.Severity(), v.FilePath(), v.StartLine(),
	)
	if explanation != "" {
		body += explanation + "\n\n"
	}
	body += "```diff\n" + patch + "\n```\n"
	body += "\nReview before merging. The patch file is included on this branch under `.vexguard/patches/`."
	return body
}

// shortID returns the first UUID segment, enough to keep branch names
// unique per vulnerability without being unwieldy.
func shortID(id shared.ID) string {
	return id.String()[:8]
}
