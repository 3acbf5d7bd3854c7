package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/vexguard/api/pkg/domain/repo"
	"github.com/vexguard/api/pkg/domain/scan"
	"github.com/vexguard/api/pkg/domain/vulnerability"
	"github.com/vexguard/api/pkg/logger"
)

// maxCommentFindings caps how many findings the PR comment lists before
// pointing at the dashboard.
const maxCommentFindings = 20

// PRCommentHook posts the scan outcome as a comment on the pull request
// that triggered it. Non-PR scans are ignored.
type PRCommentHook struct {
	clients SCMClients
	logger  *logger.Logger
}

// NewPRCommentHook creates a new PRCommentHook.
func NewPRCommentHook(clients SCMClients, log *logger.Logger) *PRCommentHook {
	return &PRCommentHook{
		clients: clients,
		logger:  log.With("hook", "pr_comment"),
	}
}

// Name implements PostScanHook.
func (h *PRCommentHook) Name() string { return "pr_comment" }

// ScanCompleted implements PostScanHook.
func (h *PRCommentHook) ScanCompleted(ctx context.Context, job *scan.Job, r *repo.Repository, findings []*vulnerability.Vulnerability) error {
	if job.ScanType() != scan.TypePR || job.PRNumber() == nil {
		return nil
	}

	client, err := h.clients.NewClient(ctx, r)
	if err != nil {
		return fmt.Errorf("platform client: %w", err)
	}
	if err := client.CommentOnPullRequest(ctx, *job.PRNumber(), prCommentBody(job, findings)); err != nil {
		return fmt.Errorf("comment on pr %d: %w", *job.PRNumber(), err)
	}

	h.logger.Info("pr comment posted",
		"repo_id", r.ID().String(),
		"pr_number", *job.PRNumber(),
		"findings", len(findings),
	)
	return nil
}

func prCommentBody(job *scan.Job, findings []*vulnerability.Vulnerability) string {
	var b strings.Builder

	if len(findings) == 0 {
		fmt.Fprintf(&b, "**Vexguard**: no security findings in %s.\n", shortSHA(job.CommitSHA()))
		if job.AutoFilteredCount() > 0 {
			fmt.Fprintf(&b, "\n%d findings were suppressed by your team's false-positive patterns.\n", job.AutoFilteredCount())
		}
		return b.String()
	}

	fmt.Fprintf(&b, "**Vexguard** found %d security findings in %s:\n\n", len(findings), shortSHA(job.CommitSHA()))
	fmt.Fprintf(&b, "| Severity | Rule | Location |\n|---|---|---|\n")

	shown := findings
	if len(shown) > maxCommentFindings {
		shown = shown[:maxCommentFindings]
	}
	for _, v := range shown {
		fmt.Fprintf(&b, "| %s | `%s` | `%s:%d` |\n", v.Severity(), v.RuleID(), v.FilePath(), v.StartLine())
	}
	if len(findings) > maxCommentFindings {
		fmt.Fprintf(&b, "\n…and %d more. See the dashboard for the full list.\n", len(findings)-maxCommentFindings)
	}
	if job.AutoFilteredCount() > 0 {
		fmt.Fprintf(&b, "\n%d findings were suppressed by your team's false-positive patterns.\n", job.AutoFilteredCount())
	}
	return b.String()
}

var _ PostScanHook = (*PRCommentHook)(nil)
