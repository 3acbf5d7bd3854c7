package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vexguard/api/internal/infra/analyzer"
	"github.com/vexguard/api/internal/infra/scm"
	"github.com/vexguard/api/pkg/crypto"
	"github.com/vexguard/api/pkg/domain/fppattern"
	"github.com/vexguard/api/pkg/domain/repo"
	"github.com/vexguard/api/pkg/domain/scan"
	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/domain/vulnerability"
	"github.com/vexguard/api/pkg/logger"
)

// ResultStore commits a finished scan's findings, filter logs, pattern
// counters and job counters in one transaction.
type ResultStore interface {
	PersistResults(ctx context.Context, job *scan.Job, findings []*vulnerability.Vulnerability, filterLogs []*fppattern.Log, matchedPatterns []*fppattern.Pattern) error
}

// SCMClients builds platform clients for connected repositories.
type SCMClients interface {
	NewClient(ctx context.Context, r *repo.Repository) (scm.Client, error)
}

// RepoCloner materializes a repository working copy on disk.
type RepoCloner interface {
	Clone(ctx context.Context, dir string, input scm.CloneInput) error
}

// CodeAnalyzer runs the static analyzer over a working copy.
type CodeAnalyzer interface {
	Run(ctx context.Context, workspaceDir string, paths []string) (*analyzer.Result, error)
}

// PostScanHook runs after a scan completes. Hook failures are logged and
// never fail the scan that triggered them.
type PostScanHook interface {
	Name() string
	ScanCompleted(ctx context.Context, job *scan.Job, r *repo.Repository, findings []*vulnerability.Vulnerability) error
}

// ScanPipeline executes one scan job end to end: clone, analyze, filter,
// persist, notify. It runs inside the queue worker.
type ScanPipeline struct {
	scans    scan.Repository
	repos    repo.Repo
	patterns fppattern.Repository
	results  ResultStore
	clients  SCMClients
	cloner   RepoCloner
	analyzer CodeAnalyzer
	hooks    []PostScanHook
	logger   *logger.Logger
}

// NewScanPipeline creates a new ScanPipeline.
func NewScanPipeline(
	scans scan.Repository,
	repos repo.Repo,
	patterns fppattern.Repository,
	results ResultStore,
	clients SCMClients,
	cloner RepoCloner,
	codeAnalyzer CodeAnalyzer,
	hooks []PostScanHook,
	log *logger.Logger,
) *ScanPipeline {
	return &ScanPipeline{
		scans:    scans,
		repos:    repos,
		patterns: patterns,
		results:  results,
		clients:  clients,
		cloner:   cloner,
		analyzer: codeAnalyzer,
		hooks:    hooks,
		logger:   log.With("service", "scan_pipeline"),
	}
}

// Run executes one attempt of the scan job. The worker maps
// ErrScanCancelled to success and ErrScanNotRetryable to a dead letter;
// any other error triggers queue redelivery with backoff.
func (p *ScanPipeline) Run(ctx context.Context, jobID string) error {
	id, err := shared.IDFromString(jobID)
	if err != nil {
		return fmt.Errorf("invalid job id %q: %w", jobID, ErrScanNotRetryable)
	}

	job, err := p.scans.GetByID(ctx, id)
	if err != nil {
		if shared.IsNotFound(err) {
			return fmt.Errorf("job %s: %v: %w", jobID, err, ErrScanNotRetryable)
		}
		return fmt.Errorf("load job: %w", err)
	}
	log := p.logger.With("job_id", jobID, "repo_id", job.RepoID().String())

	switch job.Status() {
	case scan.StatusCancelled:
		return ErrScanCancelled
	case scan.StatusCompleted:
		return nil
	case scan.StatusQueued:
		if err := job.Start(); err != nil {
			return fmt.Errorf("%v: %w", err, ErrScanNotRetryable)
		}
	case scan.StatusFailed:
		if err := job.Retry(); err != nil {
			return fmt.Errorf("%v: %w", err, ErrScanNotRetryable)
		}
	case scan.StatusRunning:
		// A previous attempt died without a terminal transition.
		// Resume under this delivery.
	}

	r, err := p.repos.GetByID(ctx, job.RepoID())
	if err != nil {
		if shared.IsNotFound(err) {
			return p.failJob(ctx, job, "repository no longer exists", true)
		}
		return fmt.Errorf("load repository: %w", err)
	}
	if !r.IsActive() {
		if cancelErr := job.Cancel(); cancelErr == nil {
			if err := p.scans.Update(ctx, job); err != nil {
				log.Error("failed to persist cancellation", "error", err)
			}
		}
		return ErrScanCancelled
	}

	if err := p.scans.Update(ctx, job); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}

	scratch, err := os.MkdirTemp("", "vexguard-scan-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			log.Warn("failed to remove scratch dir", "dir", scratch, "error", err)
		}
	}()

	result, err := p.execute(ctx, job, r, scratch)
	if err != nil {
		return p.failJob(ctx, job, err.Error(), isPermanentScanError(err))
	}

	// A cancellation may have landed while the analyzer ran. Nothing
	// from this attempt gets persisted in that case.
	fresh, err := p.scans.GetByID(ctx, id)
	if err == nil && fresh.Status() == scan.StatusCancelled {
		log.Info("scan cancelled during execution, discarding results")
		return ErrScanCancelled
	}

	patterns, err := p.patterns.ListActive(ctx, job.TeamID())
	if err != nil {
		// Filtering fails open: a broken pattern store must not block
		// results, it only means nothing gets suppressed this run.
		log.Warn("loading fp patterns failed, skipping filter", "error", err)
		patterns = nil
	}
	outcome := ApplyFPFilter(patterns, job.ID(), result.Findings, time.Now())

	findings := make([]*vulnerability.Vulnerability, 0, len(outcome.Kept))
	for _, f := range outcome.Kept {
		severity, sevErr := vulnerability.ParseSeverity(f.Severity)
		if sevErr != nil {
			severity = vulnerability.SeverityMedium
		}
		findings = append(findings, vulnerability.NewVulnerability(
			shared.NewID(),
			job.RepoID(),
			job.ID(),
			f.RuleID,
			severity,
			ruleVulnType(f.RuleID),
			f.FilePath,
			f.StartLine,
			f.EndLine,
			f.CodeSnippet,
			f.Message,
			f.CWEIDs,
		))
	}

	job.SetCounters(len(findings), 0, 0, outcome.AutoFiltered)
	if err := job.Complete(); err != nil {
		return fmt.Errorf("%v: %w", err, ErrScanNotRetryable)
	}
	if err := p.results.PersistResults(ctx, job, findings, outcome.Logs, outcome.Matched); err != nil {
		return fmt.Errorf("persist scan results: %w", err)
	}

	if job.ScanType() == scan.TypeInitial && !r.IsInitialScanDone() {
		r.MarkInitialScanDone()
		if err := p.repos.Update(ctx, r); err != nil {
			log.Warn("failed to mark initial scan done", "error", err)
		}
	}

	log.Info("scan completed",
		"findings", len(findings),
		"auto_filtered", outcome.AutoFiltered,
		"raw_findings", len(result.Findings),
	)

	p.runHooks(ctx, job, r, findings)
	return nil
}

// execute materializes the working copy and runs the analyzer.
func (p *ScanPipeline) execute(ctx context.Context, job *scan.Job, r *repo.Repository, scratch string) (*analyzer.Result, error) {
	client, err := p.clients.NewClient(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("platform client: %w", err)
	}

	sha := job.CommitSHA()
	if sha == "" {
		ref := job.Branch()
		if ref == "" {
			ref = r.DefaultBranch()
		}
		sha, err = client.ResolveRef(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("resolve ref %q: %w", ref, err)
		}
		job.SetTarget(sha, job.Branch(), job.PRNumber(), job.ChangedFiles())
	}

	creds, err := client.CloneCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("clone credentials: %w", err)
	}

	if err := p.cloner.Clone(ctx, scratch, scm.CloneInput{
		URL:         r.CloneURL(),
		Credentials: creds,
		Branch:      job.Branch(),
		CommitSHA:   sha,
	}); err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}

	var paths []string
	switch job.ScanType() {
	case scan.TypePR:
		paths = job.ChangedFiles()
		if len(paths) == 0 && job.PRNumber() != nil {
			// PR webhook payloads carry no file list on any platform;
			// ask the provider so the analyzer stays scoped to the diff.
			files, listErr := client.ListChangedFiles(ctx, *job.PRNumber())
			if listErr != nil {
				p.logger.Warn("listing changed files failed, scanning unscoped",
					"job_id", job.ID().String(),
					"pr_number", *job.PRNumber(),
					"error", listErr,
				)
			} else if len(files) > 0 {
				paths = files
				job.SetTarget(sha, job.Branch(), job.PRNumber(), files)
			}
		}
	case scan.TypeIncremental:
		paths = job.ChangedFiles()
	}

	result, err := p.analyzer.Run(ctx, scratch, paths)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	return result, nil
}

// failJob records the failure on the job and translates it for the
// queue. Once the retry budget is spent the error becomes permanent.
func (p *ScanPipeline) failJob(ctx context.Context, job *scan.Job, message string, permanent bool) error {
	if err := job.Fail(message); err != nil {
		return fmt.Errorf("%v: %w", err, ErrScanNotRetryable)
	}
	if err := p.scans.Update(ctx, job); err != nil {
		return fmt.Errorf("persist job failure: %w", err)
	}

	if permanent || !job.CanRetry() {
		return fmt.Errorf("scan failed: %s: %w", message, ErrScanNotRetryable)
	}
	return fmt.Errorf("scan failed: %s", message)
}

// runHooks fans post-scan work out to the registered hooks. Hook errors
// are logged; a completed scan never fails because of them.
func (p *ScanPipeline) runHooks(ctx context.Context, job *scan.Job, r *repo.Repository, findings []*vulnerability.Vulnerability) {
	if len(p.hooks) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, hook := range p.hooks {
		g.Go(func() error {
			if err := hook.ScanCompleted(gctx, job, r, findings); err != nil {
				p.logger.Warn("post-scan hook failed",
					"hook", hook.Name(),
					"job_id", job.ID().String(),
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// isPermanentScanError reports whether redelivery could possibly help.
// Credential and existence problems do not heal on their own.
func isPermanentScanError(err error) bool {
	var scmErr *scm.Error
	if errors.As(err, &scmErr) {
		switch scmErr.Kind {
		case scm.KindAuthFailed, scm.KindNotFound, scm.KindConflict, scm.KindPermanent:
			return true
		}
		return false
	}
	return errors.Is(err, crypto.ErrDecryptionFailed) ||
		errors.Is(err, crypto.ErrForbiddenURL) ||
		errors.Is(err, crypto.ErrInvalidCiphertext)
}

// ruleVulnType derives the coarse vulnerability type from a rule id of
// the form "family.variant", falling back to the whole id.
func ruleVulnType(ruleID string) string {
	for i := range ruleID {
		if ruleID[i] == '.' {
			return ruleID[:i]
		}
	}
	return ruleID
}
