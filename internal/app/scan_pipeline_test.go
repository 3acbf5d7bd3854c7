package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexguard/api/internal/infra/analyzer"
	"github.com/vexguard/api/internal/infra/scm"
	"github.com/vexguard/api/pkg/domain/fppattern"
	"github.com/vexguard/api/pkg/domain/repo"
	"github.com/vexguard/api/pkg/domain/scan"
	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/domain/vulnerability"
	"github.com/vexguard/api/pkg/logger"
)

type fakeSCMClient struct {
	resolveErr   error
	changedFiles []string
	commits      []scm.CommitFileInput
	commitErrs   []error
	branches     []string
}

func (f *fakeSCMClient) ValidateAccess(context.Context) error          { return nil }
func (f *fakeSCMClient) DefaultBranch(context.Context) (string, error) { return "main", nil }
func (f *fakeSCMClient) ResolveRef(_ context.Context, ref string) (string, error) {
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	return "resolved-" + ref, nil
}
func (f *fakeSCMClient) CloneCredentials(context.Context) (*scm.CloneCredentials, error) {
	return &scm.CloneCredentials{Username: "x-access-token", Password: "tok"}, nil
}
func (f *fakeSCMClient) CreateBranch(_ context.Context, name, _ string) error {
	f.branches = append(f.branches, name)
	return nil
}
func (f *fakeSCMClient) CommitFile(_ context.Context, input scm.CommitFileInput) error {
	if len(f.commitErrs) > 0 {
		err := f.commitErrs[0]
		f.commitErrs = f.commitErrs[1:]
		if err != nil {
			return err
		}
	}
	f.commits = append(f.commits, input)
	return nil
}
func (f *fakeSCMClient) OpenPullRequest(context.Context, scm.PullRequestInput) (*scm.PullRequest, error) {
	return &scm.PullRequest{Number: 1, URL: "https://example.com/pr/1"}, nil
}
func (f *fakeSCMClient) CommentOnPullRequest(context.Context, int, string) error { return nil }
func (f *fakeSCMClient) ListChangedFiles(context.Context, int) ([]string, error) {
	return f.changedFiles, nil
}
func (f *fakeSCMClient) ListRepositories(context.Context) ([]scm.RepositoryInfo, error) {
	return nil, nil
}
func (f *fakeSCMClient) RegisterWebhook(context.Context, string, string) error { return nil }

type fakeSCMFactory struct {
	client scm.Client
	err    error
}

func (f *fakeSCMFactory) NewClient(_ context.Context, _ *repo.Repository) (scm.Client, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}

type fakeCloner struct{ err error }

func (f *fakeCloner) Clone(_ context.Context, _ string, _ scm.CloneInput) error { return f.err }

type fakeRunner struct {
	result *analyzer.Result
	err    error
	paths  []string
}

func (f *fakeRunner) Run(_ context.Context, _ string, paths []string) (*analyzer.Result, error) {
	f.paths = paths
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		return &analyzer.Result{}, nil
	}
	return f.result, nil
}

type fakeResultStore struct {
	persisted bool
	findings  []*vulnerability.Vulnerability
	logs      []*fppattern.Log
	err       error
}

func (f *fakeResultStore) PersistResults(_ context.Context, _ *scan.Job, findings []*vulnerability.Vulnerability, logs []*fppattern.Log, _ []*fppattern.Pattern) error {
	if f.err != nil {
		return f.err
	}
	f.persisted = true
	f.findings = findings
	f.logs = logs
	return nil
}

type pipelineHarness struct {
	pipeline *ScanPipeline
	scans    *fakeScanRepo
	repos    *fakeRepoRepo
	patterns *fakePatternRepo
	store    *fakeResultStore
	runner   *fakeRunner
	client   *fakeSCMClient
}

func newPipelineHarness(t *testing.T) *pipelineHarness {
	t.Helper()
	h := &pipelineHarness{
		scans:    newFakeScanRepo(),
		repos:    newFakeRepoRepo(),
		patterns: &fakePatternRepo{},
		store:    &fakeResultStore{},
		runner:   &fakeRunner{},
		client:   &fakeSCMClient{},
	}
	h.pipeline = NewScanPipeline(
		h.scans,
		h.repos,
		h.patterns,
		h.store,
		&fakeSCMFactory{client: h.client},
		&fakeCloner{},
		h.runner,
		nil,
		logger.NewNop(),
	)
	return h
}

func (h *pipelineHarness) seedJob(t *testing.T, scanType scan.Type) (*scan.Job, *repo.Repository) {
	t.Helper()
	r := testRepo(shared.NewID())
	require.NoError(t, h.repos.Create(context.Background(), r))

	job := scan.NewJob(shared.NewID(), r.ID(), r.TeamID(), scan.TriggerWebhook, scanType)
	job.SetTarget("", "main", nil, nil)
	require.NoError(t, h.scans.Create(context.Background(), job))
	return job, r
}

func TestPipelineCompletesScan(t *testing.T) {
	h := newPipelineHarness(t)
	h.runner.result = &analyzer.Result{Findings: []analyzer.Finding{
		{RuleID: "sql.injection", Severity: "high", FilePath: "src/db.py", StartLine: 10, EndLine: 12, Message: "tainted"},
		{RuleID: "xss.reflected", Severity: "bogus", FilePath: "src/views.py", StartLine: 5, Message: "reflected"},
	}}
	job, _ := h.seedJob(t, scan.TypeFull)

	require.NoError(t, h.pipeline.Run(context.Background(), job.ID().String()))

	assert.Equal(t, scan.StatusCompleted, job.Status())
	assert.True(t, h.store.persisted)
	require.Len(t, h.store.findings, 2)
	assert.Equal(t, 2, job.FindingsCount())
	// Ref was resolved since the job carried no pinned commit.
	assert.Equal(t, "resolved-main", job.CommitSHA())
	// Unknown severities degrade to medium rather than dropping the finding.
	assert.Equal(t, vulnerability.SeverityMedium, h.store.findings[1].Severity())
}

func TestPipelineScopesPRScanToChangedFiles(t *testing.T) {
	h := newPipelineHarness(t)
	r := testRepo(shared.NewID())
	require.NoError(t, h.repos.Create(context.Background(), r))

	pr := 7
	job := scan.NewJob(shared.NewID(), r.ID(), r.TeamID(), scan.TriggerWebhook, scan.TypePR)
	job.SetTarget("sha-1", "feature/x", &pr, []string{"src/app.py", "src/db.py"})
	require.NoError(t, h.scans.Create(context.Background(), job))

	require.NoError(t, h.pipeline.Run(context.Background(), job.ID().String()))
	assert.Equal(t, []string{"src/app.py", "src/db.py"}, h.runner.paths)
}

func TestPipelineFetchesPRChangedFilesFromProvider(t *testing.T) {
	h := newPipelineHarness(t)
	h.client.changedFiles = []string{"src/handlers.py"}
	r := testRepo(shared.NewID())
	require.NoError(t, h.repos.Create(context.Background(), r))

	// PR webhook payloads carry no file list on any platform; the
	// pipeline asks the provider instead of scanning everything.
	pr := 12
	job := scan.NewJob(shared.NewID(), r.ID(), r.TeamID(), scan.TriggerWebhook, scan.TypePR)
	job.SetTarget("sha-2", "feature/y", &pr, nil)
	require.NoError(t, h.scans.Create(context.Background(), job))

	require.NoError(t, h.pipeline.Run(context.Background(), job.ID().String()))
	assert.Equal(t, []string{"src/handlers.py"}, h.runner.paths)
	assert.Equal(t, []string{"src/handlers.py"}, job.ChangedFiles())
}

func TestPipelineAppliesFPFilter(t *testing.T) {
	h := newPipelineHarness(t)
	job, r := h.seedJob(t, scan.TypeFull)

	p, err := fppattern.NewPattern(shared.NewID(), r.TeamID(), "sql.injection", "", "")
	require.NoError(t, err)
	h.patterns.patterns = []*fppattern.Pattern{p}

	h.runner.result = &analyzer.Result{Findings: []analyzer.Finding{
		{RuleID: "sql.injection", Severity: "high", FilePath: "src/db.py", StartLine: 10},
		{RuleID: "xss.reflected", Severity: "medium", FilePath: "src/views.py", StartLine: 5},
	}}

	require.NoError(t, h.pipeline.Run(context.Background(), job.ID().String()))

	require.Len(t, h.store.findings, 1)
	assert.Equal(t, "xss.reflected", h.store.findings[0].RuleID())
	assert.Len(t, h.store.logs, 1)
	assert.Equal(t, 1, job.AutoFilteredCount())
	assert.Equal(t, 1, job.FindingsCount())
}

func TestPipelineFilterFailsOpen(t *testing.T) {
	h := newPipelineHarness(t)
	h.patterns.err = assert.AnError
	h.runner.result = &analyzer.Result{Findings: []analyzer.Finding{
		{RuleID: "sql.injection", Severity: "high", FilePath: "src/db.py", StartLine: 10},
	}}
	job, _ := h.seedJob(t, scan.TypeFull)

	require.NoError(t, h.pipeline.Run(context.Background(), job.ID().String()))

	// Nothing suppressed, nothing lost.
	assert.Len(t, h.store.findings, 1)
	assert.Zero(t, job.AutoFilteredCount())
}

func TestPipelineCancelledJobIsNoop(t *testing.T) {
	h := newPipelineHarness(t)
	job, _ := h.seedJob(t, scan.TypeFull)
	require.NoError(t, job.Cancel())

	err := h.pipeline.Run(context.Background(), job.ID().String())
	assert.ErrorIs(t, err, ErrScanCancelled)
	assert.False(t, h.store.persisted)
}

func TestPipelineInactiveRepoCancels(t *testing.T) {
	h := newPipelineHarness(t)
	job, r := h.seedJob(t, scan.TypeFull)
	r.Deactivate()
	require.NoError(t, h.repos.Update(context.Background(), r))

	err := h.pipeline.Run(context.Background(), job.ID().String())
	assert.ErrorIs(t, err, ErrScanCancelled)
	assert.Equal(t, scan.StatusCancelled, job.Status())
}

func TestPipelineUnknownJobIsNotRetryable(t *testing.T) {
	h := newPipelineHarness(t)

	err := h.pipeline.Run(context.Background(), shared.NewID().String())
	assert.ErrorIs(t, err, ErrScanNotRetryable)
}

func TestPipelineTransientFailureIsRetryable(t *testing.T) {
	h := newPipelineHarness(t)
	h.runner.err = errors.New("analyzer crashed")
	job, _ := h.seedJob(t, scan.TypeFull)

	err := h.pipeline.Run(context.Background(), job.ID().String())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrScanNotRetryable)
	assert.Equal(t, scan.StatusFailed, job.Status())
	assert.Equal(t, 1, job.RetryCount())
}

func TestPipelineRetryBudgetExhausts(t *testing.T) {
	h := newPipelineHarness(t)
	h.runner.err = errors.New("analyzer crashed")
	job, _ := h.seedJob(t, scan.TypeFull)

	var err error
	for i := 0; i < scan.MaxRetries; i++ {
		err = h.pipeline.Run(context.Background(), job.ID().String())
		require.Error(t, err)
	}
	// Retry budget spent on the last attempt.
	assert.ErrorIs(t, err, ErrScanNotRetryable)
	assert.Equal(t, scan.MaxRetries, job.RetryCount())
}

func TestPipelineAuthFailureIsPermanent(t *testing.T) {
	h := newPipelineHarness(t)
	h.pipeline = NewScanPipeline(
		h.scans, h.repos, h.patterns, h.store,
		&fakeSCMFactory{client: &fakeSCMClient{resolveErr: &scm.Error{Kind: scm.KindAuthFailed, Message: "bad credentials"}}},
		&fakeCloner{}, h.runner, nil, logger.NewNop(),
	)
	job, _ := h.seedJob(t, scan.TypeFull)

	err := h.pipeline.Run(context.Background(), job.ID().String())
	assert.ErrorIs(t, err, ErrScanNotRetryable)
	assert.Equal(t, scan.StatusFailed, job.Status())
}
