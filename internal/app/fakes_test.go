package app

import (
	"context"
	"sync"
	"time"

	"github.com/vexguard/api/internal/infra/analyzer"
	"github.com/vexguard/api/internal/infra/llm"
	"github.com/vexguard/api/pkg/domain/fppattern"
	"github.com/vexguard/api/pkg/domain/patchpr"
	"github.com/vexguard/api/pkg/domain/repo"
	"github.com/vexguard/api/pkg/domain/scan"
	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/domain/vulnerability"
)

// In-memory repository fakes shared by the service tests.

type fakeScanRepo struct {
	mu   sync.Mutex
	jobs map[string]*scan.Job
}

func newFakeScanRepo() *fakeScanRepo {
	return &fakeScanRepo{jobs: make(map[string]*scan.Job)}
}

func (f *fakeScanRepo) Create(_ context.Context, job *scan.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID().String()] = job
	return nil
}

func (f *fakeScanRepo) GetByID(_ context.Context, id scan.ID) (*scan.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id.String()]
	if !ok {
		return nil, scan.ErrScanNotFound
	}
	return job, nil
}

func (f *fakeScanRepo) List(_ context.Context, filter scan.Filter) (scan.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*scan.Job
	for _, job := range f.jobs {
		if filter.TeamID != nil && !job.TeamID().Equals(*filter.TeamID) {
			continue
		}
		if filter.RepoID != nil && !job.RepoID().Equals(*filter.RepoID) {
			continue
		}
		if filter.Status != nil && job.Status() != *filter.Status {
			continue
		}
		out = append(out, job)
	}
	return scan.ListResult{Data: out, Total: int64(len(out))}, nil
}

func (f *fakeScanRepo) Update(_ context.Context, job *scan.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID().String()] = job
	return nil
}

func (f *fakeScanRepo) HasActiveScan(_ context.Context, repoID scan.ID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		if job.RepoID().Equals(repoID) && job.PRNumber() == nil && !job.Status().IsTerminal() {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeScanRepo) ListActiveForPR(_ context.Context, repoID scan.ID, prNumber int) ([]*scan.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*scan.Job
	for _, job := range f.jobs {
		if job.RepoID().Equals(repoID) && job.PRNumber() != nil && *job.PRNumber() == prNumber && !job.Status().IsTerminal() {
			out = append(out, job)
		}
	}
	return out, nil
}

func (f *fakeScanRepo) FailStuckRunning(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, job := range f.jobs {
		if job.Status() == scan.StatusRunning && job.UpdatedAt().Before(cutoff) {
			n++
		}
	}
	return n, nil
}

func (f *fakeScanRepo) ExpireQueued(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, job := range f.jobs {
		if job.Status() == scan.StatusQueued && job.CreatedAt().Before(cutoff) {
			n++
		}
	}
	return n, nil
}

type fakeRepoRepo struct {
	mu    sync.Mutex
	repos map[string]*repo.Repository
}

func newFakeRepoRepo() *fakeRepoRepo {
	return &fakeRepoRepo{repos: make(map[string]*repo.Repository)}
}

func (f *fakeRepoRepo) Create(_ context.Context, r *repo.Repository) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repos[r.ID().String()] = r
	return nil
}

func (f *fakeRepoRepo) GetByID(_ context.Context, id repo.ID) (*repo.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.repos[id.String()]
	if !ok {
		return nil, repo.ErrRepositoryNotFound
	}
	return r, nil
}

func (f *fakeRepoRepo) GetByPlatformID(_ context.Context, platform repo.Platform, platformRepoID string) (*repo.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.repos {
		if r.Platform() == platform && r.PlatformRepoID() == platformRepoID {
			return r, nil
		}
	}
	return nil, repo.ErrRepositoryNotFound
}

func (f *fakeRepoRepo) ListByInstallation(_ context.Context, installationID int64) ([]*repo.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repo.Repository
	for _, r := range f.repos {
		if r.InstallationID() == installationID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRepoRepo) ListActive(_ context.Context) ([]*repo.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repo.Repository
	for _, r := range f.repos {
		if r.IsActive() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRepoRepo) List(_ context.Context, filter repo.Filter) (repo.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repo.Repository
	for _, r := range f.repos {
		if filter.TeamID != nil && !r.TeamID().Equals(*filter.TeamID) {
			continue
		}
		out = append(out, r)
	}
	return repo.ListResult{Data: out, Total: int64(len(out))}, nil
}

func (f *fakeRepoRepo) Update(_ context.Context, r *repo.Repository) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repos[r.ID().String()] = r
	return nil
}

func (f *fakeRepoRepo) Delete(_ context.Context, id repo.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.repos, id.String())
	return nil
}

type fakeEnqueuer struct {
	mu       sync.Mutex
	messages []ScanMessage
	err      error
}

func (f *fakeEnqueuer) EnqueueScan(_ context.Context, msg ScanMessage) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return nil
}

type fakePatternRepo struct {
	patterns []*fppattern.Pattern
	err      error
}

func (f *fakePatternRepo) Create(_ context.Context, p *fppattern.Pattern) error {
	f.patterns = append(f.patterns, p)
	return nil
}

func (f *fakePatternRepo) GetByID(_ context.Context, id, teamID fppattern.ID) (*fppattern.Pattern, error) {
	for _, p := range f.patterns {
		if p.ID().Equals(id) && p.TeamID().Equals(teamID) {
			return p, nil
		}
	}
	return nil, fppattern.ErrPatternNotFound
}

func (f *fakePatternRepo) ListActive(_ context.Context, teamID fppattern.ID) ([]*fppattern.Pattern, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*fppattern.Pattern
	for _, p := range f.patterns {
		if p.TeamID().Equals(teamID) && p.IsActive() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePatternRepo) List(_ context.Context, teamID fppattern.ID, includeInactive bool) ([]*fppattern.Pattern, error) {
	var out []*fppattern.Pattern
	for _, p := range f.patterns {
		if !p.TeamID().Equals(teamID) {
			continue
		}
		if !includeInactive && !p.IsActive() {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakePatternRepo) Update(_ context.Context, _ *fppattern.Pattern) error { return nil }

func (f *fakePatternRepo) ListLogsByScanJob(_ context.Context, _ fppattern.ID) ([]*fppattern.Log, error) {
	return nil, nil
}

func (f *fakePatternRepo) DeleteLogsOlderThan(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type fakeVulnRepo struct {
	vulns map[string]*vulnerability.Vulnerability
}

func newFakeVulnRepo() *fakeVulnRepo {
	return &fakeVulnRepo{vulns: make(map[string]*vulnerability.Vulnerability)}
}

func (f *fakeVulnRepo) GetByID(_ context.Context, id vulnerability.ID) (*vulnerability.Vulnerability, error) {
	v, ok := f.vulns[id.String()]
	if !ok {
		return nil, vulnerability.ErrVulnerabilityNotFound
	}
	return v, nil
}

func (f *fakeVulnRepo) ListByScanJob(_ context.Context, scanJobID vulnerability.ID) ([]*vulnerability.Vulnerability, error) {
	var out []*vulnerability.Vulnerability
	for _, v := range f.vulns {
		if v.ScanJobID().Equals(scanJobID) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeVulnRepo) List(_ context.Context, filter vulnerability.Filter) (vulnerability.ListResult, error) {
	var out []*vulnerability.Vulnerability
	for _, v := range f.vulns {
		if filter.RepoID != nil && !v.RepoID().Equals(*filter.RepoID) {
			continue
		}
		if filter.Status != nil && v.Status() != *filter.Status {
			continue
		}
		if filter.Severity != nil && v.Severity() != *filter.Severity {
			continue
		}
		out = append(out, v)
	}
	return vulnerability.ListResult{Data: out, Total: int64(len(out))}, nil
}

func (f *fakeVulnRepo) Update(_ context.Context, v *vulnerability.Vulnerability) error {
	f.vulns[v.ID().String()] = v
	return nil
}

// fakeContentAnalyzer returns canned findings, optionally after a delay
// so deadline handling can be exercised.
type fakeContentAnalyzer struct {
	result  *analyzer.Result
	delay   time.Duration
	err     error
	version string
}

func (f *fakeContentAnalyzer) AnalyzeContent(ctx context.Context, timeout time.Duration, _ string, _ []byte) (*analyzer.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.delay > timeout {
		return nil, context.DeadlineExceeded
	}
	if f.result == nil {
		return &analyzer.Result{}, nil
	}
	return f.result, nil
}

func (f *fakeContentAnalyzer) Version() string {
	if f.version == "" {
		return "test"
	}
	return f.version
}

type fakePatchRepo struct {
	mu      sync.Mutex
	patches map[string]*patchpr.PatchPR
}

func newFakePatchRepo() *fakePatchRepo {
	return &fakePatchRepo{patches: make(map[string]*patchpr.PatchPR)}
}

func (f *fakePatchRepo) Create(_ context.Context, p *patchpr.PatchPR) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.patches {
		if existing.VulnerabilityID().Equals(p.VulnerabilityID()) {
			return patchpr.ErrPatchPRExists
		}
	}
	f.patches[p.ID().String()] = p
	return nil
}

func (f *fakePatchRepo) GetByID(_ context.Context, id patchpr.ID) (*patchpr.PatchPR, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.patches[id.String()]
	if !ok {
		return nil, patchpr.ErrPatchPRNotFound
	}
	return p, nil
}

func (f *fakePatchRepo) GetByVulnerability(_ context.Context, vulnerabilityID patchpr.ID) (*patchpr.PatchPR, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.patches {
		if p.VulnerabilityID().Equals(vulnerabilityID) {
			return p, nil
		}
	}
	return nil, patchpr.ErrPatchPRNotFound
}

func (f *fakePatchRepo) ListByRepo(_ context.Context, repoID patchpr.ID) ([]*patchpr.PatchPR, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*patchpr.PatchPR
	for _, p := range f.patches {
		if p.RepoID().Equals(repoID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePatchRepo) Update(_ context.Context, p *patchpr.PatchPR) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches[p.ID().String()] = p
	return nil
}

// fakeLLMProvider returns a canned completion.
type fakeLLMProvider struct {
	content  string
	err      error
	requests []llm.CompletionRequest
}

func (f *fakeLLMProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.content, Model: "test-model", CompletionTokens: 42}, nil
}

func (f *fakeLLMProvider) Name() string  { return "fake" }
func (f *fakeLLMProvider) Model() string { return "test-model" }

func testRepo(teamID shared.ID) *repo.Repository {
	r, err := repo.NewRepository(
		shared.NewID(),
		teamID,
		repo.PlatformGitHub,
		"12345",
		"acme/widgets",
		"https://github.com/acme/widgets.git",
		"main",
	)
	if err != nil {
		panic(err)
	}
	return r
}
