package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexguard/api/internal/infra/analyzer"
	"github.com/vexguard/api/pkg/domain/fppattern"
	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/domain/vulnerability"
	"github.com/vexguard/api/pkg/logger"
)

func newIDEServiceForTest(t *testing.T, ca ContentAnalyzer, patterns *fakePatternRepo) (*IDEService, *fakeVulnRepo, *fakeRepoRepo) {
	t.Helper()
	if patterns == nil {
		patterns = &fakePatternRepo{}
	}
	vulns := newFakeVulnRepo()
	repos := newFakeRepoRepo()
	svc := NewIDEService(ca, patterns, vulns, repos, nil, nil, logger.NewNop())
	return svc, vulns, repos
}

func TestAnalyzeReturnsFindings(t *testing.T) {
	ca := &fakeContentAnalyzer{result: &analyzer.Result{
		Findings: []analyzer.Finding{
			{RuleID: "sql.injection", Severity: "high", FilePath: "app.py", StartLine: 3, EndLine: 3, Message: "tainted query"},
		},
	}}
	svc, _, _ := newIDEServiceForTest(t, ca, nil)

	result, err := svc.Analyze(context.Background(), AnalyzeInput{
		TeamID:   shared.NewID().String(),
		FileName: "app.py",
		Content:  "db.execute(q)",
	})
	require.NoError(t, err)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "sql.injection", result.Findings[0].RuleID)
	assert.False(t, result.Findings[0].FalsePositive)
	assert.False(t, result.TimedOut)
}

func TestAnalyzeContentTooLarge(t *testing.T) {
	svc, _, _ := newIDEServiceForTest(t, &fakeContentAnalyzer{}, nil)

	// Exactly at the cap passes, one byte over is rejected.
	at := strings.Repeat("a", MaxIDEContentBytes)
	_, err := svc.Analyze(context.Background(), AnalyzeInput{
		TeamID: shared.NewID().String(), FileName: "big.py", Content: at,
	})
	require.NoError(t, err)

	_, err = svc.Analyze(context.Background(), AnalyzeInput{
		TeamID: shared.NewID().String(), FileName: "big.py", Content: at + "a",
	})
	assert.ErrorIs(t, err, ErrContentTooLarge)
}

func TestAnalyzeTimeoutYieldsEmptyResult(t *testing.T) {
	ca := &fakeContentAnalyzer{delay: time.Second}
	svc, _, _ := newIDEServiceForTest(t, ca, nil)

	result, err := svc.Analyze(context.Background(), AnalyzeInput{
		TeamID: shared.NewID().String(), FileName: "slow.py", Content: "x = 1",
	})
	require.NoError(t, err)
	assert.Empty(t, result.Findings)
	assert.True(t, result.TimedOut)
}

func TestAnalyzeAnnotatesSuppressedFindings(t *testing.T) {
	teamID := shared.NewID()
	p, err := fppattern.NewPattern(shared.NewID(), teamID, "sql.injection", "", "")
	require.NoError(t, err)

	ca := &fakeContentAnalyzer{result: &analyzer.Result{
		Findings: []analyzer.Finding{
			{RuleID: "sql.injection", Severity: "high", FilePath: "app.py", StartLine: 3},
			{RuleID: "xss.reflected", Severity: "medium", FilePath: "app.py", StartLine: 9},
		},
	}}
	svc, _, _ := newIDEServiceForTest(t, ca, &fakePatternRepo{patterns: []*fppattern.Pattern{p}})

	result, err := svc.Analyze(context.Background(), AnalyzeInput{
		TeamID: teamID.String(), FileName: "app.py", Content: "db.execute(q)",
	})
	require.NoError(t, err)

	// Suppressed findings stay in the response, marked.
	require.Len(t, result.Findings, 2)
	assert.True(t, result.Findings[0].FalsePositive)
	assert.False(t, result.Findings[1].FalsePositive)
}

func TestAnalyzePatternStoreFailureFailsOpen(t *testing.T) {
	ca := &fakeContentAnalyzer{result: &analyzer.Result{
		Findings: []analyzer.Finding{{RuleID: "sql.injection", FilePath: "app.py"}},
	}}
	svc, _, _ := newIDEServiceForTest(t, ca, &fakePatternRepo{err: assert.AnError})

	result, err := svc.Analyze(context.Background(), AnalyzeInput{
		TeamID: shared.NewID().String(), FileName: "app.py", Content: "db.execute(q)",
	})
	require.NoError(t, err)
	require.Len(t, result.Findings, 1)
	assert.False(t, result.Findings[0].FalsePositive)
}

func TestGetScanResultsETag(t *testing.T) {
	svc, vulns, repos := newIDEServiceForTest(t, &fakeContentAnalyzer{}, nil)
	teamID := shared.NewID()
	r := testRepo(teamID)
	require.NoError(t, repos.Create(context.Background(), r))

	v := vulnerability.NewVulnerability(
		shared.NewID(), r.ID(), shared.NewID(),
		"sql.injection", vulnerability.SeverityHigh, "sql",
		"src/db.py", 10, 12, "db.execute(q)", "tainted query", nil,
	)
	require.NoError(t, vulns.Update(context.Background(), v))

	view, etag1, err := svc.GetScanResults(context.Background(), teamID.String(), r.ID().String())
	require.NoError(t, err)
	require.Len(t, view.Findings, 1)
	require.NotEmpty(t, etag1)

	// Same state, same tag.
	_, etag2, err := svc.GetScanResults(context.Background(), teamID.String(), r.ID().String())
	require.NoError(t, err)
	assert.Equal(t, etag1, etag2)

	// Resolving the finding shifts the tag.
	require.NoError(t, v.Resolve(vulnerability.StatusIgnored))
	require.NoError(t, vulns.Update(context.Background(), v))

	view, etag3, err := svc.GetScanResults(context.Background(), teamID.String(), r.ID().String())
	require.NoError(t, err)
	assert.Empty(t, view.Findings)
	assert.NotEqual(t, etag1, etag3)
}

func TestGetScanResultsWrongTeam(t *testing.T) {
	svc, _, repos := newIDEServiceForTest(t, &fakeContentAnalyzer{}, nil)
	r := testRepo(shared.NewID())
	require.NoError(t, repos.Create(context.Background(), r))

	_, _, err := svc.GetScanResults(context.Background(), shared.NewID().String(), r.ID().String())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAnalyzeReportsAnalyzerVersion(t *testing.T) {
	ca := &fakeContentAnalyzer{version: "engine-2.4.1", result: &analyzer.Result{}}
	svc, _, _ := newIDEServiceForTest(t, ca, nil)

	result, err := svc.Analyze(context.Background(), AnalyzeInput{
		TeamID: shared.NewID().String(), FileName: "app.py", Content: "x = 1",
	})
	require.NoError(t, err)
	assert.Equal(t, "engine-2.4.1", result.AnalyzerVersion)
}

func TestAnalyzeTimeoutStillReportsVersion(t *testing.T) {
	ca := &fakeContentAnalyzer{version: "engine-2.4.1", delay: time.Second}
	svc, _, _ := newIDEServiceForTest(t, ca, nil)

	result, err := svc.Analyze(context.Background(), AnalyzeInput{
		TeamID: shared.NewID().String(), FileName: "slow.py", Content: "x = 1",
	})
	require.NoError(t, err)
	assert.True(t, result.TimedOut)
	assert.Equal(t, "engine-2.4.1", result.AnalyzerVersion)
}

func TestGetFPPatternsETag(t *testing.T) {
	teamID := shared.NewID()
	p1, err := fppattern.NewPattern(shared.NewID(), teamID, "sql.injection", "src/**", "")
	require.NoError(t, err)
	p2, err := fppattern.NewPattern(shared.NewID(), teamID, "xss.reflected", "", "template noise")
	require.NoError(t, err)

	repo := &fakePatternRepo{patterns: []*fppattern.Pattern{p1, p2}}
	svc, _, _ := newIDEServiceForTest(t, &fakeContentAnalyzer{}, repo)

	view, etag1, err := svc.GetFPPatterns(context.Background(), teamID.String())
	require.NoError(t, err)
	require.Len(t, view.Patterns, 2)
	require.NotEmpty(t, etag1)

	// Same set, same tag.
	_, etag2, err := svc.GetFPPatterns(context.Background(), teamID.String())
	require.NoError(t, err)
	assert.Equal(t, etag1, etag2)

	// Deactivating a pattern removes it from the set and shifts the tag.
	p2.Deactivate()
	view, etag3, err := svc.GetFPPatterns(context.Background(), teamID.String())
	require.NoError(t, err)
	assert.Len(t, view.Patterns, 1)
	assert.NotEqual(t, etag1, etag3)
}

func TestGetFPPatternsScopedToTeam(t *testing.T) {
	p, err := fppattern.NewPattern(shared.NewID(), shared.NewID(), "sql.injection", "", "")
	require.NoError(t, err)
	svc, _, _ := newIDEServiceForTest(t, &fakeContentAnalyzer{}, &fakePatternRepo{patterns: []*fppattern.Pattern{p}})

	view, _, err := svc.GetFPPatterns(context.Background(), shared.NewID().String())
	require.NoError(t, err)
	assert.Empty(t, view.Patterns)
}

func inlineSuggestInput(teamID shared.ID) SuggestPatchInput {
	return SuggestPatchInput{
		TeamID:   teamID.String(),
		Content:  "import db\n\ndb.execute(q)\n",
		Language: "python",
		FilePath: "src/db.py",
		Finding: InlineFinding{
			RuleID:    "sql.injection",
			Severity:  "high",
			Message:   "tainted query",
			StartLine: 3,
			EndLine:   3,
		},
	}
}

func TestSuggestPatchForFinding(t *testing.T) {
	provider := &fakeLLMProvider{content: `{"patch":"--- a/src/db.py","explanation":"use params","detail":"user input reaches the query"}`}
	patterns := &fakePatternRepo{}
	vulns := newFakeVulnRepo()
	repos := newFakeRepoRepo()
	svc := NewIDEService(&fakeContentAnalyzer{}, patterns, vulns, repos, provider, nil, logger.NewNop())

	suggestion, err := svc.SuggestPatchForFinding(context.Background(), inlineSuggestInput(shared.NewID()))
	require.NoError(t, err)
	assert.Equal(t, "--- a/src/db.py", suggestion.PatchDiff)
	assert.Equal(t, "use params", suggestion.PatchDescription)
	assert.Equal(t, "user input reaches the query", suggestion.VulnerabilityDetail)
	assert.Equal(t, "test-model", suggestion.Model)

	// The prompt carries the inline finding, not a persisted record.
	require.Len(t, provider.requests, 1)
	assert.Contains(t, provider.requests[0].UserPrompt, "sql.injection")
	assert.Contains(t, provider.requests[0].UserPrompt, "db.execute(q)")
}

func TestSuggestPatchForFindingDetailFallback(t *testing.T) {
	provider := &fakeLLMProvider{content: `{"patch":"diff","explanation":"e"}`}
	svc := NewIDEService(&fakeContentAnalyzer{}, &fakePatternRepo{}, newFakeVulnRepo(), newFakeRepoRepo(), provider, nil, logger.NewNop())

	suggestion, err := svc.SuggestPatchForFinding(context.Background(), inlineSuggestInput(shared.NewID()))
	require.NoError(t, err)
	assert.Equal(t, "tainted query", suggestion.VulnerabilityDetail)
}

func TestSuggestPatchForFindingContentTooLarge(t *testing.T) {
	provider := &fakeLLMProvider{content: `{"patch":"diff"}`}
	svc := NewIDEService(&fakeContentAnalyzer{}, &fakePatternRepo{}, newFakeVulnRepo(), newFakeRepoRepo(), provider, nil, logger.NewNop())

	input := inlineSuggestInput(shared.NewID())
	input.Content = strings.Repeat("a", MaxIDEContentBytes+1)
	_, err := svc.SuggestPatchForFinding(context.Background(), input)
	assert.ErrorIs(t, err, ErrContentTooLarge)
}

func TestSuggestPatchForFindingWithoutProvider(t *testing.T) {
	svc := NewIDEService(&fakeContentAnalyzer{}, &fakePatternRepo{}, newFakeVulnRepo(), newFakeRepoRepo(), nil, nil, logger.NewNop())

	_, err := svc.SuggestPatchForFinding(context.Background(), inlineSuggestInput(shared.NewID()))
	assert.Error(t, err)
}

func TestContentExcerpt(t *testing.T) {
	content := "l1\nl2\nl3\nl4\nl5\nl6\nl7\nl8\nl9\nl10\nl11\nl12"

	excerpt := contentExcerpt(content, 8, 8)
	assert.Contains(t, excerpt, "l3")
	assert.Contains(t, excerpt, "l12")
	assert.NotContains(t, excerpt, "l2\n")

	// Out-of-range lines degrade to an empty excerpt, never a panic.
	assert.Empty(t, contentExcerpt(content, 50, 50))
	assert.NotEmpty(t, contentExcerpt(content, 0, 0))
}

func TestParsePatchResponse(t *testing.T) {
	patch, explanation := parsePatchResponse(`{"patch":"--- a/x\n+++ b/x","explanation":"use params"}`)
	assert.Equal(t, "--- a/x\n+++ b/x", patch)
	assert.Equal(t, "use params", explanation)

	// Fenced JSON still decodes.
	patch, _ = parsePatchResponse("```json\n{\"patch\":\"diff\",\"explanation\":\"e\"}\n```")
	assert.Equal(t, "diff", patch)

	// Non-JSON falls back to raw content as the patch.
	patch, explanation = parsePatchResponse("just a diff")
	assert.Equal(t, "just a diff", patch)
	assert.Empty(t, explanation)
}
