package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vexguard/api/internal/infra/analyzer"
	"github.com/vexguard/api/internal/infra/llm"
	"github.com/vexguard/api/pkg/domain/fppattern"
	"github.com/vexguard/api/pkg/domain/repo"
	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/domain/vulnerability"
	"github.com/vexguard/api/pkg/logger"
)

// MaxIDEContentBytes caps the snippet size the IDE endpoints accept.
// Exactly this many bytes is still accepted.
const MaxIDEContentBytes = 1_000_000

// IDEAnalyzeDeadline is the soft latency budget for editor-triggered
// analysis. Exceeding it yields an empty result, not an error; the
// editor shows nothing rather than a spinner.
const IDEAnalyzeDeadline = 500 * time.Millisecond

// ErrContentTooLarge is returned when a snippet exceeds
// MaxIDEContentBytes.
var ErrContentTooLarge = fmt.Errorf("%w: content exceeds %d bytes", shared.ErrValidation, MaxIDEContentBytes)

// ContentAnalyzer analyzes a single in-memory file.
type ContentAnalyzer interface {
	AnalyzeContent(ctx context.Context, timeout time.Duration, filename string, content []byte) (*analyzer.Result, error)

	// Version identifies the deployed engine and rule set. Editor
	// plugins key local caches on it.
	Version() string
}

// AnalyzeCache caches analyze responses keyed by content digest.
type AnalyzeCache interface {
	Get(ctx context.Context, key string) (*AnalyzeResult, error)
	Set(ctx context.Context, key string, value AnalyzeResult) error
}

// IDEFinding is one finding as the editor surface presents it.
// Suppressed findings stay in the list with FalsePositive set; the
// plugin greys them out instead of hiding them.
type IDEFinding struct {
	RuleID           string   `json:"rule_id"`
	Severity         string   `json:"severity"`
	FilePath         string   `json:"file_path"`
	StartLine        int      `json:"start_line"`
	EndLine          int      `json:"end_line"`
	Message          string   `json:"message"`
	CodeSnippet      string   `json:"code_snippet,omitempty"`
	CWEIDs           []string `json:"cwe,omitempty"`
	FalsePositive    bool     `json:"false_positive"`
	AppliedPatternID *string  `json:"applied_pattern_id,omitempty"`
}

// AnalyzeResult is the response of one snippet analysis.
type AnalyzeResult struct {
	Findings           []IDEFinding `json:"findings"`
	AnalysisDurationMS int64        `json:"analysis_duration_ms"`
	AnalyzerVersion    string       `json:"analyzer_version"`
	TimedOut           bool         `json:"timed_out,omitempty"`
}

// IDEService backs the editor plugin endpoints: on-type snippet
// analysis, scan result sync, and patch suggestions.
type IDEService struct {
	analyzer ContentAnalyzer
	patterns fppattern.Repository
	vulns    vulnerability.Repository
	repos    repo.Repo
	llm      llm.Provider
	cache    AnalyzeCache
	logger   *logger.Logger
}

// NewIDEService creates a new IDEService. llmProvider and cache may be
// nil; patch suggestions and caching degrade accordingly.
func NewIDEService(
	contentAnalyzer ContentAnalyzer,
	patterns fppattern.Repository,
	vulns vulnerability.Repository,
	repos repo.Repo,
	llmProvider llm.Provider,
	cache AnalyzeCache,
	log *logger.Logger,
) *IDEService {
	return &IDEService{
		analyzer: contentAnalyzer,
		patterns: patterns,
		vulns:    vulns,
		repos:    repos,
		llm:      llmProvider,
		cache:    cache,
		logger:   log.With("service", "ide"),
	}
}

// AnalyzeInput represents input for snippet analysis.
type AnalyzeInput struct {
	TeamID   string `json:"team_id" validate:"required,uuid"`
	FileName string `json:"file_name" validate:"required,max=512"`
	Language string `json:"language" validate:"max=64"`
	Content  string `json:"content" validate:"required"`
}

// Analyze runs the analyzer over one in-editor file under the soft
// latency budget. Oversized content is rejected; a timeout returns an
// empty finding list with the duration recorded.
func (s *IDEService) Analyze(ctx context.Context, input AnalyzeInput) (*AnalyzeResult, error) {
	teamID, err := shared.IDFromString(input.TeamID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid team ID", shared.ErrValidation)
	}
	if len(input.Content) > MaxIDEContentBytes {
		return nil, ErrContentTooLarge
	}

	cacheKey := analyzeCacheKey(teamID, s.analyzer.Version(), input.FileName, input.Content)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey); err == nil && cached != nil {
			return cached, nil
		}
	}

	start := time.Now()
	raw, err := s.analyzer.AnalyzeContent(ctx, IDEAnalyzeDeadline, input.FileName, []byte(input.Content))
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Debug("ide analysis timed out", "file", input.FileName, "elapsed_ms", elapsed.Milliseconds())
			return &AnalyzeResult{
				Findings:           []IDEFinding{},
				AnalysisDurationMS: elapsed.Milliseconds(),
				AnalyzerVersion:    s.analyzer.Version(),
				TimedOut:           true,
			}, nil
		}
		return nil, fmt.Errorf("analyze content: %w", err)
	}

	findings := make([]IDEFinding, 0, len(raw.Findings))
	for _, f := range raw.Findings {
		findings = append(findings, IDEFinding{
			RuleID:      f.RuleID,
			Severity:    f.Severity,
			FilePath:    f.FilePath,
			StartLine:   f.StartLine,
			EndLine:     f.EndLine,
			Message:     f.Message,
			CodeSnippet: f.CodeSnippet,
			CWEIDs:      f.CWEIDs,
		})
	}

	patterns, err := s.patterns.ListActive(ctx, teamID)
	if err != nil {
		// Fail open: an unreachable pattern store means nothing is
		// marked suppressed, never an error.
		s.logger.Warn("loading fp patterns failed, skipping annotation", "error", err)
	} else {
		AnnotateFPMatches(patterns, findings)
	}

	result := &AnalyzeResult{
		Findings:           findings,
		AnalysisDurationMS: elapsed.Milliseconds(),
		AnalyzerVersion:    s.analyzer.Version(),
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, *result); err != nil {
			s.logger.Debug("caching analyze result failed", "error", err)
		}
	}
	return result, nil
}

// ScanResultsView is the sync payload for one repository plus the ETag
// computed over it.
type ScanResultsView struct {
	RepoID   string          `json:"repo_id"`
	Findings []ScanResultRow `json:"findings"`
}

// ScanResultRow is one open finding in the sync payload.
type ScanResultRow struct {
	ID          string    `json:"id"`
	RuleID      string    `json:"rule_id"`
	Severity    string    `json:"severity"`
	FilePath    string    `json:"file_path"`
	StartLine   int       `json:"start_line"`
	EndLine     int       `json:"end_line"`
	Message     string    `json:"message"`
	CodeSnippet string    `json:"code_snippet,omitempty"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GetScanResults returns the open findings for one repository along with
// a strong ETag. The handler compares it to If-None-Match and answers
// 304 without a body on a hit.
func (s *IDEService) GetScanResults(ctx context.Context, teamID, repoID string) (*ScanResultsView, string, error) {
	tid, err := shared.IDFromString(teamID)
	if err != nil {
		return nil, "", fmt.Errorf("%w: invalid team ID", shared.ErrValidation)
	}
	rid, err := shared.IDFromString(repoID)
	if err != nil {
		return nil, "", fmt.Errorf("%w: invalid repo ID", shared.ErrValidation)
	}

	r, err := s.repos.GetByID(ctx, rid)
	if err != nil {
		return nil, "", err
	}
	if !r.TeamID().Equals(tid) {
		return nil, "", repo.ErrRepositoryNotFound
	}

	open := vulnerability.StatusOpen
	listing, err := s.vulns.List(ctx, vulnerability.Filter{
		RepoID:  &rid,
		Status:  &open,
		PerPage: 1000,
	})
	if err != nil {
		return nil, "", fmt.Errorf("list findings: %w", err)
	}

	rows := make([]ScanResultRow, 0, len(listing.Data))
	for _, v := range listing.Data {
		rows = append(rows, ScanResultRow{
			ID:          v.ID().String(),
			RuleID:      v.RuleID(),
			Severity:    string(v.Severity()),
			FilePath:    v.FilePath(),
			StartLine:   v.StartLine(),
			EndLine:     v.EndLine(),
			Message:     v.Message(),
			CodeSnippet: v.CodeSnippet(),
			Status:      string(v.Status()),
			UpdatedAt:   v.UpdatedAt(),
		})
	}

	view := &ScanResultsView{RepoID: repoID, Findings: rows}
	return view, resultsETag(rows), nil
}

// resultsETag computes a strong ETag over the result set: the SHA-256 of
// every (id, updated_at) pair in id order. Any insert, resolve, or
// update shifts the digest.
func resultsETag(rows []ScanResultRow) string {
	pairs := make([]string, 0, len(rows))
	for _, row := range rows {
		pairs = append(pairs, row.ID+":"+row.UpdatedAt.UTC().Format(time.RFC3339Nano))
	}
	return sortedSetETag(pairs)
}

// sortedSetETag hashes a set of identity:version pairs in sorted order,
// making the tag a pure function of the set.
func sortedSetETag(pairs []string) string {
	sort.Strings(pairs)
	h := sha256.New()
	for _, p := range pairs {
		h.Write([]byte(p))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// FPPatternRow is one active pattern as the editor plugin consumes it.
type FPPatternRow struct {
	ID          string    `json:"id"`
	RuleID      string    `json:"rule_id"`
	FileGlob    string    `json:"file_glob,omitempty"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FPPatternsView is the pattern sync payload for one team.
type FPPatternsView struct {
	Patterns []FPPatternRow `json:"patterns"`
}

// GetFPPatterns returns the team's active false-positive patterns along
// with a strong ETag over the set's (id, updated_at) pairs. Plugins
// replay the tag in If-None-Match; the handler answers 304 on a hit.
func (s *IDEService) GetFPPatterns(ctx context.Context, teamID string) (*FPPatternsView, string, error) {
	tid, err := shared.IDFromString(teamID)
	if err != nil {
		return nil, "", fmt.Errorf("%w: invalid team ID", shared.ErrValidation)
	}

	patterns, err := s.patterns.ListActive(ctx, tid)
	if err != nil {
		return nil, "", fmt.Errorf("list patterns: %w", err)
	}

	rows := make([]FPPatternRow, 0, len(patterns))
	pairs := make([]string, 0, len(patterns))
	for _, p := range patterns {
		rows = append(rows, FPPatternRow{
			ID:          p.ID().String(),
			RuleID:      p.RuleID(),
			FileGlob:    p.FileGlob(),
			Description: p.Description(),
			UpdatedAt:   p.UpdatedAt(),
		})
		pairs = append(pairs, p.ID().String()+":"+p.UpdatedAt().UTC().Format(time.RFC3339Nano))
	}

	return &FPPatternsView{Patterns: rows}, sortedSetETag(pairs), nil
}

// PatchSuggestion is an LLM-generated remediation for one finding.
type PatchSuggestion struct {
	VulnerabilityID string `json:"vulnerability_id"`
	PatchDiff       string `json:"patch_diff"`
	Explanation     string `json:"explanation"`
	Model           string `json:"model"`
}

// SuggestPatch asks the configured LLM for a fix for one finding. The
// result is advisory; nothing is committed anywhere.
func (s *IDEService) SuggestPatch(ctx context.Context, teamID, vulnID string) (*PatchSuggestion, error) {
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

	s.logger.Info("patch suggested",
		"vulnerability_id", vulnID,
		"model", resp.Model,
		"completion_tokens", resp.CompletionTokens,
	)
	return &PatchSuggestion{
		VulnerabilityID: vulnID,
		PatchDiff:       patch,
		Explanation:     explanation,
		Model:           resp.Model,
	}, nil
}

// InlineFinding is a finding the editor surfaced locally. Analyze
// results are never persisted, so the suggestion request carries the
// finding itself.
type InlineFinding struct {
	RuleID      string `json:"rule_id" validate:"required,max=256"`
	Severity    string `json:"severity" validate:"max=32"`
	Message     string `json:"message" validate:"required,max=2048"`
	StartLine   int    `json:"start_line" validate:"min=0"`
	EndLine     int    `json:"end_line" validate:"min=0"`
	CodeSnippet string `json:"code_snippet" validate:"max=8192"`
}

// SuggestPatchInput is one inline patch suggestion request.
type SuggestPatchInput struct {
	TeamID   string        `json:"team_id" validate:"required,uuid"`
	Content  string        `json:"content" validate:"required"`
	Language string        `json:"language" validate:"max=64"`
	FilePath string        `json:"file_path" validate:"max=512"`
	Finding  InlineFinding `json:"finding" validate:"required"`
}

// InlinePatchSuggestion is the synchronous suggestion response.
type InlinePatchSuggestion struct {
	PatchDiff           string `json:"patch_diff"`
	PatchDescription    string `json:"patch_description"`
	VulnerabilityDetail string `json:"vulnerability_detail"`
	Model               string `json:"model"`
}

// SuggestPatchForFinding asks the LLM for a fix for a finding the editor
// just surfaced, without requiring it to be persisted first. The result
// is advisory; nothing is committed anywhere.
func (s *IDEService) SuggestPatchForFinding(ctx context.Context, input SuggestPatchInput) (*InlinePatchSuggestion, error) {
	if s.llm == nil {
		return nil, llm.ErrProviderNotConfigured
	}
	if _, err := shared.IDFromString(input.TeamID); err != nil {
		return nil, fmt.Errorf("%w: invalid team ID", shared.ErrValidation)
	}
	if len(input.Content) > MaxIDEContentBytes {
		return nil, ErrContentTooLarge
	}

	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: inlinePatchSystemPrompt,
		UserPrompt:   inlinePatchUserPrompt(input),
		MaxTokens:    2000,
	})
	if err != nil {
		return nil, fmt.Errorf("llm completion: %w", err)
	}

	suggestion := parseInlinePatchResponse(resp.Content)
	if suggestion.PatchDiff == "" {
		return nil, fmt.Errorf("%w: no patch in completion", llm.ErrInvalidResponse)
	}
	if suggestion.VulnerabilityDetail == "" {
		suggestion.VulnerabilityDetail = input.Finding.Message
	}
	suggestion.Model = resp.Model

	s.logger.Info("inline patch suggested",
		"rule_id", input.Finding.RuleID,
		"model", resp.Model,
		"completion_tokens", resp.CompletionTokens,
	)
	return suggestion, nil
}

const inlinePatchSystemPrompt = `You are a security engineer fixing static analysis findings.
Respond with a JSON object containing exactly three keys:
"patch": a unified diff that fixes the finding, minimal and self-contained
"explanation": one short paragraph describing the fix
"detail": one short paragraph explaining the vulnerability itself
Respond with JSON only, no markdown fences.`

func inlinePatchUserPrompt(input SuggestPatchInput) string {
	var b strings.Builder
	f := input.Finding
	fmt.Fprintf(&b, "Rule: %s (%s)\n", f.RuleID, f.Severity)
	if input.FilePath != "" {
		fmt.Fprintf(&b, "File: %s lines %d-%d\n", input.FilePath, f.StartLine, f.EndLine)
	}
	if input.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", input.Language)
	}
	fmt.Fprintf(&b, "Finding: %s\n\n", f.Message)
	if f.CodeSnippet != "" {
		fmt.Fprintf(&b, "Affected code:\n%s\n\n", f.CodeSnippet)
	}
	if excerpt := contentExcerpt(input.Content, f.StartLine, f.EndLine); excerpt != "" {
		fmt.Fprintf(&b, "Surrounding file content:\n%s\n", excerpt)
	}
	return b.String()
}

// contentExcerpt extracts the finding's lines plus a few of context so
// the prompt stays bounded no matter how large the file is.
func contentExcerpt(content string, startLine, endLine int) string {
	const contextLines = 5
	lines := strings.Split(content, "\n")

	start := startLine - 1 - contextLines
	if start < 0 {
		start = 0
	}
	end := endLine + contextLines
	if end > len(lines) {
		end = len(lines)
	}
	if start >= end {
		return ""
	}
	return strings.Join(lines[start:end], "\n")
}

// parseInlinePatchResponse decodes the three-key completion, stripping
// the markdown fences models sometimes add despite instructions.
func parseInlinePatchResponse(content string) *InlinePatchSuggestion {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var decoded struct {
		Patch       string `json:"patch"`
		Explanation string `json:"explanation"`
		Detail      string `json:"detail"`
	}
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		// Fall back to treating the whole completion as the patch.
		return &InlinePatchSuggestion{PatchDiff: trimmed}
	}
	return &InlinePatchSuggestion{
		PatchDiff:           decoded.Patch,
		PatchDescription:    decoded.Explanation,
		VulnerabilityDetail: decoded.Detail,
	}
}

const patchSystemPrompt = `You are a security engineer fixing static analysis findings.
Respond with a JSON object containing exactly two keys:
"patch": a unified diff that fixes the finding, minimal and self-contained
"explanation": one short paragraph describing the fix
Respond with JSON only, no markdown fences.`

func patchUserPrompt(v *vulnerability.Vulnerability) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rule: %s (%s)\n", v.RuleID(), v.Severity())
	fmt.Fprintf(&b, "File: %s lines %d-%d\n", v.FilePath(), v.StartLine(), v.EndLine())
	fmt.Fprintf(&b, "Finding: %s\n\n", v.Message())
	if v.CodeSnippet() != "" {
		fmt.Fprintf(&b, "Affected code:\n%s\n", v.CodeSnippet())
	}
	return b.String()
}

// parsePatchResponse extracts patch and explanation from the completion.
// Models sometimes wrap JSON in fences despite instructions, so fences
// are stripped before decoding.
func parsePatchResponse(content string) (patch, explanation string) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var decoded struct {
		Patch       string `json:"patch"`
		Explanation string `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		// Fall back to treating the whole completion as the patch.
		return trimmed, ""
	}
	return decoded.Patch, decoded.Explanation
}

// analyzeCacheKey digests the request identity: same team, same engine
// version, same file name, same bytes, same answer. Rolling the engine
// out invalidates every cached entry.
func analyzeCacheKey(teamID shared.ID, version, fileName, content string) string {
	h := sha256.New()
	h.Write([]byte(teamID.String()))
	h.Write([]byte{0})
	h.Write([]byte(version))
	h.Write([]byte{0})
	h.Write([]byte(fileName))
	h.Write([]byte{0})
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}
