// Package analyzer runs the static analysis engine as a subprocess and
// parses its structured output. The engine is a black box with a fixed
// contract: exit 0 means clean, exit 1 means findings were produced
// (not an error), anything higher is a runner failure.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/vexguard/api/pkg/logger"
)

const (
	// DefaultBatchTimeout bounds one analyzer invocation during a scan.
	DefaultBatchTimeout = 10 * time.Minute

	// DefaultMaxFileSize is the per-file cap passed to the engine.
	DefaultMaxFileSize int64 = 1 << 20
)

// ErrAnalyzerFailed is returned when the engine exits with code >= 2.
var ErrAnalyzerFailed = errors.New("analyzer failed")

// Finding is one normalized engine finding. file paths are
// workspace-relative.
type Finding struct {
	RuleID      string   `json:"rule_id"`
	Severity    string   `json:"severity"`
	FilePath    string   `json:"file_path"`
	StartLine   int      `json:"start_line"`
	EndLine     int      `json:"end_line"`
	CodeSnippet string   `json:"code_snippet"`
	Message     string   `json:"message"`
	CWEIDs      []string `json:"cwe,omitempty"`
}

// RuleError is a non-fatal per-rule failure. The engine keeps going and
// still emits whatever findings it produced.
type RuleError struct {
	RuleID  string `json:"rule_id"`
	Message string `json:"message"`
}

// Result is the parsed engine output.
type Result struct {
	Findings   []Finding   `json:"findings"`
	RuleErrors []RuleError `json:"errors,omitempty"`
}

// Options configures the Runner.
type Options struct {
	// BinaryPath is the analyzer engine executable.
	BinaryPath string

	// RulesDir pins the versioned rule set the engine loads.
	RulesDir string

	// MaxFileSize caps individual source files. Zero uses the default.
	MaxFileSize int64

	// Timeout is the hard wall-clock cap per invocation. Zero uses the
	// batch default.
	Timeout time.Duration

	// Version identifies the deployed engine and rule set. Reported in
	// IDE analyze responses. Empty defaults to "dev".
	Version string
}

// Runner invokes the engine. Safe for concurrent use.
type Runner struct {
	opts   Options
	logger *logger.Logger
}

// NewRunner creates a Runner.
func NewRunner(opts Options, log *logger.Logger) (*Runner, error) {
	if opts.BinaryPath == "" {
		return nil, errors.New("analyzer binary path is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBatchTimeout
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Runner{opts: opts, logger: log}, nil
}

// Version returns the configured engine version string.
func (r *Runner) Version() string {
	return r.opts.Version
}

// Run analyzes a workspace directory. When paths is non-empty the engine
// is scoped to those workspace-relative files (PR and incremental scans).
func (r *Runner) Run(ctx context.Context, workspaceDir string, paths []string) (*Result, error) {
	return r.run(ctx, r.opts.Timeout, workspaceDir, paths)
}

// RunWithTimeout analyzes a workspace with an explicit wall-clock cap.
// The IDE path uses this with its own, much shorter deadline.
func (r *Runner) RunWithTimeout(ctx context.Context, timeout time.Duration, workspaceDir string, paths []string) (*Result, error) {
	return r.run(ctx, timeout, workspaceDir, paths)
}

func (r *Runner) run(ctx context.Context, timeout time.Duration, workspaceDir string, paths []string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{
		"scan",
		"--format", "json",
		"--max-file-size", fmt.Sprintf("%d", r.opts.MaxFileSize),
	}
	if r.opts.RulesDir != "" {
		args = append(args, "--rules", r.opts.RulesDir)
	}
	args = append(args, "--target", workspaceDir)
	for _, p := range paths {
		args = append(args, "--path", p)
	}

	cmd := exec.CommandContext(ctx, r.opts.BinaryPath, args...)
	cmd.Dir = workspaceDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("analyzer timed out after %s: %w", elapsed.Round(time.Millisecond), ctxErr)
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("run analyzer: %w", err)
		}
	}

	if exitCode >= 2 {
		return nil, fmt.Errorf("%w: exit code %d: %s",
			ErrAnalyzerFailed, exitCode, truncate(stderr.String(), 2048))
	}

	result, err := parseOutput(stdout.Bytes())
	if err != nil {
		return nil, err
	}

	for _, re := range result.RuleErrors {
		r.logger.Warn("analyzer rule error",
			"rule_id", re.RuleID,
			"error", re.Message,
		)
	}

	r.logger.Debug("analyzer finished",
		"exit_code", exitCode,
		"findings", len(result.Findings),
		"duration_ms", elapsed.Milliseconds(),
	)
	return result, nil
}

// AnalyzeContent writes a single snippet into a scratch directory, runs
// the engine over it, and cleans the scratch up before returning on all
// paths. Finding file paths are rewritten to the caller's filename.
func (r *Runner) AnalyzeContent(ctx context.Context, timeout time.Duration, filename string, content []byte) (*Result, error) {
	scratch, err := os.MkdirTemp("", "vexguard-ide-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	// Keep only the base name; the caller's path may not be safe to
	// recreate inside the scratch dir.
	target := filepath.Join(scratch, filepath.Base(filename))
	if err := os.WriteFile(target, content, 0o600); err != nil {
		return nil, fmt.Errorf("write snippet: %w", err)
	}

	result, err := r.run(ctx, timeout, scratch, []string{filepath.Base(filename)})
	if err != nil {
		return nil, err
	}

	for i := range result.Findings {
		result.Findings[i].FilePath = filename
	}
	return result, nil
}

func parseOutput(data []byte) (*Result, error) {
	result := &Result{Findings: []Finding{}}
	if len(bytes.TrimSpace(data)) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return nil, fmt.Errorf("parse analyzer output: %w", err)
	}
	if result.Findings == nil {
		result.Findings = []Finding{}
	}
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
