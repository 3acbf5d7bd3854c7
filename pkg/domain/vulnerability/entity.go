// Package vulnerability holds the per-scan finding entity.
package vulnerability

import (
	"fmt"
	"strings"
	"time"

	"github.com/vexguard/api/pkg/domain/shared"
)

// ID is a type alias for shared.ID.
type ID = shared.ID

// Severity ranks how serious a finding is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// AllSeverities returns severities ordered worst first.
func AllSeverities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}
}

// ParseSeverity parses a severity string.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	switch sev {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return sev, nil
	}
	return "", fmt.Errorf("%w: unknown severity %q", shared.ErrValidation, s)
}

// Rank returns a numeric order, higher is worse. Unknown severities rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

// AtLeast reports whether s is as severe as threshold or worse.
func (s Severity) AtLeast(threshold Severity) bool {
	return s.Rank() >= threshold.Rank()
}

// Status tracks a finding's remediation state. Transitions only move
// toward terminal states.
type Status string

const (
	StatusOpen          Status = "open"
	StatusPatched       Status = "patched"
	StatusIgnored       Status = "ignored"
	StatusFalsePositive Status = "false_positive"
)

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s != StatusOpen
}

// Vulnerability is one finding recorded by a scan.
type Vulnerability struct {
	id           ID
	repoID       ID
	scanJobID    ID
	ruleID       string
	severity     Severity
	vulnType     string
	cweIDs       []string
	filePath     string
	startLine    int
	endLine      int
	codeSnippet  string
	message      string
	status       Status
	detectedAt   time.Time
	resolvedAt   *time.Time
	createdAt    time.Time
	updatedAt    time.Time
}

// NewVulnerability records a fresh open finding.
func NewVulnerability(id, repoID, scanJobID ID, ruleID string, severity Severity, vulnType, filePath string, startLine, endLine int, codeSnippet, message string, cweIDs []string) *Vulnerability {
	now := time.Now()
	return &Vulnerability{
		id:          id,
		repoID:      repoID,
		scanJobID:   scanJobID,
		ruleID:      ruleID,
		severity:    severity,
		vulnType:    vulnType,
		cweIDs:      cweIDs,
		filePath:    filePath,
		startLine:   startLine,
		endLine:     endLine,
		codeSnippet: codeSnippet,
		message:     message,
		status:      StatusOpen,
		detectedAt:  now,
		createdAt:   now,
		updatedAt:   now,
	}
}

// Reconstruct creates a Vulnerability from stored data.
func Reconstruct(
	id, repoID, scanJobID ID,
	ruleID string,
	severity Severity,
	vulnType string,
	cweIDs []string,
	filePath string,
	startLine, endLine int,
	codeSnippet, message string,
	status Status,
	detectedAt time.Time,
	resolvedAt *time.Time,
	createdAt, updatedAt time.Time,
) *Vulnerability {
	return &Vulnerability{
		id:          id,
		repoID:      repoID,
		scanJobID:   scanJobID,
		ruleID:      ruleID,
		severity:    severity,
		vulnType:    vulnType,
		cweIDs:      cweIDs,
		filePath:    filePath,
		startLine:   startLine,
		endLine:     endLine,
		codeSnippet: codeSnippet,
		message:     message,
		status:      status,
		detectedAt:  detectedAt,
		resolvedAt:  resolvedAt,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

func (v *Vulnerability) ID() ID                 { return v.id }
func (v *Vulnerability) RepoID() ID             { return v.repoID }
func (v *Vulnerability) ScanJobID() ID          { return v.scanJobID }
func (v *Vulnerability) RuleID() string         { return v.ruleID }
func (v *Vulnerability) Severity() Severity     { return v.severity }
func (v *Vulnerability) VulnType() string       { return v.vulnType }
func (v *Vulnerability) CWEIDs() []string       { return v.cweIDs }
func (v *Vulnerability) FilePath() string       { return v.filePath }
func (v *Vulnerability) StartLine() int         { return v.startLine }
func (v *Vulnerability) EndLine() int           { return v.endLine }
func (v *Vulnerability) CodeSnippet() string    { return v.codeSnippet }
func (v *Vulnerability) Message() string        { return v.message }
func (v *Vulnerability) Status() Status         { return v.status }
func (v *Vulnerability) DetectedAt() time.Time  { return v.detectedAt }
func (v *Vulnerability) ResolvedAt() *time.Time { return v.resolvedAt }
func (v *Vulnerability) CreatedAt() time.Time   { return v.createdAt }
func (v *Vulnerability) UpdatedAt() time.Time   { return v.updatedAt }

// Resolve moves an open finding into a terminal status and stamps
// resolved_at. Terminal findings stay put.
func (v *Vulnerability) Resolve(status Status) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: %q is not a terminal status", shared.ErrValidation, status)
	}
	if v.status.IsTerminal() {
		return fmt.Errorf("%w: finding already resolved as %q", shared.ErrConflict, v.status)
	}
	now := time.Now()
	v.status = status
	v.resolvedAt = &now
	v.updatedAt = now
	return nil
}

var ErrVulnerabilityNotFound = fmt.Errorf("%w: vulnerability not found", shared.ErrNotFound)
