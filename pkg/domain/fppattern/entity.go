// Package fppattern holds team-scoped false-positive filter rules and the
// immutable log rows recording each filter event.
package fppattern

import (
	"fmt"
	"time"

	"github.com/vexguard/api/pkg/domain/shared"
)

// ID is a type alias for shared.ID.
type ID = shared.ID

// Pattern suppresses findings for a rule, optionally narrowed to a file
// glob. Deactivation is a soft delete; a revived pattern keeps its
// identity and counters.
type Pattern struct {
	id            ID
	teamID        ID
	ruleID        string
	fileGlob      string // empty means "all paths"
	description   string
	isActive      bool
	matchedCount  int64
	lastMatchedAt *time.Time
	createdAt     time.Time
	updatedAt     time.Time
}

// NewPattern creates an active pattern.
func NewPattern(id, teamID ID, ruleID, fileGlob, description string) (*Pattern, error) {
	if ruleID == "" {
		return nil, fmt.Errorf("%w: rule_id is required", shared.ErrValidation)
	}
	now := time.Now()
	return &Pattern{
		id:          id,
		teamID:      teamID,
		ruleID:      ruleID,
		fileGlob:    fileGlob,
		description: description,
		isActive:    true,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// Reconstruct creates a Pattern from stored data.
func Reconstruct(
	id, teamID ID,
	ruleID, fileGlob, description string,
	isActive bool,
	matchedCount int64,
	lastMatchedAt *time.Time,
	createdAt, updatedAt time.Time,
) *Pattern {
	return &Pattern{
		id:            id,
		teamID:        teamID,
		ruleID:        ruleID,
		fileGlob:      fileGlob,
		description:   description,
		isActive:      isActive,
		matchedCount:  matchedCount,
		lastMatchedAt: lastMatchedAt,
		createdAt:     createdAt,
		updatedAt:     updatedAt,
	}
}

func (p *Pattern) ID() ID                    { return p.id }
func (p *Pattern) TeamID() ID                { return p.teamID }
func (p *Pattern) RuleID() string            { return p.ruleID }
func (p *Pattern) FileGlob() string          { return p.fileGlob }
func (p *Pattern) Description() string       { return p.description }
func (p *Pattern) IsActive() bool            { return p.isActive }
func (p *Pattern) MatchedCount() int64       { return p.matchedCount }
func (p *Pattern) LastMatchedAt() *time.Time { return p.lastMatchedAt }
func (p *Pattern) CreatedAt() time.Time      { return p.createdAt }
func (p *Pattern) UpdatedAt() time.Time      { return p.updatedAt }

// Matches reports whether the pattern suppresses a finding with the given
// rule and workspace-relative path.
func (p *Pattern) Matches(ruleID, filePath string) bool {
	if p.ruleID != ruleID {
		return false
	}
	if p.fileGlob == "" {
		return true
	}
	return GlobMatch(p.fileGlob, filePath)
}

// RecordMatch bumps the counters for one filtered finding. Persisted in
// the same transaction as the log row that justifies it.
func (p *Pattern) RecordMatch(at time.Time) {
	p.matchedCount++
	p.lastMatchedAt = &at
	p.updatedAt = at
}

// Deactivate soft-deletes the pattern. Idempotent.
func (p *Pattern) Deactivate() {
	if p.isActive {
		p.isActive = false
		p.updatedAt = time.Now()
	}
}

// Restore revives a soft-deleted pattern. Idempotent.
func (p *Pattern) Restore() {
	if !p.isActive {
		p.isActive = true
		p.updatedAt = time.Now()
	}
}

// Log is an immutable record of one filtered finding.
type Log struct {
	id         ID
	patternID  ID
	scanJobID  ID
	ruleID     string
	filePath   string
	startLine  int
	filteredAt time.Time
}

// NewLog creates a filter log row.
func NewLog(id, patternID, scanJobID ID, ruleID, filePath string, startLine int, filteredAt time.Time) *Log {
	return &Log{
		id:         id,
		patternID:  patternID,
		scanJobID:  scanJobID,
		ruleID:     ruleID,
		filePath:   filePath,
		startLine:  startLine,
		filteredAt: filteredAt,
	}
}

// ReconstructLog creates a Log from stored data.
func ReconstructLog(id, patternID, scanJobID ID, ruleID, filePath string, startLine int, filteredAt time.Time) *Log {
	return NewLog(id, patternID, scanJobID, ruleID, filePath, startLine, filteredAt)
}

func (l *Log) ID() ID                { return l.id }
func (l *Log) PatternID() ID         { return l.patternID }
func (l *Log) ScanJobID() ID         { return l.scanJobID }
func (l *Log) RuleID() string        { return l.ruleID }
func (l *Log) FilePath() string      { return l.filePath }
func (l *Log) StartLine() int        { return l.startLine }
func (l *Log) FilteredAt() time.Time { return l.filteredAt }

var (
	ErrPatternNotFound = fmt.Errorf("%w: false positive pattern not found", shared.ErrNotFound)
	ErrPatternExists   = fmt.Errorf("%w: an active pattern for this rule and glob already exists", shared.ErrAlreadyExists)
)
