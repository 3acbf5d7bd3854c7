package app

import (
	"time"

	"github.com/vexguard/api/internal/infra/analyzer"
	"github.com/vexguard/api/pkg/domain/fppattern"
	"github.com/vexguard/api/pkg/domain/shared"
)

// FilterOutcome is the result of applying a team's false-positive
// patterns to raw analyzer findings.
type FilterOutcome struct {
	// Kept are findings no pattern matched, in input order.
	Kept []analyzer.Finding
	// Logs record each suppression with the pattern that caused it.
	Logs []*fppattern.Log
	// Matched are the distinct patterns that fired, counters updated.
	Matched []*fppattern.Pattern
	// AutoFiltered is the number of suppressed findings.
	AutoFiltered int
}

// ApplyFPFilter suppresses findings matched by active patterns. Patterns
// are evaluated in insertion order and the first match wins, so each
// suppressed finding produces exactly one log row. The pattern slice is
// mutated: matched patterns get their counters bumped in place so the
// caller can persist them alongside the logs.
func ApplyFPFilter(patterns []*fppattern.Pattern, scanJobID shared.ID, findings []analyzer.Finding, now time.Time) FilterOutcome {
	outcome := FilterOutcome{
		Kept: make([]analyzer.Finding, 0, len(findings)),
	}
	seen := make(map[shared.ID]bool)

	for _, f := range findings {
		var hit *fppattern.Pattern
		for _, p := range patterns {
			if p.Matches(f.RuleID, f.FilePath) {
				hit = p
				break
			}
		}
		if hit == nil {
			outcome.Kept = append(outcome.Kept, f)
			continue
		}

		hit.RecordMatch(now)
		if !seen[hit.ID()] {
			seen[hit.ID()] = true
			outcome.Matched = append(outcome.Matched, hit)
		}
		outcome.Logs = append(outcome.Logs, fppattern.NewLog(
			shared.NewID(),
			hit.ID(),
			scanJobID,
			f.RuleID,
			f.FilePath,
			f.StartLine,
			now,
		))
		outcome.AutoFiltered++
	}

	return outcome
}

// AnnotateFPMatches marks findings matched by a pattern without removing
// them. The IDE surface shows suppressed findings greyed out instead of
// hiding them, so the first matching pattern is recorded per finding.
func AnnotateFPMatches(patterns []*fppattern.Pattern, findings []IDEFinding) {
	for i := range findings {
		for _, p := range patterns {
			if p.Matches(findings[i].RuleID, findings[i].FilePath) {
				findings[i].FalsePositive = true
				id := p.ID().String()
				findings[i].AppliedPatternID = &id
				break
			}
		}
	}
}
