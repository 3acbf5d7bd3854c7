package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexguard/api/internal/infra/analyzer"
	"github.com/vexguard/api/pkg/domain/fppattern"
	"github.com/vexguard/api/pkg/domain/shared"
)

func mustPattern(t *testing.T, teamID shared.ID, ruleID, glob string) *fppattern.Pattern {
	t.Helper()
	p, err := fppattern.NewPattern(shared.NewID(), teamID, ruleID, glob, "")
	require.NoError(t, err)
	return p
}

func TestApplyFPFilterFirstMatchWins(t *testing.T) {
	teamID := shared.NewID()
	jobID := shared.NewID()
	broad := mustPattern(t, teamID, "sql.injection", "")
	narrow := mustPattern(t, teamID, "sql.injection", "src/**")
	patterns := []*fppattern.Pattern{broad, narrow}

	findings := []analyzer.Finding{
		{RuleID: "sql.injection", FilePath: "src/db.py", StartLine: 10},
		{RuleID: "xss.reflected", FilePath: "src/views.py", StartLine: 20},
	}

	outcome := ApplyFPFilter(patterns, jobID, findings, time.Now())

	require.Len(t, outcome.Kept, 1)
	assert.Equal(t, "xss.reflected", outcome.Kept[0].RuleID)
	assert.Equal(t, 1, outcome.AutoFiltered)

	// The broad pattern comes first in insertion order, so it takes
	// the match even though the narrow one would also hit.
	require.Len(t, outcome.Logs, 1)
	assert.True(t, outcome.Logs[0].PatternID().Equals(broad.ID()))
	require.Len(t, outcome.Matched, 1)
	assert.True(t, outcome.Matched[0].ID().Equals(broad.ID()))
	assert.Equal(t, int64(1), broad.MatchedCount())
	assert.Equal(t, int64(0), narrow.MatchedCount())
}

func TestApplyFPFilterLogPerSuppressedFinding(t *testing.T) {
	teamID := shared.NewID()
	jobID := shared.NewID()
	p := mustPattern(t, teamID, "hardcoded.secret", "")

	findings := []analyzer.Finding{
		{RuleID: "hardcoded.secret", FilePath: "a.py", StartLine: 1},
		{RuleID: "hardcoded.secret", FilePath: "b.py", StartLine: 2},
		{RuleID: "hardcoded.secret", FilePath: "c.py", StartLine: 3},
	}

	outcome := ApplyFPFilter([]*fppattern.Pattern{p}, jobID, findings, time.Now())

	assert.Empty(t, outcome.Kept)
	assert.Equal(t, 3, outcome.AutoFiltered)
	assert.Len(t, outcome.Logs, 3)
	// One distinct pattern matched three times.
	assert.Len(t, outcome.Matched, 1)
	assert.Equal(t, int64(3), p.MatchedCount())
}

func TestApplyFPFilterNoPatterns(t *testing.T) {
	findings := []analyzer.Finding{
		{RuleID: "sql.injection", FilePath: "src/db.py", StartLine: 10},
	}

	outcome := ApplyFPFilter(nil, shared.NewID(), findings, time.Now())

	assert.Len(t, outcome.Kept, 1)
	assert.Zero(t, outcome.AutoFiltered)
	assert.Empty(t, outcome.Logs)
	assert.Empty(t, outcome.Matched)
}

func TestApplyFPFilterGlobScoping(t *testing.T) {
	teamID := shared.NewID()
	p := mustPattern(t, teamID, "sql.injection", "tests/**")

	findings := []analyzer.Finding{
		{RuleID: "sql.injection", FilePath: "tests/test_db.py", StartLine: 5},
		{RuleID: "sql.injection", FilePath: "src/db.py", StartLine: 10},
	}

	outcome := ApplyFPFilter([]*fppattern.Pattern{p}, shared.NewID(), findings, time.Now())

	require.Len(t, outcome.Kept, 1)
	assert.Equal(t, "src/db.py", outcome.Kept[0].FilePath)
	assert.Equal(t, 1, outcome.AutoFiltered)
}

func TestAnnotateFPMatchesKeepsFindings(t *testing.T) {
	teamID := shared.NewID()
	p := mustPattern(t, teamID, "sql.injection", "")

	findings := []IDEFinding{
		{RuleID: "sql.injection", FilePath: "src/db.py"},
		{RuleID: "xss.reflected", FilePath: "src/views.py"},
	}

	AnnotateFPMatches([]*fppattern.Pattern{p}, findings)

	// Nothing is removed; matches are only marked.
	require.Len(t, findings, 2)
	assert.True(t, findings[0].FalsePositive)
	require.NotNil(t, findings[0].AppliedPatternID)
	assert.Equal(t, p.ID().String(), *findings[0].AppliedPatternID)
	assert.False(t, findings[1].FalsePositive)
	assert.Nil(t, findings[1].AppliedPatternID)
}
