package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/domain/vulnerability"
	"github.com/vexguard/api/pkg/logger"
	"github.com/vexguard/api/pkg/sarif"
)

func testFinding(ruleID string, severity vulnerability.Severity, cweIDs []string) *vulnerability.Vulnerability {
	return vulnerability.NewVulnerability(
		shared.NewID(), shared.NewID(), shared.NewID(),
		ruleID, severity, "SQL Injection", "internal/db/query.go",
		10, 12, "db.Query(input)", "User input flows into a SQL query.",
		cweIDs,
	)
}

func TestBuildSARIFLog(t *testing.T) {
	h := NewExportHandler(nil, "1.2.3", logger.NewNop())

	findings := []*vulnerability.Vulnerability{
		testFinding("go.sql.injection", vulnerability.SeverityCritical, []string{"CWE-89"}),
		testFinding("go.sql.injection", vulnerability.SeverityCritical, []string{"CWE-89"}),
		testFinding("go.weak.hash", vulnerability.SeverityMedium, nil),
	}

	log := h.buildLog(findings)

	assert.Equal(t, sarif.Version, log.Version)
	require.Len(t, log.Runs, 1)

	run := log.Runs[0]
	assert.Equal(t, "Vexguard", run.Tool.Driver.Name)
	assert.Equal(t, "1.2.3", run.Tool.Driver.Version)

	// Rules are deduplicated, results are not.
	require.Len(t, run.Tool.Driver.Rules, 2)
	require.Len(t, run.Results, 3)

	first := run.Results[0]
	assert.Equal(t, "go.sql.injection", first.RuleID)
	assert.Equal(t, 0, first.RuleIndex)
	assert.Equal(t, sarif.LevelError, first.Level)
	require.Len(t, first.Locations, 1)
	loc := first.Locations[0].PhysicalLocation
	assert.Equal(t, "internal/db/query.go", loc.ArtifactLocation.URI)
	assert.Equal(t, 10, loc.Region.StartLine)
	assert.Equal(t, 12, loc.Region.EndLine)
	require.NotNil(t, loc.Region.Snippet)
	assert.NotEmpty(t, first.PartialFingerprints["vexguardFindingId"])

	last := run.Results[2]
	assert.Equal(t, "go.weak.hash", last.RuleID)
	assert.Equal(t, 1, last.RuleIndex)
	assert.Equal(t, sarif.LevelWarning, last.Level)
}

func TestBuildSARIFLogEmpty(t *testing.T) {
	h := NewExportHandler(nil, "dev", logger.NewNop())

	log := h.buildLog(nil)

	require.Len(t, log.Runs, 1)
	assert.Empty(t, log.Runs[0].Results)
	assert.Empty(t, log.Runs[0].Tool.Driver.Rules)
}

func TestSeverityLevelMapping(t *testing.T) {
	assert.Equal(t, sarif.LevelError, severityLevel(vulnerability.SeverityCritical))
	assert.Equal(t, sarif.LevelError, severityLevel(vulnerability.SeverityHigh))
	assert.Equal(t, sarif.LevelWarning, severityLevel(vulnerability.SeverityMedium))
	assert.Equal(t, sarif.LevelNote, severityLevel(vulnerability.SeverityLow))
	assert.Equal(t, sarif.LevelNote, severityLevel(vulnerability.SeverityInfo))
}

func TestRulePropertiesCWETags(t *testing.T) {
	props := ruleProperties(testFinding("r", vulnerability.SeverityHigh, []string{"CWE-89", "CWE-20"}))

	assert.Equal(t, "7.5", props["security-severity"])
	assert.Equal(t, []string{"security", "external/cwe/CWE-89", "external/cwe/CWE-20"}, props["tags"])
}
