package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vexguard/api/internal/app"
	"github.com/vexguard/api/pkg/domain/vulnerability"
	"github.com/vexguard/api/pkg/logger"
	"github.com/vexguard/api/pkg/sarif"
)

// ExportHandler serves repository findings in interchange formats.
type ExportHandler struct {
	vulns   *app.VulnerabilityService
	version string
	logger  *logger.Logger
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(vulns *app.VulnerabilityService, version string, log *logger.Logger) *ExportHandler {
	return &ExportHandler{
		vulns:   vulns,
		version: version,
		logger:  log.With("handler", "export"),
	}
}

// SARIF handles GET /api/v1/repos/{repoID}/export/sarif. The output is
// accepted by GitHub code scanning uploads.
func (h *ExportHandler) SARIF(w http.ResponseWriter, r *http.Request) {
	findings, repository, err := h.vulns.ExportOpenFindings(r.Context(), teamID(r), chi.URLParam(r, "repoID"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	log := h.buildLog(findings)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", repository.Name()+".sarif"))
	respondJSON(w, http.StatusOK, log)
}

func (h *ExportHandler) buildLog(findings []*vulnerability.Vulnerability) *sarif.Log {
	var rules []sarif.ReportingDescriptor
	ruleIndex := make(map[string]int)

	results := make([]sarif.Result, 0, len(findings))
	for _, f := range findings {
		idx, ok := ruleIndex[f.RuleID()]
		if !ok {
			idx = len(rules)
			ruleIndex[f.RuleID()] = idx
			rules = append(rules, sarif.ReportingDescriptor{
				ID:               f.RuleID(),
				Name:             f.VulnType(),
				ShortDescription: &sarif.MultiformatMessageString{Text: f.VulnType()},
				Properties:       ruleProperties(f),
			})
		}

		region := &sarif.Region{StartLine: f.StartLine(), EndLine: f.EndLine()}
		if snippet := f.CodeSnippet(); snippet != "" {
			region.Snippet = &sarif.ArtifactContent{Text: snippet}
		}

		results = append(results, sarif.Result{
			RuleID:    f.RuleID(),
			RuleIndex: idx,
			Level:     severityLevel(f.Severity()),
			Message:   sarif.Message{Text: f.Message()},
			Locations: []sarif.Location{{
				PhysicalLocation: &sarif.PhysicalLocation{
					ArtifactLocation: &sarif.ArtifactLocation{
						URI:       f.FilePath(),
						URIBaseID: "%SRCROOT%",
					},
					Region: region,
				},
			}},
			PartialFingerprints: map[string]string{"vexguardFindingId": f.ID().String()},
			Properties:          sarif.Properties{"severity": string(f.Severity())},
		})
	}

	return sarif.NewLog(sarif.Run{
		Tool: sarif.Tool{Driver: sarif.ToolComponent{
			Name:           "Vexguard",
			Version:        h.version,
			InformationURI: "https://github.com/vexguard/api",
			Rules:          rules,
		}},
		Results: results,
	})
}

func ruleProperties(f *vulnerability.Vulnerability) sarif.Properties {
	props := sarif.Properties{
		// GitHub reads this to bucket alerts by severity.
		"security-severity": fmt.Sprintf("%.1f", securityScore(f.Severity())),
	}
	if cwes := f.CWEIDs(); len(cwes) > 0 {
		tags := make([]string, 0, len(cwes)+1)
		tags = append(tags, "security")
		for _, cwe := range cwes {
			tags = append(tags, "external/cwe/"+cwe)
		}
		props["tags"] = tags
	}
	return props
}

// severityLevel maps finding severity onto the three SARIF levels.
func severityLevel(s vulnerability.Severity) sarif.Level {
	switch s {
	case vulnerability.SeverityCritical, vulnerability.SeverityHigh:
		return sarif.LevelError
	case vulnerability.SeverityMedium:
		return sarif.LevelWarning
	default:
		return sarif.LevelNote
	}
}

// securityScore maps severity onto the CVSS-like 0-10 scale the
// security-severity property uses.
func securityScore(s vulnerability.Severity) float64 {
	switch s {
	case vulnerability.SeverityCritical:
		return 9.5
	case vulnerability.SeverityHigh:
		return 7.5
	case vulnerability.SeverityMedium:
		return 5.0
	case vulnerability.SeverityLow:
		return 2.5
	default:
		return 0.0
	}
}
