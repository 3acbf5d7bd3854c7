package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vexguard/api/internal/app"
	"github.com/vexguard/api/pkg/domain/vulnerability"
	"github.com/vexguard/api/pkg/logger"
	"github.com/vexguard/api/pkg/validator"
)

// VulnerabilityHandler serves the finding endpoints.
type VulnerabilityHandler struct {
	vulns     *app.VulnerabilityService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewVulnerabilityHandler creates a new VulnerabilityHandler.
func NewVulnerabilityHandler(vulns *app.VulnerabilityService, v *validator.Validator, log *logger.Logger) *VulnerabilityHandler {
	return &VulnerabilityHandler{
		vulns:     vulns,
		validator: v,
		logger:    log.With("handler", "vulnerability"),
	}
}

// VulnerabilityResponse is the wire representation of a finding.
type VulnerabilityResponse struct {
	ID          string     `json:"id"`
	RepoID      string     `json:"repo_id"`
	ScanJobID   string     `json:"scan_job_id"`
	RuleID      string     `json:"rule_id"`
	Severity    string     `json:"severity"`
	VulnType    string     `json:"vuln_type"`
	CWEIDs      []string   `json:"cwe_ids,omitempty"`
	FilePath    string     `json:"file_path"`
	StartLine   int        `json:"start_line"`
	EndLine     int        `json:"end_line"`
	CodeSnippet string     `json:"code_snippet,omitempty"`
	Message     string     `json:"message"`
	Status      string     `json:"status"`
	DetectedAt  time.Time  `json:"detected_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

func toVulnerabilityResponse(v *vulnerability.Vulnerability) VulnerabilityResponse {
	return VulnerabilityResponse{
		ID:          v.ID().String(),
		RepoID:      v.RepoID().String(),
		ScanJobID:   v.ScanJobID().String(),
		RuleID:      v.RuleID(),
		Severity:    string(v.Severity()),
		VulnType:    v.VulnType(),
		CWEIDs:      v.CWEIDs(),
		FilePath:    v.FilePath(),
		StartLine:   v.StartLine(),
		EndLine:     v.EndLine(),
		CodeSnippet: v.CodeSnippet(),
		Message:     v.Message(),
		Status:      string(v.Status()),
		DetectedAt:  v.DetectedAt(),
		ResolvedAt:  v.ResolvedAt(),
	}
}

// Get returns one finding.
func (h *VulnerabilityHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.vulns.GetVulnerability(r.Context(), chi.URLParam(r, "vulnID"), teamID(r))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toVulnerabilityResponse(v))
}

// List returns a page of one repository's findings.
func (h *VulnerabilityHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.vulns.ListVulnerabilities(r.Context(), app.ListVulnerabilitiesInput{
		TeamID:   teamID(r),
		RepoID:   q.Get("repo_id"),
		Severity: q.Get("severity"),
		Status:   q.Get("status"),
		Page:     parseQueryInt(q.Get("page"), 1),
		PerPage:  parseQueryInt(q.Get("per_page"), 20),
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	data := make([]VulnerabilityResponse, 0, len(result.Data))
	for _, v := range result.Data {
		data = append(data, toVulnerabilityResponse(v))
	}
	respondJSON(w, http.StatusOK, ListResponse[VulnerabilityResponse]{
		Data:       data,
		Total:      result.Total,
		Page:       result.Page,
		PerPage:    result.PerPage,
		TotalPages: result.TotalPages,
	})
}

// ResolveRequest moves a finding to a terminal status.
type ResolveRequest struct {
	Status string `json:"status" validate:"required,oneof=patched ignored false_positive"`
}

// Resolve marks a finding patched, ignored, or a false positive.
func (h *VulnerabilityHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	v, err := h.vulns.ResolveVulnerability(r.Context(), chi.URLParam(r, "vulnID"), teamID(r), req.Status)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toVulnerabilityResponse(v))
}
