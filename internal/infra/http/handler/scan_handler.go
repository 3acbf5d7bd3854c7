package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vexguard/api/internal/app"
	"github.com/vexguard/api/pkg/domain/scan"
	"github.com/vexguard/api/pkg/logger"
	"github.com/vexguard/api/pkg/validator"
)

// ScanHandler serves the scan endpoints.
type ScanHandler struct {
	scans     *app.ScanService
	fpLogs    *app.FPPatternService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewScanHandler creates a new ScanHandler.
func NewScanHandler(scans *app.ScanService, fpLogs *app.FPPatternService, v *validator.Validator, log *logger.Logger) *ScanHandler {
	return &ScanHandler{
		scans:     scans,
		fpLogs:    fpLogs,
		validator: v,
		logger:    log.With("handler", "scan"),
	}
}

// ScanResponse is the wire representation of a scan job.
type ScanResponse struct {
	ID              string     `json:"id"`
	RepoID          string     `json:"repo_id"`
	Trigger         string     `json:"trigger"`
	ScanType        string     `json:"scan_type"`
	Status          string     `json:"status"`
	CommitSHA       string     `json:"commit_sha,omitempty"`
	Branch          string     `json:"branch,omitempty"`
	PRNumber        *int       `json:"pr_number,omitempty"`
	RetryCount      int        `json:"retry_count"`
	FindingsCount   int        `json:"findings_count"`
	AutoFiltered    int        `json:"auto_filtered_count"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationSeconds *int       `json:"duration_seconds,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toScanResponse(j *scan.Job) ScanResponse {
	return ScanResponse{
		ID:              j.ID().String(),
		RepoID:          j.RepoID().String(),
		Trigger:         string(j.Trigger()),
		ScanType:        string(j.ScanType()),
		Status:          string(j.Status()),
		CommitSHA:       j.CommitSHA(),
		Branch:          j.Branch(),
		PRNumber:        j.PRNumber(),
		RetryCount:      j.RetryCount(),
		FindingsCount:   j.FindingsCount(),
		AutoFiltered:    j.AutoFilteredCount(),
		ErrorMessage:    j.ErrorMessage(),
		StartedAt:       j.StartedAt(),
		CompletedAt:     j.CompletedAt(),
		DurationSeconds: j.DurationSeconds(),
		CreatedAt:       j.CreatedAt(),
	}
}

// TriggerScanRequest requests a manual scan of a repository.
type TriggerScanRequest struct {
	RepoID   string `json:"repo_id" validate:"required,uuid"`
	ScanType string `json:"scan_type" validate:"omitempty,scan_type"`
	Branch   string `json:"branch" validate:"max=255"`
}

// Trigger enqueues a manual scan.
func (h *ScanHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerScanRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	scanType := req.ScanType
	if scanType == "" {
		scanType = string(scan.TypeFull)
	}

	job, err := h.scans.EnqueueScan(r.Context(), app.EnqueueScanInput{
		RepoID:   req.RepoID,
		TeamID:   teamID(r),
		Trigger:  string(scan.TriggerManual),
		ScanType: scanType,
		Branch:   req.Branch,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusAccepted, toScanResponse(job))
}

// Get returns one scan.
func (h *ScanHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.scans.GetScan(r.Context(), chi.URLParam(r, "scanID"), teamID(r))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toScanResponse(job))
}

// List returns a page of the team's scans, newest first.
func (h *ScanHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.scans.ListScans(r.Context(), app.ListScansInput{
		TeamID:  teamID(r),
		RepoID:  q.Get("repo_id"),
		Status:  q.Get("status"),
		Page:    parseQueryInt(q.Get("page"), 1),
		PerPage: parseQueryInt(q.Get("per_page"), 20),
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	data := make([]ScanResponse, 0, len(result.Data))
	for _, j := range result.Data {
		data = append(data, toScanResponse(j))
	}
	respondJSON(w, http.StatusOK, ListResponse[ScanResponse]{
		Data:       data,
		Total:      result.Total,
		Page:       result.Page,
		PerPage:    result.PerPage,
		TotalPages: result.TotalPages,
	})
}

// Cancel cancels a queued or running scan. Cancelling a scan that is
// already terminal is a no-op.
func (h *ScanHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job, err := h.scans.CancelScan(r.Context(), chi.URLParam(r, "scanID"), teamID(r))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toScanResponse(job))
}

// FilterLogResponse is one suppressed-finding record.
type FilterLogResponse struct {
	ID         string    `json:"id"`
	PatternID  string    `json:"pattern_id"`
	RuleID     string    `json:"rule_id"`
	FilePath   string    `json:"file_path"`
	StartLine  int       `json:"start_line"`
	FilteredAt time.Time `json:"filtered_at"`
}

// FilterLogs returns the findings a scan suppressed and why.
func (h *ScanHandler) FilterLogs(w http.ResponseWriter, r *http.Request) {
	scanJobID := chi.URLParam(r, "scanID")

	// The scan lookup enforces team ownership before any logs go out.
	if _, err := h.scans.GetScan(r.Context(), scanJobID, teamID(r)); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	logs, err := h.fpLogs.ListFilterLogs(r.Context(), scanJobID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	data := make([]FilterLogResponse, 0, len(logs))
	for _, l := range logs {
		data = append(data, FilterLogResponse{
			ID:         l.ID().String(),
			PatternID:  l.PatternID().String(),
			RuleID:     l.RuleID(),
			FilePath:   l.FilePath(),
			StartLine:  l.StartLine(),
			FilteredAt: l.FilteredAt(),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": data})
}
