package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vexguard/api/internal/app"
	"github.com/vexguard/api/internal/metrics"
	"github.com/vexguard/api/pkg/logger"
	"github.com/vexguard/api/pkg/validator"
)

// IDEHandler serves the editor plugin endpoints. Requests arrive
// API-key authenticated; the team comes from the key, never the body.
type IDEHandler struct {
	ide       *app.IDEService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewIDEHandler creates a new IDEHandler.
func NewIDEHandler(ide *app.IDEService, v *validator.Validator, log *logger.Logger) *IDEHandler {
	return &IDEHandler{
		ide:       ide,
		validator: v,
		logger:    log.With("handler", "ide"),
	}
}

// AnalyzeRequest is one in-editor file snapshot.
type AnalyzeRequest struct {
	FileName string `json:"file_name" validate:"required,max=512"`
	Language string `json:"language" validate:"max=64"`
	Content  string `json:"content" validate:"required"`
}

// Analyze scans a snippet and returns findings inline.
func (h *IDEHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req AnalyzeRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		metrics.IDEAnalyzeTotal.WithLabelValues("rejected").Inc()
		apiErr.WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		metrics.IDEAnalyzeTotal.WithLabelValues("rejected").Inc()
		respondError(w, r, h.logger, err)
		return
	}

	result, err := h.ide.Analyze(r.Context(), app.AnalyzeInput{
		TeamID:   teamID(r),
		FileName: req.FileName,
		Language: req.Language,
		Content:  req.Content,
	})
	if err != nil {
		metrics.IDEAnalyzeTotal.WithLabelValues("error").Inc()
		respondError(w, r, h.logger, err)
		return
	}

	outcome := "ok"
	if result.TimedOut {
		outcome = "timeout"
	}
	metrics.IDEAnalyzeTotal.WithLabelValues(outcome).Inc()
	metrics.IDEAnalyzeDuration.Observe(time.Since(start).Seconds())

	respondJSON(w, http.StatusOK, result)
}

// ScanResults returns a repository's open findings for editor overlay.
// The payload is content-addressed: clients replay the ETag in
// If-None-Match and get 304 when nothing changed.
func (h *IDEHandler) ScanResults(w http.ResponseWriter, r *http.Request) {
	view, etag, err := h.ide.GetScanResults(r.Context(), teamID(r), chi.URLParam(r, "repoID"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		metrics.IDECacheHits.WithLabelValues("hit").Inc()
		w.WriteHeader(http.StatusNotModified)
		return
	}
	metrics.IDECacheHits.WithLabelValues("miss").Inc()

	respondJSON(w, http.StatusOK, view)
}

// FalsePositivePatterns returns the team's active suppression patterns
// for editor-side annotation. The ETag is a pure function of the
// pattern set, so plugins poll cheaply with If-None-Match.
func (h *IDEHandler) FalsePositivePatterns(w http.ResponseWriter, r *http.Request) {
	view, etag, err := h.ide.GetFPPatterns(r.Context(), teamID(r))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		metrics.IDECacheHits.WithLabelValues("hit").Inc()
		w.WriteHeader(http.StatusNotModified)
		return
	}
	metrics.IDECacheHits.WithLabelValues("miss").Inc()

	respondJSON(w, http.StatusOK, view)
}

// PatchSuggestionRequest carries a locally surfaced finding plus enough
// file context for the model to draft a fix.
type PatchSuggestionRequest struct {
	Content  string            `json:"content" validate:"required"`
	Language string            `json:"language" validate:"max=64"`
	FilePath string            `json:"file_path" validate:"max=512"`
	Finding  app.InlineFinding `json:"finding" validate:"required"`
}

// PatchSuggestion drafts a fix for a finding straight out of the
// editor, without requiring it to be persisted first.
func (h *IDEHandler) PatchSuggestion(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req PatchSuggestionRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	suggestion, err := h.ide.SuggestPatchForFinding(r.Context(), app.SuggestPatchInput{
		TeamID:   teamID(r),
		Content:  req.Content,
		Language: req.Language,
		FilePath: req.FilePath,
		Finding:  req.Finding,
	})
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues("error").Inc()
		respondError(w, r, h.logger, err)
		return
	}

	metrics.LLMRequestsTotal.WithLabelValues("ok").Inc()
	metrics.LLMRequestDuration.Observe(time.Since(start).Seconds())

	respondJSON(w, http.StatusOK, suggestion)
}

// SuggestPatch asks the LLM for an advisory fix for one finding.
func (h *IDEHandler) SuggestPatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	suggestion, err := h.ide.SuggestPatch(r.Context(), teamID(r), chi.URLParam(r, "vulnID"))
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues("error").Inc()
		respondError(w, r, h.logger, err)
		return
	}

	metrics.LLMRequestsTotal.WithLabelValues("ok").Inc()
	metrics.LLMRequestDuration.Observe(time.Since(start).Seconds())

	respondJSON(w, http.StatusOK, suggestion)
}
