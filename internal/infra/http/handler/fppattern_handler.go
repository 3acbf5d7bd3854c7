package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vexguard/api/internal/app"
	"github.com/vexguard/api/pkg/domain/fppattern"
	"github.com/vexguard/api/pkg/logger"
	"github.com/vexguard/api/pkg/validator"
)

// FPPatternHandler serves the false positive pattern endpoints.
type FPPatternHandler struct {
	patterns  *app.FPPatternService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewFPPatternHandler creates a new FPPatternHandler.
func NewFPPatternHandler(patterns *app.FPPatternService, v *validator.Validator, log *logger.Logger) *FPPatternHandler {
	return &FPPatternHandler{
		patterns:  patterns,
		validator: v,
		logger:    log.With("handler", "fppattern"),
	}
}

// FPPatternResponse is the wire representation of a suppression pattern.
type FPPatternResponse struct {
	ID            string     `json:"id"`
	RuleID        string     `json:"rule_id"`
	FileGlob      string     `json:"file_glob,omitempty"`
	Description   string     `json:"description,omitempty"`
	IsActive      bool       `json:"is_active"`
	MatchedCount  int64      `json:"matched_count"`
	LastMatchedAt *time.Time `json:"last_matched_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toFPPatternResponse(p *fppattern.Pattern) FPPatternResponse {
	return FPPatternResponse{
		ID:            p.ID().String(),
		RuleID:        p.RuleID(),
		FileGlob:      p.FileGlob(),
		Description:   p.Description(),
		IsActive:      p.IsActive(),
		MatchedCount:  p.MatchedCount(),
		LastMatchedAt: p.LastMatchedAt(),
		CreatedAt:     p.CreatedAt(),
	}
}

// CreateFPPatternRequest creates a suppression pattern.
type CreateFPPatternRequest struct {
	RuleID      string `json:"rule_id" validate:"required,max=255"`
	FileGlob    string `json:"file_glob" validate:"max=512"`
	Description string `json:"description" validate:"max=1000"`
}

// Create adds an active suppression pattern. It applies to future scan
// results only; existing findings are untouched.
func (h *FPPatternHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateFPPatternRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	p, err := h.patterns.CreatePattern(r.Context(), app.CreatePatternInput{
		TeamID:      teamID(r),
		RuleID:      req.RuleID,
		FileGlob:    req.FileGlob,
		Description: req.Description,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, toFPPatternResponse(p))
}

// Get returns one pattern.
func (h *FPPatternHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.patterns.GetPattern(r.Context(), chi.URLParam(r, "patternID"), teamID(r))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toFPPatternResponse(p))
}

// List returns the team's patterns. Inactive ones are included only
// with ?include_inactive=true.
func (h *FPPatternHandler) List(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"

	patterns, err := h.patterns.ListPatterns(r.Context(), teamID(r), includeInactive)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	data := make([]FPPatternResponse, 0, len(patterns))
	for _, p := range patterns {
		data = append(data, toFPPatternResponse(p))
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": data})
}

// Deactivate retires a pattern. Filter logs recorded under it survive.
func (h *FPPatternHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	p, err := h.patterns.DeactivatePattern(r.Context(), chi.URLParam(r, "patternID"), teamID(r))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toFPPatternResponse(p))
}

// Restore reactivates a retired pattern.
func (h *FPPatternHandler) Restore(w http.ResponseWriter, r *http.Request) {
	p, err := h.patterns.RestorePattern(r.Context(), chi.URLParam(r, "patternID"), teamID(r))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toFPPatternResponse(p))
}
