package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vexguard/api/internal/app"
	"github.com/vexguard/api/pkg/apierror"
	"github.com/vexguard/api/pkg/domain/patchpr"
	"github.com/vexguard/api/pkg/logger"
	"github.com/vexguard/api/pkg/validator"
)

// PatchPRHandler serves the automated patch PR endpoints.
type PatchPRHandler struct {
	patches   *app.PatchPRService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewPatchPRHandler creates a new PatchPRHandler.
func NewPatchPRHandler(patches *app.PatchPRService, v *validator.Validator, log *logger.Logger) *PatchPRHandler {
	return &PatchPRHandler{
		patches:   patches,
		validator: v,
		logger:    log.With("handler", "patchpr"),
	}
}

// PatchPRResponse is the wire representation of a patch PR.
type PatchPRResponse struct {
	ID              string    `json:"id"`
	VulnerabilityID string    `json:"vulnerability_id"`
	RepoID          string    `json:"repo_id"`
	PRNumber        int       `json:"pr_number"`
	PRURL           string    `json:"pr_url"`
	BranchName      string    `json:"branch_name"`
	PatchDiff       string    `json:"patch_diff,omitempty"`
	Description     string    `json:"description,omitempty"`
	State           string    `json:"state"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toPatchPRResponse(p *patchpr.PatchPR) PatchPRResponse {
	return PatchPRResponse{
		ID:              p.ID().String(),
		VulnerabilityID: p.VulnerabilityID().String(),
		RepoID:          p.RepoID().String(),
		PRNumber:        p.PRNumber(),
		PRURL:           p.PRURL(),
		BranchName:      p.BranchName(),
		PatchDiff:       p.PatchDiff(),
		Description:     p.Description(),
		State:           string(p.State()),
		CreatedAt:       p.CreatedAt(),
		UpdatedAt:       p.UpdatedAt(),
	}
}

// Create generates a patch for one finding and opens a PR with it on
// the hosting platform. Slow by nature; clients should expect seconds.
func (h *PatchPRHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := h.patches.CreatePatchPR(r.Context(), teamID(r), chi.URLParam(r, "vulnID"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, toPatchPRResponse(p))
}

// Get returns the patch PR opened for one finding, if any.
func (h *PatchPRHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.patches.GetPatchPR(r.Context(), teamID(r), chi.URLParam(r, "vulnID"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toPatchPRResponse(p))
}

// SyncStateRequest records the platform-side state of a patch PR.
type SyncStateRequest struct {
	State string `json:"state" validate:"required,oneof=open merged closed"`
}

// SyncState reconciles a patch PR with its platform-side state. Merged
// PRs mark the underlying finding patched.
func (h *PatchPRHandler) SyncState(w http.ResponseWriter, r *http.Request) {
	var req SyncStateRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	p, err := h.patches.SyncState(r.Context(), teamID(r), chi.URLParam(r, "patchID"), req.State)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toPatchPRResponse(p))
}

// List returns the patch PRs opened for one repository.
func (h *PatchPRHandler) List(w http.ResponseWriter, r *http.Request) {
	repoID := r.URL.Query().Get("repo_id")
	if repoID == "" {
		apierror.BadRequest("repo_id query parameter is required").WriteJSON(w)
		return
	}

	patches, err := h.patches.ListPatchPRs(r.Context(), teamID(r), repoID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	data := make([]PatchPRResponse, 0, len(patches))
	for _, p := range patches {
		data = append(data, toPatchPRResponse(p))
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": data})
}
