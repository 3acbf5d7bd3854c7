package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vexguard/api/internal/app"
	"github.com/vexguard/api/pkg/domain/repo"
	"github.com/vexguard/api/pkg/logger"
	"github.com/vexguard/api/pkg/validator"
)

// RepoHandler serves the repository endpoints.
type RepoHandler struct {
	repos     *app.RepoService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewRepoHandler creates a new RepoHandler.
func NewRepoHandler(repos *app.RepoService, v *validator.Validator, log *logger.Logger) *RepoHandler {
	return &RepoHandler{
		repos:     repos,
		validator: v,
		logger:    log.With("handler", "repo"),
	}
}

// RepoResponse is the wire representation of a repository. Credentials
// never appear here.
type RepoResponse struct {
	ID                string    `json:"id"`
	Platform          string    `json:"platform"`
	PlatformRepoID    string    `json:"platform_repo_id"`
	Name              string    `json:"name"`
	CloneURL          string    `json:"clone_url"`
	DefaultBranch     string    `json:"default_branch"`
	BaseURL           string    `json:"base_url,omitempty"`
	IsActive          bool      `json:"is_active"`
	IsInitialScanDone bool      `json:"is_initial_scan_done"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func toRepoResponse(r *repo.Repository) RepoResponse {
	return RepoResponse{
		ID:                r.ID().String(),
		Platform:          string(r.Platform()),
		PlatformRepoID:    r.PlatformRepoID(),
		Name:              r.Name(),
		CloneURL:          r.CloneURL(),
		DefaultBranch:     r.DefaultBranch(),
		BaseURL:           r.BaseURL(),
		IsActive:          r.IsActive(),
		IsInitialScanDone: r.IsInitialScanDone(),
		CreatedAt:         r.CreatedAt(),
		UpdatedAt:         r.UpdatedAt(),
	}
}

// RegisterRepoRequest registers a repository for scanning.
type RegisterRepoRequest struct {
	Platform       string `json:"platform" validate:"required,platform"`
	PlatformRepoID string `json:"platform_repo_id" validate:"required,max=255"`
	Name           string `json:"name" validate:"required,max=512"`
	CloneURL       string `json:"clone_url" validate:"required,url,max=1024"`
	DefaultBranch  string `json:"default_branch" validate:"max=255"`
	BaseURL        string `json:"base_url" validate:"omitempty,url,max=1024"`
	InstallationID int64  `json:"installation_id" validate:"min=0"`
	AccessToken    string `json:"access_token" validate:"max=4096"`
}

// Register connects a repository: validates credentials against the
// platform, installs the webhook, and queues the initial baseline scan.
func (h *RepoHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRepoRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	registered, err := h.repos.RegisterRepository(r.Context(), app.RegisterRepositoryInput{
		TeamID:         teamID(r),
		Platform:       req.Platform,
		PlatformRepoID: req.PlatformRepoID,
		Name:           req.Name,
		CloneURL:       req.CloneURL,
		DefaultBranch:  req.DefaultBranch,
		BaseURL:        req.BaseURL,
		InstallationID: req.InstallationID,
		AccessToken:    req.AccessToken,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, toRepoResponse(registered))
}

// Get returns one repository.
func (h *RepoHandler) Get(w http.ResponseWriter, r *http.Request) {
	found, err := h.repos.GetRepository(r.Context(), chi.URLParam(r, "repoID"), teamID(r))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toRepoResponse(found))
}

// List returns a page of the team's repositories.
func (h *RepoHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.repos.ListRepositories(r.Context(), app.ListRepositoriesInput{
		TeamID:   teamID(r),
		Platform: q.Get("platform"),
		Search:   q.Get("search"),
		Page:     parseQueryInt(q.Get("page"), 1),
		PerPage:  parseQueryInt(q.Get("per_page"), 20),
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	data := make([]RepoResponse, 0, len(result.Data))
	for _, item := range result.Data {
		data = append(data, toRepoResponse(item))
	}
	respondJSON(w, http.StatusOK, ListResponse[RepoResponse]{
		Data:       data,
		Total:      result.Total,
		Page:       result.Page,
		PerPage:    result.PerPage,
		TotalPages: result.TotalPages,
	})
}

// Deactivate pauses scanning for a repository. Queued and running scans
// for it are cancelled on their next worker touch.
func (h *RepoHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	updated, err := h.repos.DeactivateRepository(r.Context(), chi.URLParam(r, "repoID"), teamID(r))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toRepoResponse(updated))
}

// Delete removes a repository and everything recorded for it.
func (h *RepoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.repos.DeleteRepository(r.Context(), chi.URLParam(r, "repoID"), teamID(r)); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
