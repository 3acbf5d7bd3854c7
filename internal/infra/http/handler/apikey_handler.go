package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vexguard/api/internal/app"
	"github.com/vexguard/api/pkg/domain/apikey"
	"github.com/vexguard/api/pkg/logger"
	"github.com/vexguard/api/pkg/validator"
)

// APIKeyHandler serves the API key management endpoints.
type APIKeyHandler struct {
	keys      *app.APIKeyService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(keys *app.APIKeyService, v *validator.Validator, log *logger.Logger) *APIKeyHandler {
	return &APIKeyHandler{
		keys:      keys,
		validator: v,
		logger:    log.With("handler", "apikey"),
	}
}

// APIKeyResponse is the wire representation of an API key. Only the
// display prefix survives creation; the key itself is never stored.
type APIKeyResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	KeyPrefix  string     `json:"key_prefix"`
	IsActive   bool       `json:"is_active"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func toAPIKeyResponse(k *apikey.APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:         k.ID().String(),
		Name:       k.Name(),
		KeyPrefix:  k.KeyPrefix(),
		IsActive:   k.IsActive(),
		ExpiresAt:  k.ExpiresAt(),
		LastUsedAt: k.LastUsedAt(),
		CreatedAt:  k.CreatedAt(),
	}
}

// CreateAPIKeyRequest creates an API key.
type CreateAPIKeyRequest struct {
	Name          string `json:"name" validate:"required,min=1,max=255"`
	ExpiresInDays int    `json:"expires_in_days" validate:"min=0,max=3650"`
}

// CreatedAPIKeyResponse carries the raw key exactly once.
type CreatedAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"key"`
}

// Create issues a new API key. The response is the only place the raw
// key ever appears.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateAPIKeyRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	result, err := h.keys.CreateAPIKey(r.Context(), app.CreateAPIKeyInput{
		TeamID:        teamID(r),
		Name:          req.Name,
		ExpiresInDays: req.ExpiresInDays,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, CreatedAPIKeyResponse{
		APIKeyResponse: toAPIKeyResponse(result.Key),
		Key:            result.RawKey,
	})
}

// List returns the team's active keys.
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.ListAPIKeys(r.Context(), teamID(r))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	data := make([]APIKeyResponse, 0, len(keys))
	for _, k := range keys {
		data = append(data, toAPIKeyResponse(k))
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": data})
}

// Revoke permanently disables a key. Revoking twice is a no-op.
func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := h.keys.RevokeAPIKey(r.Context(), chi.URLParam(r, "keyID"), teamID(r)); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
