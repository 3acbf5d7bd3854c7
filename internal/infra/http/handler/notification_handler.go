package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vexguard/api/internal/app"
	"github.com/vexguard/api/pkg/domain/notification"
	"github.com/vexguard/api/pkg/logger"
	"github.com/vexguard/api/pkg/validator"
)

// NotificationHandler serves the notification config endpoints.
type NotificationHandler struct {
	notifications *app.NotificationService
	validator     *validator.Validator
	logger        *logger.Logger
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(notifications *app.NotificationService, v *validator.Validator, log *logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		validator:     v,
		logger:        log.With("handler", "notification"),
	}
}

// NotificationConfigResponse is the wire representation of a
// notification target. The webhook URL is echoed back as stored.
type NotificationConfigResponse struct {
	ID                string    `json:"id"`
	Platform          string    `json:"platform"`
	WebhookURL        string    `json:"webhook_url"`
	SeverityThreshold string    `json:"severity_threshold"`
	WeeklyReport      bool      `json:"weekly_report"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
}

func toNotificationConfigResponse(c *notification.Config) NotificationConfigResponse {
	return NotificationConfigResponse{
		ID:                c.ID().String(),
		Platform:          string(c.Platform()),
		WebhookURL:        c.WebhookURL(),
		SeverityThreshold: string(c.SeverityThreshold()),
		WeeklyReport:      c.WeeklyReport(),
		IsActive:          c.IsActive(),
		CreatedAt:         c.CreatedAt(),
	}
}

// CreateNotificationConfigRequest adds a notification target.
type CreateNotificationConfigRequest struct {
	Platform          string `json:"platform" validate:"required,notify_platform"`
	WebhookURL        string `json:"webhook_url" validate:"required,url,max=1024"`
	SeverityThreshold string `json:"severity_threshold" validate:"required,severity"`
	WeeklyReport      bool   `json:"weekly_report"`
}

// Create stores a Slack or Teams webhook target.
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateNotificationConfigRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	cfg, err := h.notifications.CreateConfig(r.Context(), app.CreateConfigInput{
		TeamID:            teamID(r),
		Platform:          req.Platform,
		WebhookURL:        req.WebhookURL,
		SeverityThreshold: req.SeverityThreshold,
		WeeklyReport:      req.WeeklyReport,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, toNotificationConfigResponse(cfg))
}

// List returns the team's notification targets.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	configs, err := h.notifications.ListConfigs(r.Context(), teamID(r))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	data := make([]NotificationConfigResponse, 0, len(configs))
	for _, c := range configs {
		data = append(data, toNotificationConfigResponse(c))
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": data})
}

// Delete removes a notification target.
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.notifications.DeleteConfig(r.Context(), chi.URLParam(r, "configID"), teamID(r)); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
