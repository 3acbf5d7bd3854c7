package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/vexguard/api/internal/app"
	"github.com/vexguard/api/internal/infra/http/middleware"
	"github.com/vexguard/api/internal/metrics"
	"github.com/vexguard/api/pkg/apierror"
	"github.com/vexguard/api/pkg/crypto"
	"github.com/vexguard/api/pkg/domain/repo"
	"github.com/vexguard/api/pkg/domain/scan"
	"github.com/vexguard/api/pkg/logger"
)

// WebhookHandler receives push and pull request events from the
// connected platforms. Every delivery is authenticated before its
// payload is trusted: GitHub with the app-level secret, GitLab and
// Bitbucket with the per-repository secret issued at registration.
type WebhookHandler struct {
	webhooks     *app.WebhookService
	githubSecret string
	logger       *logger.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(webhooks *app.WebhookService, githubSecret string, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		webhooks:     webhooks,
		githubSecret: githubSecret,
		logger:       log.With("handler", "webhook"),
	}
}

// githubPushPayload is the subset of GitHub's push event we consume.
type githubPushPayload struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Repository struct {
		ID int64 `json:"id"`
	} `json:"repository"`
	Commits []struct {
		Added    []string `json:"added"`
		Modified []string `json:"modified"`
	} `json:"commits"`
}

type githubPRPayload struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		Head struct {
			SHA string `json:"sha"`
			Ref string `json:"ref"`
		} `json:"head"`
	} `json:"pull_request"`
	Repository struct {
		ID int64 `json:"id"`
	} `json:"repository"`
}

type githubInstallationPayload struct {
	Action       string `json:"action"`
	Installation struct {
		ID int64 `json:"id"`
	} `json:"installation"`
	Repositories []struct {
		ID       int64  `json:"id"`
		FullName string `json:"full_name"`
	} `json:"repositories"`
}

// GitHub handles GitHub webhook deliveries.
func (h *WebhookHandler) GitHub(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	signature := strings.TrimPrefix(r.Header.Get("X-Hub-Signature-256"), "sha256=")
	if h.githubSecret == "" || signature == "" ||
		!crypto.VerifyHMAC256([]byte(h.githubSecret), body, signature) {
		h.rejectSignature(w, r, "github")
		return
	}

	event := r.Header.Get("X-GitHub-Event")
	if event == "" {
		apierror.BadRequest("Missing X-GitHub-Event header").WriteJSON(w)
		return
	}

	switch event {
	case "ping":
		metrics.WebhookEventsTotal.WithLabelValues("github", "ignored").Inc()
		respondJSON(w, http.StatusOK, map[string]string{"status": "pong"})

	case "push":
		var payload githubPushPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			apierror.BadRequest("Invalid push payload").WriteJSON(w)
			return
		}
		h.handlePush(w, r, "github", app.PushEvent{
			Platform:       repo.PlatformGitHub,
			PlatformRepoID: strconv.FormatInt(payload.Repository.ID, 10),
			Branch:         strings.TrimPrefix(payload.Ref, "refs/heads/"),
			CommitSHA:      payload.After,
			ChangedFiles:   githubChangedFiles(payload),
		})

	case "pull_request":
		var payload githubPRPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			apierror.BadRequest("Invalid pull request payload").WriteJSON(w)
			return
		}
		action, ok := githubPRAction(payload.Action)
		if !ok {
			metrics.WebhookEventsTotal.WithLabelValues("github", "ignored").Inc()
			respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		h.handlePullRequest(w, r, "github", app.PREvent{
			Platform:       repo.PlatformGitHub,
			PlatformRepoID: strconv.FormatInt(payload.Repository.ID, 10),
			Action:         action,
			PRNumber:       payload.Number,
			CommitSHA:      payload.PullRequest.Head.SHA,
			SourceBranch:   payload.PullRequest.Head.Ref,
		})

	case "installation", "installation_repositories":
		var payload githubInstallationPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			apierror.BadRequest("Invalid installation payload").WriteJSON(w)
			return
		}
		h.handleInstallation(w, r, payload)

	default:
		metrics.WebhookEventsTotal.WithLabelValues("github", "ignored").Inc()
		respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	}
}

func githubChangedFiles(payload githubPushPayload) []string {
	seen := make(map[string]bool)
	var files []string
	for _, c := range payload.Commits {
		for _, f := range append(c.Added, c.Modified...) {
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}
	return files
}

func githubPRAction(action string) (app.PRAction, bool) {
	switch action {
	case "opened", "reopened":
		return app.PRActionOpened, true
	case "synchronize":
		return app.PRActionSynchronized, true
	case "closed":
		return app.PRActionClosed, true
	default:
		return "", false
	}
}

func (h *WebhookHandler) handleInstallation(w http.ResponseWriter, r *http.Request, payload githubInstallationPayload) {
	switch payload.Action {
	case "created", "added":
		repos := make([]app.InstallationRepo, 0, len(payload.Repositories))
		for _, pr := range payload.Repositories {
			repos = append(repos, app.InstallationRepo{
				PlatformRepoID: strconv.FormatInt(pr.ID, 10),
				FullName:       pr.FullName,
			})
		}
		if err := h.webhooks.HandleInstallationCreated(r.Context(), payload.Installation.ID, repos); err != nil {
			respondError(w, r, h.logger, err)
			return
		}
	case "deleted", "removed":
		if err := h.webhooks.HandleInstallationDeleted(r.Context(), payload.Installation.ID); err != nil {
			respondError(w, r, h.logger, err)
			return
		}
	}
	metrics.WebhookEventsTotal.WithLabelValues("github", "accepted").Inc()
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// gitlabPushPayload is the subset of GitLab's push hook we consume.
type gitlabPushPayload struct {
	Ref         string `json:"ref"`
	CheckoutSHA string `json:"checkout_sha"`
	Project     struct {
		ID int64 `json:"id"`
	} `json:"project"`
	Commits []struct {
		Added    []string `json:"added"`
		Modified []string `json:"modified"`
	} `json:"commits"`
}

type gitlabMRPayload struct {
	ObjectKind string `json:"object_kind"`
	Project    struct {
		ID int64 `json:"id"`
	} `json:"project"`
	ObjectAttributes struct {
		Action       string `json:"action"`
		IID          int    `json:"iid"`
		SourceBranch string `json:"source_branch"`
		LastCommit   struct {
			ID string `json:"id"`
		} `json:"last_commit"`
	} `json:"object_attributes"`
}

// GitLab handles GitLab webhook deliveries. GitLab sends the shared
// secret verbatim in X-Gitlab-Token, so verification is a constant-time
// compare against the per-repository secret.
func (h *WebhookHandler) GitLab(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	event := r.Header.Get("X-Gitlab-Event")
	if event == "" {
		apierror.BadRequest("Missing X-Gitlab-Event header").WriteJSON(w)
		return
	}

	token := r.Header.Get("X-Gitlab-Token")

	switch event {
	case "Push Hook":
		var payload gitlabPushPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			apierror.BadRequest("Invalid push payload").WriteJSON(w)
			return
		}
		platformRepoID := strconv.FormatInt(payload.Project.ID, 10)
		if !h.verifyRepoToken(r, repo.PlatformGitLab, platformRepoID, token) {
			h.rejectSignature(w, r, "gitlab")
			return
		}
		h.handlePush(w, r, "gitlab", app.PushEvent{
			Platform:       repo.PlatformGitLab,
			PlatformRepoID: platformRepoID,
			Branch:         strings.TrimPrefix(payload.Ref, "refs/heads/"),
			CommitSHA:      payload.CheckoutSHA,
			ChangedFiles:   gitlabChangedFiles(payload),
		})

	case "Merge Request Hook":
		var payload gitlabMRPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			apierror.BadRequest("Invalid merge request payload").WriteJSON(w)
			return
		}
		platformRepoID := strconv.FormatInt(payload.Project.ID, 10)
		if !h.verifyRepoToken(r, repo.PlatformGitLab, platformRepoID, token) {
			h.rejectSignature(w, r, "gitlab")
			return
		}
		action, ok := gitlabMRAction(payload.ObjectAttributes.Action)
		if !ok {
			metrics.WebhookEventsTotal.WithLabelValues("gitlab", "ignored").Inc()
			respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		h.handlePullRequest(w, r, "gitlab", app.PREvent{
			Platform:       repo.PlatformGitLab,
			PlatformRepoID: platformRepoID,
			Action:         action,
			PRNumber:       payload.ObjectAttributes.IID,
			CommitSHA:      payload.ObjectAttributes.LastCommit.ID,
			SourceBranch:   payload.ObjectAttributes.SourceBranch,
		})

	default:
		metrics.WebhookEventsTotal.WithLabelValues("gitlab", "ignored").Inc()
		respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	}
}

func gitlabChangedFiles(payload gitlabPushPayload) []string {
	seen := make(map[string]bool)
	var files []string
	for _, c := range payload.Commits {
		for _, f := range append(c.Added, c.Modified...) {
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}
	return files
}

func gitlabMRAction(action string) (app.PRAction, bool) {
	switch action {
	case "open", "reopen":
		return app.PRActionOpened, true
	case "update":
		return app.PRActionSynchronized, true
	case "close", "merge":
		return app.PRActionClosed, true
	default:
		return "", false
	}
}

// bitbucketPushPayload is the subset of Bitbucket's push event we
// consume. Bitbucket does not list changed files in the payload.
type bitbucketPushPayload struct {
	Repository struct {
		UUID string `json:"uuid"`
	} `json:"repository"`
	Push struct {
		Changes []struct {
			New struct {
				Name   string `json:"name"`
				Target struct {
					Hash string `json:"hash"`
				} `json:"target"`
			} `json:"new"`
		} `json:"changes"`
	} `json:"push"`
}

type bitbucketPRPayload struct {
	Repository struct {
		UUID string `json:"uuid"`
	} `json:"repository"`
	PullRequest struct {
		ID     int `json:"id"`
		Source struct {
			Branch struct {
				Name string `json:"name"`
			} `json:"branch"`
			Commit struct {
				Hash string `json:"hash"`
			} `json:"commit"`
		} `json:"source"`
	} `json:"pullrequest"`
}

// Bitbucket handles Bitbucket webhook deliveries, authenticated with an
// HMAC signature over the body under the per-repository secret.
func (h *WebhookHandler) Bitbucket(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	event := r.Header.Get("X-Event-Key")
	if event == "" {
		apierror.BadRequest("Missing X-Event-Key header").WriteJSON(w)
		return
	}

	signature := strings.TrimPrefix(r.Header.Get("X-Hub-Signature"), "sha256=")

	switch {
	case event == "repo:push":
		var payload bitbucketPushPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			apierror.BadRequest("Invalid push payload").WriteJSON(w)
			return
		}
		if !h.verifyRepoSignature(r, repo.PlatformBitbucket, payload.Repository.UUID, body, signature) {
			h.rejectSignature(w, r, "bitbucket")
			return
		}
		if len(payload.Push.Changes) == 0 {
			metrics.WebhookEventsTotal.WithLabelValues("bitbucket", "ignored").Inc()
			respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		change := payload.Push.Changes[0].New
		h.handlePush(w, r, "bitbucket", app.PushEvent{
			Platform:       repo.PlatformBitbucket,
			PlatformRepoID: payload.Repository.UUID,
			Branch:         change.Name,
			CommitSHA:      change.Target.Hash,
		})

	case strings.HasPrefix(event, "pullrequest:"):
		var payload bitbucketPRPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			apierror.BadRequest("Invalid pull request payload").WriteJSON(w)
			return
		}
		if !h.verifyRepoSignature(r, repo.PlatformBitbucket, payload.Repository.UUID, body, signature) {
			h.rejectSignature(w, r, "bitbucket")
			return
		}
		action, ok := bitbucketPRAction(event)
		if !ok {
			metrics.WebhookEventsTotal.WithLabelValues("bitbucket", "ignored").Inc()
			respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		h.handlePullRequest(w, r, "bitbucket", app.PREvent{
			Platform:       repo.PlatformBitbucket,
			PlatformRepoID: payload.Repository.UUID,
			Action:         action,
			PRNumber:       payload.PullRequest.ID,
			CommitSHA:      payload.PullRequest.Source.Commit.Hash,
			SourceBranch:   payload.PullRequest.Source.Branch.Name,
		})

	default:
		metrics.WebhookEventsTotal.WithLabelValues("bitbucket", "ignored").Inc()
		respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	}
}

func bitbucketPRAction(event string) (app.PRAction, bool) {
	switch event {
	case "pullrequest:created":
		return app.PRActionOpened, true
	case "pullrequest:updated":
		return app.PRActionSynchronized, true
	case "pullrequest:fulfilled", "pullrequest:rejected":
		return app.PRActionClosed, true
	default:
		return "", false
	}
}

func (h *WebhookHandler) handlePush(w http.ResponseWriter, r *http.Request, platform string, event app.PushEvent) {
	job, err := h.webhooks.HandlePush(r.Context(), event)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	h.acceptDelivery(w, platform, job)
}

func (h *WebhookHandler) handlePullRequest(w http.ResponseWriter, r *http.Request, platform string, event app.PREvent) {
	job, err := h.webhooks.HandlePullRequest(r.Context(), event)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	h.acceptDelivery(w, platform, job)
}

func (h *WebhookHandler) acceptDelivery(w http.ResponseWriter, platform string, job *scan.Job) {
	if job == nil {
		metrics.WebhookEventsTotal.WithLabelValues(platform, "ignored").Inc()
		respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	metrics.WebhookEventsTotal.WithLabelValues(platform, "accepted").Inc()
	respondJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"scan_id": job.ID().String(),
	})
}

// verifyRepoToken authenticates a delivery whose platform sends the
// secret itself rather than a signature.
func (h *WebhookHandler) verifyRepoToken(r *http.Request, platform repo.Platform, platformRepoID, token string) bool {
	secret, err := h.webhooks.WebhookSecret(r.Context(), platform, platformRepoID)
	if err != nil || secret == "" || token == "" {
		return false
	}
	return crypto.SecureCompare(secret, token)
}

func (h *WebhookHandler) verifyRepoSignature(r *http.Request, platform repo.Platform, platformRepoID string, body []byte, signature string) bool {
	secret, err := h.webhooks.WebhookSecret(r.Context(), platform, platformRepoID)
	if err != nil || secret == "" || signature == "" {
		return false
	}
	return crypto.VerifyHMAC256([]byte(secret), body, signature)
}

func (h *WebhookHandler) rejectSignature(w http.ResponseWriter, r *http.Request, platform string) {
	h.logger.Warn("webhook signature verification failed",
		"platform", platform,
		"request_id", middleware.GetRequestID(r.Context()),
	)
	metrics.WebhookSignatureFailures.WithLabelValues(platform).Inc()
	metrics.WebhookEventsTotal.WithLabelValues(platform, "rejected").Inc()
	apierror.InvalidSignature().WriteJSON(w)
}
