package http

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vexguard/api/internal/app"
	"github.com/vexguard/api/internal/config"
	"github.com/vexguard/api/internal/infra/http/handler"
	"github.com/vexguard/api/internal/infra/http/middleware"
	redisinfra "github.com/vexguard/api/internal/infra/redis"
	"github.com/vexguard/api/pkg/jwt"
	"github.com/vexguard/api/pkg/logger"
	"github.com/vexguard/api/pkg/validator"
)

// RouteDeps carries everything route registration needs.
type RouteDeps struct {
	Config *config.Config
	Logger *logger.Logger

	JWT       *jwt.Generator
	Validator *validator.Validator
	Redis     *redisinfra.Client

	// Health probes. Redis may equal the client above; both are
	// interfaces so tests can stub them.
	DBPinger    handler.Pinger
	RedisPinger handler.Pinger
	Version     string

	Webhooks      *app.WebhookService
	Repos         *app.RepoService
	Scans         *app.ScanService
	Vulns         *app.VulnerabilityService
	FPPatterns    *app.FPPatternService
	APIKeys       *app.APIKeyService
	IDE           *app.IDEService
	PatchPRs      *app.PatchPRService
	Notifications *app.NotificationService
}

// RegisterRoutes mounts the full API surface: health and metrics at the
// root, webhooks unauthenticated but signature-checked, the dashboard
// API behind JWT, and the IDE API behind API keys.
func RegisterRoutes(r Router, deps RouteDeps) error {
	cfg := deps.Config
	log := deps.Logger

	analyzeLimit, err := redisinfra.NewRateLimiter(deps.Redis, "ratelimit:ide_analyze",
		cfg.RateLimit.AnalyzePerMinute, time.Minute, log)
	if err != nil {
		return fmt.Errorf("analyze rate limiter: %w", err)
	}
	patchLimit, err := redisinfra.NewRateLimiter(deps.Redis, "ratelimit:ide_patch",
		cfg.RateLimit.PatchPerMinute, time.Minute, log)
	if err != nil {
		return fmt.Errorf("patch rate limiter: %w", err)
	}
	fpLimit, err := redisinfra.NewRateLimiter(deps.Redis, "ratelimit:fp_patterns",
		cfg.RateLimit.FPPatternsPerMinute, time.Minute, log)
	if err != nil {
		return fmt.Errorf("fp pattern rate limiter: %w", err)
	}

	health := handler.NewHealthHandler(deps.DBPinger, deps.RedisPinger, deps.Version)
	r.GET("/health", health.Health)
	r.GET("/ready", health.Ready)
	r.GET("/metrics", promhttp.Handler().ServeHTTP)

	webhooks := handler.NewWebhookHandler(deps.Webhooks, cfg.GitHub.WebhookSecret, log)
	repos := handler.NewRepoHandler(deps.Repos, deps.Validator, log)
	scans := handler.NewScanHandler(deps.Scans, deps.FPPatterns, deps.Validator, log)
	vulns := handler.NewVulnerabilityHandler(deps.Vulns, deps.Validator, log)
	patterns := handler.NewFPPatternHandler(deps.FPPatterns, deps.Validator, log)
	apiKeys := handler.NewAPIKeyHandler(deps.APIKeys, deps.Validator, log)
	ide := handler.NewIDEHandler(deps.IDE, deps.Validator, log)
	patchPRs := handler.NewPatchPRHandler(deps.PatchPRs, deps.Validator, log)
	notifications := handler.NewNotificationHandler(deps.Notifications, deps.Validator, log)
	exports := handler.NewExportHandler(deps.Vulns, deps.Version, log)

	r.Group("/api/v1", func(v1 Router) {
		// Webhook deliveries authenticate by signature, not session.
		v1.Group("/webhooks", func(wh Router) {
			wh.POST("/github", webhooks.GitHub)
			wh.POST("/gitlab", webhooks.GitLab)
			wh.POST("/bitbucket", webhooks.Bitbucket)
		})

		// Dashboard API: JWT plus team scoping.
		v1.Group("/", func(dash Router) {
			dash.POST("/repos", repos.Register)
			dash.GET("/repos", repos.List)
			dash.GET("/repos/{repoID}", repos.Get)
			dash.POST("/repos/{repoID}/deactivate", repos.Deactivate)
			dash.DELETE("/repos/{repoID}", repos.Delete)
			dash.GET("/repos/{repoID}/export/sarif", exports.SARIF)

			dash.POST("/scans", scans.Trigger)
			dash.GET("/scans", scans.List)
			dash.GET("/scans/{scanID}", scans.Get)
			dash.POST("/scans/{scanID}/cancel", scans.Cancel)
			dash.GET("/scans/{scanID}/filter-logs", scans.FilterLogs)

			dash.GET("/vulnerabilities", vulns.List)
			dash.GET("/vulnerabilities/{vulnID}", vulns.Get)
			dash.POST("/vulnerabilities/{vulnID}/resolve", vulns.Resolve)
			dash.POST("/vulnerabilities/{vulnID}/patch-pr", patchPRs.Create)
			dash.GET("/vulnerabilities/{vulnID}/patch-pr", patchPRs.Get)

			dash.GET("/patch-prs", patchPRs.List)
			dash.POST("/patch-prs/{patchID}/sync", patchPRs.SyncState)

			dash.POST("/fp-patterns", patterns.Create)
			dash.GET("/fp-patterns", patterns.List)
			dash.GET("/fp-patterns/{patternID}", patterns.Get)
			dash.POST("/fp-patterns/{patternID}/deactivate", patterns.Deactivate)
			dash.POST("/fp-patterns/{patternID}/restore", patterns.Restore)

			dash.POST("/api-keys", apiKeys.Create)
			dash.GET("/api-keys", apiKeys.List)
			dash.DELETE("/api-keys/{keyID}", apiKeys.Revoke)

			dash.POST("/notifications", notifications.Create)
			dash.GET("/notifications", notifications.List)
			dash.DELETE("/notifications/{configID}", notifications.Delete)
		}, middleware.JWTAuth(deps.JWT, log))

		// IDE API: API keys, per-key throttles on every hot path.
		v1.Group("/ide", func(ideGroup Router) {
			ideGroup.POST("/analyze", ide.Analyze,
				middleware.APIKeyRateLimit(analyzeLimit, "ide_analyze", log))
			ideGroup.GET("/false-positive-patterns", ide.FalsePositivePatterns,
				middleware.APIKeyRateLimit(fpLimit, "fp_patterns", log))
			ideGroup.GET("/repos/{repoID}/results", ide.ScanResults)
			ideGroup.POST("/patch-suggestion", ide.PatchSuggestion,
				middleware.APIKeyRateLimit(patchLimit, "ide_patch", log))
			ideGroup.POST("/vulnerabilities/{vulnID}/patch", ide.SuggestPatch,
				middleware.APIKeyRateLimit(patchLimit, "ide_patch", log))
		}, middleware.APIKeyAuth(deps.APIKeys, log))
	})

	return nil
}
