package main

import (
	"fmt"
	"time"

	"github.com/vexguard/api/internal/app"
	"github.com/vexguard/api/internal/config"
	"github.com/vexguard/api/internal/infra/analyzer"
	"github.com/vexguard/api/internal/infra/llm"
	notifinfra "github.com/vexguard/api/internal/infra/notification"
	"github.com/vexguard/api/internal/infra/redis"
	"github.com/vexguard/api/internal/infra/scm"
	"github.com/vexguard/api/pkg/crypto"
	"github.com/vexguard/api/pkg/logger"
)

// analyzeCacheTTL bounds how long an unchanged editor snippet skips
// re-analysis.
const analyzeCacheTTL = 15 * time.Minute

// ServiceDeps holds everything the application services are built from.
type ServiceDeps struct {
	Config      *config.Config
	Log         *logger.Logger
	Repos       *Repositories
	RedisClient *redis.Client
	Enqueuer    app.ScanEnqueuer
}

// Services bundles the application services behind the API surface.
type Services struct {
	Webhooks      *app.WebhookService
	Repos         *app.RepoService
	Scans         *app.ScanService
	Vulns         *app.VulnerabilityService
	FPPatterns    *app.FPPatternService
	APIKeys       *app.APIKeyService
	IDE           *app.IDEService
	PatchPRs      *app.PatchPRService
	Notifications *app.NotificationService
	Pipeline      *app.ScanPipeline
}

// NewServices wires the application services and the scan pipeline.
func NewServices(deps *ServiceDeps) (*Services, error) {
	cfg := deps.Config
	log := deps.Log
	repos := deps.Repos

	cipher, err := newCipher(cfg.Encryption.Key)
	if err != nil {
		return nil, fmt.Errorf("encryption: %w", err)
	}
	guard := crypto.NewURLGuard()

	var (
		githubAppID  int64
		githubAppKey []byte
	)
	if cfg.GitHub.IsConfigured() {
		githubAppID = cfg.GitHub.AppID
		githubAppKey, err = cfg.GitHub.PrivateKey()
		if err != nil {
			return nil, err
		}
	}
	clients, err := scm.NewFactory(cipher, guard, githubAppID, githubAppKey, log)
	if err != nil {
		return nil, fmt.Errorf("scm factory: %w", err)
	}
	cloner := scm.NewCloner(log)

	runner, err := analyzer.NewRunner(analyzer.Options{
		BinaryPath:  cfg.Analyzer.BinaryPath,
		RulesDir:    cfg.Analyzer.RulesDir,
		MaxFileSize: cfg.Analyzer.MaxFileSize,
		Timeout:     cfg.Analyzer.BatchTimeout,
		Version:     cfg.Analyzer.Version,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("analyzer: %w", err)
	}

	// Without an LLM key, patch suggestions return a configuration error
	// and the rest of the service is unaffected.
	var llmProvider llm.Provider
	if cfg.LLM.IsConfigured() {
		provider, err := llm.NewClaudeProvider(llm.ClaudeConfig{
			APIKey:     cfg.LLM.AnthropicAPIKey,
			Model:      cfg.LLM.Model,
			Timeout:    cfg.LLM.Timeout,
			MaxRetries: cfg.LLM.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("llm provider: %w", err)
		}
		llmProvider = provider
	}

	analyzeCache, err := redis.NewCache[app.AnalyzeResult](deps.RedisClient, "ide:analyze", analyzeCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("analyze cache: %w", err)
	}

	scans := app.NewScanService(repos.Scans, repos.Repos, deps.Enqueuer, log)
	notifications := app.NewNotificationService(repos.Notifications, notifinfra.NewFactory(guard), guard, log)

	hooks := []app.PostScanHook{app.NewPRCommentHook(clients, log)}
	if cfg.Notification.Enabled {
		hooks = append(hooks, notifications)
	}

	return &Services{
		Webhooks:      app.NewWebhookService(repos.Repos, scans, cipher, log),
		Repos:         app.NewRepoService(repos.Repos, clients, cipher, scans, cfg.App.PublicBaseURL, log),
		Scans:         scans,
		Vulns:         app.NewVulnerabilityService(repos.Vulns, repos.Repos, log),
		FPPatterns:    app.NewFPPatternService(repos.Patterns, log),
		APIKeys:       app.NewAPIKeyService(repos.APIKeys, log),
		IDE:           app.NewIDEService(runner, repos.Patterns, repos.Vulns, repos.Repos, llmProvider, analyzeCache, log),
		PatchPRs:      app.NewPatchPRService(repos.PatchPRs, repos.Vulns, repos.Repos, clients, llmProvider, log),
		Notifications: notifications,
		Pipeline:      app.NewScanPipeline(repos.Scans, repos.Repos, repos.Patterns, repos.Results, clients, cloner, runner, hooks, log),
	}, nil
}

// newCipher builds the credential cipher from the configured key,
// accepting hex or base64 encodings of 32 bytes.
func newCipher(key string) (*crypto.Cipher, error) {
	switch len(key) {
	case 0:
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	case 64:
		return crypto.NewCipherFromHex(key)
	case 44:
		return crypto.NewCipherFromBase64(key)
	default:
		return nil, fmt.Errorf("ENCRYPTION_KEY must encode 32 bytes as hex or base64")
	}
}
