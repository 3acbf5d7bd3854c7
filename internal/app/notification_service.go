package app

import (
	"context"
	"fmt"
	"strconv"

	notifinfra "github.com/vexguard/api/internal/infra/notification"
	"github.com/vexguard/api/pkg/crypto"
	"github.com/vexguard/api/pkg/domain/notification"
	"github.com/vexguard/api/pkg/domain/repo"
	"github.com/vexguard/api/pkg/domain/scan"
	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/domain/vulnerability"
	"github.com/vexguard/api/pkg/logger"
)

// NotificationService manages webhook notification configs and delivers
// scan outcome messages as a post-scan hook.
type NotificationService struct {
	repo    notification.Repository
	senders *notifinfra.Factory
	guard   *crypto.URLGuard
	logger  *logger.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(repo notification.Repository, senders *notifinfra.Factory, guard *crypto.URLGuard, log *logger.Logger) *NotificationService {
	return &NotificationService{
		repo:    repo,
		senders: senders,
		guard:   guard,
		logger:  log.With("service", "notification"),
	}
}

// CreateConfigInput represents input for creating a notification config.
type CreateConfigInput struct {
	TeamID            string `json:"team_id" validate:"required,uuid"`
	Platform          string `json:"platform" validate:"required,oneof=slack teams"`
	WebhookURL        string `json:"webhook_url" validate:"required,url"`
	SeverityThreshold string `json:"severity_threshold" validate:"required"`
	WeeklyReport      bool   `json:"weekly_report"`
}

// CreateConfig stores a notification target. The webhook URL passes the
// SSRF guard before anything is persisted.
func (s *NotificationService) CreateConfig(ctx context.Context, input CreateConfigInput) (*notification.Config, error) {
	teamID, err := shared.IDFromString(input.TeamID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid team ID", shared.ErrValidation)
	}
	platform, err := notification.ParsePlatform(input.Platform)
	if err != nil {
		return nil, err
	}
	threshold, err := vulnerability.ParseSeverity(input.SeverityThreshold)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Validate(ctx, input.WebhookURL); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}

	cfg, err := notification.NewConfig(shared.NewID(), teamID, platform, input.WebhookURL, threshold, input.WeeklyReport)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, cfg); err != nil {
		return nil, fmt.Errorf("create notification config: %w", err)
	}

	s.logger.Info("notification config created",
		"config_id", cfg.ID().String(),
		"team_id", input.TeamID,
		"platform", input.Platform,
		"threshold", input.SeverityThreshold,
	)
	return cfg, nil
}

// ListConfigs returns a team's active notification configs.
func (s *NotificationService) ListConfigs(ctx context.Context, teamID string) ([]*notification.Config, error) {
	tid, err := shared.IDFromString(teamID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid team ID", shared.ErrValidation)
	}
	return s.repo.ListActiveByTeam(ctx, tid)
}

// DeleteConfig removes a notification target.
func (s *NotificationService) DeleteConfig(ctx context.Context, configID, teamID string) error {
	id, tid, err := parseScopedIDs(configID, teamID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id, tid); err != nil {
		return err
	}
	s.logger.Info("notification config deleted", "config_id", configID, "team_id", teamID)
	return nil
}

// Name implements PostScanHook.
func (s *NotificationService) Name() string { return "notifications" }

// ScanCompleted implements PostScanHook: it delivers a summary to every
// config whose threshold the scan's worst finding meets. Delivery
// failures are logged and swallowed; a broken webhook never fails a
// completed scan.
func (s *NotificationService) ScanCompleted(ctx context.Context, job *scan.Job, r *repo.Repository, findings []*vulnerability.Vulnerability) error {
	if len(findings) == 0 {
		return nil
	}
	worst := worstSeverity(findings)

	configs, err := s.repo.ListActiveByTeam(ctx, job.TeamID())
	if err != nil {
		return fmt.Errorf("list notification configs: %w", err)
	}

	msg := scanSummaryMessage(job, r, findings, worst)
	for _, cfg := range configs {
		if !cfg.ShouldNotify(worst) {
			continue
		}
		sender, err := s.senders.NewSender(ctx, cfg)
		if err != nil {
			s.logger.Warn("notification sender rejected", "config_id", cfg.ID().String(), "error", err)
			continue
		}
		result, err := sender.Send(ctx, msg)
		if err != nil {
			s.logger.Warn("notification delivery errored", "config_id", cfg.ID().String(), "error", err)
			continue
		}
		if !result.Success {
			s.logger.Warn("notification delivery failed",
				"config_id", cfg.ID().String(),
				"provider", sender.Provider(),
				"reason", result.Error,
			)
		}
	}
	return nil
}

func scanSummaryMessage(job *scan.Job, r *repo.Repository, findings []*vulnerability.Vulnerability, worst vulnerability.Severity) notifinfra.Message {
	bySeverity := map[vulnerability.Severity]int{}
	for _, v := range findings {
		bySeverity[v.Severity()]++
	}

	fields := map[string]string{
		"Repository": r.Name(),
		"Scan type":  string(job.ScanType()),
		"Findings":   strconv.Itoa(len(findings)),
	}
	for _, sev := range vulnerability.AllSeverities() {
		if n := bySeverity[sev]; n > 0 {
			fields[string(sev)] = strconv.Itoa(n)
		}
	}
	if job.AutoFilteredCount() > 0 {
		fields["Auto-filtered"] = strconv.Itoa(job.AutoFilteredCount())
	}

	return notifinfra.Message{
		Title:    fmt.Sprintf("Scan of %s found %d issues", r.Name(), len(findings)),
		Body:     fmt.Sprintf("Worst severity: %s. Commit %s.", worst, shortSHA(job.CommitSHA())),
		Severity: string(worst),
		Fields:   fields,
	}
}

func worstSeverity(findings []*vulnerability.Vulnerability) vulnerability.Severity {
	worst := vulnerability.SeverityInfo
	for _, v := range findings {
		if v.Severity().Rank() > worst.Rank() {
			worst = v.Severity()
		}
	}
	return worst
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}

var _ PostScanHook = (*NotificationService)(nil)
