// Package notification delivers scan outcomes to team chat webhooks.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/vexguard/api/pkg/crypto"
	"github.com/vexguard/api/pkg/domain/notification"
)

const sendTimeout = 30 * time.Second

// Message is a platform-neutral notification payload.
type Message struct {
	Title    string
	Body     string
	Severity string
	URL      string
	Fields   map[string]string
}

// SendResult reports delivery outcome without failing the caller.
type SendResult struct {
	Success bool
	Error   string
}

// Sender delivers messages to one webhook target.
type Sender interface {
	Send(ctx context.Context, msg Message) (*SendResult, error)
	Provider() string
}

// Factory builds senders for stored notification configs. Webhook URLs
// are user-supplied, so each one passes the SSRF guard before use.
type Factory struct {
	guard *crypto.URLGuard
}

// NewFactory creates a sender factory.
func NewFactory(guard *crypto.URLGuard) *Factory {
	return &Factory{guard: guard}
}

// NewSender creates the sender for a notification config.
func (f *Factory) NewSender(ctx context.Context, cfg *notification.Config) (Sender, error) {
	if err := f.guard.Validate(ctx, cfg.WebhookURL()); err != nil {
		return nil, fmt.Errorf("notification webhook url: %w", err)
	}

	switch cfg.Platform() {
	case notification.PlatformSlack:
		return newSlackSender(cfg.WebhookURL()), nil
	case notification.PlatformTeams:
		return newTeamsSender(cfg.WebhookURL()), nil
	default:
		return nil, fmt.Errorf("unsupported notification platform %q", cfg.Platform())
	}
}

// severityColor maps severities to sidebar colors shared by both
// platforms' card formats.
func severityColor(severity string) string {
	switch severity {
	case "critical":
		return "#DC2626"
	case "high":
		return "#EA580C"
	case "medium":
		return "#D97706"
	case "low":
		return "#2563EB"
	default:
		return "#6B7280"
	}
}
