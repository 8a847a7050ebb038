package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/perbu/promptrun/internal/config"
	"github.com/perbu/promptrun/internal/email"
	"github.com/perbu/promptrun/internal/engine"
)

// Notifier sends run reports
type Notifier struct {
	composer *Composer
	client   email.Sender
}

// New creates a notifier that sends through client
func New(composer *Composer, client email.Sender) *Notifier {
	return &Notifier{composer: composer, client: client}
}

// FromConfig returns a notifier for cfg, or nil when notifications are off
func FromConfig(cfg *config.Config) (*Notifier, error) {
	if !cfg.Notify.Enabled {
		return nil, nil
	}

	composer := NewComposer(cfg.Notify.SubjectPrefix, cfg.Notify.To)
	if cfg.Notify.DryRun {
		return New(composer, email.NewDryRunClient(cfg.Notify.FromEmail, cfg.Notify.FromName)), nil
	}

	apiKey := cfg.GetSendGridAPIKey()
	if apiKey == "" {
		return nil, fmt.Errorf("SendGrid API key not found in environment variable: %s", cfg.Notify.SendGridKeyEnv)
	}
	return New(composer, email.NewClient(apiKey, cfg.Notify.FromEmail, cfg.Notify.FromName)), nil
}

// Notify composes and sends the report for a run
func (n *Notifier) Notify(ctx context.Context, s *engine.Summary, runErr error) error {
	msg, err := n.composer.Compose(s, runErr)
	if err != nil {
		return fmt.Errorf("failed to compose report: %w", err)
	}

	id, err := n.client.Send(ctx, *msg)
	if err != nil {
		return fmt.Errorf("failed to send report: %w", err)
	}

	slog.Info("Run report sent", "run_id", s.RunID, "recipients", len(msg.To), "message_id", id)
	return nil
}
