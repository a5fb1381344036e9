// Package email delivers change notifications through SendGrid.
package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

// Config holds the SendGrid credentials and addresses.
type Config struct {
	APIKey   string
	To       string
	From     string
	FromName string
}

// missing names the first absent required setting, or "" when complete.
func (c Config) missing() string {
	switch {
	case strings.TrimSpace(c.APIKey) == "":
		return "SendGrid API key not configured"
	case strings.TrimSpace(c.To) == "":
		return "notification email not configured"
	}
	return ""
}

// Sender is the subset of the SendGrid client used here.
type Sender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// New returns a SendGrid notifier, or Unconfigured when the key or recipient is missing.
func New(cfg Config, logger *zap.Logger) monitor.Notifier {
	if reason := cfg.missing(); reason != "" {
		return Unconfigured{Reason: reason}
	}
	return NewSendGrid(cfg, sendgrid.NewSendClient(cfg.APIKey), logger)
}

// SendGrid sends HTML and plain-text change emails.
type SendGrid struct {
	cfg    Config
	sender Sender
	logger *zap.Logger
}

// NewSendGrid builds a notifier around an explicit sender.
func NewSendGrid(cfg Config, sender Sender, logger *zap.Logger) *SendGrid {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.From == "" {
		cfg.From = cfg.To
	}
	return &SendGrid{cfg: cfg, sender: sender, logger: logger.Named("email")}
}

// Notify renders and sends the email. Non-2xx responses are delivery failures.
func (s *SendGrid) Notify(ctx context.Context, n monitor.Notification) error {
	body := render(n)
	msg := mail.NewSingleEmail(
		mail.NewEmail(s.cfg.FromName, s.cfg.From),
		Subject(n.Target),
		mail.NewEmail("", s.cfg.To),
		body.text,
		body.html,
	)
	resp, err := s.sender.SendWithContext(ctx, msg)
	if err != nil {
		return &monitor.DeliveryError{Reason: "sendgrid request failed", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &monitor.DeliveryError{Reason: fmt.Sprintf("sendgrid returned status %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body))}
	}
	s.logger.Info("change email sent",
		zap.String("target_id", n.Target.ID),
		zap.String("check_id", n.Check.ID),
		zap.Int("status", resp.StatusCode),
	)
	return nil
}

// Subject returns the email subject for a target.
func Subject(target monitor.Target) string {
	return "Content Change Detected: " + target.Name
}

// Unconfigured fails every delivery with the configuration problem.
type Unconfigured struct {
	Reason string
}

// Notify always returns a DeliveryError.
func (u Unconfigured) Notify(context.Context, monitor.Notification) error {
	return &monitor.DeliveryError{Reason: u.Reason}
}
