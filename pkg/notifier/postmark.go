package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
)

// PostmarkConfig holds configuration for the email-backed notifier.
// OpsEmail is the inbox operator alerts are delivered to.
type PostmarkConfig struct {
	ServerToken  string `env:"POSTMARK_SERVER_TOKEN,required"`
	AccountToken string `env:"POSTMARK_ACCOUNT_TOKEN,required"`
	SenderEmail  string `env:"BILLING_SENDER_EMAIL,required"`
	OpsEmail     string `env:"BILLING_OPS_EMAIL,required"`
}

// PostmarkNotifier delivers both user notices and operator alerts through
// Postmark's transactional email API.
type PostmarkNotifier struct {
	client *postmark.Client
	config PostmarkConfig
}

// NewPostmarkNotifier creates a Postmark-backed notifier.
// All tokens are required; explicit configuration beats silent failures
// for the channel that carries double-charge and sync-failure alerts.
func NewPostmarkNotifier(cfg PostmarkConfig) (*PostmarkNotifier, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: ServerToken is required", ErrInvalidConfig)
	}
	if cfg.AccountToken == "" {
		return nil, fmt.Errorf("%w: AccountToken is required", ErrInvalidConfig)
	}
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("%w: SenderEmail is required", ErrInvalidConfig)
	}
	if cfg.OpsEmail == "" {
		return nil, fmt.Errorf("%w: OpsEmail is required", ErrInvalidConfig)
	}
	return &PostmarkNotifier{
		client: postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		config: cfg,
	}, nil
}

// NotifyUser sends a billing notice to the user's email address.
func (n *PostmarkNotifier) NotifyUser(ctx context.Context, notice UserNotice) error {
	if notice.Email == "" {
		return fmt.Errorf("%w: user email is required", ErrInvalidConfig)
	}

	resp, err := n.client.SendEmail(ctx, postmark.Email{
		From:     n.config.SenderEmail,
		To:       notice.Email,
		Subject:  notice.Subject,
		TextBody: notice.Message,
		Tag:      "billing-notice",
	})
	if err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrFailedToSendEmail,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}

// Alert sends an operator alert to the ops inbox. The alert payload is
// rendered into the body so the event survives even if the origin system
// never persisted it.
func (n *PostmarkNotifier) Alert(ctx context.Context, alert Alert) error {
	body := alert.Message
	for k, v := range alert.Data {
		body += fmt.Sprintf("\n%s: %v", k, v)
	}

	resp, err := n.client.SendEmail(ctx, postmark.Email{
		From:     n.config.SenderEmail,
		To:       n.config.OpsEmail,
		Subject:  fmt.Sprintf("[%s] %s", alert.Severity, alert.Subject),
		TextBody: body,
		Tag:      "billing-alert",
	})
	if err != nil {
		return errors.Join(ErrFailedToSendAlert, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrFailedToSendAlert,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}
