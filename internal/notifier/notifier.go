package notifier

import (
	"context"
	"fmt"

	"authflow/internal/configuration"
	"authflow/internal/models"
)

// Message is a plain-text mail.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type INotifier interface {
	Notify(ctx context.Context, msg Message) error
}

// New returns nil when no mailer is configured.
func New(config models.MailerConfiguration) (INotifier, error) {
	switch config.Type {
	case configuration.MailerFilesystem:
		return NewFilesystemNotifier(config.Directory)
	case configuration.MailerSMTP:
		return NewSMTPNotifier(config.SMTP)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown mailer type %q", config.Type)
	}
}
