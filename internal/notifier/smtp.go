package notifier

import (
	"context"
	"fmt"

	"authflow/internal/models"

	"github.com/wneessen/go-mail"
)

type SMTPNotifier struct {
	client *mail.Client
	sender string
}

func NewSMTPNotifier(config models.SMTPConfiguration) (*SMTPNotifier, error) {
	opts := []mail.Option{mail.WithPort(config.Port)}
	if config.SkipTLS {
		opts = append(opts, mail.WithTLSPortPolicy(mail.NoTLS))
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	}
	if config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(config.Username),
			mail.WithPassword(config.Password),
		)
	}

	client, err := mail.NewClient(config.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}
	return &SMTPNotifier{client: client, sender: config.Sender}, nil
}

func (s *SMTPNotifier) Notify(ctx context.Context, msg Message) error {
	m := mail.NewMsg()
	if err := m.From(s.sender); err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}
