package auth

import (
	"context"

	"meerchat/pkg/logger"
)

// Mail is one outgoing auth email.
type Mail struct {
	To      string
	Subject string
	Link    string
}

// Mailer delivers auth emails.
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// LogMailer writes links to the log instead of sending mail.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, m Mail) error {
	logger.Info("auth_mail", "to", m.To, "subject", m.Subject, "link", m.Link)
	return nil
}
