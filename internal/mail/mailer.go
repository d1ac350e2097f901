// Package mail sends the verification and password-reset messages the auth
// service depends on.
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Mailer delivers a single message to one recipient.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPConfig holds connection parameters for the outbound SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// SMTPMailer sends mail through a plain SMTP relay with optional auth.
type SMTPMailer struct {
	cfg SMTPConfig
}

var _ Mailer = (*SMTPMailer)(nil)

// NewSMTPMailer creates a mailer for the given relay.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send delivers the message. The context deadline is not honored by
// net/smtp itself; callers should keep messages small and relays close.
func (m *SMTPMailer) Send(_ context.Context, to, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + m.cfg.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	addr := m.cfg.Host + ":" + m.cfg.Port
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}
	return nil
}

// VerificationBody builds the body of the address-verification message.
func VerificationBody(baseURL, token string) (subject, body string) {
	return "Verify your Merkel View email",
		fmt.Sprintf("Open the link below to verify your email address:\n\n%s/verify?token=%s\n\nIf you did not create an account, ignore this message.", strings.TrimRight(baseURL, "/"), token)
}

// PasswordResetBody builds the body of the password-reset message.
func PasswordResetBody(baseURL, token string) (subject, body string) {
	return "Reset your Merkel View password",
		fmt.Sprintf("Open the link below to choose a new password:\n\n%s/reset?token=%s\n\nIf you did not request a reset, ignore this message.", strings.TrimRight(baseURL, "/"), token)
}
