package auth

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"
)

// Mailer delivers one-time codes.
type Mailer interface {
	SendOTP(ctx context.Context, to, code string) error
}

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(host string, port int, user, pass, from string) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(host, port, user, pass),
		from:   from,
	}
}

func (m *SMTPMailer) SendOTP(ctx context.Context, to, code string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Your Manzil login code")
	msg.SetBody("text/plain", fmt.Sprintf(
		"Your one-time login code is %s.\n\nIt expires in %d minutes. If you did not try to sign in, ignore this email.",
		code, int(OTPTTL.Minutes())))

	// gomail has no context support; run the dial so a cancelled request
	// does not hold the handler.
	done := make(chan error, 1)
	go func() { done <- m.dialer.DialAndSend(msg) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send otp email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogMailer stands in when SMTP is not configured. It logs the code at
// debug level for local development.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) SendOTP(ctx context.Context, to, code string) error {
	l := m.Logger
	if l == nil {
		l = slog.Default()
	}
	l.DebugContext(ctx, "smtp disabled, otp not emailed", "to", to, "otp", code)
	return nil
}
