package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPEmailSender delivers email over plain SMTP with optional auth. SMTP
// has no message id to report, so Send always returns an empty external id.
type SMTPEmailSender struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewSMTPEmailSender creates an email sender. Username may be empty for an
// unauthenticated relay.
func NewSMTPEmailSender(host string, port int, username, password, from string) *SMTPEmailSender {
	return &SMTPEmailSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

// Channel identifies this sender as the email channel.
func (s *SMTPEmailSender) Channel() Channel {
	return ChannelEmail
}

// Send delivers one email.
func (s *SMTPEmailSender) Send(ctx context.Context, msg *Message) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	if err := smtp.SendMail(addr, auth, s.from, []string{msg.To}, []byte(b.String())); err != nil {
		return "", fmt.Errorf("smtp send to %s failed: %w", msg.To, err)
	}
	return "", nil
}
