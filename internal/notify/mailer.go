// Package notify sends the registration emails.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"ms-registration/internal/config"
	"ms-registration/internal/logger"
)

// Mailer sends one email.
type Mailer interface {
	Send(ctx context.Context, subject, body, toAddr string) error
}

// NewMailer logs emails in mock mode and sends them over SMTP otherwise.
func NewMailer(cfg config.EmailConfig, log *logger.Logger) Mailer {
	if cfg.MockMode {
		log.Warn("EMAIL", "EMAIL_MOCK_MODE set, emails will only be logged")
		return NewLogMailer(log)
	}
	return NewSMTPMailer(cfg)
}

// SMTPMailer sends plain text mail through an SMTP relay.
type SMTPMailer struct {
	cfg      config.EmailConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now      func() time.Time
}

func NewSMTPMailer(cfg config.EmailConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, sendMail: smtp.SendMail, now: time.Now}
}

func (m *SMTPMailer) Send(ctx context.Context, subject, body, toAddr string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if m.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", m.cfg.SMTPUsername, m.cfg.SMTPPassword, m.cfg.SMTPHost)
	}

	addr := fmt.Sprintf("%s:%s", m.cfg.SMTPHost, m.cfg.SMTPPort)
	msg := m.buildMessage(subject, body, toAddr)
	if err := m.sendMail(addr, auth, m.cfg.FromAddr, []string{toAddr}, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (m *SMTPMailer) buildMessage(subject, body, toAddr string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.FromAddr)
	fmt.Fprintf(&b, "To: %s\r\n", toAddr)
	if m.cfg.ReplyToAddr != "" {
		fmt.Fprintf(&b, "Reply-To: %s\r\n", m.cfg.ReplyToAddr)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", m.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

// LogMailer writes emails to the log instead of sending them. Used when
// EMAIL_MOCK_MODE is set.
type LogMailer struct {
	log *logger.Logger

	mu   sync.Mutex
	Sent []Email
}

type Email struct {
	Subject string
	Body    string
	ToAddr  string
}

func NewLogMailer(log *logger.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(ctx context.Context, subject, body, toAddr string) error {
	m.mu.Lock()
	m.Sent = append(m.Sent, Email{Subject: subject, Body: body, ToAddr: toAddr})
	m.mu.Unlock()

	m.log.Info("EMAIL", fmt.Sprintf("[mock] to=%s subject=%q", toAddr, subject))
	m.log.Debug("EMAIL", body)
	return nil
}
