package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/emberandwick/storefront-backend/pkg/config"
	"github.com/emberandwick/storefront-backend/pkg/logger"
)

// Message is a rendered HTML email ready for delivery.
type Message struct {
	To       []string
	Subject  string
	HTMLBody string
}

// Sender delivers rendered messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type sendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender delivers mail through an SMTP relay, using STARTTLS via
// smtp.SendMail or a direct TLS connection when ImplicitTLS is set.
type SMTPSender struct {
	host      string
	addr      string
	fromEmail string
	fromName  string
	auth      smtp.Auth
	send      sendFunc
	now       func() time.Time
}

// NewSMTPSender builds a sender from mail configuration.
func NewSMTPSender(cfg config.MailConfig) (*SMTPSender, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, errors.New("mail host is required")
	}
	if strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, errors.New("mail from address is required")
	}

	sender := &SMTPSender{
		host:      host,
		addr:      fmt.Sprintf("%s:%d", host, cfg.Port),
		fromEmail: strings.TrimSpace(cfg.FromEmail),
		fromName:  strings.TrimSpace(cfg.FromName),
		send:      smtp.SendMail,
		now:       time.Now,
	}
	if cfg.Username != "" {
		sender.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	if cfg.ImplicitTLS {
		sender.send = sender.sendImplicitTLS
	}
	return sender, nil
}

// Send writes msg to the relay. Cancellation is only honoured before the
// SMTP conversation starts.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if s == nil || s.send == nil {
		return errors.New("smtp sender not initialized")
	}
	recipients := cleanRecipients(msg.To)
	if len(recipients) == 0 {
		return errors.New("message has no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.send(s.addr, s.auth, s.fromEmail, recipients, s.build(recipients, msg)); err != nil {
		return fmt.Errorf("send mail via %s: %w", s.addr, err)
	}
	return nil
}

func (s *SMTPSender) build(to []string, msg Message) []byte {
	from := s.fromEmail
	if s.fromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.fromName), s.fromEmail)
	}

	headers := [][2]string{
		{"From", from},
		{"To", strings.Join(to, ", ")},
		{"Subject", mime.QEncoding.Encode("utf-8", msg.Subject)},
		{"Date", s.now().UTC().Format(time.RFC1123Z)},
		{"Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), s.host)},
		{"MIME-Version", "1.0"},
		{"Content-Type", `text/html; charset="utf-8"`},
	}

	var buf bytes.Buffer
	for _, h := range headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", h[0], h[1])
	}
	buf.WriteString("\r\n")
	buf.WriteString(msg.HTMLBody)
	return buf.Bytes()
}

func (s *SMTPSender) sendImplicitTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.host})
	if err != nil {
		return fmt.Errorf("tls dial: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	return client.Quit()
}

// LogSender stands in when no relay is configured; it records each message
// at info level and never fails.
type LogSender struct {
	Logger *logger.Logger
}

func (l LogSender) Send(ctx context.Context, msg Message) error {
	if l.Logger == nil {
		return nil
	}
	ctx = l.Logger.WithFields(ctx, map[string]any{
		"mail_to":      strings.Join(msg.To, ","),
		"mail_subject": msg.Subject,
	})
	l.Logger.Info(ctx, "mail relay disabled; message not delivered")
	return nil
}

// New returns an SMTP sender when a relay host is configured and a LogSender
// otherwise.
func New(cfg config.MailConfig, logg *logger.Logger) (Sender, error) {
	if !cfg.Enabled() {
		return LogSender{Logger: logg}, nil
	}
	return NewSMTPSender(cfg)
}

func cleanRecipients(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, addr := range raw {
		addr = strings.TrimSpace(addr)
		if addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
